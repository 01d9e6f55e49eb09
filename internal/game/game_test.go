package game

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/chronicles/internal/companion"
	"github.com/tatianab/chronicles/internal/models"
	"github.com/tatianab/chronicles/internal/scenes"
)

const testGraph = `
starting_scene: gate
scenes:
  gate:
    title: The Castle Gate
    description: A portcullis hangs half raised.
    location: Gate
    actions:
      - Bribe the guard.
      - Slip past in the dark.
      - Announce yourself.
    score_effects:
      "0": {law: -20, good: -10, trust: -5}
      "1": {law: -10, skills: {stealth: 1}}
      "2": {trust: 25}
    next_scene_map:
      "0": courtyard
      "2": courtyard
    rag_context_query: castle gates and guards
    rag_filter_tags: [castles]
  courtyard:
    title: The Courtyard
    description: Banners hang limp in the rain.
    location: Courtyard
    next_scene_map:
      "0": gate
`

type fakeRetriever struct {
	calls   int
	queries []string
	tags    [][]string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, topK int, tags []string) []models.Passage {
	f.calls++
	f.queries = append(f.queries, query)
	f.tags = append(f.tags, tags)
	return []models.Passage{{Title: "Gatehouses", Text: "Gatehouses were the strongest part of a castle.", Tags: []string{"castles"}}}
}

type fakeDialogue struct {
	actionCalls  int
	replyCalls   int
	resets       int
	lastHistory  []models.Passage
	lastMessage  string
	lastAgent    models.CompanionMemory
	lastDeadline bool
}

func (f *fakeDialogue) GenerateReply(ctx context.Context, agent models.CompanionMemory, _ models.SceneContext, history []models.Passage, msg string) string {
	f.replyCalls++
	f.lastHistory = history
	f.lastMessage = msg
	f.lastAgent = agent
	_, f.lastDeadline = ctx.Deadline()
	return "Steady now."
}

func (f *fakeDialogue) GenerateActions(_ context.Context, _ models.CompanionMemory, _ models.SceneContext, _ []models.Passage) []string {
	f.actionCalls++
	return []string{"Look up.", "Look down.", "Wait.", "Shout."}
}

func (f *fakeDialogue) ResetConversation() { f.resets++ }

func newTestGame(t *testing.T, opts ...Option) (*Orchestrator, *fakeRetriever, *fakeDialogue) {
	t.Helper()
	g, err := scenes.Parse([]byte(testGraph))
	require.NoError(t, err)
	r := &fakeRetriever{}
	d := &fakeDialogue{}
	opts = append([]Option{WithRetriever(r), WithDialogue(d)}, opts...)
	return New(g, opts...), r, d
}

func TestStart(t *testing.T) {
	o, r, d := newTestGame(t)
	view := o.Start(context.Background(), "  Aldric ")

	assert.Empty(t, view.Error)
	assert.Equal(t, "gate", view.SceneID)
	assert.Equal(t, "The Castle Gate", view.Title)
	assert.Equal(t, "morning", view.TimeOfDay)
	assert.Equal(t, []string{"Bribe the guard.", "Slip past in the dark.", "Announce yourself."}, view.Actions)
	require.Len(t, view.HistoricalContext, 1)
	assert.Equal(t, 50, view.PlayerScores.Relationship.Trust)
	assert.Equal(t, "Moderate Trust", view.PlayerScores.Relationship.Description)

	assert.Equal(t, "Aldric", o.PlayerName())
	assert.NotEmpty(t, o.SessionID())
	assert.Equal(t, []string{"gate"}, o.WorldState().VisitedScenes)
	assert.Equal(t, "Gate", o.WorldState().CurrentLocation)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, []string{"castles"}, r.tags[0])
	assert.Zero(t, d.actionCalls, "predefined actions are used verbatim")
	assert.Equal(t, 1, d.resets)
}

func TestStartWithoutConfiguredStartingScene(t *testing.T) {
	g, err := scenes.Parse([]byte("scenes:\n  first: {description: one}\n  second: {description: two}\n"))
	require.NoError(t, err)
	o := New(g)
	view := o.Start(context.Background(), "")
	assert.Equal(t, "first", view.SceneID)
	assert.Equal(t, DefaultPlayerName, o.PlayerName())
	assert.Len(t, view.Actions, 4, "offline dialogue supplies default actions")
}

func TestCurrentSceneViewWithoutScene(t *testing.T) {
	o, _, _ := newTestGame(t)
	view := o.CurrentSceneView(context.Background())
	assert.Equal(t, ErrNoScene.Error(), view.Error)
	assert.NotEmpty(t, view.Description)
	assert.Empty(t, view.Actions)

	_, err := o.ResolveAction(context.Background(), 0, "")
	assert.ErrorIs(t, err, ErrInvalidScene)

	o2 := New(nil)
	assert.Equal(t, ErrNoScene.Error(), o2.Start(context.Background(), "x").Error)
}

func TestResolveActionAdvances(t *testing.T) {
	o, _, d := newTestGame(t)
	o.Start(context.Background(), "Aldric")

	res, err := o.ResolveAction(context.Background(), 0, "")
	require.NoError(t, err)

	assert.Equal(t, "Bribe the guard.", res.ActionTaken)
	assert.Equal(t, "Steady now.", res.AgentResponse)
	assert.True(t, res.HasNextScene)
	assert.Equal(t, "courtyard", res.NextSceneID)
	assert.Equal(t, -20, res.UpdatedScores.Alignment.LawChaos)
	assert.Equal(t, -10, res.UpdatedScores.Alignment.GoodEvil)
	assert.Equal(t, 45, res.UpdatedScores.Relationship.Trust)
	assert.Equal(t, "courtyard", o.CurrentSceneID())

	assert.Equal(t, "I bribe the guard.", d.lastMessage)
	require.Len(t, d.lastHistory, 1, "reply uses the context fetched for the scene")
	assert.True(t, d.lastDeadline, "collaborator calls are bounded")
	assert.Equal(t, []string{"Bribe the guard."}, d.lastAgent.RecentActions)

	hist := o.History(10)
	require.Len(t, hist, 1)
	assert.Equal(t, "gate_0", hist[0].ActionID)

	view := o.Advance(context.Background())
	assert.Equal(t, "courtyard", view.SceneID)
	assert.Empty(t, view.HistoricalContext, "no query means no context")
	assert.Equal(t, []string{"gate", "courtyard"}, o.WorldState().VisitedScenes)
}

func TestResolveActionWithoutRoute(t *testing.T) {
	o, _, _ := newTestGame(t)
	o.Start(context.Background(), "Aldric")

	res, err := o.ResolveAction(context.Background(), 1, "")
	require.NoError(t, err)
	assert.False(t, res.HasNextScene)
	assert.Empty(t, res.NextSceneID)
	assert.Equal(t, "gate", o.CurrentSceneID())
	assert.Equal(t, 1, res.UpdatedScores.Progression.Skills["stealth"])
}

func TestResolveActionInvalidIndex(t *testing.T) {
	o, _, d := newTestGame(t)
	o.Start(context.Background(), "Aldric")
	before := o.Scores()
	companionBefore := o.Companion()

	for _, idx := range []int{-1, 3, 99} {
		_, err := o.ResolveAction(context.Background(), idx, "")
		assert.ErrorIs(t, err, ErrInvalidIndex, "index %d", idx)
	}

	assert.Equal(t, before, o.Scores())
	assert.Equal(t, companionBefore, o.Companion())
	assert.Equal(t, "gate", o.CurrentSceneID())
	assert.Empty(t, o.History(10))
	assert.Zero(t, d.replyCalls)
}

func TestResolveActionDefaultEffects(t *testing.T) {
	o, _, _ := newTestGame(t)
	o.Start(context.Background(), "Aldric")
	_, err := o.ResolveAction(context.Background(), 0, "")
	require.NoError(t, err)

	// The courtyard defines no effects.
	res, err := o.ResolveAction(context.Background(), 2, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedScores.Progression.XP)
	assert.False(t, res.HasNextScene)
}

func TestResolveActionCustomText(t *testing.T) {
	o, _, d := newTestGame(t)
	o.Start(context.Background(), "Aldric")
	res, err := o.ResolveAction(context.Background(), 1, "Climb the ivy instead.")
	require.NoError(t, err)
	assert.Equal(t, "Climb the ivy instead.", res.ActionTaken)
	assert.Equal(t, "I climb the ivy instead.", d.lastMessage)
	assert.Equal(t, "Climb the ivy instead.", o.History(1)[0].Description)
}

func TestDynamicActionsAreStableWithinATurn(t *testing.T) {
	o, _, d := newTestGame(t)
	o.Start(context.Background(), "Aldric")
	_, err := o.ResolveAction(context.Background(), 0, "")
	require.NoError(t, err)

	first := o.Advance(context.Background())
	second := o.CurrentSceneView(context.Background())
	assert.Equal(t, first.Actions, second.Actions)
	assert.Equal(t, 1, d.actionCalls)

	res, err := o.ResolveAction(context.Background(), 3, "")
	require.NoError(t, err)
	assert.Equal(t, "Shout.", res.ActionTaken)
	assert.Equal(t, 1, d.actionCalls, "resolving reuses the list that was shown")

	// A resolved action clears the list, so the next turn asks again.
	_, err = o.ResolveAction(context.Background(), 0, "")
	require.NoError(t, err)
	assert.Equal(t, 2, d.actionCalls)
}

func TestMoodScenario(t *testing.T) {
	g, err := scenes.Parse([]byte(`
scenes:
  camp:
    description: A quiet camp.
    actions: [Share your rations., Tend the wounded.]
    score_effects:
      "0": {trust: 25}
      "1": {good: 40}
`))
	require.NoError(t, err)
	o := New(g, WithDialogue(&fakeDialogue{}))
	o.Start(context.Background(), "Aldric")

	res, err := o.ResolveAction(context.Background(), 0, "")
	require.NoError(t, err)
	assert.Equal(t, 75, res.UpdatedScores.Relationship.Trust)
	assert.Equal(t, string(companion.MoodRespectful), o.Companion().Mood)
	assert.Equal(t, 75, o.Companion().TrustInPlayer)

	res, err = o.ResolveAction(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Equal(t, 40, res.UpdatedScores.Alignment.GoodEvil)
	assert.Equal(t, string(companion.MoodFriendly), o.Companion().Mood)
	assert.Equal(t, []string{"Share your rations.", "Tend the wounded."}, o.Companion().RecentActions)
}

func TestCollaboratorTimeoutDisabled(t *testing.T) {
	o, _, d := newTestGame(t, WithTimeout(0))
	o.Start(context.Background(), "Aldric")
	_, err := o.ResolveAction(context.Background(), 1, "")
	require.NoError(t, err)
	assert.False(t, d.lastDeadline)
}

func TestWorldStateMutators(t *testing.T) {
	o, _, _ := newTestGame(t)
	o.Start(context.Background(), "Aldric")
	o.AddItem("signet ring")
	o.SetQuestProgress("relic", "seeking")
	o.SetTimeOfDay("night")
	o.AddKnowledge("guard", "takes bribes")

	w := o.WorldState()
	assert.Equal(t, []string{"signet ring"}, w.Inventory)
	assert.Equal(t, "seeking", w.QuestProgress["relic"])
	assert.Equal(t, "night", o.CurrentSceneView(context.Background()).TimeOfDay)
	assert.Equal(t, "takes bribes", o.Companion().Knowledge["guard"])

	// Returned world state is a copy.
	w.Inventory[0] = "stolen"
	assert.Equal(t, "signet ring", o.WorldState().Inventory[0])

	o.Start(context.Background(), "Aldric")
	assert.Empty(t, o.WorldState().Inventory)
	assert.Empty(t, o.Companion().Knowledge)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saves", "slot1.yaml")

	o, _, _ := newTestGame(t)
	o.Start(context.Background(), "Aldric")
	_, err := o.ResolveAction(context.Background(), 2, "")
	require.NoError(t, err)
	_, err = o.ResolveAction(context.Background(), 0, "")
	require.NoError(t, err)
	o.AddKnowledge("banner", "torn")
	o.AddItem("key")
	require.NoError(t, o.Save(path))

	fresh, _, d := newTestGame(t)
	require.NoError(t, fresh.Load(path))

	assert.Equal(t, o.CurrentSceneID(), fresh.CurrentSceneID())
	assert.Equal(t, o.PlayerName(), fresh.PlayerName())
	assert.Equal(t, o.SessionID(), fresh.SessionID())
	assert.Equal(t, o.Scores(), fresh.Scores())
	assert.Equal(t, o.History(100), fresh.History(100))
	assert.Equal(t, o.Companion(), fresh.Companion())
	assert.Equal(t, o.WorldState(), fresh.WorldState())
	assert.Equal(t, 1, d.resets)

	view := fresh.CurrentSceneView(context.Background())
	assert.Equal(t, "courtyard", view.SceneID)
}

func TestLoadFailureLeavesSessionUntouched(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("alignment: [oops"), 0644))

	o, _, _ := newTestGame(t)
	o.Start(context.Background(), "Aldric")
	_, err := o.ResolveAction(context.Background(), 0, "")
	require.NoError(t, err)

	scores := o.Scores()
	mem := o.Companion()
	sceneID := o.CurrentSceneID()
	session := o.SessionID()

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	commented := filepath.Join(dir, "commented.yaml")
	require.NoError(t, os.WriteFile(commented, []byte("# saved by hand\n"), 0644))

	for _, path := range []string{broken, empty, commented, filepath.Join(dir, "missing.yaml")} {
		err := o.Load(path)
		assert.ErrorIs(t, err, ErrPersistence, path)
	}
	assert.ErrorIs(t, o.Load(filepath.Join(dir, "missing.yaml")), fs.ErrNotExist)
	assert.ErrorIs(t, o.Load(empty), models.ErrEmptyRecord)

	assert.Equal(t, scores, o.Scores())
	assert.Equal(t, mem, o.Companion())
	assert.Equal(t, sceneID, o.CurrentSceneID())
	assert.Equal(t, session, o.SessionID())
	assert.Len(t, o.History(10), 1)
}

func TestSaveFailureKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	o, _, _ := newTestGame(t)
	o.Start(context.Background(), "Aldric")
	err := o.Save(filepath.Join(blocker, "slot.yaml"))
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, syscall.ENOTDIR, "the cause stays in the chain")

	saves := filepath.Join(dir, "saves")
	path := filepath.Join(saves, "slot.yaml")
	require.NoError(t, o.Save(path))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = o.ResolveAction(context.Background(), 0, "")
	require.NoError(t, err)

	require.NoError(t, os.Chmod(saves, 0555))
	t.Cleanup(func() { os.Chmod(saves, 0755) })
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}

	err = o.Save(path)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, fs.ErrPermission)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after), "failed save leaves the previous file")
	assert.Equal(t, "courtyard", o.CurrentSceneID(), "failed save leaves the session")

	entries, err := os.ReadDir(saves)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestPlayerMessage(t *testing.T) {
	assert.Equal(t, "I draw my sword.", playerMessage("Draw my sword."))
	assert.Equal(t, "I ask Ser Elyen.", playerMessage("Ask Ser Elyen."))
	assert.Equal(t, "I TRUST NO ONE", playerMessage("TRUST NO ONE"))
	assert.Equal(t, "I ", playerMessage(""))
}

func TestSessionsAreIndependent(t *testing.T) {
	g, err := scenes.Parse([]byte(testGraph))
	require.NoError(t, err)
	a := New(g, WithTimeout(time.Second))
	b := New(g, WithTimeout(time.Second))
	a.Start(context.Background(), "A")
	b.Start(context.Background(), "B")

	_, err = a.ResolveAction(context.Background(), 0, "")
	require.NoError(t, err)

	assert.Equal(t, "courtyard", a.CurrentSceneID())
	assert.Equal(t, "gate", b.CurrentSceneID())
	assert.Equal(t, 50, b.Scores().Relationship.Trust)
	assert.Empty(t, b.Companion().RecentActions)
}
