// Package game runs a story session: it walks the scene graph, applies the
// effects of the player's choices and asks the collaborators for context,
// choices and the companion's replies.
package game

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tatianab/chronicles/internal/companion"
	"github.com/tatianab/chronicles/internal/engine"
	"github.com/tatianab/chronicles/internal/models"
	"github.com/tatianab/chronicles/internal/retrieval"
	"github.com/tatianab/chronicles/internal/scenes"
	"github.com/tatianab/chronicles/internal/scoring"
)

// Retriever finds reference passages for a scene. It must not fail.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, tags []string) []models.Passage
}

// Dialogue generates the companion's replies and the player's choices. It
// must not fail and GenerateActions must return exactly four choices.
type Dialogue interface {
	GenerateReply(ctx context.Context, agent models.CompanionMemory, scene models.SceneContext, history []models.Passage, playerMessage string) string
	GenerateActions(ctx context.Context, agent models.CompanionMemory, scene models.SceneContext, history []models.Passage) []string
}

type conversationResetter interface {
	ResetConversation()
}

// DefaultPlayerName is used when the player gives no name.
const DefaultPlayerName = "Player"

// turn holds what was derived for the current visit to a scene, so the
// choices shown and the choice resolved are the same list.
type turn struct {
	sceneID string
	actions []string
	context []models.Passage
}

// Orchestrator is one player's session. It handles one request at a time
// and is not safe for concurrent use; the scene graph it reads may be
// shared.
type Orchestrator struct {
	graph     *scenes.Graph
	retriever Retriever
	dialogue  Dialogue
	timeout   time.Duration
	topK      int
	logger    *slog.Logger

	newScoring   func() *scoring.Engine
	newCompanion func() *companion.Model

	sessionID      string
	playerName     string
	currentSceneID string
	world          models.WorldState
	scoring        *scoring.Engine
	companion      *companion.Model
	turn           *turn
}

// New returns an uninitialized session over graph. Call Start or Load
// before playing.
func New(graph *scenes.Graph, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		graph:        graph,
		timeout:      DefaultTimeout,
		topK:         retrieval.DefaultTopK,
		newScoring:   scoring.New,
		newCompanion: companion.New,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.dialogue == nil {
		o.dialogue = engine.NewEngine(nil, o.logger)
	}

	o.playerName = DefaultPlayerName
	o.world = models.NewWorldState()
	o.scoring = o.newScoring()
	o.companion = o.newCompanion()
	return o
}

// Start resets the session and returns the starting scene.
func (o *Orchestrator) Start(ctx context.Context, playerName string) models.SceneView {
	if strings.TrimSpace(playerName) == "" {
		playerName = DefaultPlayerName
	}
	o.playerName = strings.TrimSpace(playerName)
	o.sessionID = uuid.NewString()
	o.world = models.NewWorldState()
	o.scoring = o.newScoring()
	o.companion = o.newCompanion()
	o.turn = nil
	o.currentSceneID = ""
	if o.graph != nil {
		o.currentSceneID = o.graph.StartingSceneID()
	}
	if r, ok := o.dialogue.(conversationResetter); ok {
		r.ResetConversation()
	}

	o.log().Info("session started", "player", o.playerName, "scene", o.currentSceneID)
	return o.CurrentSceneView(ctx)
}

// CurrentSceneView renders the current scene. If there is no valid scene
// the view carries only Error and Description.
func (o *Orchestrator) CurrentSceneView(ctx context.Context) models.SceneView {
	scene, ok := o.currentScene()
	if !ok {
		return models.SceneView{
			Error:        ErrNoScene.Error(),
			Description:  "The game has not been properly initialized.",
			PlayerScores: o.scoring.CurrentScores(),
		}
	}

	o.world.Visit(scene.ID)
	o.world.CurrentLocation = scene.Location
	t := o.turnFor(ctx, scene)

	return models.SceneView{
		SceneID:           scene.ID,
		Title:             scene.Title,
		Description:       scene.Description,
		Location:          scene.Location,
		TimeOfDay:         o.world.TimeOfDay,
		Actions:           slices.Clone(t.actions),
		HistoricalContext: slices.Clone(t.context),
		PlayerScores:      o.scoring.CurrentScores(),
	}
}

// Advance renders the scene reached by the last resolved action.
func (o *Orchestrator) Advance(ctx context.Context) models.SceneView {
	return o.CurrentSceneView(ctx)
}

// ResolveAction applies the chosen action, asks the companion to react and
// moves to the next scene when the choice routes somewhere. customText, if
// set, replaces the action's text in the history and the reply prompt.
// Invalid choices are rejected before any state changes.
func (o *Orchestrator) ResolveAction(ctx context.Context, index int, customText string) (models.ActionResult, error) {
	scene, ok := o.currentScene()
	if !ok {
		return models.ActionResult{}, ErrInvalidScene
	}

	view := o.CurrentSceneView(ctx)
	if index < 0 || index >= len(view.Actions) {
		return models.ActionResult{}, fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidIndex, index, len(view.Actions))
	}

	description := view.Actions[index]
	if custom := strings.TrimSpace(customText); custom != "" {
		description = custom
	}

	key := scenes.IndexKey(index)
	effects, ok := scene.ScoreEffects[key]
	if !ok || effects.IsZero() {
		effects = scoring.DefaultEffects()
	}

	scores := o.scoring.Apply(fmt.Sprintf("%s_%d", scene.ID, index), effects, description)
	o.companion.Update(scores, description)

	callCtx, cancel := o.callContext(ctx)
	reply := o.dialogue.GenerateReply(callCtx, o.companion.PromptContext(), o.sceneContext(scene), view.HistoricalContext, playerMessage(description))
	cancel()

	result := models.ActionResult{
		ActionTaken:   description,
		AgentResponse: reply,
		UpdatedScores: scores,
	}
	if next, ok := scene.NextSceneMap[key]; ok && o.graph.Has(next) {
		o.currentSceneID = next
		result.HasNextScene = true
		result.NextSceneID = next
	}
	o.turn = nil

	o.log().Info("action resolved",
		"scene", scene.ID,
		"index", index,
		"mood", o.companion.Mood(),
		"trust", scores.Relationship.Trust,
		"next", result.NextSceneID,
	)
	return result, nil
}

func (o *Orchestrator) currentScene() (models.SceneDefinition, bool) {
	if o.graph == nil || o.currentSceneID == "" {
		return models.SceneDefinition{}, false
	}
	return o.graph.Scene(o.currentSceneID)
}

// turnFor returns the cached turn for scene or derives a new one.
func (o *Orchestrator) turnFor(ctx context.Context, scene models.SceneDefinition) *turn {
	if o.turn != nil && o.turn.sceneID == scene.ID {
		return o.turn
	}

	t := &turn{sceneID: scene.ID, context: []models.Passage{}}
	if scene.RetrievalQuery != "" && o.retriever != nil {
		callCtx, cancel := o.callContext(ctx)
		t.context = o.retriever.Retrieve(callCtx, scene.RetrievalQuery, o.topK, scene.RetrievalTags)
		cancel()
	}

	if len(scene.Actions) > 0 {
		t.actions = slices.Clone(scene.Actions)
	} else {
		callCtx, cancel := o.callContext(ctx)
		t.actions = o.dialogue.GenerateActions(callCtx, o.companion.PromptContext(), o.sceneContext(scene), t.context)
		cancel()
	}

	o.turn = t
	return t
}

func (o *Orchestrator) sceneContext(scene models.SceneDefinition) models.SceneContext {
	return models.SceneContext{
		Description: scene.Description,
		Location:    scene.Location,
		TimeOfDay:   o.world.TimeOfDay,
	}
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

func (o *Orchestrator) log() *slog.Logger {
	return o.logger.With("session", o.sessionID)
}

// playerMessage turns "Draw your sword." into "I draw your sword.".
func playerMessage(action string) string {
	r, size := utf8.DecodeRuneInString(action)
	if r == utf8.RuneError {
		return "I " + action
	}
	// Keep "I" and acronyms as written.
	if next, _ := utf8.DecodeRuneInString(action[size:]); unicode.IsUpper(next) || r == 'I' && (next == ' ' || next == '\'') {
		return "I " + action
	}
	return "I " + string(unicode.ToLower(r)) + action[size:]
}

// PlayerName returns the player's name.
func (o *Orchestrator) PlayerName() string { return o.playerName }

// SessionID identifies the session in logs and save records.
func (o *Orchestrator) SessionID() string { return o.sessionID }

// CurrentSceneID returns the current scene id, empty before Start.
func (o *Orchestrator) CurrentSceneID() string { return o.currentSceneID }

// WorldState returns a copy of the world state.
func (o *Orchestrator) WorldState() models.WorldState { return o.world.Clone() }

// Scores returns the current scores.
func (o *Orchestrator) Scores() models.Scores { return o.scoring.CurrentScores() }

// History returns the last limit resolved actions, most recent last.
func (o *Orchestrator) History(limit int) []models.ActionRecord { return o.scoring.History(limit) }

// Companion returns a snapshot of the companion's memory.
func (o *Orchestrator) Companion() models.CompanionMemory { return o.companion.PromptContext() }

// AddKnowledge teaches the companion a fact.
func (o *Orchestrator) AddKnowledge(key, value string) { o.companion.AddKnowledge(key, value) }

// AddItem puts an item in the player's inventory.
func (o *Orchestrator) AddItem(item string) {
	o.world.Inventory = append(o.world.Inventory, item)
}

// SetQuestProgress records the progress of a quest.
func (o *Orchestrator) SetQuestProgress(quest, progress string) {
	if o.world.QuestProgress == nil {
		o.world.QuestProgress = map[string]string{}
	}
	o.world.QuestProgress[quest] = progress
}

// SetTimeOfDay changes the time of day used in prompts and views.
func (o *Orchestrator) SetTimeOfDay(timeOfDay string) { o.world.TimeOfDay = timeOfDay }
