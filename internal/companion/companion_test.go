package companion

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/chronicles/internal/models"
)

func scoresOf(trust, law, good int) models.Scores {
	return models.Scores{
		Alignment:    models.AlignmentView{LawChaos: law, GoodEvil: good},
		Relationship: models.RelationshipView{Trust: trust},
	}
}

func TestDeriveMood(t *testing.T) {
	cases := []struct {
		trust, law, good int
		want             Mood
	}{
		{70, 0, 30, MoodFriendly},
		{100, -100, 100, MoodFriendly},
		{70, 0, -30, MoodConcerned},
		{70, 100, 29, MoodRespectful},
		{69, 30, 100, MoodFormal},
		{40, -30, 100, MoodCautious},
		{40, 29, -100, MoodNeutral},
		{39, 100, -50, MoodDistrustful},
		{0, 0, -49, MoodDistant},
		{0, 0, 100, MoodDistant},
	}
	for _, tc := range cases {
		got := DeriveMood(tc.trust, tc.law, tc.good)
		assert.Equal(t, tc.want, got, "trust=%d law=%d good=%d", tc.trust, tc.law, tc.good)
	}
}

func TestMoodIgnoresHistory(t *testing.T) {
	a := New()
	b := New()
	for i := range 7 {
		a.Update(scoresOf(10, -90, -90), fmt.Sprintf("cruel %d", i))
	}
	a.Update(scoresOf(75, 0, 40), "kind")
	b.Update(scoresOf(75, 0, 40), "kind")
	assert.Equal(t, b.Mood(), a.Mood())
	assert.Equal(t, MoodFriendly, a.Mood())
}

func TestRecentActionsFIFO(t *testing.T) {
	m := New()
	for i := 1; i <= 5; i++ {
		m.Update(scoresOf(50, 0, 0), fmt.Sprintf("action %d", i))
	}
	require.Len(t, m.PromptContext().RecentActions, 5)

	m.Update(scoresOf(50, 0, 0), "action 6")
	got := m.PromptContext().RecentActions
	assert.Equal(t, []string{"action 2", "action 3", "action 4", "action 5", "action 6"}, got)
}

func TestUpdateMirrorsTrust(t *testing.T) {
	m := New()
	m.Update(scoresOf(83, 0, 0), "x")
	assert.Equal(t, 83, m.PromptContext().TrustInPlayer)
}

func TestKnowledgeOverwrites(t *testing.T) {
	m := New()
	m.AddKnowledge("relic", "lost")
	m.AddKnowledge("relic", "found")
	m.AddKnowledge("lord", "dead")
	assert.Equal(t, map[string]string{"relic": "found", "lord": "dead"}, m.PromptContext().Knowledge)
}

func TestPromptContextIsSnapshot(t *testing.T) {
	m := New()
	m.Update(scoresOf(50, 0, 0), "first")
	snap := m.PromptContext()
	snap.RecentActions[0] = "changed"
	snap.Knowledge["k"] = "v"

	again := m.PromptContext()
	assert.Equal(t, "first", again.RecentActions[0])
	assert.Empty(t, again.Knowledge)
	assert.Equal(t, DefaultName, again.Name)
}

func TestRestoreTrimsAndDefaults(t *testing.T) {
	m := Restore(models.CompanionMemory{
		Mood:          "formal",
		RecentActions: []string{"1", "2", "3", "4", "5", "6", "7"},
	})
	ctx := m.PromptContext()
	assert.Equal(t, DefaultName, ctx.Name)
	assert.Equal(t, "formal", ctx.Mood)
	assert.Equal(t, []string{"3", "4", "5", "6", "7"}, ctx.RecentActions)
}
