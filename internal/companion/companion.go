// Package companion models the companion character's mood and short term
// memory.
package companion

import (
	"github.com/tatianab/chronicles/internal/models"
)

// Mood is the companion's current stance toward the player.
type Mood string

const (
	MoodFriendly    Mood = "friendly"
	MoodConcerned   Mood = "concerned"
	MoodRespectful  Mood = "respectful"
	MoodFormal      Mood = "formal"
	MoodCautious    Mood = "cautious"
	MoodNeutral     Mood = "neutral"
	MoodDistrustful Mood = "distrustful"
	MoodDistant     Mood = "distant"
)

// Default companion identity.
const (
	DefaultName      = "Ser Elyen"
	DefaultClass     = "Knight"
	DefaultAlignment = "Neutral Good"
	DefaultBackstory = "A fallen knight seeking redemption after failing to protect his liege lord."
)

// DeriveMood picks a mood from trust first, then from one alignment axis
// within each trust tier. The order of the checks is part of the contract.
func DeriveMood(trust, lawChaos, goodEvil int) Mood {
	switch {
	case trust >= 70:
		switch {
		case goodEvil >= 30:
			return MoodFriendly
		case goodEvil <= -30:
			return MoodConcerned
		default:
			return MoodRespectful
		}
	case trust >= 40:
		switch {
		case lawChaos >= 30:
			return MoodFormal
		case lawChaos <= -30:
			return MoodCautious
		default:
			return MoodNeutral
		}
	default:
		if goodEvil <= -50 {
			return MoodDistrustful
		}
		return MoodDistant
	}
}

// Model holds one companion's memory. Each session owns its own.
type Model struct {
	memory models.CompanionMemory
}

// New returns the default companion.
func New() *Model {
	return NewWithIdentity(DefaultName, DefaultClass, DefaultAlignment, DefaultBackstory)
}

// NewWithIdentity returns a companion with the given static identity.
func NewWithIdentity(name, class, alignment, backstory string) *Model {
	return &Model{memory: models.CompanionMemory{
		Name:          name,
		Class:         class,
		Alignment:     alignment,
		Backstory:     backstory,
		Mood:          string(MoodNeutral),
		TrustInPlayer: models.DefaultTrust,
		RecentActions: []string{},
		Knowledge:     map[string]string{},
	}}
}

// Restore returns a companion from saved memory. Identity fields left empty
// fall back to the defaults and recent actions are trimmed to capacity.
func Restore(mem models.CompanionMemory) *Model {
	m := mem.Clone()
	if m.Name == "" {
		m.Name = DefaultName
	}
	if m.Class == "" {
		m.Class = DefaultClass
	}
	if m.Alignment == "" {
		m.Alignment = DefaultAlignment
	}
	if m.Backstory == "" {
		m.Backstory = DefaultBackstory
	}
	if m.Mood == "" {
		m.Mood = string(MoodNeutral)
	}
	if m.RecentActions == nil {
		m.RecentActions = []string{}
	}
	if n := len(m.RecentActions); n > models.MaxRecentActions {
		m.RecentActions = m.RecentActions[n-models.MaxRecentActions:]
	}
	return &Model{memory: m}
}

// Update mirrors the player's trust, recomputes the mood and remembers the
// action, dropping the oldest one past capacity.
func (m *Model) Update(scores models.Scores, actionDescription string) {
	m.memory.TrustInPlayer = scores.Relationship.Trust
	m.memory.Mood = string(DeriveMood(
		scores.Relationship.Trust,
		scores.Alignment.LawChaos,
		scores.Alignment.GoodEvil,
	))

	m.memory.RecentActions = append(m.memory.RecentActions, actionDescription)
	if len(m.memory.RecentActions) > models.MaxRecentActions {
		m.memory.RecentActions = m.memory.RecentActions[1:]
	}
}

// AddKnowledge stores value under key, replacing any previous value.
func (m *Model) AddKnowledge(key, value string) {
	if m.memory.Knowledge == nil {
		m.memory.Knowledge = map[string]string{}
	}
	m.memory.Knowledge[key] = value
}

// Mood returns the current mood.
func (m *Model) Mood() Mood {
	return Mood(m.memory.Mood)
}

// PromptContext returns a snapshot of the memory for prompt building.
func (m *Model) PromptContext() models.CompanionMemory {
	return m.memory.Clone()
}
