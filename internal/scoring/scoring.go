// Package scoring tracks the player's alignment, trust and progression and
// keeps the history of every action that changed them.
package scoring

import (
	"maps"
	"slices"

	"github.com/tatianab/chronicles/internal/models"
)

const (
	minAxis  = -100
	maxAxis  = 100
	minTrust = 0
	maxTrust = 100
)

// Engine owns one AlignmentScore. It is not safe for concurrent use; each
// session has its own.
type Engine struct {
	alignment models.AlignmentScore
	history   []models.ActionRecord
}

// New returns an engine with the default starting alignment.
func New() *Engine {
	return &Engine{alignment: models.NewAlignmentScore()}
}

// Restore returns an engine with previously saved state. Bounded fields are
// clamped so a hand-edited save cannot break the range invariants.
func Restore(alignment models.AlignmentScore, history []models.ActionRecord) *Engine {
	a := alignment.Clone()
	a.LawChaos = clamp(a.LawChaos, minAxis, maxAxis)
	a.GoodEvil = clamp(a.GoodEvil, minAxis, maxAxis)
	a.Trust = clamp(a.Trust, minTrust, maxTrust)
	a.XP = max(a.XP, 0)
	return &Engine{alignment: a, history: slices.Clone(history)}
}

// DefaultEffects is applied when an action defines no effects of its own.
func DefaultEffects() models.Effects {
	return models.Effects{XP: models.Int(1)}
}

// Apply adds effects to the alignment, clamps the bounded fields, records
// the action and returns the updated scores.
func (e *Engine) Apply(actionID string, effects models.Effects, description string) models.Scores {
	a := &e.alignment
	if effects.Law != nil {
		a.LawChaos = clamp(a.LawChaos+*effects.Law, minAxis, maxAxis)
	}
	if effects.Good != nil {
		a.GoodEvil = clamp(a.GoodEvil+*effects.Good, minAxis, maxAxis)
	}
	if effects.Trust != nil {
		a.Trust = clamp(a.Trust+*effects.Trust, minTrust, maxTrust)
	}
	if effects.XP != nil {
		a.XP += *effects.XP
	}
	if len(effects.Skills) > 0 {
		if a.Skills == nil {
			a.Skills = map[string]int{}
		}
		for skill, level := range effects.Skills {
			a.Skills[skill] += level
		}
	}

	e.history = append(e.history, models.ActionRecord{
		ActionID:           actionID,
		Description:        description,
		Effects:            effects.Clone(),
		ResultingAlignment: a.Clone(),
	})

	return e.CurrentScores()
}

// CurrentScores renders the alignment with its descriptions.
func (e *Engine) CurrentScores() models.Scores {
	a := e.alignment
	return models.Scores{
		Alignment: models.AlignmentView{
			LawChaos:    a.LawChaos,
			GoodEvil:    a.GoodEvil,
			Description: AlignmentDescription(a.LawChaos, a.GoodEvil),
		},
		Relationship: models.RelationshipView{
			Trust:       a.Trust,
			Description: TrustDescription(a.Trust),
		},
		Progression: models.ProgressionView{
			XP:     a.XP,
			Skills: maps.Clone(a.Skills),
		},
	}
}

// History returns the last limit records, most recent last.
func (e *Engine) History(limit int) []models.ActionRecord {
	if limit <= 0 || len(e.history) == 0 {
		return []models.ActionRecord{}
	}
	start := max(len(e.history)-limit, 0)
	return slices.Clone(e.history[start:])
}

// FullHistory returns every record in chronological order.
func (e *Engine) FullHistory() []models.ActionRecord {
	return slices.Clone(e.history)
}

// Alignment returns a copy of the raw alignment.
func (e *Engine) Alignment() models.AlignmentScore {
	return e.alignment.Clone()
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
