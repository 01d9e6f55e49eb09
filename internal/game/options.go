package game

import (
	"log/slog"
	"time"

	"github.com/tatianab/chronicles/internal/companion"
	"github.com/tatianab/chronicles/internal/scoring"
)

// DefaultTimeout bounds each call to a collaborator.
const DefaultTimeout = 20 * time.Second

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetriever sets the context retrieval collaborator.
func WithRetriever(r Retriever) Option {
	return func(o *Orchestrator) { o.retriever = r }
}

// WithDialogue sets the dialogue generation collaborator.
func WithDialogue(d Dialogue) Option {
	return func(o *Orchestrator) { o.dialogue = d }
}

// WithScoring sets how a fresh scoring engine is built on Start.
func WithScoring(newEngine func() *scoring.Engine) Option {
	return func(o *Orchestrator) { o.newScoring = newEngine }
}

// WithCompanion sets how a fresh companion is built on Start.
func WithCompanion(newCompanion func() *companion.Model) Option {
	return func(o *Orchestrator) { o.newCompanion = newCompanion }
}

// WithTimeout bounds each collaborator call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithTopK sets how many passages are retrieved per scene.
func WithTopK(k int) Option {
	return func(o *Orchestrator) { o.topK = k }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}
