package game

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tatianab/chronicles/internal/companion"
	"github.com/tatianab/chronicles/internal/models"
	"github.com/tatianab/chronicles/internal/scoring"
)

// Save writes the whole session to path. A failed save leaves any previous
// file at path untouched and does not affect the running session.
func (o *Orchestrator) Save(path string) error {
	rec := &models.SaveRecord{
		PlayerName:     o.playerName,
		SessionID:      o.sessionID,
		CurrentSceneID: o.currentSceneID,
		WorldState:     o.world.Clone(),
		Alignment:      o.scoring.Alignment(),
		ActionHistory:  o.scoring.FullHistory(),
		AgentMemory:    o.companion.PromptContext(),
		SavedAt:        time.Now().UTC(),
	}

	if err := models.WriteRecord(path, rec); err != nil {
		o.log().Error("failed to save game", "path", path, "error", err)
		return fmt.Errorf("%w: save %s: %w", ErrPersistence, path, err)
	}
	o.log().Info("game saved", "path", path, "actions", len(rec.ActionHistory))
	return nil
}

// Load replaces the session with the one saved at path. If the file cannot
// be read or parsed the current session is left exactly as it was.
func (o *Orchestrator) Load(path string) error {
	rec, err := models.ReadRecord(path)
	if err != nil {
		o.log().Error("failed to load game", "path", path, "error", err)
		return fmt.Errorf("%w: load %s: %w", ErrPersistence, path, err)
	}

	o.playerName = rec.PlayerName
	if o.playerName == "" {
		o.playerName = DefaultPlayerName
	}
	o.sessionID = rec.SessionID
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}
	o.currentSceneID = rec.CurrentSceneID
	o.world = rec.WorldState.Clone()
	if o.world.QuestProgress == nil {
		o.world.QuestProgress = map[string]string{}
	}
	o.scoring = scoring.Restore(rec.Alignment, rec.ActionHistory)
	o.companion = companion.Restore(rec.AgentMemory)
	o.turn = nil
	if r, ok := o.dialogue.(conversationResetter); ok {
		r.ResetConversation()
	}

	if _, ok := o.currentScene(); !ok {
		o.log().Warn("loaded save points at an unknown scene", "scene", o.currentSceneID)
	}
	o.log().Info("game loaded", "path", path, "scene", o.currentSceneID, "actions", len(rec.ActionHistory))
	return nil
}
