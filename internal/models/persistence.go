package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SaveExt is the file extension of save records.
const SaveExt = ".yaml"

// SaveRecord is everything needed to restore a session.
type SaveRecord struct {
	PlayerName     string          `yaml:"player_name"`
	SessionID      string          `yaml:"session_id,omitempty"`
	CurrentSceneID string          `yaml:"current_scene_id"`
	WorldState     WorldState      `yaml:"world_state"`
	Alignment      AlignmentScore  `yaml:"alignment"`
	ActionHistory  []ActionRecord  `yaml:"action_history"`
	AgentMemory    CompanionMemory `yaml:"agent_memory"`
	SavedAt        time.Time       `yaml:"saved_at,omitempty"`
}

// WriteRecord writes the record to path. Parent directories are created and
// the file is replaced atomically, so an interrupted save leaves the
// previous file intact.
func WriteRecord(path string, rec *SaveRecord) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode save record: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return renameFile(tmpName, path)
}

// renameFile is replaced in tests to simulate a failing final step.
var renameFile = os.Rename

// ErrEmptyRecord is returned for a save file with no fields in it.
var ErrEmptyRecord = errors.New("save record is empty")

// ReadRecord reads a save record. Missing fields are filled with the
// defaults of a fresh session, but the file must hold at least one field.
func ReadRecord(path string) (*SaveRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode save record: %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode || len(doc.Content[0].Content) == 0 {
		return nil, ErrEmptyRecord
	}

	rec := &SaveRecord{
		PlayerName:  "Player",
		WorldState:  NewWorldState(),
		Alignment:   NewAlignmentScore(),
		AgentMemory: CompanionMemory{Mood: DefaultMood, TrustInPlayer: DefaultTrust},
	}
	if err := doc.Decode(rec); err != nil {
		return nil, fmt.Errorf("decode save record: %w", err)
	}
	if rec.WorldState.TimeOfDay == "" {
		rec.WorldState.TimeOfDay = DefaultTimeOfDay
	}
	return rec, nil
}

// ErrInvalidSlot is returned for slot names that would leave the save
// directory.
var ErrInvalidSlot = errors.New("invalid save slot name")

// SlotPath returns the file path of a named save slot inside dir. Names
// must be a single path element.
func SlotPath(dir, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidSlot, name)
	}
	if !strings.HasSuffix(name, SaveExt) {
		name += SaveExt
	}
	return filepath.Join(dir, name), nil
}

// ListSaves returns the names of the save slots in dir, sorted.
func ListSaves(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	saves := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, SaveExt) {
			continue
		}
		saves = append(saves, strings.TrimSuffix(name, SaveExt))
	}
	sort.Strings(saves)
	return saves, nil
}
