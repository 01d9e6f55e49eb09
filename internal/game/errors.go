package game

import "errors"

var (
	// ErrNoScene means the current scene id is unset or not in the graph.
	ErrNoScene = errors.New("no valid scene available")

	// ErrInvalidScene is returned when resolving an action without a
	// current scene.
	ErrInvalidScene = errors.New("no valid scene to act in")

	// ErrInvalidIndex is returned for a choice outside the action list.
	ErrInvalidIndex = errors.New("invalid action index")

	// ErrPersistence wraps save and load failures.
	ErrPersistence = errors.New("persistence failure")
)
