// Package scenes loads the read-only scene graph that drives a story.
package scenes

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/tatianab/chronicles/internal/models"
)

// ErrConfiguration is returned when a scene graph is missing or invalid.
var ErrConfiguration = errors.New("invalid scene graph")

// Graph maps scene ids to scene definitions. It is immutable once loaded
// and may be shared between sessions.
type Graph struct {
	startingScene string
	order         []string
	scenes        map[string]models.SceneDefinition
}

type graphFile struct {
	StartingScene string    `yaml:"starting_scene"`
	Scenes        yaml.Node `yaml:"scenes"`
}

// Load reads a scene graph from a YAML or JSON file.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return Parse(data)
}

// Parse decodes and validates a scene graph. Scene order follows the order
// of the scenes mapping in the document.
func Parse(data []byte) (*Graph, error) {
	var f graphFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if f.Scenes.Kind != yaml.MappingNode || len(f.Scenes.Content) == 0 {
		return nil, fmt.Errorf("%w: no scenes defined", ErrConfiguration)
	}

	g := &Graph{
		startingScene: f.StartingScene,
		scenes:        make(map[string]models.SceneDefinition),
	}
	// Mapping node content alternates key, value.
	for i := 0; i+1 < len(f.Scenes.Content); i += 2 {
		id := f.Scenes.Content[i].Value
		var scene models.SceneDefinition
		if err := f.Scenes.Content[i+1].Decode(&scene); err != nil {
			return nil, fmt.Errorf("%w: scene %q: %v", ErrConfiguration, id, err)
		}
		if _, dup := g.scenes[id]; dup {
			return nil, fmt.Errorf("%w: duplicate scene %q", ErrConfiguration, id)
		}
		scene.ID = id
		if scene.Title == "" {
			scene.Title = "Untitled Scene"
		}
		g.scenes[id] = scene
		g.order = append(g.order, id)
	}

	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) validate() error {
	if g.startingScene != "" && !g.Has(g.startingScene) {
		return fmt.Errorf("%w: starting scene %q does not exist", ErrConfiguration, g.startingScene)
	}
	for _, id := range g.order {
		scene := g.scenes[id]
		for key, target := range scene.NextSceneMap {
			if _, err := ActionIndex(key); err != nil {
				return fmt.Errorf("%w: scene %q: next_scene_map key %q is not an action index", ErrConfiguration, id, key)
			}
			if !g.Has(target) {
				return fmt.Errorf("%w: scene %q routes to unknown scene %q", ErrConfiguration, id, target)
			}
		}
		for key := range scene.ScoreEffects {
			if _, err := ActionIndex(key); err != nil {
				return fmt.Errorf("%w: scene %q: score_effects key %q is not an action index", ErrConfiguration, id, key)
			}
		}
	}
	return nil
}

// ActionIndex parses the string form of a zero-based action index.
func ActionIndex(key string) (int, error) {
	n, err := strconv.Atoi(key)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative action index %d", n)
	}
	return n, nil
}

// IndexKey is the map key used for an action index.
func IndexKey(index int) string {
	return strconv.Itoa(index)
}

// Scene returns the scene with the given id.
func (g *Graph) Scene(id string) (models.SceneDefinition, bool) {
	s, ok := g.scenes[id]
	return s, ok
}

// Has reports whether id names a scene.
func (g *Graph) Has(id string) bool {
	_, ok := g.scenes[id]
	return ok
}

// StartingSceneID returns the configured starting scene, or the first scene
// of the document when none is configured.
func (g *Graph) StartingSceneID() string {
	if g.startingScene != "" {
		return g.startingScene
	}
	if len(g.order) == 0 {
		return ""
	}
	return g.order[0]
}

// IDs returns every scene id in document order.
func (g *Graph) IDs() []string {
	return slices.Clone(g.order)
}

// Len returns the number of scenes.
func (g *Graph) Len() int {
	return len(g.order)
}
