package models

import (
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// Default starting values for a fresh session.
const (
	DefaultTrust     = 50
	DefaultTimeOfDay = "morning"
	DefaultMood      = "neutral"
	MaxRecentActions = 5
)

// AlignmentScore holds the player's moral and legal position along with
// trust, experience and skills.
type AlignmentScore struct {
	LawChaos int            `yaml:"law_chaos"` // -100 (Chaotic) to 100 (Lawful)
	GoodEvil int            `yaml:"good_evil"` // -100 (Evil) to 100 (Good)
	Trust    int            `yaml:"trust"`     // 0 (No trust) to 100 (Complete trust)
	XP       int            `yaml:"xp"`
	Skills   map[string]int `yaml:"skills"`
}

// NewAlignmentScore returns the alignment every new session starts with.
func NewAlignmentScore() AlignmentScore {
	return AlignmentScore{Trust: DefaultTrust, Skills: map[string]int{}}
}

// Clone returns a deep copy.
func (a AlignmentScore) Clone() AlignmentScore {
	a.Skills = maps.Clone(a.Skills)
	if a.Skills == nil {
		a.Skills = map[string]int{}
	}
	return a
}

// Effects is the delta applied to an AlignmentScore when an action is
// chosen. A nil field means the key was absent and leaves that field alone.
type Effects struct {
	Law    *int           `yaml:"law,omitempty"`
	Good   *int           `yaml:"good,omitempty"`
	Trust  *int           `yaml:"trust,omitempty"`
	XP     *int           `yaml:"xp,omitempty"`
	Skills map[string]int `yaml:"skills,omitempty"`
}

// IsZero reports whether no key is present.
func (e Effects) IsZero() bool {
	return e.Law == nil && e.Good == nil && e.Trust == nil && e.XP == nil && len(e.Skills) == 0
}

// Clone returns a deep copy.
func (e Effects) Clone() Effects {
	out := Effects{Skills: maps.Clone(e.Skills)}
	out.Law = cloneInt(e.Law)
	out.Good = cloneInt(e.Good)
	out.Trust = cloneInt(e.Trust)
	out.XP = cloneInt(e.XP)
	return out
}

// UnmarshalYAML decodes each known key on its own so that a malformed value
// only drops that key. Unknown keys are ignored.
func (e *Effects) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		// Not a mapping at all: treat as no effects.
		*e = Effects{}
		return nil
	}

	var out Effects
	for key, value := range raw {
		switch key {
		case "law":
			out.Law = decodeInt(&value)
		case "good":
			out.Good = decodeInt(&value)
		case "trust":
			out.Trust = decodeInt(&value)
		case "xp":
			out.XP = decodeInt(&value)
		case "skills":
			var skills map[string]int
			if err := value.Decode(&skills); err == nil && len(skills) > 0 {
				out.Skills = skills
			}
		}
	}
	*e = out
	return nil
}

func decodeInt(node *yaml.Node) *int {
	var v int
	if err := node.Decode(&v); err != nil {
		return nil
	}
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Int returns a pointer to v, for building Effects literals.
func Int(v int) *int {
	return &v
}

// ActionRecord is one entry of the append-only action history.
type ActionRecord struct {
	ActionID           string         `yaml:"action_id"` // "<scene_id>_<index>"
	Description        string         `yaml:"description"`
	Effects            Effects        `yaml:"effects"`
	ResultingAlignment AlignmentScore `yaml:"resulting_alignment"`
}

// CompanionMemory is the companion character's identity, mood and short
// term memory.
type CompanionMemory struct {
	Name          string            `yaml:"name"`
	Class         string            `yaml:"class"`
	Alignment     string            `yaml:"alignment"`
	Backstory     string            `yaml:"backstory"`
	Mood          string            `yaml:"mood"`
	TrustInPlayer int               `yaml:"trust_in_player"`
	RecentActions []string          `yaml:"recent_actions"`
	Knowledge     map[string]string `yaml:"knowledge"`
}

// Clone returns a deep copy.
func (c CompanionMemory) Clone() CompanionMemory {
	c.RecentActions = slices.Clone(c.RecentActions)
	c.Knowledge = maps.Clone(c.Knowledge)
	if c.Knowledge == nil {
		c.Knowledge = map[string]string{}
	}
	return c
}

// SceneDefinition is one node of the scene graph.
type SceneDefinition struct {
	ID             string             `yaml:"-"`
	Title          string             `yaml:"title"`
	Description    string             `yaml:"description"`
	Location       string             `yaml:"location"`
	Actions        []string           `yaml:"actions"` // empty means generate dynamically
	ScoreEffects   map[string]Effects `yaml:"score_effects"`
	NextSceneMap   map[string]string  `yaml:"next_scene_map"`
	RetrievalQuery string             `yaml:"rag_context_query"`
	RetrievalTags  []string           `yaml:"rag_filter_tags"`
}

// WorldState is the ambient state of a session.
type WorldState struct {
	VisitedScenes   []string          `yaml:"visited_scenes"`
	Inventory       []string          `yaml:"inventory"`
	QuestProgress   map[string]string `yaml:"quest_progress"`
	TimeOfDay       string            `yaml:"time_of_day"`
	CurrentLocation string            `yaml:"current_location"`
}

// NewWorldState returns the world state every new session starts with.
func NewWorldState() WorldState {
	return WorldState{
		VisitedScenes: []string{},
		Inventory:     []string{},
		QuestProgress: map[string]string{},
		TimeOfDay:     DefaultTimeOfDay,
	}
}

// Visit records a scene as visited. Revisits are a no-op.
func (w *WorldState) Visit(sceneID string) {
	if !slices.Contains(w.VisitedScenes, sceneID) {
		w.VisitedScenes = append(w.VisitedScenes, sceneID)
	}
}

// Clone returns a deep copy.
func (w WorldState) Clone() WorldState {
	w.VisitedScenes = slices.Clone(w.VisitedScenes)
	w.Inventory = slices.Clone(w.Inventory)
	w.QuestProgress = maps.Clone(w.QuestProgress)
	return w
}

// Passage is a short reference text returned by context retrieval.
type Passage struct {
	Title string   `yaml:"title"`
	Text  string   `yaml:"text"`
	Tags  []string `yaml:"tags"`
}

// AlignmentView is the alignment part of Scores.
type AlignmentView struct {
	LawChaos    int    `yaml:"law_chaos"`
	GoodEvil    int    `yaml:"good_evil"`
	Description string `yaml:"description"`
}

// RelationshipView is the trust part of Scores.
type RelationshipView struct {
	Trust       int    `yaml:"trust"`
	Description string `yaml:"description"`
}

// ProgressionView is the experience part of Scores.
type ProgressionView struct {
	XP     int            `yaml:"xp"`
	Skills map[string]int `yaml:"skills"`
}

// Scores is the human-readable rendering of an AlignmentScore.
type Scores struct {
	Alignment    AlignmentView    `yaml:"alignment"`
	Relationship RelationshipView `yaml:"relationship"`
	Progression  ProgressionView  `yaml:"progression"`
}

// SceneView is what the player sees for the current scene. When Error is
// set, only Description is meaningful.
type SceneView struct {
	SceneID           string
	Title             string
	Description       string
	Location          string
	TimeOfDay         string
	Actions           []string
	HistoricalContext []Passage
	PlayerScores      Scores
	Error             string
}

// ActionResult is the outcome of resolving one chosen action.
type ActionResult struct {
	ActionTaken   string
	AgentResponse string
	UpdatedScores Scores
	HasNextScene  bool
	NextSceneID   string
}

// SceneContext is the part of a scene handed to dialogue generation.
type SceneContext struct {
	Description string
	Location    string
	TimeOfDay   string
}
