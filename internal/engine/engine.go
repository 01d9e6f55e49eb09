package engine

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"text/template"

	"github.com/google/generative-ai-go/genai"
	"gopkg.in/yaml.v3"

	"github.com/tatianab/chronicles/internal/models"
)

//go:embed prompts/reply.txt
var replyPrompt string

//go:embed prompts/actions.txt
var actionsPrompt string

var (
	replyTmpl   = template.Must(template.New("reply").Parse(replyPrompt))
	actionsTmpl = template.Must(template.New("actions").Parse(actionsPrompt))
)

// ActionCount is the number of choices GenerateActions always returns.
const ActionCount = 4

// maxConversation is how many prior messages are replayed with each reply.
const maxConversation = 10

// FallbackReply is returned when a reply cannot be generated.
const FallbackReply = "The knight regards you in weary silence, then nods for you to go on."

// DefaultActions pad or replace generated action lists, in this order.
var DefaultActions = [ActionCount]string{
	"Investigate the area more carefully.",
	"Speak with the companion about the situation.",
	"Move forward cautiously.",
	"Take a different path.",
}

// generator sends one prompt to a language model.
type generator interface {
	Generate(ctx context.Context, system string, history []*genai.Content, prompt string) (string, error)
}

// Engine generates the companion's replies and the player's choices. It
// never returns errors; failures fall back to fixed text. An Engine keeps
// conversation history and belongs to a single session.
type Engine struct {
	gen          generator
	logger       *slog.Logger
	conversation []*genai.Content
}

// NewEngine returns an engine backed by model. A nil model yields an
// offline engine that always uses the fallbacks.
func NewEngine(model *genai.GenerativeModel, logger *slog.Logger) *Engine {
	var gen generator
	if model != nil {
		gen = geminiGenerator{model: model}
	}
	return newEngine(gen, logger)
}

func newEngine(gen generator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{gen: gen, logger: logger}
}

type promptData struct {
	Agent   models.CompanionMemory
	Scene   models.SceneContext
	History []models.Passage
}

func render(tmpl *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// GenerateReply returns the companion's in-character answer to the
// player's message.
func (e *Engine) GenerateReply(ctx context.Context, agent models.CompanionMemory, scene models.SceneContext, history []models.Passage, playerMessage string) string {
	if e.gen == nil {
		return FallbackReply
	}

	system, err := render(replyTmpl, promptData{Agent: agent, Scene: scene, History: history})
	if err != nil {
		e.logger.Error("failed to render reply prompt", "error", err)
		return FallbackReply
	}

	reply, err := e.gen.Generate(ctx, system, e.conversation, playerMessage)
	reply = strings.TrimSpace(reply)
	if err != nil || reply == "" {
		e.logger.Warn("reply generation failed, using fallback", "error", err)
		return FallbackReply
	}

	e.conversation = append(e.conversation,
		&genai.Content{Role: "user", Parts: []genai.Part{genai.Text(playerMessage)}},
		&genai.Content{Role: "model", Parts: []genai.Part{genai.Text(reply)}},
	)
	if n := len(e.conversation); n > maxConversation {
		e.conversation = e.conversation[n-maxConversation:]
	}
	return reply
}

// GenerateActions returns exactly ActionCount choices for the scene.
func (e *Engine) GenerateActions(ctx context.Context, agent models.CompanionMemory, scene models.SceneContext, history []models.Passage) []string {
	if e.gen == nil {
		return defaultActions()
	}

	system, err := render(actionsTmpl, promptData{Agent: agent, Scene: scene, History: history})
	if err != nil {
		e.logger.Error("failed to render actions prompt", "error", err)
		return defaultActions()
	}

	text, err := e.gen.Generate(ctx, system, nil, fmt.Sprintf("Generate %d action choices for this scene.", ActionCount))
	if err != nil {
		e.logger.Warn("action generation failed, using defaults", "error", err)
		return defaultActions()
	}

	actions := parseActions(text)
	if len(actions) != ActionCount {
		e.logger.Info("normalizing generated actions", "parsed", len(actions))
	}
	return normalizeActions(actions)
}

// ResetConversation forgets prior exchanges, for a new or loaded session.
func (e *Engine) ResetConversation() {
	e.conversation = nil
}

// parseActions reads a JSON (or YAML) list of strings, falling back to one
// action per numbered or bulleted line.
func parseActions(text string) []string {
	text = stripFences(text)
	if text == "" {
		return nil
	}

	var list []string
	if err := yaml.Unmarshal([]byte(text), &list); err == nil && len(list) > 0 {
		return list
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		line = strings.Trim(line, `",`)
		if line != "" && line != "[" && line != "]" {
			out = append(out, line)
		}
	}
	return out
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```yaml")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// normalizeActions drops blanks, keeps the first ActionCount entries and
// pads from DefaultActions.
func normalizeActions(actions []string) []string {
	out := make([]string, 0, ActionCount)
	for _, a := range actions {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
		if len(out) == ActionCount {
			return out
		}
	}
	for _, d := range DefaultActions {
		if len(out) == ActionCount {
			break
		}
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

func defaultActions() []string {
	return slices.Clone(DefaultActions[:])
}

// geminiGenerator sends prompts through a Gemini chat session.
type geminiGenerator struct {
	model *genai.GenerativeModel
}

func (g geminiGenerator) Generate(ctx context.Context, system string, history []*genai.Content, prompt string) (string, error) {
	// Copy so the system instruction stays local to this call.
	model := *g.model
	model.SystemInstruction = genai.NewUserContent(genai.Text(system))

	cs := model.StartChat()
	cs.History = append([]*genai.Content(nil), history...)

	resp, err := cs.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content returned from Gemini")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("unexpected response type from Gemini")
	}
	return sb.String(), nil
}
