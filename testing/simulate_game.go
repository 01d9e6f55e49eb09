package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/tatianab/chronicles/internal/app"
	"github.com/tatianab/chronicles/internal/config"
	"github.com/tatianab/chronicles/internal/game"
	"github.com/tatianab/chronicles/internal/models"
)

const maxTurns = 10

// chooser picks the index of the next action for a scene.
type chooser func(ctx context.Context, view models.SceneView, g *game.Orchestrator) int

func main() {
	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	a, err := app.Open(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("Failed to start game: %v", err)
	}
	defer a.Close()

	choose := randomChoice
	if !cfg.Offline() {
		// The player is a second model, independent of the one voicing the
		// companion.
		playerClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			log.Fatalf("Failed to create player client: %v", err)
		}
		defer playerClient.Close()
		choose = llmChoice(playerClient.GenerativeModel(cfg.GeminiModel))
	}

	g := a.NewGame()
	view := g.Start(ctx, "Simulated Player")
	if view.Error != "" {
		log.Fatalf("Failed to start: %s", view.Error)
	}

	for turn := 1; turn <= maxTurns; turn++ {
		fmt.Printf("--- Turn %d: %s ---\n", turn, view.Title)
		fmt.Println(view.Description)
		for _, p := range view.HistoricalContext {
			fmt.Printf("  [%s] %s\n", p.Title, p.Text)
		}
		for i, action := range view.Actions {
			fmt.Printf("  %c) %s\n", 'A'+i, action)
		}

		index := choose(ctx, view, g)
		result, err := g.ResolveAction(ctx, index, "")
		if err != nil {
			fmt.Printf("Error resolving action: %v\n", err)
			break
		}
		fmt.Printf("Player: %s\n", result.ActionTaken)
		fmt.Printf("%s: %s\n", g.Companion().Name, result.AgentResponse)

		s := result.UpdatedScores
		fmt.Printf("Alignment: %s (%d/%d), Trust: %d (%s), Mood: %s, XP: %d\n\n",
			s.Alignment.Description, s.Alignment.LawChaos, s.Alignment.GoodEvil,
			s.Relationship.Trust, s.Relationship.Description, g.Companion().Mood, s.Progression.XP)

		if !result.HasNextScene {
			fmt.Println("Game Ended: the path goes no further.")
			break
		}
		view = g.Advance(ctx)
	}

	fmt.Printf("Visited: %s\n", strings.Join(g.WorldState().VisitedScenes, " -> "))
}

func randomChoice(_ context.Context, view models.SceneView, _ *game.Orchestrator) int {
	return rand.IntN(len(view.Actions))
}

func llmChoice(model *genai.GenerativeModel) chooser {
	return func(ctx context.Context, view models.SceneView, g *game.Orchestrator) int {
		historyText := ""
		for _, rec := range g.History(5) {
			historyText += fmt.Sprintf("- %s\n", rec.Description)
		}
		choices := ""
		for i, action := range view.Actions {
			choices += fmt.Sprintf("%c) %s\n", 'A'+i, action)
		}

		prompt := fmt.Sprintf(`You are playing a medieval text adventure alongside a knight companion.
Scene: %s
%s

Your recent actions:
%s
Choices:
%s
Which choice do you make? Return ONLY the letter.`,
			view.Title, view.Description, historyText, choices)

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			return randomChoice(ctx, view, g)
		}
		answer := strings.ToUpper(strings.TrimSpace(fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])))
		if answer == "" {
			return randomChoice(ctx, view, g)
		}
		index := int(answer[0] - 'A')
		if index < 0 || index >= len(view.Actions) {
			return randomChoice(ctx, view, g)
		}
		return index
	}
}
