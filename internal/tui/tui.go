package tui

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tatianab/chronicles/internal/game"
	"github.com/tatianab/chronicles/internal/models"
)

// DefaultSlot is the save slot used when a command names none.
const DefaultSlot = "current"

type sessionState int

const (
	stateInputName sessionState = iota
	stateLoading
	statePlaying
)

// snapshot is what the side panel shows. It is copied out of the session
// by the command that changed it so View never touches the session.
type snapshot struct {
	scores    models.Scores
	companion models.CompanionMemory
	world     models.WorldState
}

type model struct {
	state     sessionState
	game      *game.Orchestrator
	saveDir   string
	textInput textinput.Model
	viewport  viewport.Model
	gameLog   string
	width     int
	height    int
	scene     models.SceneView
	panel     snapshot
}

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	gameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	companionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87AFD7")).
			Italic(true)

	contextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8A8A8"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D7AF5F"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)
)

func NewModel(g *game.Orchestrator, saveDir string) model {
	ti := textinput.New()
	ti.Placeholder = "Your name, traveler..."
	ti.Focus()
	ti.CharLimit = 156
	ti.Width = 40

	return model{
		state:     stateInputName,
		game:      g,
		saveDir:   saveDir,
		textInput: ti,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

type sceneMsg struct {
	view   models.SceneView
	panel  snapshot
	notice string
}

type actionMsg struct {
	result models.ActionResult
	view   models.SceneView
	panel  snapshot
	err    error
}

type noticeMsg struct {
	text  string
	isErr bool
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			if m.state == stateInputName {
				m.state = stateLoading
				return m, m.start(m.textInput.Value())
			}
			if m.state == statePlaying {
				input := strings.TrimSpace(m.textInput.Value())
				if input == "" {
					return m, nil
				}
				m.textInput.Reset()
				return m.handleInput(input)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.logWidth()
		m.viewport.Height = msg.Height - 6
		if m.state == statePlaying {
			m.viewport.SetContent(m.gameLog)
		}

	case sceneMsg:
		m.state = statePlaying
		m.panel = msg.panel
		if msg.notice != "" {
			m.appendLog(noticeStyle.Render(msg.notice))
		}
		m.showScene(msg.view)
		m.textInput.Placeholder = "Choose A-D, or type a command..."
		return m, nil

	case actionMsg:
		m.state = statePlaying
		if msg.err != nil {
			m.appendLog(noticeStyle.Render("That choice is not available: " + msg.err.Error()))
			return m, nil
		}
		m.panel = msg.panel
		m.appendLog(companionStyle.Width(m.logWidth()).Render(msg.result.AgentResponse))
		if !msg.result.HasNextScene {
			m.appendLog(noticeStyle.Render("You have reached the end of this path. Use /save to keep your progress, or choose again."))
		}
		m.showScene(msg.view)
		return m, nil

	case noticeMsg:
		m.state = statePlaying
		style := noticeStyle
		if msg.isErr {
			style = style.Foreground(lipgloss.Color("#D75F5F"))
		}
		m.appendLog(style.Render(msg.text))
		return m, nil
	}

	if m.state == stateInputName || m.state == statePlaying {
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) handleInput(input string) (tea.Model, tea.Cmd) {
	m.appendLog(userStyle.Width(m.logWidth()).Render("> " + input))

	if strings.HasPrefix(input, "/") {
		name, arg := parseCommand(input)
		switch name {
		case "quit":
			return m, tea.Quit
		case "restart":
			m.state = stateInputName
			m.gameLog = ""
			m.scene = models.SceneView{}
			m.panel = snapshot{}
			m.textInput.Placeholder = "Your name, traveler..."
			return m, nil
		// Commands that touch the session or the save directory block
		// input until their reply arrives.
		case "save":
			m.state = stateLoading
			return m, m.save(slotOrDefault(arg))
		case "load":
			m.state = stateLoading
			return m, m.load(slotOrDefault(arg))
		case "saves":
			m.state = stateLoading
			return m, m.listSaves()
		default:
			m.appendLog(noticeStyle.Render("Unknown command " + input))
			return m, nil
		}
	}

	index, custom, ok := parseChoice(input, len(m.scene.Actions))
	if !ok && len(m.scene.Actions) == 0 {
		m.appendLog(noticeStyle.Render("There is nothing to choose here. Try /load or /restart."))
		return m, nil
	}
	if !ok {
		m.appendLog(noticeStyle.Render(fmt.Sprintf("Choose a letter from A to %c.", choiceLetter(len(m.scene.Actions)-1))))
		return m, nil
	}
	m.state = stateLoading
	return m, m.resolve(index, custom)
}

func (m *model) appendLog(s string) {
	m.gameLog += s + "\n\n"
	if m.viewport.Width == 0 {
		m.viewport = viewport.New(m.logWidth(), max(m.height-6, 10))
	}
	m.viewport.SetContent(m.gameLog)
	m.viewport.GotoBottom()
}

func (m *model) showScene(view models.SceneView) {
	m.scene = view
	m.appendLog(renderScene(view, m.logWidth()))
}

func (m model) logWidth() int {
	if m.width == 0 {
		return 80
	}
	return int(float64(m.width) * 0.75)
}

func (m model) View() string {
	var s string

	switch m.state {
	case stateInputName:
		s = fmt.Sprintf(
			"Welcome to Medieval Chronicles!\n\n%s\n\n%s",
			"What is your name?",
			m.textInput.View(),
		)

	case stateLoading:
		if m.gameLog == "" {
			s = "\n  The tale begins... please wait.\n"
			break
		}
		s = lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.JoinHorizontal(lipgloss.Top, m.viewport.View(), m.renderState()),
			"\n"+helpStyle.Render("Thinking..."),
		)

	case statePlaying:
		mainView := lipgloss.JoinHorizontal(lipgloss.Top,
			m.viewport.View(),
			m.renderState(),
		)

		help := helpStyle.Render("Commands: A-D to choose (add text to act your own way), /save [slot], /load [slot], /saves, /restart, /quit")

		s = lipgloss.JoinVertical(lipgloss.Left,
			mainView,
			"\n"+m.textInput.View(),
			"\n"+help,
		)
	}

	return "\n" + s + "\n"
}

func renderScene(view models.SceneView, width int) string {
	if view.Error != "" {
		return noticeStyle.Render(view.Error + ". " + view.Description + " Use /load or /restart.")
	}

	var b strings.Builder
	header := view.Title
	if view.Location != "" {
		header += " (" + view.Location + ", " + view.TimeOfDay + ")"
	}
	b.WriteString(gameStyle.Bold(true).Render(header))
	b.WriteString("\n\n")
	b.WriteString(gameStyle.Width(width).Render(view.Description))
	for _, p := range view.HistoricalContext {
		b.WriteString("\n\n")
		b.WriteString(contextStyle.Width(width).Render(p.Title + ": " + p.Text))
	}
	b.WriteString("\n")
	for i, action := range view.Actions {
		fmt.Fprintf(&b, "\n  %c) %s", choiceLetter(i), action)
	}
	return b.String()
}

func (m model) renderState() string {
	if m.scene.SceneID == "" {
		return ""
	}

	scores := m.panel.scores
	mem := m.panel.companion
	world := m.panel.world

	var b strings.Builder
	b.WriteString(titleStyle.Render("LOCATION") + "\n" + world.CurrentLocation + "\n\n")

	b.WriteString(titleStyle.Render("ALIGNMENT") + "\n")
	fmt.Fprintf(&b, "%s\nLaw/Chaos: %d\nGood/Evil: %d\n\n",
		scores.Alignment.Description, scores.Alignment.LawChaos, scores.Alignment.GoodEvil)

	b.WriteString(titleStyle.Render("COMPANION") + "\n")
	fmt.Fprintf(&b, "%s the %s\nMood: %s\nTrust: %d (%s)\n\n",
		mem.Name, mem.Class, mem.Mood, scores.Relationship.Trust, scores.Relationship.Description)

	b.WriteString(titleStyle.Render("PROGRESS") + "\n")
	fmt.Fprintf(&b, "XP: %d\n", scores.Progression.XP)
	for _, skill := range sortedKeys(scores.Progression.Skills) {
		fmt.Fprintf(&b, "%s: %d\n", skill, scores.Progression.Skills[skill])
	}
	fmt.Fprintf(&b, "Scenes visited: %d\n\n", len(world.VisitedScenes))

	b.WriteString(titleStyle.Render("INVENTORY") + "\n")
	if len(world.Inventory) == 0 {
		b.WriteString("(empty)")
	}
	for _, item := range world.Inventory {
		b.WriteString("- " + item + "\n")
	}

	stateWidth := int(float64(m.width) * 0.23)
	return stateStyle.Width(stateWidth).Height(m.viewport.Height).Render(b.String())
}

func (m model) start(name string) tea.Cmd {
	g := m.game
	return func() tea.Msg {
		view := g.Start(context.Background(), name)
		return sceneMsg{
			view:   view,
			panel:  takeSnapshot(g),
			notice: fmt.Sprintf("Welcome, %s. %s rides at your side.", g.PlayerName(), g.Companion().Name),
		}
	}
}

func (m model) resolve(index int, custom string) tea.Cmd {
	g := m.game
	return func() tea.Msg {
		ctx := context.Background()
		result, err := g.ResolveAction(ctx, index, custom)
		if err != nil {
			return actionMsg{err: err}
		}
		// Advance renders the next scene, or the same one again when the
		// choice led nowhere.
		view := g.Advance(ctx)
		return actionMsg{result: result, view: view, panel: takeSnapshot(g)}
	}
}

func (m model) save(slot string) tea.Cmd {
	g, dir := m.game, m.saveDir
	return func() tea.Msg {
		path, err := models.SlotPath(dir, slot)
		if err != nil {
			return noticeMsg{text: "Could not save: " + err.Error(), isErr: true}
		}
		if err := g.Save(path); err != nil {
			return noticeMsg{text: "Could not save: " + err.Error(), isErr: true}
		}
		return noticeMsg{text: fmt.Sprintf("Saved to slot %q.", slot)}
	}
}

func (m model) load(slot string) tea.Cmd {
	g, dir := m.game, m.saveDir
	return func() tea.Msg {
		path, err := models.SlotPath(dir, slot)
		if err != nil {
			return noticeMsg{text: "Could not load: " + err.Error(), isErr: true}
		}
		if err := g.Load(path); err != nil {
			return noticeMsg{text: "Could not load: " + err.Error(), isErr: true}
		}
		view := g.CurrentSceneView(context.Background())
		return sceneMsg{
			view:   view,
			panel:  takeSnapshot(g),
			notice: fmt.Sprintf("Loaded slot %q. Welcome back, %s.", slot, g.PlayerName()),
		}
	}
}

func (m model) listSaves() tea.Cmd {
	dir := m.saveDir
	return func() tea.Msg {
		names, err := models.ListSaves(dir)
		if err != nil {
			return noticeMsg{text: "Could not list saves: " + err.Error(), isErr: true}
		}
		if len(names) == 0 {
			return noticeMsg{text: "No saved games."}
		}
		return noticeMsg{text: "Saved games: " + strings.Join(names, ", ")}
	}
}

func takeSnapshot(g *game.Orchestrator) snapshot {
	return snapshot{
		scores:    g.Scores(),
		companion: g.Companion(),
		world:     g.WorldState(),
	}
}

// parseChoice reads "B" or "b) climb the wall instead" into a zero-based
// index and optional custom text. Digits 1-n are accepted too.
func parseChoice(input string, n int) (int, string, bool) {
	input = strings.TrimSpace(input)
	if input == "" || n == 0 {
		return 0, "", false
	}
	first := unicode.ToUpper(rune(input[0]))
	var index int
	switch {
	case first >= 'A' && first <= 'Z':
		index = int(first - 'A')
	case first >= '1' && first <= '9':
		index = int(first - '1')
	default:
		return 0, "", false
	}
	rest := input[1:]
	if rest != "" && !strings.ContainsRune(" ).:", rune(rest[0])) {
		return 0, "", false
	}
	if index >= n {
		return 0, "", false
	}
	custom := strings.TrimSpace(strings.TrimLeft(rest, ").:"))
	return index, custom, true
}

func parseCommand(input string) (string, string) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(strings.TrimSpace(input), "/"), " ")
	return strings.ToLower(name), strings.TrimSpace(arg)
}

func slotOrDefault(slot string) string {
	if slot == "" {
		return DefaultSlot
	}
	return slot
}

func choiceLetter(i int) rune {
	return rune('A' + i)
}

func sortedKeys(m map[string]int) []string {
	return slices.Sorted(maps.Keys(m))
}

func Run(g *game.Orchestrator, saveDir string) error {
	p := tea.NewProgram(NewModel(g, saveDir), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
