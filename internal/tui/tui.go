package tui

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	glam "github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/coxswain-dev/coxswain/internal/core/turn"
)

type eventMsg struct{ evt turn.Event }
type errMsg struct{ err error }

type model struct {
	// Coordinator
	coord  *turn.Coordinator
	events <-chan turn.Event
	cancel context.CancelFunc

	// UI
	vp     viewport.Model
	ta     textarea.Model
	width  int
	height int
	ready  bool

	// Streaming markdown rendering
	glam          *glam.TermRenderer
	lastRender    time.Time
	pendingRender bool

	// Activity
	spin       spinner.Model
	streaming  bool
	flashFrame int

	// Styling
	border     lipgloss.Style
	userStyle  lipgloss.Style
	panelStyle lipgloss.Style
	dimStyle   lipgloss.Style
	errStyle   lipgloss.Style
}

func newModel(coord *turn.Coordinator, cancel context.CancelFunc) *model {
	ta := textarea.New()
	ta.Placeholder = "Type a prompt… (Enter to send, Alt+Enter to queue, Ctrl+X to interrupt)"
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.Focus()

	vp := viewport.Model{}
	vp.YPosition = 0

	m := model{
		coord:  coord,
		events: coord.Events(),
		cancel: cancel,
		vp:     vp,
		ta:     ta,
		border: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240")),
	}
	sp := spinner.New()
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	m.spin = sp
	_ = m.rebuildRenderer(80)
	// Bright purple rounded border, transparent background, 1-char horizontal padding.
	m.userStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("129")).
		Foreground(lipgloss.Color("252")).
		PaddingLeft(1).
		PaddingRight(1)
	// Panel style shared by the agents tree and the task checklist.
	m.panelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("129")).
		Foreground(lipgloss.Color("252")).
		PaddingLeft(1).
		PaddingRight(1)
	m.dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	m.errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	return &m
}

func waitForEvent(ch <-chan turn.Event) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return errMsg{fmt.Errorf("coordinator events closed")}
		}
		return eventMsg{evt: evt}
	}
}

// renderMarkdown runs text through Glamour, falling back to the raw string.
func (m *model) renderMarkdown(text string) string {
	if m.glam == nil {
		return text
	}
	rendered, err := m.glam.Render(text)
	if err != nil {
		return text
	}
	return rendered
}

// renderSegments renders one turn's segment sequence according to kind.
func (m *model) renderSegments(segments []turn.Segment) string {
	var out strings.Builder
	for _, seg := range segments {
		switch seg.Kind {
		case turn.SegmentText:
			out.WriteString(m.renderMarkdown(seg.Text))
		case turn.SegmentTool:
			out.WriteString(m.renderToolLine(seg.Tool))
		case turn.SegmentAgents:
			out.WriteString(m.renderPanel(m.renderAgents(seg.Agents)))
		case turn.SegmentTasks:
			out.WriteString(m.renderPanel(m.renderTasks(seg.Tasks)))
		}
		if !strings.HasSuffix(out.String(), "\n") {
			out.WriteString("\n")
		}
	}
	return out.String()
}

// renderToolLine draws a single-line summary for a tool call.
func (m *model) renderToolLine(call turn.ToolCall) string {
	var box, color string
	switch call.Status {
	case turn.ToolCompleted:
		box, color = "[x]", "70" // green
	case turn.ToolError:
		box, color = "[!]", "196" // red
	case turn.ToolInterrupted:
		box, color = "[-]", "244"
	case turn.ToolRunning:
		box, color = "[~]", "214" // yellow/orange
	default:
		box, color = "[ ]", "33"
	}
	line := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(box)
	name := call.Name
	if name == "" {
		name = call.ID
	}
	detail := ""
	if call.Status == turn.ToolError && call.Error != "" {
		detail = m.dimStyle.Render(" " + call.Error)
	}
	return line + lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Render(" "+name) + detail + "\n"
}

// renderAgents builds the inner text of the sub-agents panel.
func (m *model) renderAgents(agents []turn.SubAgent) string {
	var inner strings.Builder
	inner.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Render("Agents:"))
	inner.WriteString("\n")
	for _, agent := range agents {
		var box, color string
		switch agent.Status {
		case turn.AgentCompleted:
			box, color = "[x]", "70"
		case turn.AgentError:
			box, color = "[!]", "196"
		case turn.AgentInterrupted:
			box, color = "[-]", "244"
		case turn.AgentRunning:
			box, color = "[~]", "214"
		case turn.AgentBackground:
			box, color = "[&]", "33"
		default:
			box, color = "[ ]", "33"
		}
		title := strings.TrimSpace(agent.Name)
		if title == "" {
			title = agent.ID
		}
		if agent.CurrentTool != "" {
			title += m.dimStyle.Render(" · " + agent.CurrentTool)
		}
		inner.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(box))
		inner.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Render(" " + title))
		inner.WriteString("\n")
	}
	return inner.String()
}

// renderTasks builds the inner text of the task checklist panel.
func (m *model) renderTasks(tasks []turn.Task) string {
	var inner strings.Builder
	inner.WriteString(lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Render("Tasks:"))
	inner.WriteString("\n")
	for _, task := range tasks {
		var box, color string
		switch strings.ToLower(task.Status) {
		case "completed":
			box, color = "[x]", "70"
		case "in_progress":
			box, color = "[~]", "214"
		default:
			box, color = "[ ]", "33"
		}
		title := strings.TrimSpace(task.Title)
		if title == "" {
			title = task.ID
		}
		inner.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(box))
		inner.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Render(" " + title))
		inner.WriteString("\n")
	}
	return inner.String()
}

// renderPanel wraps inner text in the shared bordered panel. Width is set so
// the final block (inner border plus padding) fits inside the viewport.
func (m *model) renderPanel(inner string) string {
	panelWidth := m.vp.Width - 4
	if panelWidth < 1 {
		panelWidth = 1
	}
	return m.panelStyle.Width(panelWidth).Render(strings.TrimRight(inner, "\n"))
}

// renderTranscript recomposes the full transcript: finalized turns from the
// session history followed by the active turn's live segments.
func (m *model) renderTranscript() string {
	userWidth := m.vp.Width - 4
	if userWidth < 1 {
		userWidth = 1
	}

	var out strings.Builder
	writeUser := func(prompt string) {
		block := m.userStyle.Width(userWidth).Render(prompt)
		out.WriteString(block)
		if !strings.HasSuffix(block, "\n") {
			out.WriteString("\n")
		}
	}

	for _, t := range m.coord.History() {
		writeUser(t.Prompt)
		out.WriteString(m.renderSegments(turn.SegmentContent(t.Content, t.ToolCalls, t.Agents, t.AgentsOffset, t.Tasks, t.TasksOffset)))
		if t.Status == turn.StatusInterrupted {
			out.WriteString(m.dimStyle.Render("[interrupted]") + "\n")
		}
	}

	snap := m.coord.Snapshot()
	if snap.Status != turn.StatusIdle {
		writeUser(snap.Prompt)
		out.WriteString(m.renderSegments(m.coord.Segments()))
		if snap.AskPrompt != "" {
			out.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("33")).Render("[input] ") + snap.AskPrompt + "\n")
		}
	}
	return out.String()
}

// refresh recomposes the viewport content from the coordinator state.
func (m *model) refresh() {
	m.vp.SetContent(m.renderTranscript())
	m.vp.GotoBottom()
	m.lastRender = time.Now()
	m.pendingRender = false
}

// recalcLayout recomputes viewport sizes based on the current terminal size
// and the rows reserved for the queue footer.
func (m *model) recalcLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	inner := m.width - 2
	if inner < 1 {
		inner = 1
	}
	m.ta.SetWidth(inner)
	vpH := m.height - 3 - m.footerLines()
	if vpH < 3 {
		vpH = 3
	}
	m.vp.Width = m.width
	m.vp.Height = vpH
	_ = m.rebuildRenderer(m.vp.Width - 2)
}

func (m *model) footerLines() int {
	if n := m.coord.Snapshot().Queue; len(n) > 0 {
		return len(n) + 1
	}
	return 0
}

// rebuildRenderer recreates the Glamour renderer with the given wrap width.
func (m *model) rebuildRenderer(wrap int) error {
	if wrap < 10 {
		wrap = 10
	}
	r, err := glam.NewTermRenderer(
		glam.WithStylePath("dark"), // fixed style to avoid OSC queries
		glam.WithWordWrap(wrap),
	)
	if err != nil {
		return err
	}
	m.glam = r
	return nil
}

type renderTick struct{}

// scheduleRender throttles re-rendering to avoid excessive work while streaming.
func (m *model) scheduleRender() tea.Cmd {
	const throttle = 80 * time.Millisecond
	now := time.Now()
	if now.Sub(m.lastRender) >= throttle && !m.pendingRender {
		m.refresh()
		return nil
	}
	if m.pendingRender {
		return nil
	}
	m.pendingRender = true
	wait := throttle - now.Sub(m.lastRender)
	if wait < 10*time.Millisecond {
		wait = throttle
	}
	return tea.Tick(wait, func(time.Time) tea.Msg { return renderTick{} })
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), textarea.Blink, m.spin.Tick)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.ta, cmd = m.ta.Update(msg)
	cmds = append(cmds, cmd)
	m.spin, cmd = m.spin.Update(msg)
	if cmd != nil {
		cmds = append(cmds, cmd)
	}
	m.vp, cmd = m.vp.Update(msg)
	cmds = append(cmds, cmd)

	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.streaming {
			m.flashFrame++
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		if msg.Type == tea.KeyCtrlX {
			m.coord.Interrupt()
			return m, tea.Batch(cmds...)
		}
		if msg.Type == tea.KeyEnter {
			prompt := strings.TrimSpace(m.ta.Value())
			if prompt != "" {
				if msg.Alt {
					m.coord.Enqueue(prompt)
				} else {
					m.coord.Submit(prompt)
				}
				m.ta.Reset()
				m.recalcLayout()
				m.refresh()
			}
			return m, tea.Batch(cmds...)
		}
		return m, tea.Batch(cmds...)

	case eventMsg:
		evt := msg.evt
		switch evt.Type {
		case turn.EventTypeDelta:
			m.streaming = true
			if cmd := m.scheduleRender(); cmd != nil {
				return m, tea.Batch(append(cmds, cmd, waitForEvent(m.events))...)
			}
			return m, tea.Batch(append(cmds, waitForEvent(m.events))...)
		case turn.EventTypeTurnStarted:
			m.streaming = true
			m.refresh()
		case turn.EventTypeTurnFinalized:
			m.streaming = false
			m.recalcLayout()
			m.refresh()
		case turn.EventTypeQueueUpdate:
			m.recalcLayout()
			m.refresh()
		case turn.EventTypeError:
			m.refresh()
		default:
			m.refresh()
		}
		return m, tea.Batch(append(cmds, waitForEvent(m.events))...)

	case errMsg:
		m.streaming = false
		m.vp.SetContent(m.renderTranscript() + m.dimStyle.Render("[closed] ") + msg.err.Error() + "\n")
		return m, tea.Tick(2*time.Second, func(time.Time) tea.Msg { return tea.Quit })
	case renderTick:
		m.refresh()
		return m, tea.Batch(cmds...)
	}

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if !m.ready {
		return "Initializing…"
	}
	top := m.border.Render(m.vp.View())
	var inputBlock string
	if m.streaming {
		innerWidth := m.width - 2
		if innerWidth < 1 {
			innerWidth = 1
		}
		bar := m.renderGradientBar(innerWidth)
		inputBlock = bar + "\n" + m.ta.View()
	} else {
		inputBlock = m.ta.View()
	}
	bottom := m.border.Render(inputBlock)

	footer := m.renderQueueFooter()
	if footer == "" {
		return top + "\n" + bottom
	}
	return top + "\n" + footer + "\n" + bottom
}

// renderQueueFooter lists parked submissions between transcript and input.
func (m *model) renderQueueFooter() string {
	queue := m.coord.Snapshot().Queue
	if len(queue) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.dimStyle.Render(fmt.Sprintf("Queued (%d):", len(queue))))
	for i, msg := range queue {
		b.WriteString("\n")
		b.WriteString(m.dimStyle.Render(fmt.Sprintf("  %d: %s", i, firstLine(msg.Content))))
	}
	return b.String()
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx] + "…"
	}
	return s
}

// renderGradientBar renders a full-width, color-cycling bar for streaming state.
func (m *model) renderGradientBar(width int) string {
	if width < 1 {
		width = 1
	}
	var b strings.Builder
	b.Grow(width * 10)
	// Animate hue offset with frame; wave lightness to get a subtle fade.
	baseHue := float64((m.flashFrame * 5) % 360)
	for i := 0; i < width; i++ {
		// Spread hues along the bar and offset over time.
		hue := math.Mod(baseHue+float64(i*3), 360.0)
		sat := 0.85
		// Fade using a sine wave across the bar + time.
		phase := (float64(i)/float64(width))*2*math.Pi + float64(m.flashFrame)/8.0
		light := 0.50 + 0.15*math.Sin(phase)
		hex := hslToHex(hue, sat, light)
		seg := lipgloss.NewStyle().Foreground(lipgloss.Color(hex)).Render("█")
		b.WriteString(seg)
	}
	return b.String()
}

// hslToHex converts H,S,L (H in [0,360), S/L in [0,1]) to a #RRGGBB string.
func hslToHex(h, s, l float64) string {
	r, g, b := hslToRGB(h, s, l)
	return fmt.Sprintf("#%02X%02X%02X", r, g, b)
}

func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	c := (1 - math.Abs(2*l-1)) * s
	hp := h / 60.0
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))
	var r1, g1, b1 float64
	switch {
	case 0 <= hp && hp < 1:
		r1, g1, b1 = c, x, 0
	case 1 <= hp && hp < 2:
		r1, g1, b1 = x, c, 0
	case 2 <= hp && hp < 3:
		r1, g1, b1 = 0, c, x
	case 3 <= hp && hp < 4:
		r1, g1, b1 = 0, x, c
	case 4 <= hp && hp < 5:
		r1, g1, b1 = x, 0, c
	default:
		r1, g1, b1 = c, 0, x
	}
	m := l - c/2
	r := uint8(clamp01((r1 + m)) * 255)
	g := uint8(clamp01((g1 + m)) * 255)
	b := uint8(clamp01((b1 + m)) * 255)
	return r, g, b
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Run launches the Bubble Tea TUI on top of an already-built coordinator.
// Returns a POSIX-style exit code.
func Run(ctx context.Context, coord *turn.Coordinator) int {
	// Prevent OSC background color queries from contaminating stdin by
	// explicitly setting color profile and background for lipgloss/termenv.
	lipgloss.SetColorProfile(termenv.TrueColor)
	lipgloss.SetHasDarkBackground(true)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newModel(coord, cancel), tea.WithAltScreen(), tea.WithContext(runCtx))
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "tui error:", err)
		return 1
	}
	return 0
}
