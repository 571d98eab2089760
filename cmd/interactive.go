package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Pappt04/Lilyoutube-server/catalog"
	"github.com/Pappt04/Lilyoutube-server/gossip"
	"github.com/Pappt04/Lilyoutube-server/logger"
	"github.com/Pappt04/Lilyoutube-server/node"
)

var (
	interactiveHTTPBase int
	interactiveGRPCBase int
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Run a local cluster of replicas in a terminal UI",
	Long: `Start an interactive terminal UI that runs several replicas in this process,
fully meshed, so views and anti-entropy can be watched live.

Keyboard shortcuts:
  C   - Create a new replica
  D   - Delete a replica (shows selection menu)
  Tab - Select the next replica
  V   - Record a view of a video on the selected replica
  S   - Run a sync cycle on the selected replica now
  Q   - Quit

Examples:
  viewsync interactive
  viewsync interactive --config=cluster.yaml`,
	RunE: runInteractive,
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
	interactiveCmd.Flags().IntVar(&interactiveHTTPBase, "http-base-port", 8081, "HTTP port of the first replica (0 picks free ports)")
	interactiveCmd.Flags().IntVar(&interactiveGRPCBase, "grpc-base-port", 50051, "gRPC port of the first replica (0 picks free ports)")
}

var demoVideos = []catalog.Video{
	{ID: 1, Name: "intro.mp4"},
	{ID: 2, Name: "keynote.mp4"},
	{ID: 3, Name: "outro.mp4"},
}

type inputMode int

const (
	modeNormal inputMode = iota
	modeDelete
	modeView
)

const (
	logLines      = 15
	logBufferSize = 1000
	opTimeout     = 5 * time.Second
)

// nodeRow is what the UI shows for one replica, captured off the UI goroutine.
type nodeRow struct {
	id      string
	http    string
	grpc    string
	peers   []string
	watched uint64
}

type model struct {
	manager      *node.Manager
	nodes        []nodeRow
	mode         inputMode
	selected     int // replica targeted by V and S
	cursor       int // selection in delete mode
	watchVideo   int64
	err          error
	status       string
	logBuffer    *logger.LogBuffer
	logScroll    int // for scrolling logs
	width        int
	height       int
	lastCommand  string // Track last command for repeat (Enter key)
	numericInput string // Buffer for multi-digit numeric input
}

func initialModel(manager *node.Manager, buf *logger.LogBuffer) model {
	return model{
		manager:    manager,
		logBuffer:  buf,
		watchVideo: demoVideos[0].ID,
	}
}

func (m model) Init() tea.Cmd {
	// Refresh nodes list periodically
	return tea.Batch(tick(), refreshNodes(m.manager, m.watchVideo))
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

type tickMsg struct{}

func refreshNodes(manager *node.Manager, videoID int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		var rows []nodeRow
		for _, n := range manager.GetNodes() {
			row := nodeRow{id: n.ReplicaID(), http: n.HTTPAddr(), grpc: n.GRPCAddr()}
			for _, p := range n.Peers() {
				row.peers = append(row.peers, fmt.Sprintf("%s:%s", p.ID, p.Health))
			}
			row.watched, _ = n.TotalViews(ctx, videoID)
			rows = append(rows, row)
		}
		return nodesUpdatedMsg{nodes: rows}
	}
}

type nodesUpdatedMsg struct {
	nodes []nodeRow
}

type syncDoneMsg struct {
	replica string
	report  gossip.CycleReport
	err     error
}

func syncNode(n *node.Node) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		report, err := n.SyncNow(ctx)
		return syncDoneMsg{replica: n.ReplicaID(), report: report, err: err}
	}
}

type shutdownCompleteMsg struct {
	err error
}

// shutdownNodes stops all nodes and sends a message when complete
func shutdownNodes(manager *node.Manager) tea.Cmd {
	return func() tea.Msg {
		return shutdownCompleteMsg{err: manager.StopAll()}
	}
}

func (m model) selectedNode() (*node.Node, error) {
	nodes := m.manager.GetNodes()
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no replicas running")
	}
	if m.selected >= len(nodes) {
		return nodes[len(nodes)-1], nil
	}
	return nodes[m.selected], nil
}

func (m model) createNode() model {
	if _, err := m.manager.CreateNode(); err != nil {
		m.err = err
		return m
	}
	m.err = nil
	m.lastCommand = "create"
	return m
}

func (m model) deleteNode(index int) model {
	if err := m.manager.DeleteNode(index); err != nil {
		m.err = err
		return m
	}
	m.err = nil
	m.lastCommand = fmt.Sprintf("delete:%d", index)
	if m.selected >= index && m.selected > 0 {
		m.selected--
	}
	return m
}

func (m model) recordView(videoID int64) model {
	n, err := m.selectedNode()
	if err != nil {
		m.err = err
		return m
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := n.RecordView(ctx, videoID); err != nil {
		m.err = fmt.Errorf("view of video %d on %s: %w", videoID, n.ReplicaID(), err)
		return m
	}
	m.err = nil
	m.watchVideo = videoID
	m.lastCommand = fmt.Sprintf("view:%d", videoID)
	m.status = fmt.Sprintf("Recorded a view of video %d on %s", videoID, n.ReplicaID())
	return m
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Handle quit
		if msg.String() == "ctrl+c" || (m.mode == modeNormal && msg.String() == "q") {
			// Stop all nodes gracefully and wait for completion
			return m, shutdownNodes(m.manager)
		}

		switch m.mode {
		case modeDelete:
			return m.handleDeleteMode(msg)
		case modeView:
			return m.handleViewMode(msg)
		}

		switch msg.String() {
		case "c", "C":
			m = m.createNode()
			return m, refreshNodes(m.manager, m.watchVideo)

		case "d", "D":
			if len(m.nodes) == 0 {
				m.err = fmt.Errorf("no replicas to delete")
				return m, nil
			}
			m.mode = modeDelete
			m.cursor = 0
			m.numericInput = ""
			return m, nil

		case "v", "V":
			if len(m.nodes) == 0 {
				m.err = fmt.Errorf("no replicas running")
				return m, nil
			}
			m.mode = modeView
			m.numericInput = ""
			return m, nil

		case "s", "S":
			n, err := m.selectedNode()
			if err != nil {
				m.err = err
				return m, nil
			}
			m.lastCommand = "sync"
			return m, syncNode(n)

		case "tab":
			if len(m.nodes) > 0 {
				m.selected = (m.selected + 1) % len(m.nodes)
			}
			return m, nil

		case "enter":
			return m.repeatLastCommand()

		case "esc":
			m.err = nil
			m.status = ""
			return m, nil

		case "up", "k":
			// Scroll logs up (show older logs)
			maxScroll := m.logBuffer.Len() - logLines
			if m.logScroll < maxScroll {
				m.logScroll++
			}
			return m, nil

		case "down", "j":
			// Scroll logs down (show newer logs)
			if m.logScroll > 0 {
				m.logScroll--
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(tick(), refreshNodes(m.manager, m.watchVideo))

	case nodesUpdatedMsg:
		m.nodes = msg.nodes
		if m.selected >= len(m.nodes) {
			m.selected = 0
		}
		return m, nil

	case syncDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.status = fmt.Sprintf("%s synced: %d ok, %d failed, %d rows merged",
			msg.replica, msg.report.Succeeded(), msg.report.Failed(), msg.report.RowsMerged)
		return m, refreshNodes(m.manager, m.watchVideo)

	case shutdownCompleteMsg:
		if msg.err != nil {
			logger.Get().Logrus().WithError(msg.err).Error("Error stopping replicas during shutdown")
		}
		return m, tea.Quit
	}

	return m, nil
}

// repeatLastCommand replays create, delete:N, view:ID or sync.
func (m model) repeatLastCommand() (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(m.lastCommand, ":")
	switch name {
	case "create":
		m = m.createNode()
	case "delete":
		index, err := strconv.Atoi(arg)
		if err != nil {
			return m, nil
		}
		if index >= len(m.nodes) {
			m.err = fmt.Errorf("replica %d no longer exists", index+1)
			return m, nil
		}
		m = m.deleteNode(index)
	case "view":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return m, nil
		}
		m = m.recordView(id)
	case "sync":
		n, err := m.selectedNode()
		if err != nil {
			m.err = err
			return m, nil
		}
		return m, syncNode(n)
	default:
		return m, nil
	}
	return m, refreshNodes(m.manager, m.watchVideo)
}

// readDigit appends a typed digit to the numeric buffer. It reports false for
// any other key.
func (m *model) readDigit(key string) bool {
	if len(key) == 1 && key >= "0" && key <= "9" {
		m.numericInput += key
		return true
	}
	return false
}

func (m model) handleDeleteMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeNormal
		m.cursor = 0
		m.err = nil
		m.numericInput = ""
		return m, nil

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.nodes)-1 {
			m.cursor++
		}
		return m, nil

	case "enter", " ":
		index := m.cursor
		if m.numericInput != "" {
			input := m.numericInput
			m.numericInput = ""
			num, err := strconv.Atoi(input)
			if err != nil || num < 1 || num > len(m.nodes) {
				m.err = fmt.Errorf("replica %s does not exist (max: %d)", input, len(m.nodes))
				return m, nil
			}
			index = num - 1
		}
		m = m.deleteNode(index)
		if m.err == nil {
			m.mode = modeNormal
			m.cursor = 0
		}
		return m, refreshNodes(m.manager, m.watchVideo)

	default:
		if !m.readDigit(msg.String()) {
			m.numericInput = ""
		}
		return m, nil
	}
}

func (m model) handleViewMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = modeNormal
		m.numericInput = ""
		return m, nil

	case "enter":
		videoID := m.watchVideo
		if m.numericInput != "" {
			id, err := strconv.ParseInt(m.numericInput, 10, 64)
			if err != nil {
				m.err = fmt.Errorf("invalid video id: %s", m.numericInput)
				m.numericInput = ""
				return m, nil
			}
			videoID = id
		}
		m.numericInput = ""
		m.mode = modeNormal
		m = m.recordView(videoID)
		return m, refreshNodes(m.manager, m.watchVideo)

	case "backspace":
		if n := len(m.numericInput); n > 0 {
			m.numericInput = m.numericInput[:n-1]
		}
		return m, nil

	default:
		m.readDigit(msg.String())
		return m, nil
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(1, 2)
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	deleteStyle   = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
	instructionsStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true).
				PaddingTop(1)
)

func (m model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("View Counter Replicas"))
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	} else if m.status != "" {
		s.WriteString(statusStyle.Render(m.status))
		s.WriteString("\n\n")
	}

	if len(m.nodes) == 0 {
		s.WriteString("No replicas running.\n\n")
	} else {
		s.WriteString(fmt.Sprintf("Running Replicas (video %d totals):\n\n", m.watchVideo))
		for i, n := range m.nodes {
			line := fmt.Sprintf("[%d] %-10s %6d views  http %s  grpc %s  peers [%s]",
				i+1, n.id, n.watched, n.http, n.grpc, strings.Join(n.peers, " "))
			switch {
			case m.mode == modeDelete && i == m.cursor:
				s.WriteString(deleteStyle.Render("> " + line))
			case i == m.selected:
				s.WriteString(selectedStyle.Render("* " + line))
			default:
				s.WriteString("  " + line)
			}
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	s.WriteString(m.renderLogs())
	s.WriteString("\n\n")
	s.WriteString(instructionsStyle.Render(m.helpText()))
	return s.String()
}

// renderLogs shows logLines entries, newest first, shifted back by logScroll.
// Line 0 is the most recent entry.
func (m model) renderLogs() string {
	entries := m.logBuffer.GetAll()
	total := len(entries)

	var lines []string
	if total == 0 {
		lines = []string{"     | (no logs yet)"}
	}
	end := total - m.logScroll
	start := end - logLines
	if start < 0 {
		start = 0
	}
	for i := end - 1; i >= start; i-- {
		lines = append(lines, fmt.Sprintf("%4d | %s", total-1-i, logger.FormatLogEntry(entries[i])))
	}

	boxWidth := 100
	if m.width > 0 {
		boxWidth = m.width - 4
	}
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Height(logLines - 2).
		Width(boxWidth)
	return logStyle.Render("Logs:\n" + strings.Join(lines, "\n"))
}

func (m model) helpText() string {
	switch m.mode {
	case modeDelete:
		if m.numericInput != "" {
			return fmt.Sprintf("DELETE MODE: Type replica number (current: %s) or Enter to confirm, Esc to cancel", m.numericInput)
		}
		return fmt.Sprintf("DELETE MODE: Use ↑/↓/j/k or type replica number (1-%d), Enter to confirm, Esc to cancel", len(m.nodes))
	case modeView:
		return fmt.Sprintf("VIEW: Type a video id (current: %s, default %d), Enter to record, Esc to cancel", m.numericInput, m.watchVideo)
	}

	text := "C create | D delete | Tab select | V view | S sync"
	if m.lastCommand != "" {
		text += fmt.Sprintf(" | Enter to repeat (%s)", formatCommandPreview(m.lastCommand))
	}
	return text + " | ↑/↓/j/k scroll logs | Q quit"
}

// formatCommandPreview formats the last command for display
func formatCommandPreview(lastCommand string) string {
	name, arg, _ := strings.Cut(lastCommand, ":")
	switch name {
	case "create":
		return "C"
	case "sync":
		return "S"
	case "view":
		return "V → " + arg
	case "delete":
		if index, err := strconv.Atoi(arg); err == nil {
			return fmt.Sprintf("D → %d", index+1)
		}
		return "D → [replica]"
	}
	return lastCommand
}

func runInteractive(cmd *cobra.Command, args []string) error {
	template, err := loadConfig()
	if err != nil {
		return err
	}

	// Interactive mode: no stdout, only the log pane
	lg := logger.Init(logger.Options{Level: template.Log.Level, Format: "text", Stdout: false})
	buf := logger.NewLogBuffer(logBufferSize)
	lg.AttachBuffer(buf)

	videos := template.Catalog.Videos
	if len(videos) == 0 {
		videos = demoVideos
	}
	manager := node.NewManager(node.ManagerConfig{
		Address:      template.Address,
		HTTPBasePort: interactiveHTTPBase,
		GRPCBasePort: interactiveGRPCBase,
		Template:     template,
		Videos:       videos,
		Logger:       lg,
	})

	p := tea.NewProgram(initialModel(manager, buf))
	if _, err := p.Run(); err != nil {
		_ = manager.StopAll()
		return fmt.Errorf("error running interactive mode: %w", err)
	}
	return nil
}
