package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/adamgarcia4/goLearning/agencysync/heartbeat"
	"github.com/adamgarcia4/goLearning/agencysync/logger"
	"github.com/adamgarcia4/goLearning/agencysync/node"
)

var tuiInterval time.Duration

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Run an in-process cluster in a terminal UI",
	Long: `Run a small in-process cluster sharing one in-memory agency, and drive it
from a terminal UI.

Keyboard shortcuts:
  W - Create a worker
  C - Create a coordinator
  D - Delete a node (shows selection menu)
  P - Bump the Plan version
  O - Toggle an agency outage
  Enter - Repeat the last command
  Q - Quit

Examples:
  agencysync interactive --interval=500ms`,
	RunE: runInteractive,
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
	interactiveCmd.Flags().DurationVarP(&tuiInterval, "interval", "i", node.DefaultHeartbeatInterval, "Heartbeat interval of created nodes")
}

type model struct {
	manager      *node.Manager
	nodes        []*node.Node
	deleteMode   bool
	selected     int
	err          error
	notice       string
	outage       bool
	logBuffer    *logger.LogBuffer
	logScroll    int // for scrolling logs
	width        int
	height       int
	lastCommand  string // Track last command for repeat (Enter key)
	numericInput string // Buffer for multi-digit numeric input in delete mode
}

func initialModel(interval time.Duration, level logger.Level) model {
	// Initialize logger for interactive mode (no stdout, only log buffer)
	logBuffer := logger.GetGlobalLogBuffer()
	logger.Init("", false) // No prefix, no stdout
	_ = logger.SetLevel(level)
	_ = logger.AddOutput(logger.NewLogBufferWriter(logBuffer))

	manager := node.NewManager()
	manager.SetHeartbeatInterval(interval)

	return model{
		manager:   manager,
		nodes:     []*node.Node{},
		logBuffer: logBuffer,
	}
}

func (m model) Init() tea.Cmd {
	// Refresh nodes list periodically
	return tea.Batch(tick(), refreshNodes(m.manager))
}

func tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

type tickMsg struct{}

func refreshNodes(manager *node.Manager) tea.Cmd {
	return func() tea.Msg {
		return nodesUpdatedMsg{nodes: manager.GetNodes()}
	}
}

type nodesUpdatedMsg struct {
	nodes []*node.Node
}

type shutdownCompleteMsg struct {
	err error
}

// shutdownNodes stops all nodes and sends a message when complete
func shutdownNodes(manager *node.Manager) tea.Cmd {
	return func() tea.Msg {
		err := manager.StopAll()
		return shutdownCompleteMsg{err: err}
	}
}

// run executes a repeatable command; "delete:N" deletes the Nth node (0-based)
func (m model) run(command string) model {
	var err error
	switch {
	case command == "create:worker":
		_, err = m.manager.CreateNode(heartbeat.RoleWorker)
	case command == "create:coordinator":
		_, err = m.manager.CreateNode(heartbeat.RoleCoordinator)
	case command == "bump":
		var v uint64
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		v, err = m.manager.BumpPlan(ctx)
		cancel()
		if err == nil {
			m.notice = fmt.Sprintf("Plan/Version is now %d", v)
		}
	case strings.HasPrefix(command, "delete:"):
		index, convErr := strconv.Atoi(strings.TrimPrefix(command, "delete:"))
		if convErr != nil {
			err = convErr
			break
		}
		if index < 0 || index >= len(m.nodes) {
			err = fmt.Errorf("node %d no longer exists", index+1)
			break
		}
		err = m.manager.DeleteNode(index)
	default:
		return m
	}

	m.err = err
	if err == nil {
		m.lastCommand = command
		m.nodes = m.manager.GetNodes()
	}
	return m
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Handle quit
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			// Stop all nodes gracefully and wait for completion
			return m, shutdownNodes(m.manager)
		}

		// Handle delete mode
		if m.deleteMode {
			return m.handleDeleteMode(msg)
		}

		switch msg.String() {
		case "w", "W":
			return m.run("create:worker"), nil

		case "c", "C":
			return m.run("create:coordinator"), nil

		case "p", "P":
			return m.run("bump"), nil

		case "o", "O":
			m.outage = m.manager.ToggleAgencyOutage()
			m.err = nil
			return m, nil

		case "d", "D":
			// Enter delete mode
			if len(m.nodes) == 0 {
				m.err = fmt.Errorf("no nodes to delete")
				return m, nil
			}
			m.deleteMode = true
			m.selected = 0
			m.numericInput = ""
			return m, nil

		case "enter":
			// Repeat last command/sequence
			if m.lastCommand == "" {
				return m, nil
			}
			return m.run(m.lastCommand), nil

		case "esc":
			m.err = nil
			m.notice = ""
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
		return m, tea.Batch(tick(), refreshNodes(m.manager))

	case nodesUpdatedMsg:
		m.nodes = msg.nodes
		if m.selected >= len(m.nodes) {
			m.selected = 0
		}
		return m, nil

	case shutdownCompleteMsg:
		// Log any shutdown errors via the logger
		if msg.err != nil {
			logger.Errorf("Error stopping nodes during shutdown: %v", msg.err)
		}
		// Now quit after shutdown is complete
		return m, tea.Quit
	}

	return m, nil
}

func (m model) handleDeleteMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.deleteMode = false
		m.selected = 0
		m.err = nil
		m.numericInput = ""
		return m, nil

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case "down", "j":
		if m.selected < len(m.nodes)-1 {
			m.selected++
		}
		return m, nil

	case "enter", " ":
		index := m.selected
		if m.numericInput != "" {
			input := m.numericInput
			m.numericInput = ""
			num, err := strconv.Atoi(input)
			if err != nil || num < 1 || num > len(m.nodes) {
				m.err = fmt.Errorf("node %s does not exist (max: %d)", input, len(m.nodes))
				return m, nil
			}
			index = num - 1
		}
		m = m.run(fmt.Sprintf("delete:%d", index))
		if m.err == nil {
			m.deleteMode = false
			m.selected = 0
		}
		return m, nil

	default:
		// Handle numeric input (supports multi-digit numbers)
		keyStr := msg.String()
		if len(keyStr) == 1 && keyStr >= "0" && keyStr <= "9" {
			m.numericInput += keyStr
			m.err = nil
			return m, nil
		}
		m.numericInput = ""
		return m, nil
	}
}

// formatCommandPreview formats the last command for display
func formatCommandPreview(lastCommand string) string {
	switch {
	case lastCommand == "create:worker":
		return "W"
	case lastCommand == "create:coordinator":
		return "C"
	case lastCommand == "bump":
		return "P"
	case strings.HasPrefix(lastCommand, "delete:"):
		if index, err := strconv.Atoi(strings.TrimPrefix(lastCommand, "delete:")); err == nil {
			// Show as multi-step: D → 1 (where 1 is index+1)
			return fmt.Sprintf("D → %d", index+1)
		}
		return "D → [node]"
	}
	return lastCommand
}

func runInteractive(cmd *cobra.Command, args []string) error {
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	p := tea.NewProgram(initialModel(tuiInterval, level))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running interactive mode: %w", err)
	}
	return nil
}
