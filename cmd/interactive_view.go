package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/adamgarcia4/goLearning/agencysync/agency"
	"github.com/adamgarcia4/goLearning/agencysync/heartbeat"
	"github.com/adamgarcia4/goLearning/agencysync/logger"
	"github.com/adamgarcia4/goLearning/agencysync/node"
)

// logLines is how many log entries the log box shows at once
const logLines = 15

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(1, 2)
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))
	outageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true).
			Blink(true)
	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
	instructionsStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true).
				PaddingTop(1)
)

func (m model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("Agency Sync Cluster"))
	s.WriteString("\n")
	s.WriteString(m.agencyLine())
	s.WriteString("\n\n")

	if m.err != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	} else if m.notice != "" {
		s.WriteString(noticeStyle.Render(m.notice))
		s.WriteString("\n\n")
	}

	if len(m.nodes) == 0 {
		s.WriteString("No nodes running.\n\n")
	} else {
		s.WriteString(m.nodesTable())
		s.WriteString("\n\n")
	}

	s.WriteString(m.logBox())
	s.WriteString("\n\n")
	s.WriteString(instructionsStyle.Render(m.instructions()))
	return s.String()
}

// agencyLine reads the versions straight from the in-memory store; during an
// outage the store refuses reads, so the snapshot is used instead
func (m model) agencyLine() string {
	versions := map[string]string{agency.PlanVersionKey: "0", agency.CurrentVersionKey: "0"}
	for _, kv := range m.manager.Agency().Snapshot() {
		if _, ok := versions[kv.Key]; ok {
			versions[kv.Key] = kv.Value
		}
	}
	line := fmt.Sprintf("  Plan/Version %s   Current/Version %s",
		versions[agency.PlanVersionKey], versions[agency.CurrentVersionKey])
	if m.outage {
		line += "   " + outageStyle.Render("AGENCY DOWN")
	}
	return line
}

func (m model) nodesTable() string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("#", "NODE", "ROLE", "DESIRED", "APPLIED", "SYNCING", "FAILS", "WOKE BY", "BEATS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if m.deleteMode && row == m.selected {
				return selectedStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for i, n := range m.nodes {
		t.Row(nodeRow(i, n)...)
	}
	return t.String()
}

func nodeRow(i int, n *node.Node) []string {
	st := n.Status()

	applied := st.Current
	syncing := "-"
	if st.Role == heartbeat.RoleCoordinator {
		applied = st.Processed
		if st.HasRunOnce {
			syncing = "primed"
		}
	} else if st.DispatchInFlight {
		syncing = "yes"
	}

	return []string{
		fmt.Sprintf("%d", i+1),
		st.NodeID,
		st.Role.String(),
		st.Desired.String(),
		applied.String(),
		syncing,
		fmt.Sprintf("%d", st.ConsecutiveFailures),
		wakeLabel(st.LastWake),
		fmt.Sprintf("%d", st.Ticks),
	}
}

func wakeLabel(r heartbeat.WakeReason) string {
	switch r {
	case heartbeat.WakeNotified:
		return "agency"
	case heartbeat.WakeTimeout:
		return "timer"
	case heartbeat.WakeStopped:
		return "stop"
	}
	return "-"
}

func (m model) logBox() string {
	entries := m.logBuffer.GetAll()
	total := len(entries)

	end := total - m.logScroll
	if end < 0 {
		end = 0
	}
	start := end - logLines
	if start < 0 {
		start = 0
	}

	var lines []string
	if total == 0 {
		lines = []string{"     | (no logs yet)"}
	}
	// newest first; line 0 is the most recent entry in the buffer
	for i := end - 1; i >= start; i-- {
		lines = append(lines, fmt.Sprintf("%4d | %s", total-1-i, logger.FormatLogEntry(entries[i])))
	}

	warnings := m.logBuffer.CountAtLeast(logger.LevelWarn)
	title := "Logs:"
	if warnings > 0 {
		title = fmt.Sprintf("Logs (%d warnings):", warnings)
	}

	boxWidth := 100
	if m.width > 0 {
		boxWidth = m.width - 4 // Leave some margin
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Height(logLines - 2).
		Width(boxWidth).
		Render(title + "\n" + strings.Join(lines, "\n"))
}

func (m model) instructions() string {
	if m.deleteMode {
		if m.numericInput != "" {
			return fmt.Sprintf("DELETE MODE: Type node number (current: %s) or Enter to confirm, Esc to cancel", m.numericInput)
		}
		return fmt.Sprintf("DELETE MODE: Use ↑/↓/j/k or type node number (1-%d), Enter to confirm, Esc to cancel", len(m.nodes))
	}

	text := "W worker | C coordinator | D delete | P bump plan | O toggle outage"
	if m.lastCommand != "" {
		text += fmt.Sprintf(" | Enter to repeat (%s)", formatCommandPreview(m.lastCommand))
	}
	return text + " | ↑/↓/j/k scroll logs | Q quit"
}
