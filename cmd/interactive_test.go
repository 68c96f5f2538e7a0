package cmd

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/agencysync/heartbeat"
	"github.com/adamgarcia4/goLearning/agencysync/logger"
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestFormatCommandPreview(t *testing.T) {
	assert.Equal(t, "W", formatCommandPreview("create:worker"))
	assert.Equal(t, "C", formatCommandPreview("create:coordinator"))
	assert.Equal(t, "P", formatCommandPreview("bump"))
	assert.Equal(t, "D → 3", formatCommandPreview("delete:2"))
	assert.Equal(t, "D → [node]", formatCommandPreview("delete:x"))
}

func TestModelCreateBumpDelete(t *testing.T) {
	m := initialModel(20*time.Millisecond, logger.LevelInfo)
	defer m.manager.StopAll()

	next, _ := m.Update(key("w"))
	m = next.(model)
	require.NoError(t, m.err)
	require.Len(t, m.nodes, 1)
	assert.Equal(t, heartbeat.RoleWorker, m.nodes[0].GetConfig().Role)

	// Enter repeats the last command
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	require.Len(t, m.nodes, 2)

	next, _ = m.Update(key("c"))
	m = next.(model)
	require.Len(t, m.nodes, 3)
	assert.Equal(t, heartbeat.RoleCoordinator, m.nodes[2].GetConfig().Role)

	next, _ = m.Update(key("p"))
	m = next.(model)
	require.NoError(t, m.err)
	assert.Contains(t, m.notice, "Plan/Version is now")

	// delete the second node by number
	next, _ = m.Update(key("d"))
	m = next.(model)
	require.True(t, m.deleteMode)
	next, _ = m.Update(key("2"))
	m = next.(model)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	require.NoError(t, m.err)
	assert.False(t, m.deleteMode)
	assert.Len(t, m.nodes, 2)
	assert.Equal(t, "delete:1", m.lastCommand)

	assert.Contains(t, m.View(), "node-3")
}

func TestModelDeleteOutOfRange(t *testing.T) {
	m := initialModel(20*time.Millisecond, logger.LevelInfo)
	defer m.manager.StopAll()

	next, _ := m.Update(key("d"))
	m = next.(model)
	assert.Error(t, m.err, "nothing to delete")
	assert.False(t, m.deleteMode)

	next, _ = m.Update(key("w"))
	m = next.(model)
	next, _ = m.Update(key("d"))
	m = next.(model)
	next, _ = m.Update(key("9"))
	m = next.(model)
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	assert.Error(t, m.err)
	assert.True(t, m.deleteMode)
	assert.Len(t, m.nodes, 1)
}

func TestModelOutageToggle(t *testing.T) {
	m := initialModel(20*time.Millisecond, logger.LevelInfo)
	defer m.manager.StopAll()

	next, _ := m.Update(key("o"))
	m = next.(model)
	assert.True(t, m.outage)
	assert.Contains(t, m.View(), "AGENCY DOWN")

	next, _ = m.Update(key("o"))
	m = next.(model)
	assert.False(t, m.outage)
}

func TestInitialModelAppliesLogLevel(t *testing.T) {
	m := initialModel(20*time.Millisecond, logger.LevelWarn)
	defer m.manager.StopAll()
	defer logger.SetLevel(logger.LevelInfo)

	logger.Infof("quiet-info-line")
	logger.Warnf("loud-warn-line")

	var sawInfo, sawWarn bool
	for _, e := range m.logBuffer.GetAll() {
		sawInfo = sawInfo || strings.Contains(e.Message, "quiet-info-line")
		sawWarn = sawWarn || strings.Contains(e.Message, "loud-warn-line")
	}
	assert.False(t, sawInfo, "info lines are dropped below --log-level warn")
	assert.True(t, sawWarn)
}
