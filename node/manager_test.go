package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/agencysync/agency"
	"github.com/adamgarcia4/goLearning/agencysync/heartbeat"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager()
	m.SetHeartbeatInterval(testInterval)
	t.Cleanup(func() { _ = m.StopAll() })
	return m
}

func TestManagerClusterConverges(t *testing.T) {
	m := newTestManager(t)

	worker, err := m.CreateNode(heartbeat.RoleWorker)
	require.NoError(t, err)
	coordinator, err := m.CreateNode(heartbeat.RoleCoordinator)
	require.NoError(t, err)
	require.Len(t, m.GetNodes(), 2)

	require.Eventually(t, func() bool {
		return coordinator.Status().HasRunOnce && len(coordinator.Topology().Servers()) == 2
	}, waitFor, tick)

	plan, err := m.BumpPlan(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return worker.Status().Current.Plan == plan
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		return coordinator.Topology().Versions().Plan == plan
	}, waitFor, tick)

	s, ok := coordinator.Topology().Lookup(worker.GetConfig().NodeID)
	require.True(t, ok)
	assert.Equal(t, "worker", s.Role)
}

func TestManagerAgencyOutage(t *testing.T) {
	m := newTestManager(t)
	worker, err := m.CreateNode(heartbeat.RoleWorker)
	require.NoError(t, err)

	assert.True(t, m.ToggleAgencyOutage())
	require.Eventually(t, func() bool {
		return worker.Status().ConsecutiveFailures >= DefaultMaxFailsBeforeWarning
	}, waitFor, tick)

	assert.False(t, m.ToggleAgencyOutage())
	require.Eventually(t, func() bool {
		return worker.Status().ConsecutiveFailures == 0
	}, waitFor, tick)
}

func TestManagerDeleteNode(t *testing.T) {
	m := newTestManager(t)
	first, err := m.CreateNode(heartbeat.RoleWorker)
	require.NoError(t, err)
	_, err = m.CreateNode(heartbeat.RoleWorker)
	require.NoError(t, err)

	assert.ErrorIs(t, m.DeleteNode(5), ErrInvalidNodeIndex)
	require.NoError(t, m.DeleteNode(0))

	nodes := m.GetNodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "node-2", nodes[0].GetConfig().NodeID)

	select {
	case <-first.Done():
	case <-time.After(waitFor):
		t.Fatal("deleted node did not stop")
	}

	raw, err := m.Agency().Read(context.Background(), agency.PlanServersKey)
	require.NoError(t, err)
	assert.NotContains(t, raw, "node-1")
	assert.Contains(t, raw, "node-2")
}
