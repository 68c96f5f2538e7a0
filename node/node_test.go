package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/agencysync/agency"
	"github.com/adamgarcia4/goLearning/agencysync/endpoint"
	"github.com/adamgarcia4/goLearning/agencysync/heartbeat"
	"github.com/adamgarcia4/goLearning/agencysync/transport"
)

const (
	testInterval = 20 * time.Millisecond
	waitFor      = 3 * time.Second
	tick         = 5 * time.Millisecond
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig("n1")
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   error
	}{
		{"no id", func(c *Config) { c.NodeID = "" }, ErrNodeIDRequired},
		{"no role", func(c *Config) { c.Role = 0 }, ErrInvalidRole},
		{"no agency", func(c *Config) { c.AgencyEndpoint = endpoint.Endpoint{} }, ErrAgencyRequired},
		{"no interval", func(c *Config) { c.HeartbeatInterval = 0 }, ErrInvalidHeartbeatInterval},
		{"no threshold", func(c *Config) { c.MaxFailsBeforeWarning = 0 }, ErrInvalidFailThreshold},
		{"no workers", func(c *Config) { c.DispatchWorkers = 0 }, ErrInvalidDispatchWorkers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig("n1")
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), tt.want)
		})
	}

	injected := DefaultConfig("n1")
	injected.AgencyEndpoint = endpoint.Endpoint{}
	injected.Agency = agency.NewMemoryStore()
	assert.NoError(t, injected.Validate())
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{})
	assert.ErrorIs(t, err, ErrNodeIDRequired)
}

func testConfig(id string, role heartbeat.Role, store agency.Client) *Config {
	cfg := DefaultConfig(id)
	cfg.Role = role
	cfg.Agency = store
	cfg.HeartbeatInterval = testInterval
	cfg.RunOnce = heartbeat.NewRunOnceFlag()
	return cfg
}

func TestWorkerNodeSyncsToPlan(t *testing.T) {
	store := agency.NewMemoryStore()
	n, err := New(testConfig("w1", heartbeat.RoleWorker, store))
	require.NoError(t, err)
	require.NoError(t, n.Start())
	defer n.Stop()

	assert.True(t, n.IsReady())
	assert.Nil(t, n.Topology())
	assert.ErrorIs(t, n.Start(), ErrAlreadyStarted)

	plan, err := agency.IncrementVersion(context.Background(), store, agency.PlanVersionKey)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return n.Status().Current.Plan == plan
	}, waitFor, tick)

	v, err := store.Read(context.Background(), agency.ServerCurrentKey("w1"))
	require.NoError(t, err)
	assert.Equal(t, agency.FormatVersion(plan), v)
}

func TestStartFailsWhenAgencyDown(t *testing.T) {
	store := agency.NewMemoryStore()
	store.SetUnavailable(true)

	n, err := New(testConfig("w1", heartbeat.RoleWorker, store))
	require.NoError(t, err)

	err = n.Start()
	assert.ErrorIs(t, err, heartbeat.ErrInitialize)
	assert.False(t, n.IsReady())
	assert.NoError(t, n.Stop())
}

func TestStopBeforeStart(t *testing.T) {
	n, err := New(testConfig("w1", heartbeat.RoleWorker, agency.NewMemoryStore()))
	require.NoError(t, err)
	assert.NoError(t, n.Stop())
	assert.NoError(t, n.Stop())

	select {
	case <-n.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestShutdownKeyStopsNode(t *testing.T) {
	store := agency.NewMemoryStore()
	n, err := New(testConfig("w1", heartbeat.RoleWorker, store))
	require.NoError(t, err)
	require.NoError(t, n.Start())

	require.NoError(t, store.Write(context.Background(), agency.ShutdownKey, "true"))

	select {
	case <-n.Done():
	case <-time.After(waitFor):
		t.Fatal("node did not stop on agency request")
	}
	require.Eventually(t, func() bool {
		return store.WatcherCount(agency.PlanVersionKey) == 0
	}, waitFor, tick, "callbacks are released")
}

func TestNodeOverGRPC(t *testing.T) {
	store := agency.NewMemoryStore()
	srv, err := transport.NewGRPC(endpoint.MustParse("tcp://127.0.0.1:0"), store)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer srv.Stop()

	cfg := DefaultConfig("w1")
	cfg.AgencyEndpoint = srv.Addr()
	cfg.HeartbeatInterval = testInterval
	n, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, n.Start())
	defer n.Stop()

	plan, err := agency.IncrementVersion(context.Background(), store, agency.PlanVersionKey)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return n.Status().Current.Plan == plan
	}, waitFor, tick)
}
