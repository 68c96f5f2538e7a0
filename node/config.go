package node

import (
	"time"

	"github.com/adamgarcia4/goLearning/agencysync/agency"
	"github.com/adamgarcia4/goLearning/agencysync/endpoint"
	"github.com/adamgarcia4/goLearning/agencysync/heartbeat"
	"github.com/adamgarcia4/goLearning/agencysync/reconcile"
)

// Default configuration constants
const (
	DefaultNodeID                = "node-1"
	DefaultHeartbeatInterval     = time.Second
	DefaultMaxFailsBeforeWarning = 3
	DefaultDispatchWorkers       = 1
	DefaultStopTimeout           = 5 * time.Second
)

// Config holds the configuration for a node
type Config struct {
	// Node identification
	NodeID string
	Role   heartbeat.Role

	// Agency connection. When Agency is set it is used as is and
	// AgencyEndpoint is ignored; otherwise the node dials AgencyEndpoint.
	AgencyEndpoint endpoint.Endpoint
	Agency         agency.Client

	// Heartbeat configuration
	HeartbeatInterval     time.Duration
	MaxFailsBeforeWarning uint64

	// Worker configuration
	DispatchWorkers int
	Apply           reconcile.ApplyFunc // optional local work per plan

	// RunOnce defaults to the process-wide flag
	RunOnce *heartbeat.RunOnceFlag

	// StopTimeout bounds how long Stop waits for running syncs
	StopTimeout time.Duration
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig(nodeID string) *Config {
	return &Config{
		NodeID:                nodeID,
		Role:                  heartbeat.RoleWorker,
		AgencyEndpoint:        endpoint.Default(),
		HeartbeatInterval:     DefaultHeartbeatInterval,
		MaxFailsBeforeWarning: DefaultMaxFailsBeforeWarning,
		DispatchWorkers:       DefaultDispatchWorkers,
		StopTimeout:           DefaultStopTimeout,
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return ErrNodeIDRequired
	}
	if c.Role != heartbeat.RoleWorker && c.Role != heartbeat.RoleCoordinator {
		return ErrInvalidRole
	}
	if c.Agency == nil && c.AgencyEndpoint.Domain == endpoint.DomainUnknown {
		return ErrAgencyRequired
	}
	if c.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeatInterval
	}
	if c.MaxFailsBeforeWarning == 0 {
		return ErrInvalidFailThreshold
	}
	if c.DispatchWorkers <= 0 {
		return ErrInvalidDispatchWorkers
	}
	return nil
}

func (c *Config) runOnce() *heartbeat.RunOnceFlag {
	if c.RunOnce != nil {
		return c.RunOnce
	}
	return heartbeat.ProcessRunOnce()
}

func (c *Config) stopTimeout() time.Duration {
	if c.StopTimeout > 0 {
		return c.StopTimeout
	}
	return DefaultStopTimeout
}
