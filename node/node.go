package node

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/adamgarcia4/goLearning/agencysync/agency"
	"github.com/adamgarcia4/goLearning/agencysync/heartbeat"
	"github.com/adamgarcia4/goLearning/agencysync/logger"
	"github.com/adamgarcia4/goLearning/agencysync/reconcile"
	"github.com/adamgarcia4/goLearning/agencysync/topology"
	"github.com/adamgarcia4/goLearning/agencysync/transport"
)

// Node is one cluster server: its heartbeat loop plus whatever the loop
// needs for its role
type Node struct {
	config *Config
	log    *logger.NodeLogger

	client     agency.Client
	conn       *transport.Client // set when the node dialed the agency itself
	registry   *agency.CallbackRegistry
	dispatcher *reconcile.Dispatcher
	topology   *topology.Cache
	loop       *heartbeat.Loop

	// Lifecycle management
	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	started  bool
	stopOnce sync.Once
	stopped  chan struct{}
	mu       sync.RWMutex
}

// New creates a new node with the given configuration
func New(config *Config) (*Node, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		config:  config,
		log:     logger.ForNode(config.NodeID),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}, nil
}

// Start connects to the agency, initializes the heartbeat and runs it in the
// background. A failed initialization aborts Start and releases everything
// acquired so far.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		return ErrAlreadyStarted
	}

	if err := n.connect(); err != nil {
		return err
	}
	n.registry = agency.NewCallbackRegistry(n.client)

	deps := heartbeat.Deps{
		Agency:     n.client,
		Callbacks:  n.registry,
		Logger:     n.log,
		OnShutdown: n.shutdownRequested,
	}
	switch n.config.Role {
	case heartbeat.RoleWorker:
		syncer := &reconcile.AgencySyncer{
			NodeID: n.config.NodeID,
			Agency: n.client,
			Log:    n.log,
			Apply:  n.config.Apply,
		}
		n.dispatcher = reconcile.NewDispatcher(syncer, n.config.DispatchWorkers, n.log)
		deps.Dispatcher = n.dispatcher
	case heartbeat.RoleCoordinator:
		n.topology = topology.NewCache(n.client, n.log)
		deps.Topology = n.topology
		deps.RunOnce = n.config.runOnce()
	}

	loop, err := heartbeat.New(heartbeat.Config{
		NodeID:                n.config.NodeID,
		Role:                  n.config.Role,
		Interval:              n.config.HeartbeatInterval,
		MaxFailsBeforeWarning: n.config.MaxFailsBeforeWarning,
	}, deps)
	if err != nil {
		n.release()
		return fmt.Errorf("failed to create heartbeat: %w", err)
	}

	initCtx, cancel := context.WithTimeout(n.ctx, n.config.stopTimeout())
	defer cancel()
	if err := loop.Initialize(initCtx); err != nil {
		n.release()
		return fmt.Errorf("failed to start node %s: %w", n.config.NodeID, err)
	}
	n.loop = loop

	group, ctx := errgroup.WithContext(n.ctx)
	group.Go(func() error {
		return loop.Run(ctx)
	})
	n.group = group
	n.started = true

	n.log.Infof("node started as %s, agency %s", n.config.Role, n.agencyName())
	return nil
}

func (n *Node) connect() error {
	if n.config.Agency != nil {
		n.client = n.config.Agency
		return nil
	}
	conn, err := transport.Dial(n.config.AgencyEndpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to agency: %w", err)
	}
	n.conn = conn
	n.client = conn
	return nil
}

func (n *Node) agencyName() string {
	if n.conn != nil {
		return n.conn.Endpoint().String()
	}
	return "in-process"
}

// release undoes a partial Start; n.mu is held
func (n *Node) release() {
	if n.dispatcher != nil {
		_ = n.dispatcher.Close(context.Background())
	}
	if n.registry != nil {
		n.registry.Close()
	}
	if n.conn != nil {
		if err := n.conn.Close(); err != nil {
			n.log.Warnf("error closing agency connection: %v", err)
		}
	}
}

// Stop stops the node gracefully. Syncs that are still running get
// StopTimeout to finish; their results are still folded into the loop.
func (n *Node) Stop() error {
	var err error
	n.stopOnce.Do(func() {
		err = n.stop()
		close(n.stopped)
	})
	return err
}

func (n *Node) stop() error {
	n.mu.Lock()
	started := n.started
	group := n.group
	n.cancel()
	n.mu.Unlock()

	if !started {
		return nil
	}

	n.log.Infof("stopping node...")
	if err := group.Wait(); err != nil {
		n.log.Warnf("heartbeat exited with: %v", err)
	}

	var stopErr error
	if n.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), n.config.stopTimeout())
		if err := n.dispatcher.Close(ctx); err != nil {
			stopErr = fmt.Errorf("waiting for running syncs: %w", err)
		}
		cancel()
	}
	n.registry.Close()
	if n.conn != nil {
		if err := n.conn.Close(); err != nil {
			n.log.Warnf("error closing agency connection: %v", err)
		}
	}

	n.log.Infof("node stopped")
	return stopErr
}

func (n *Node) shutdownRequested() {
	n.log.Infof("shutting down on agency request")
	if err := n.Stop(); err != nil {
		n.log.Errorf("error stopping node: %v", err)
	}
}

// Done is closed once the node has fully stopped
func (n *Node) Done() <-chan struct{} {
	return n.stopped
}

// GetConfig returns the node configuration (for external access)
func (n *Node) GetConfig() *Config {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.config
}

// Status returns the heartbeat status, or a bare one before Start
func (n *Node) Status() heartbeat.Status {
	n.mu.RLock()
	loop := n.loop
	n.mu.RUnlock()

	if loop == nil {
		return heartbeat.Status{NodeID: n.config.NodeID, Role: n.config.Role}
	}
	return loop.Status()
}

func (n *Node) IsReady() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.loop != nil && n.loop.IsReady()
}

// Notify wakes the heartbeat early
func (n *Node) Notify() {
	n.mu.RLock()
	loop := n.loop
	n.mu.RUnlock()
	if loop != nil {
		loop.Notify()
	}
}

// Topology returns the coordinator's topology cache; nil for workers
func (n *Node) Topology() *topology.Cache {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.topology
}
