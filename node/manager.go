package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adamgarcia4/goLearning/agencysync/agency"
	"github.com/adamgarcia4/goLearning/agencysync/endpoint"
	"github.com/adamgarcia4/goLearning/agencysync/heartbeat"
	"github.com/adamgarcia4/goLearning/agencysync/logger"
)

// Manager runs an in-process cluster: several nodes sharing one in-memory
// agency. Every node is listed in Plan/Servers under a synthetic endpoint so
// coordinators have a topology to load.
type Manager struct {
	store       *agency.MemoryStore
	nodes       []*Node        // maintain order with slice
	nodeMap     map[string]int // map node ID to index for quick lookup
	mu          sync.RWMutex
	portCounter int // for synthetic endpoints
	nextID      int // monotonically increasing counter for unique node IDs

	interval time.Duration
}

// NewManager creates a new node manager with an empty agency
func NewManager() *Manager {
	return &Manager{
		store:       agency.NewMemoryStore(),
		nodes:       make([]*Node, 0),
		nodeMap:     make(map[string]int),
		portCounter: endpoint.DefaultPort + 1,
		nextID:      1, // start node IDs at 1
		interval:    DefaultHeartbeatInterval,
	}
}

// SetHeartbeatInterval applies to nodes created afterwards
func (m *Manager) SetHeartbeatInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interval = d
}

// Agency returns the shared in-memory agency
func (m *Manager) Agency() *agency.MemoryStore {
	return m.store
}

// CreateNode creates and starts a new node, then adds it to the plan
func (m *Manager) CreateNode(role heartbeat.Role) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	port := m.findAvailablePort()

	// Generate unique node ID using monotonically increasing counter
	nodeID := fmt.Sprintf("node-%d", m.nextID)
	m.nextID++

	config := DefaultConfig(nodeID)
	config.Role = role
	config.Agency = m.store
	config.HeartbeatInterval = m.interval
	// every node stands in for a separate server process
	config.RunOnce = heartbeat.NewRunOnceFlag()

	node, err := New(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}

	if err := node.Start(); err != nil {
		return nil, fmt.Errorf("failed to start node: %w", err)
	}

	ep := endpoint.Default().WithPort(port)
	if err := m.updatePlan(context.Background(), func(servers map[string]string) {
		servers[nodeID] = ep.String()
	}); err != nil {
		logger.Warnf("node %s started but not added to plan: %v", nodeID, err)
	}

	m.nodes = append(m.nodes, node)
	m.nodeMap[nodeID] = len(m.nodes) - 1
	return node, nil
}

// DeleteNode stops and removes a node by its index in the list
func (m *Manager) DeleteNode(index int) error {
	m.mu.Lock()

	if index < 0 || index >= len(m.nodes) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrInvalidNodeIndex, index)
	}

	node := m.nodes[index]
	nodeID := node.GetConfig().NodeID

	// Remove from slice and map before unlocking
	m.nodes = append(m.nodes[:index], m.nodes[index+1:]...)
	delete(m.nodeMap, nodeID)

	// Rebuild map indices
	for i, n := range m.nodes {
		m.nodeMap[n.GetConfig().NodeID] = i
	}

	if err := m.updatePlan(context.Background(), func(servers map[string]string) {
		delete(servers, nodeID)
	}); err != nil {
		logger.Warnf("node %s removed but still in plan: %v", nodeID, err)
	}

	m.mu.Unlock()

	// Stop node asynchronously to avoid blocking
	go func() {
		if err := node.Stop(); err != nil {
			// Log error but don't return it since we've already removed from list
			logger.Errorf("error stopping node %s: %v", nodeID, err)
		}
	}()

	return nil
}

// GetNodes returns a list of all nodes (maintains order)
func (m *Manager) GetNodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Return a copy to avoid race conditions
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	return nodes
}

// BumpPlan publishes a new Plan version; watching nodes wake immediately
func (m *Manager) BumpPlan(ctx context.Context) (uint64, error) {
	return agency.IncrementVersion(ctx, m.store, agency.PlanVersionKey)
}

// ToggleAgencyOutage flips the agency between reachable and unreachable and
// returns whether it is now unreachable
func (m *Manager) ToggleAgencyOutage() bool {
	down := !m.store.Unavailable()
	m.store.SetUnavailable(down)
	if down {
		logger.Warnf("agency outage started")
	} else {
		logger.Infof("agency outage ended")
	}
	return down
}

// updatePlan rewrites Plan/Servers and bumps Plan/Version; m.mu is held
func (m *Manager) updatePlan(ctx context.Context, edit func(servers map[string]string)) error {
	servers := map[string]string{}
	raw, err := m.store.Read(ctx, agency.PlanServersKey)
	switch {
	case errors.Is(err, agency.ErrKeyNotFound):
	case err != nil:
		return err
	default:
		if err := json.Unmarshal([]byte(raw), &servers); err != nil {
			return fmt.Errorf("decoding %s: %w", agency.PlanServersKey, err)
		}
	}

	edit(servers)
	body, err := json.Marshal(servers)
	if err != nil {
		return err
	}
	if err := m.store.Write(ctx, agency.PlanServersKey, string(body)); err != nil {
		return err
	}
	_, err = agency.IncrementVersion(ctx, m.store, agency.PlanVersionKey)
	return err
}

// findAvailablePort finds the next available port
func (m *Manager) findAvailablePort() int {
	// Simple implementation: increment port counter
	port := m.portCounter
	m.portCounter++
	return port
}

// StopAll stops all nodes
func (m *Manager) StopAll() error {
	m.mu.Lock()
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	m.mu.Unlock()

	var errs []error
	for _, node := range nodes {
		if err := node.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
