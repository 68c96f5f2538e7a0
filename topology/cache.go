// Package topology keeps a coordinator's view of the cluster: which servers
// the Plan names, where they listen, and what they last reported.
package topology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adamgarcia4/goLearning/agencysync/agency"
	"github.com/adamgarcia4/goLearning/agencysync/endpoint"
	"github.com/adamgarcia4/goLearning/agencysync/heartbeat"
)

var ErrBadPlan = errors.New("topology: malformed server plan")

const StatusUnknown = "UNKNOWN"

/*
Server is one entry of the cached topology.

Endpoint comes from Plan/Servers and is authoritative. Status, the versions
and LastSeen come from the server's own Sync/ServerStates entry, which the
server rewrites on every heartbeat. They are best effort: a server that never
reported, or whose state could not be read, shows StatusUnknown.
*/
type Server struct {
	ID       string
	Endpoint endpoint.Endpoint

	Status         string
	Role           string
	PlanVersion    uint64
	CurrentVersion uint64
	LastSeen       time.Time
}

// Cache implements heartbeat.PlanHandler
type Cache struct {
	client agency.Client
	log    heartbeat.Logger

	mu       sync.RWMutex
	servers  map[string]Server
	versions heartbeat.VersionPair
}

var _ heartbeat.PlanHandler = (*Cache)(nil)

func NewCache(client agency.Client, log heartbeat.Logger) *Cache {
	if log == nil {
		log = nopLogger{}
	}
	return &Cache{
		client:  client,
		log:     log,
		servers: make(map[string]Server),
	}
}

// HandlePlanChange reloads the server list for versions. Entries with an
// unparsable endpoint are skipped. The cache is only replaced when the
// plan itself could be read.
func (c *Cache) HandlePlanChange(ctx context.Context, versions heartbeat.VersionPair) error {
	raw, err := c.client.Read(ctx, agency.PlanServersKey)
	if errors.Is(err, agency.ErrKeyNotFound) {
		raw = "{}"
	} else if err != nil {
		return fmt.Errorf("reading %s: %w", agency.PlanServersKey, err)
	}

	var plan map[string]string
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPlan, err)
	}

	servers := make(map[string]Server, len(plan))
	for id, spec := range plan {
		ep, err := endpoint.Parse(spec)
		if err != nil {
			c.log.Warnf("skipping server %s: %v", id, err)
			continue
		}
		s := Server{ID: id, Endpoint: ep, Status: StatusUnknown}
		c.loadState(ctx, &s)
		servers[id] = s
	}

	c.mu.Lock()
	c.servers = servers
	c.versions = versions
	c.mu.Unlock()

	c.log.Debugf("topology has %d servers at %s", len(servers), versions)
	return nil
}

type reportedState struct {
	Status         string `json:"status"`
	Role           string `json:"role"`
	Time           string `json:"time"`
	PlanVersion    uint64 `json:"planVersion"`
	CurrentVersion uint64 `json:"currentVersion"`
}

func (c *Cache) loadState(ctx context.Context, s *Server) {
	raw, err := c.client.Read(ctx, agency.ServerStateKey(s.ID))
	if err != nil {
		if !errors.Is(err, agency.ErrKeyNotFound) {
			c.log.Debugf("no state for %s: %v", s.ID, err)
		}
		return
	}
	var st reportedState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		c.log.Debugf("bad state for %s: %v", s.ID, err)
		return
	}
	if st.Status != "" {
		s.Status = st.Status
	}
	s.Role = st.Role
	s.PlanVersion = st.PlanVersion
	s.CurrentVersion = st.CurrentVersion
	if t, err := time.Parse(time.RFC3339, st.Time); err == nil {
		s.LastSeen = t
	}
}

// Servers returns the cached servers sorted by ID
func (c *Cache) Servers() []Server {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Server, 0, len(c.servers))
	for _, s := range c.servers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Cache) Lookup(id string) (Server, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.servers[id]
	return s, ok
}

// Versions returns the versions the cache was last refreshed for
func (c *Cache) Versions() heartbeat.VersionPair {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.versions
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
