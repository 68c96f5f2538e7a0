// Package heartbeat implements the loop that keeps one cluster node in step
// with the agency.
//
// Every interval (or earlier, when a watched agency key changes) the loop
// reads the Plan and Current versions. A worker dispatches at most one
// reconciliation job at a time to bring its local state to the observed Plan
// and learns the outcome through ReportJobResult. A coordinator refreshes its
// topology view in-line instead. Both report their own state back to the
// agency on every tick as a liveness signal.
package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adamgarcia4/goLearning/agencysync/agency"
)

// loopState is everything the loop and the result callback share. All fields
// are guarded by Loop.mu.
//
//	field                 written by
//	desired               tick (fresh agency read only)
//	current               ReportJobResult (successful results only)
//	lastKnownPlanVersion  ReportJobResult (worker), tick (coordinator)
//	dispatchInFlight      tick (set), ReportJobResult or failed Dispatch (clear)
//	consecutiveFailures   tick
//	processed, primed     tick (coordinator)
//	lastWake, ticks       Run
type loopState struct {
	desired              VersionPair
	current              VersionPair
	lastKnownPlanVersion uint64
	dispatchInFlight     bool
	consecutiveFailures  uint64

	processed VersionPair
	primed    bool

	lastWake WakeReason
	ticks    uint64
}

// Status is a point-in-time copy of the loop state
type Status struct {
	NodeID               string
	Role                 Role
	Ready                bool
	HasRunOnce           bool
	Desired              VersionPair
	Current              VersionPair
	Processed            VersionPair
	LastKnownPlanVersion uint64
	DispatchInFlight     bool
	ConsecutiveFailures  uint64
	LastWake             WakeReason
	Ticks                uint64
}

// ticker is implemented once per role
type ticker interface {
	tick(ctx context.Context)
}

// Loop is one node's heartbeat
type Loop struct {
	cfg   Config
	deps  Deps
	log   Logger
	role  ticker
	waker *Waker

	ready   atomic.Bool
	started atomic.Bool
	stopped atomic.Bool

	shutdownOnce sync.Once

	mu    sync.Mutex
	state loopState
}

// New validates the configuration and builds a loop for cfg.Role
func New(cfg Config, deps Deps) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(cfg.Role); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = cfg.Interval
	}

	l := &Loop{
		cfg:   cfg,
		deps:  deps,
		log:   deps.Logger,
		waker: NewWaker(),
	}
	switch cfg.Role {
	case RoleWorker:
		l.role = workerRole{loop: l}
	case RoleCoordinator:
		l.role = coordinatorRole{loop: l}
	}
	return l, nil
}

// Initialize registers agency callbacks for the Plan version, the Current
// version and the cluster shutdown flag. The loop refuses to run until this
// has succeeded once.
func (l *Loop) Initialize(ctx context.Context) error {
	for _, key := range []string{agency.PlanVersionKey, agency.CurrentVersionKey, agency.ShutdownKey} {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrInitialize, err)
		}
		if err := l.deps.Callbacks.Register(key, l.Notify); err != nil {
			return fmt.Errorf("%w: %w", ErrInitialize, err)
		}
	}

	l.ready.Store(true)
	l.log.Infof("heartbeat initialized as %s (interval %v)", l.cfg.Role, l.cfg.Interval)
	return nil
}

// Run ticks until ctx is cancelled. A tick that is in progress when ctx is
// cancelled completes; no new tick starts. Jobs still in flight are not
// waited for.
func (l *Loop) Run(ctx context.Context) error {
	if !l.ready.Load() {
		return ErrNotInitialized
	}
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.stopped.Store(true)

	l.log.Infof("heartbeat loop started")
	for ctx.Err() == nil {
		l.role.tick(ctx)

		reason := l.waker.Wait(ctx, l.cfg.Interval)
		l.mu.Lock()
		l.state.lastWake = reason
		l.mu.Unlock()

		if reason == WakeStopped {
			break
		}
		if reason == WakeNotified {
			l.log.Debugf("woken by agency notification")
		}
	}
	l.log.Infof("heartbeat loop stopped")
	return nil
}

// Notify wakes the loop before its interval elapses
func (l *Loop) Notify() {
	l.waker.Notify()
}

// IsReady reports whether Initialize has succeeded
func (l *Loop) IsReady() bool {
	return l.ready.Load()
}

// HasRunOnce reports whether a coordinator loop in this process has completed
// a full pass. Workers never set it.
func (l *Loop) HasRunOnce() bool {
	if l.deps.RunOnce == nil {
		return false
	}
	return l.deps.RunOnce.Load()
}

func (l *Loop) Role() Role {
	return l.cfg.Role
}

func (l *Loop) Status() Status {
	l.mu.Lock()
	s := l.state
	l.mu.Unlock()

	return Status{
		NodeID:               l.cfg.NodeID,
		Role:                 l.cfg.Role,
		Ready:                l.IsReady(),
		HasRunOnce:           l.HasRunOnce(),
		Desired:              s.desired,
		Current:              s.current,
		Processed:            s.processed,
		LastKnownPlanVersion: s.lastKnownPlanVersion,
		DispatchInFlight:     s.dispatchInFlight,
		ConsecutiveFailures:  s.consecutiveFailures,
		LastWake:             s.lastWake,
		Ticks:                s.ticks,
	}
}

// ReportJobResult folds a finished job into the loop state. It may be called
// from any goroutine, concurrently with a tick, and also after Run has
// returned. Only a successful result moves the applied versions; any result
// frees the loop to dispatch again.
func (l *Loop) ReportJobResult(result JobResult) {
	l.mu.Lock()
	if result.Success {
		l.state.current = result.Versions()
		l.state.lastKnownPlanVersion = result.PlanVersion
	}
	l.state.dispatchInFlight = false
	behind := l.state.desired.Plan > l.state.current.Plan
	l.mu.Unlock()

	if l.stopped.Load() {
		l.log.Debugf("sync result %+v arrived after the loop stopped", result)
		return
	}

	if !result.Success {
		l.log.Warnf("sync to plan %d failed, retrying on a later tick", result.PlanVersion)
		return
	}
	l.log.Infof("applied versions %s", result.Versions())
	if behind {
		// the plan moved while the job ran
		l.Notify()
	}
}

func (l *Loop) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.cfg.RequestTimeout)
}

func (l *Loop) readVersions(ctx context.Context) (VersionPair, error) {
	ctx, cancel := l.requestContext(ctx)
	defer cancel()

	plan, err := agency.ReadVersion(ctx, l.deps.Agency, agency.PlanVersionKey)
	if err != nil {
		return VersionPair{}, err
	}
	current, err := agency.ReadVersion(ctx, l.deps.Agency, agency.CurrentVersionKey)
	if err != nil {
		return VersionPair{}, err
	}
	return VersionPair{Plan: plan, Current: current}, nil
}

// handleStateChange checks the cluster-wide shutdown flag
func (l *Loop) handleStateChange(ctx context.Context) {
	ctx, cancel := l.requestContext(ctx)
	defer cancel()

	value, err := l.deps.Agency.Read(ctx, agency.ShutdownKey)
	if errors.Is(err, agency.ErrKeyNotFound) {
		return
	}
	if err != nil {
		l.log.Debugf("could not read %s: %v", agency.ShutdownKey, err)
		return
	}
	if value != "true" || l.deps.OnShutdown == nil {
		return
	}
	l.shutdownOnce.Do(func() {
		l.log.Infof("agency requested shutdown")
		go l.deps.OnShutdown()
	})
}

type serverState struct {
	Status         string `json:"status"`
	Role           string `json:"role"`
	Time           string `json:"time"`
	PlanVersion    uint64 `json:"planVersion"`
	CurrentVersion uint64 `json:"currentVersion"`
}

// sendState publishes this server's liveness and applied versions
func (l *Loop) sendState(ctx context.Context, applied VersionPair) error {
	status := "STARTING"
	if l.IsReady() {
		status = "SERVING"
	}
	body, err := json.Marshal(serverState{
		Status:         status,
		Role:           l.cfg.Role.String(),
		Time:           time.Now().UTC().Format(time.RFC3339),
		PlanVersion:    applied.Plan,
		CurrentVersion: applied.Current,
	})
	if err != nil {
		return err
	}

	ctx, cancel := l.requestContext(ctx)
	defer cancel()
	return l.deps.Agency.Write(ctx, agency.ServerStateKey(l.cfg.NodeID), string(body))
}

// recordTick does the failure accounting for one tick. A tick is one attempt
// to contact the agency: it fails if any agency call in it failed, and a fully
// successful tick resets the count. The warning fires once, when the count
// reaches the threshold.
func (l *Loop) recordTick(ctx context.Context, ok bool) {
	if ctx.Err() != nil {
		// errors caused by our own shutdown say nothing about the agency
		return
	}

	l.mu.Lock()
	l.state.ticks++
	var warn, recovered bool
	if ok {
		recovered = l.state.consecutiveFailures >= l.cfg.MaxFailsBeforeWarning
		l.state.consecutiveFailures = 0
	} else {
		l.state.consecutiveFailures++
		warn = l.state.consecutiveFailures == l.cfg.MaxFailsBeforeWarning
	}
	fails := l.state.consecutiveFailures
	l.mu.Unlock()

	if warn {
		l.log.Warnf("heartbeat failed %d times in a row, agency may be unreachable", fails)
	}
	if recovered {
		l.log.Infof("agency reachable again")
	}
}
