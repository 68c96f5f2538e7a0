package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adamgarcia4/goLearning/agencysync/agency"
)

var (
	ErrNodeIDRequired       = errors.New("heartbeat: node ID is required")
	ErrInvalidRole          = errors.New("heartbeat: invalid role")
	ErrInvalidInterval      = errors.New("heartbeat: interval must be greater than 0")
	ErrInvalidFailThreshold = errors.New("heartbeat: max fails before warning must be greater than 0")
	ErrMissingDependency    = errors.New("heartbeat: missing dependency")
	ErrInitialize           = errors.New("heartbeat: initialization failed")
	ErrNotInitialized       = errors.New("heartbeat: loop not initialized")
	ErrAlreadyRunning       = errors.New("heartbeat: loop already started")
)

// Role selects which tick the loop runs. It is fixed for the loop's lifetime.
type Role int

const (
	RoleWorker Role = iota + 1
	RoleCoordinator
)

func (r Role) String() string {
	switch r {
	case RoleWorker:
		return "worker"
	case RoleCoordinator:
		return "coordinator"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole accepts "worker" (alias "dbserver") and "coordinator"
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "worker", "dbserver":
		return RoleWorker, nil
	case "coordinator":
		return RoleCoordinator, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Config holds the loop's static settings
type Config struct {
	NodeID                string
	Role                  Role
	Interval              time.Duration
	MaxFailsBeforeWarning uint64

	// RequestTimeout bounds each agency call made by a tick. Zero means Interval.
	RequestTimeout time.Duration
}

func (c Config) Validate() error {
	if c.NodeID == "" {
		return ErrNodeIDRequired
	}
	if c.Role != RoleWorker && c.Role != RoleCoordinator {
		return fmt.Errorf("%w: %v", ErrInvalidRole, c.Role)
	}
	if c.Interval <= 0 {
		return ErrInvalidInterval
	}
	if c.MaxFailsBeforeWarning == 0 {
		return ErrInvalidFailThreshold
	}
	return nil
}

// Registrar registers agency watch callbacks; agency.CallbackRegistry implements it.
type Registrar interface {
	Register(key string, fn func()) error
}

// Dispatcher runs reconciliation jobs off the loop goroutine. Dispatch must
// not block on the job; report is called exactly once when a dispatched job
// finishes, from any goroutine. An error means the job was not queued.
type Dispatcher interface {
	Dispatch(target VersionPair, report func(JobResult)) error
}

// PlanHandler refreshes a coordinator's view of the cluster after a Plan or
// Current change. It runs synchronously inside the tick.
type PlanHandler interface {
	HandlePlanChange(ctx context.Context, versions VersionPair) error
}

// Logger is the leveled logger the loop writes to
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Deps are the collaborators injected into the loop
type Deps struct {
	Agency    agency.Client
	Callbacks Registrar

	// worker only
	Dispatcher Dispatcher

	// coordinator only
	Topology PlanHandler
	RunOnce  *RunOnceFlag

	Logger Logger

	// OnShutdown is called once, on its own goroutine, when the agency asks
	// this server to shut down
	OnShutdown func()
}

func (d Deps) validate(role Role) error {
	if d.Agency == nil {
		return fmt.Errorf("%w: agency client", ErrMissingDependency)
	}
	if d.Callbacks == nil {
		return fmt.Errorf("%w: callback registrar", ErrMissingDependency)
	}
	switch role {
	case RoleWorker:
		if d.Dispatcher == nil {
			return fmt.Errorf("%w: dispatcher", ErrMissingDependency)
		}
	case RoleCoordinator:
		if d.Topology == nil {
			return fmt.Errorf("%w: plan handler", ErrMissingDependency)
		}
		if d.RunOnce == nil {
			return fmt.Errorf("%w: run-once flag", ErrMissingDependency)
		}
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
