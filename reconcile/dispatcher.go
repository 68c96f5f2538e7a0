// Package reconcile runs the jobs that bring a worker's local state up to the
// agency Plan. Jobs run off the heartbeat goroutine on a small bounded pool.
package reconcile

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/adamgarcia4/goLearning/agencysync/heartbeat"
)

var (
	ErrDispatcherClosed = errors.New("reconcile: dispatcher closed")
	ErrDispatcherBusy   = errors.New("reconcile: all workers busy")
)

// Syncer does the actual reconciliation for one target
type Syncer interface {
	Sync(ctx context.Context, target heartbeat.VersionPair) heartbeat.JobResult
}

type completion struct {
	result heartbeat.JobResult
	report func(heartbeat.JobResult)
}

// Dispatcher runs Sync calls on a bounded pool. Results are handed to a single
// completion goroutine, so report callbacks never run concurrently with each
// other.
type Dispatcher struct {
	syncer Syncer
	log    heartbeat.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
	// slots bounds running syncs; a slot is returned before the result is
	// posted, so a report callback can always dispatch again
	slots *semaphore.Weighted

	completions chan completion
	strandDone  chan struct{}

	mu     sync.Mutex
	closed bool
}

var _ heartbeat.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher starts the completion goroutine. workers below 1 means 1.
func NewDispatcher(syncer Syncer, workers int, log heartbeat.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = nopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		syncer:      syncer,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
		slots:       semaphore.NewWeighted(int64(workers)),
		completions: make(chan completion),
		strandDone:  make(chan struct{}),
	}
	go d.strand()
	return d
}

func (d *Dispatcher) strand() {
	defer close(d.strandDone)
	for c := range d.completions {
		c.report(c.result)
	}
}

// Dispatch queues a sync to target and returns without waiting for it. report
// is called exactly once if and only if Dispatch returns nil.
func (d *Dispatcher) Dispatch(target heartbeat.VersionPair, report func(heartbeat.JobResult)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	if !d.slots.TryAcquire(1) {
		return ErrDispatcherBusy
	}
	d.group.Go(func() error {
		result := d.syncer.Sync(d.ctx, target)
		d.slots.Release(1)
		d.completions <- completion{result: result, report: report}
		return nil
	})
	d.log.Debugf("sync to %s queued", target)
	return nil
}

// Close stops accepting jobs and waits for running ones. When ctx expires
// first, running jobs are cancelled and their (failed) results still
// delivered. Close returns after every report callback has run.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.strandDone
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	waited := make(chan struct{})
	go func() {
		_ = d.group.Wait()
		close(waited)
	}()

	var err error
	select {
	case <-waited:
	case <-ctx.Done():
		err = ctx.Err()
		d.log.Warnf("cancelling running syncs: %v", err)
		d.cancel()
		<-waited
	}
	d.cancel()

	close(d.completions)
	<-d.strandDone
	return err
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
