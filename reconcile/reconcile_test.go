package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/goLearning/agencysync/agency"
	"github.com/adamgarcia4/goLearning/agencysync/heartbeat"
)

type funcSyncer func(ctx context.Context, target heartbeat.VersionPair) heartbeat.JobResult

func (f funcSyncer) Sync(ctx context.Context, target heartbeat.VersionPair) heartbeat.JobResult {
	return f(ctx, target)
}

func okSyncer() funcSyncer {
	return func(_ context.Context, t heartbeat.VersionPair) heartbeat.JobResult {
		return heartbeat.JobResult{Success: true, PlanVersion: t.Plan, CurrentVersion: t.Current}
	}
}

func TestDispatchReportsResult(t *testing.T) {
	d := NewDispatcher(okSyncer(), 1, nil)
	defer d.Close(context.Background())

	results := make(chan heartbeat.JobResult, 1)
	require.NoError(t, d.Dispatch(heartbeat.VersionPair{Plan: 3, Current: 2}, func(r heartbeat.JobResult) {
		results <- r
	}))

	select {
	case r := <-results:
		assert.Equal(t, heartbeat.JobResult{Success: true, PlanVersion: 3, CurrentVersion: 2}, r)
	case <-time.After(time.Second):
		t.Fatal("no result reported")
	}
}

func TestDispatchBusyWhenPoolFull(t *testing.T) {
	release := make(chan struct{})
	d := NewDispatcher(funcSyncer(func(_ context.Context, t heartbeat.VersionPair) heartbeat.JobResult {
		<-release
		return heartbeat.JobResult{Success: true, PlanVersion: t.Plan}
	}), 1, nil)

	var reported atomic.Int32
	report := func(heartbeat.JobResult) { reported.Add(1) }

	require.NoError(t, d.Dispatch(heartbeat.VersionPair{Plan: 1}, report))
	assert.ErrorIs(t, d.Dispatch(heartbeat.VersionPair{Plan: 2}, report), ErrDispatcherBusy)

	close(release)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, int32(1), reported.Load())
}

func TestReportCanDispatchAgain(t *testing.T) {
	d := NewDispatcher(okSyncer(), 1, nil)

	const rounds = 200
	var refused atomic.Int32
	done := make(chan struct{})

	var report func(heartbeat.JobResult)
	report = func(r heartbeat.JobResult) {
		if r.PlanVersion == rounds {
			close(done)
			return
		}
		if err := d.Dispatch(heartbeat.VersionPair{Plan: r.PlanVersion + 1}, report); err != nil {
			refused.Add(1)
			close(done)
		}
	}
	require.NoError(t, d.Dispatch(heartbeat.VersionPair{Plan: 1}, report))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch chain stalled")
	}
	require.NoError(t, d.Close(context.Background()))
	assert.Zero(t, refused.Load(), "the slot is free by the time report runs")
}

func TestCompletionsAreSerialized(t *testing.T) {
	d := NewDispatcher(okSyncer(), 4, nil)

	var (
		inReport atomic.Int32
		overlap  atomic.Bool
		wg       sync.WaitGroup
	)
	report := func(heartbeat.JobResult) {
		if inReport.Add(1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(2 * time.Millisecond)
		inReport.Add(-1)
		wg.Done()
	}

	queued := 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		if err := d.Dispatch(heartbeat.VersionPair{Plan: uint64(i)}, report); err != nil {
			wg.Done()
			continue
		}
		queued++
	}
	wg.Wait()
	require.NoError(t, d.Close(context.Background()))

	assert.Positive(t, queued)
	assert.False(t, overlap.Load(), "report callbacks must not overlap")
}

func TestCloseRejectsNewWork(t *testing.T) {
	d := NewDispatcher(okSyncer(), 1, nil)
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	err := d.Dispatch(heartbeat.VersionPair{Plan: 1}, func(heartbeat.JobResult) {
		t.Error("report must not be called for a refused job")
	})
	assert.ErrorIs(t, err, ErrDispatcherClosed)
}

func TestCloseCancelsOnDeadline(t *testing.T) {
	d := NewDispatcher(funcSyncer(func(ctx context.Context, t heartbeat.VersionPair) heartbeat.JobResult {
		<-ctx.Done()
		return heartbeat.JobResult{Success: false, PlanVersion: t.Plan}
	}), 1, nil)

	var got heartbeat.JobResult
	var reported atomic.Bool
	require.NoError(t, d.Dispatch(heartbeat.VersionPair{Plan: 7}, func(r heartbeat.JobResult) {
		got = r
		reported.Store(true)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Close returns only after the cancelled job reported
	assert.True(t, reported.Load())
	assert.False(t, got.Success)
	assert.Equal(t, uint64(7), got.PlanVersion)
}

func TestAgencySyncerRecordsProgress(t *testing.T) {
	store := agency.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Write(ctx, agency.CurrentVersionKey, "4"))

	var applied []heartbeat.VersionPair
	s := &AgencySyncer{
		NodeID: "worker-1",
		Agency: store,
		Apply: func(_ context.Context, target heartbeat.VersionPair) error {
			applied = append(applied, target)
			return nil
		},
	}

	r := s.Sync(ctx, heartbeat.VersionPair{Plan: 9, Current: 4})
	assert.Equal(t, heartbeat.JobResult{Success: true, PlanVersion: 9, CurrentVersion: 5}, r)
	assert.Equal(t, []heartbeat.VersionPair{{Plan: 9, Current: 4}}, applied)

	v, err := store.Read(ctx, agency.ServerCurrentKey("worker-1"))
	require.NoError(t, err)
	assert.Equal(t, "9", v)

	cur, err := agency.ReadVersion(ctx, store, agency.CurrentVersionKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), cur)
}

func TestAgencySyncerApplyFailure(t *testing.T) {
	store := agency.NewMemoryStore()
	s := &AgencySyncer{
		NodeID: "worker-1",
		Agency: store,
		Apply: func(context.Context, heartbeat.VersionPair) error {
			return errors.New("disk full")
		},
	}

	r := s.Sync(context.Background(), heartbeat.VersionPair{Plan: 2, Current: 1})
	assert.False(t, r.Success)
	assert.Equal(t, uint64(2), r.PlanVersion)

	_, err := store.Read(context.Background(), agency.ServerCurrentKey("worker-1"))
	assert.ErrorIs(t, err, agency.ErrKeyNotFound, "nothing is reported for a failed apply")
}

func TestAgencySyncerAgencyDown(t *testing.T) {
	store := agency.NewMemoryStore()
	store.SetUnavailable(true)
	s := &AgencySyncer{NodeID: "worker-1", Agency: store}

	r := s.Sync(context.Background(), heartbeat.VersionPair{Plan: 1, Current: 1})
	assert.False(t, r.Success)
}
