package reconcile

import (
	"context"
	"time"

	"github.com/adamgarcia4/goLearning/agencysync/agency"
	"github.com/adamgarcia4/goLearning/agencysync/heartbeat"
)

// ApplyFunc performs the local work for a plan version
type ApplyFunc func(ctx context.Context, target heartbeat.VersionPair) error

// AgencySyncer applies a plan locally and records the outcome in the agency:
// Current/Servers/<id> holds the plan version this server reached, and
// Current/Version is bumped so that watchers see the change.
type AgencySyncer struct {
	NodeID string
	Agency agency.Client
	Log    heartbeat.Logger

	// Apply is optional
	Apply ApplyFunc

	// Timeout bounds a whole sync. Zero means no limit beyond the caller's ctx.
	Timeout time.Duration
}

var _ Syncer = (*AgencySyncer)(nil)

func (s *AgencySyncer) logger() heartbeat.Logger {
	if s.Log == nil {
		return nopLogger{}
	}
	return s.Log
}

func (s *AgencySyncer) Sync(ctx context.Context, target heartbeat.VersionPair) heartbeat.JobResult {
	log := s.logger()
	failed := heartbeat.JobResult{Success: false, PlanVersion: target.Plan, CurrentVersion: target.Current}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	if s.Apply != nil {
		if err := s.Apply(ctx, target); err != nil {
			log.Warnf("applying plan %d: %v", target.Plan, err)
			return failed
		}
	}

	key := agency.ServerCurrentKey(s.NodeID)
	if err := s.Agency.Write(ctx, key, agency.FormatVersion(target.Plan)); err != nil {
		log.Warnf("reporting plan %d to %s: %v", target.Plan, key, err)
		return failed
	}

	current, err := agency.IncrementVersion(ctx, s.Agency, agency.CurrentVersionKey)
	if err != nil {
		log.Warnf("plan %d applied but %v", target.Plan, err)
		return failed
	}

	return heartbeat.JobResult{Success: true, PlanVersion: target.Plan, CurrentVersion: current}
}
