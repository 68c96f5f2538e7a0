package heartbeat

import "context"

type coordinatorRole struct {
	loop *Loop
}

func (c coordinatorRole) tick(ctx context.Context) {
	l := c.loop
	ok := true

	read, err := l.readVersions(ctx)
	if err != nil {
		ok = false
		l.log.Debugf("could not read versions from agency: %v", err)
	} else {
		l.handleStateChange(ctx)
		if !c.handlePlanChange(ctx, read) {
			ok = false
		}
	}

	l.mu.Lock()
	processed := l.state.processed
	primed := l.state.primed
	l.mu.Unlock()

	if primed && l.deps.RunOnce.mark() {
		l.log.Infof("coordinator completed its first heartbeat pass")
	}

	if err := l.sendState(ctx, processed); err != nil {
		ok = false
		l.log.Debugf("could not send state to agency: %v", err)
	}

	l.recordTick(ctx, ok)
}

// handlePlanChange refreshes the topology when the observed versions moved
// since the last successful refresh, and always on the first pass.
func (c coordinatorRole) handlePlanChange(ctx context.Context, read VersionPair) bool {
	l := c.loop

	l.mu.Lock()
	l.state.desired = read
	changed := !l.state.primed || !read.Equal(l.state.processed)
	l.mu.Unlock()

	if !changed {
		return true
	}

	if err := l.deps.Topology.HandlePlanChange(ctx, read); err != nil {
		l.log.Warnf("could not handle plan change to %s: %v", read, err)
		return false
	}

	l.mu.Lock()
	l.state.processed = read
	l.state.lastKnownPlanVersion = read.Plan
	l.state.primed = true
	l.mu.Unlock()

	l.log.Infof("topology refreshed for %s", read)
	return true
}
