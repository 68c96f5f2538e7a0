package heartbeat

import "context"

type workerRole struct {
	loop *Loop
}

func (w workerRole) tick(ctx context.Context) {
	l := w.loop
	ok := true

	read, err := l.readVersions(ctx)
	if err != nil {
		ok = false
		l.log.Debugf("could not read versions from agency: %v", err)
	} else {
		l.handleStateChange(ctx)
		w.maybeDispatch(read)
	}

	l.mu.Lock()
	applied := l.state.current
	l.mu.Unlock()

	if err := l.sendState(ctx, applied); err != nil {
		ok = false
		l.log.Debugf("could not send state to agency: %v", err)
	}

	l.recordTick(ctx, ok)
}

// maybeDispatch records the observed versions and starts a sync when the
// local state is behind and no sync is running.
func (w workerRole) maybeDispatch(read VersionPair) {
	l := w.loop

	l.mu.Lock()
	s := &l.state
	if s.dispatchInFlight && read.Plan == s.desired.Plan {
		l.mu.Unlock()
		return
	}
	s.desired = read
	if s.dispatchInFlight {
		l.mu.Unlock()
		l.log.Debugf("plan %d observed while a sync is running, deferring", read.Plan)
		return
	}
	if read.Plan == s.lastKnownPlanVersion && s.current.Plan >= read.Plan {
		l.mu.Unlock()
		return
	}
	s.dispatchInFlight = true
	target := s.desired
	applied := s.current
	l.mu.Unlock()

	l.log.Infof("dispatching sync to %s (applied %s)", target, applied)
	if err := l.deps.Dispatcher.Dispatch(target, l.ReportJobResult); err != nil {
		l.mu.Lock()
		l.state.dispatchInFlight = false
		l.mu.Unlock()
		l.log.Warnf("could not dispatch sync to %s: %v", target, err)
	}
}
