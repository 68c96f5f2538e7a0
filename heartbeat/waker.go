package heartbeat

import (
	"context"
	"sync"
	"time"
)

// WakeReason tells the loop why a wait ended
type WakeReason int

const (
	WakeNone WakeReason = iota
	WakeTimeout
	WakeNotified
	WakeStopped
)

func (r WakeReason) String() string {
	switch r {
	case WakeTimeout:
		return "timeout"
	case WakeNotified:
		return "notified"
	case WakeStopped:
		return "stopped"
	default:
		return "none"
	}
}

// Waker lets the loop sleep for a bounded interval while allowing any
// goroutine to wake it early. Notifications are never lost: one that arrives
// while the loop is busy makes the next Wait return immediately.
type Waker struct {
	mu       sync.Mutex
	notified bool
	signal   chan struct{}
}

func NewWaker() *Waker {
	return &Waker{signal: make(chan struct{}, 1)}
}

// Notify wakes the current or next Wait
func (w *Waker) Notify() {
	w.mu.Lock()
	w.notified = true
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// Wait blocks until d elapses, Notify is called or ctx is done. An explicit
// notification wins over a timer that fired at the same time. The notified
// flag is consumed, so the next Wait starts clean.
func (w *Waker) Wait(ctx context.Context, d time.Duration) WakeReason {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		stopped, timedOut := false, false
		select {
		case <-ctx.Done():
			stopped = true
		case <-w.signal:
		case <-timer.C:
			timedOut = true
		}

		w.mu.Lock()
		explicit := w.notified
		w.notified = false
		w.mu.Unlock()

		switch {
		case stopped:
			return WakeStopped
		case explicit:
			return WakeNotified
		case timedOut:
			return WakeTimeout
		}
		// a token left behind by a notification that an earlier Wait already
		// consumed; keep sleeping until the deadline
	}
}
