package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWakerTimeout(t *testing.T) {
	w := NewWaker()
	start := time.Now()
	assert.Equal(t, WakeTimeout, w.Wait(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWakerNotifiedDuringWait(t *testing.T) {
	w := NewWaker()
	go func() {
		time.Sleep(10 * time.Millisecond)
		w.Notify()
	}()

	start := time.Now()
	assert.Equal(t, WakeNotified, w.Wait(context.Background(), 5*time.Second))
	assert.Less(t, time.Since(start), time.Second)
}

func TestWakerPendingNotificationIsNotLost(t *testing.T) {
	w := NewWaker()
	w.Notify()

	assert.Equal(t, WakeNotified, w.Wait(context.Background(), 5*time.Second))
	// consumed: the next wait runs to its deadline
	assert.Equal(t, WakeTimeout, w.Wait(context.Background(), 10*time.Millisecond))
}

func TestWakerNotificationWinsOverTimer(t *testing.T) {
	w := NewWaker()
	for i := 0; i < 50; i++ {
		w.Notify()
		// timer and notification are both ready when the select runs
		assert.Equal(t, WakeNotified, w.Wait(context.Background(), 0))
	}
}

func TestWakerStaleTokenDoesNotShortenWait(t *testing.T) {
	w := NewWaker()
	// a token with no notification behind it, as left by a Notify that raced a previous Wait
	w.signal <- struct{}{}

	start := time.Now()
	assert.Equal(t, WakeTimeout, w.Wait(context.Background(), 30*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestWakerStopped(t *testing.T) {
	w := NewWaker()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	assert.Equal(t, WakeStopped, w.Wait(ctx, 5*time.Second))
}
