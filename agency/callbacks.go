package agency

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// CallbackRegistry owns the watches a server holds on the agency. Every
// registered callback stays active until Close.
type CallbackRegistry struct {
	client Client
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	keys   map[string]int
	closed bool
}

func NewCallbackRegistry(client Client) *CallbackRegistry {
	ctx, cancel := context.WithCancel(context.Background())
	return &CallbackRegistry{
		client: client,
		ctx:    ctx,
		cancel: cancel,
		keys:   make(map[string]int),
	}
}

// Register calls fn whenever key is written
func (r *CallbackRegistry) Register(key string, fn func()) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if err := r.client.Watch(r.ctx, key, func(Event) { fn() }); err != nil {
		return fmt.Errorf("registering callback for %s: %w", key, err)
	}

	r.mu.Lock()
	r.keys[key]++
	r.mu.Unlock()
	return nil
}

// Registered returns the watched keys in sorted order
func (r *CallbackRegistry) Registered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.keys))
	for k := range r.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close cancels every watch. Registering afterwards fails with ErrClosed.
func (r *CallbackRegistry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
}
