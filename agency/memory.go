package agency

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

type memoryEntry struct {
	value string
	index uint64
}

// MemoryStore is an in-process agency. Every operation is linearized by one
// mutex, which makes it strongly consistent by construction. It backs the
// `agency serve` command, the interactive mode and tests.
type MemoryStore struct {
	mu          sync.Mutex
	data        map[string]memoryEntry
	index       uint64
	watchers    map[string]map[uint64]*memoryWatcher
	nextWatcher uint64

	unavailable atomic.Bool
}

var _ Client = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[string]memoryEntry),
		watchers: make(map[string]map[uint64]*memoryWatcher),
	}
}

// SetUnavailable makes every operation fail with ErrUnavailable, simulating
// an agency outage. Existing watches stay registered.
func (m *MemoryStore) SetUnavailable(unavailable bool) {
	m.unavailable.Store(unavailable)
}

func (m *MemoryStore) Unavailable() bool {
	return m.unavailable.Load()
}

func (m *MemoryStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.unavailable.Load() {
		return ErrUnavailable
	}
	return nil
}

func (m *MemoryStore) Read(ctx context.Context, key string) (string, error) {
	if err := m.check(ctx); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return e.value, nil
}

func (m *MemoryStore) Write(ctx context.Context, key, value string) error {
	if err := m.check(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeLocked(key, value)
	return nil
}

func (m *MemoryStore) CompareAndSwap(ctx context.Context, key, old, value string) (bool, error) {
	if err := m.check(ctx); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.data[key]
	if (ok && cur.value != old) || (!ok && old != "") {
		return false, nil
	}
	m.writeLocked(key, value)
	return true, nil
}

func (m *MemoryStore) writeLocked(key, value string) {
	m.index++
	m.data[key] = memoryEntry{value: value, index: m.index}

	ev := Event{Key: key, Value: value, Index: m.index}
	for _, w := range m.watchers[key] {
		w.push(ev)
	}
}

func (m *MemoryStore) Watch(ctx context.Context, key string, fn func(Event)) error {
	if err := m.check(ctx); err != nil {
		return err
	}

	w := &memoryWatcher{
		fn:     fn,
		signal: make(chan struct{}, 1),
	}

	m.mu.Lock()
	m.nextWatcher++
	id := m.nextWatcher
	if m.watchers[key] == nil {
		m.watchers[key] = make(map[uint64]*memoryWatcher)
	}
	m.watchers[key][id] = w
	m.mu.Unlock()

	go func() {
		w.run(ctx)
		m.mu.Lock()
		delete(m.watchers[key], id)
		if len(m.watchers[key]) == 0 {
			delete(m.watchers, key)
		}
		m.mu.Unlock()
	}()
	return nil
}

// WatcherCount returns how many watches are active on key
func (m *MemoryStore) WatcherCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers[key])
}

// Index returns the store-wide modification index
func (m *MemoryStore) Index() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// KeyValue is one entry of a Snapshot
type KeyValue struct {
	Key   string
	Value string
	Index uint64
}

// Snapshot returns every key in lexical order
func (m *MemoryStore) Snapshot() []KeyValue {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]KeyValue, 0, len(m.data))
	for k, e := range m.data {
		out = append(out, KeyValue{Key: k, Value: e.value, Index: e.index})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// memoryWatcher delivers events in write order without ever blocking a writer
type memoryWatcher struct {
	fn func(Event)

	mu      sync.Mutex
	pending []Event
	signal  chan struct{}
}

func (w *memoryWatcher) push(ev Event) {
	w.mu.Lock()
	w.pending = append(w.pending, ev)
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *memoryWatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.signal:
		}

		w.mu.Lock()
		events := w.pending
		w.pending = nil
		w.mu.Unlock()

		for _, ev := range events {
			if ctx.Err() != nil {
				return
			}
			w.fn(ev)
		}
	}
}
