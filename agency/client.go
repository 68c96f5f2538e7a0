// Package agency is the boundary to the strongly consistent configuration
// store ("the agency") holding the cluster's Plan and Current state.
//
// Keys are slash separated paths with string values. Version keys hold a
// decimal uint64 that only ever grows.
package agency

import "context"

// Event is delivered to watchers when a key is written
type Event struct {
	Key   string
	Value string
	Index uint64 // store-wide modification index of the write
}

// Client is the agency client contract. Implementations must be safe for
// concurrent use.
type Client interface {
	// Read returns the value of key, or ErrKeyNotFound.
	Read(ctx context.Context, key string) (string, error)

	Write(ctx context.Context, key, value string) error

	// CompareAndSwap writes value only if the key currently holds old.
	// An empty old matches a missing key. It reports whether the swap happened.
	CompareAndSwap(ctx context.Context, key, old, value string) (bool, error)

	// Watch registers fn for writes to key. Registration is synchronous: a nil
	// return means the watch is active. fn is invoked from another goroutine,
	// in write order, until ctx is done.
	Watch(ctx context.Context, key string, fn func(Event)) error
}
