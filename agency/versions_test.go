package agency

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)

	v, err = ParseVersion(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	_, err = ParseVersion("-1")
	assert.ErrorIs(t, err, ErrBadVersion)
}

func TestReadVersion(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	v, err := ReadVersion(ctx, m, PlanVersionKey)
	require.NoError(t, err, "a missing version key reads as 0")
	assert.Equal(t, uint64(0), v)

	require.NoError(t, m.Write(ctx, PlanVersionKey, "7"))
	v, err = ReadVersion(ctx, m, PlanVersionKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v)

	require.NoError(t, m.Write(ctx, PlanVersionKey, "seven"))
	_, err = ReadVersion(ctx, m, PlanVersionKey)
	assert.ErrorIs(t, err, ErrBadVersion)

	m.SetUnavailable(true)
	_, err = ReadVersion(ctx, m, PlanVersionKey)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestIncrementVersion(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	v, err := IncrementVersion(ctx, m, CurrentVersionKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	v, err = IncrementVersion(ctx, m, CurrentVersionKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)
}

func TestIncrementVersionConcurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	const writers = 4
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := IncrementVersion(ctx, m, PlanVersionKey)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, err := ReadVersion(ctx, m, PlanVersionKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(writers), v)
}

// conflictingClient loses every compare-and-swap
type conflictingClient struct {
	*MemoryStore
	attempts int
}

func (c *conflictingClient) CompareAndSwap(ctx context.Context, key, old, value string) (bool, error) {
	c.attempts++
	return false, nil
}

func TestIncrementVersionGivesUp(t *testing.T) {
	c := &conflictingClient{MemoryStore: NewMemoryStore()}

	_, err := IncrementVersion(context.Background(), c, PlanVersionKey)
	assert.ErrorIs(t, err, ErrCASConflict)
	assert.Equal(t, casAttempts, c.attempts)
}

func TestIncrementVersionDoesNotRetryOutage(t *testing.T) {
	m := NewMemoryStore()
	m.SetUnavailable(true)

	_, err := IncrementVersion(context.Background(), m, PlanVersionKey)
	assert.ErrorIs(t, err, ErrUnavailable)
}
