package agency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
)

const (
	casAttempts = 10
	casDelay    = 5 * time.Millisecond
	casMaxDelay = 50 * time.Millisecond
)

// ParseVersion parses a version value; the empty string is version 0
func ParseVersion(value string) (uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadVersion, value)
	}
	return v, nil
}

func FormatVersion(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// ReadVersion reads a version key. A key that was never written is version 0.
func ReadVersion(ctx context.Context, c Client, key string) (uint64, error) {
	value, err := c.Read(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", key, err)
	}
	v, err := ParseVersion(value)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", key, err)
	}
	return v, nil
}

// IncrementVersion atomically bumps a version key with compare-and-swap and
// returns the new version. Conflicting writers are retried a bounded number of times.
func IncrementVersion(ctx context.Context, c Client, key string) (uint64, error) {
	var next uint64
	err := retry.Do(
		func() error {
			old, err := c.Read(ctx, key)
			if errors.Is(err, ErrKeyNotFound) {
				old = ""
			} else if err != nil {
				return err
			}

			cur, err := ParseVersion(old)
			if err != nil {
				return err
			}
			next = cur + 1

			swapped, err := c.CompareAndSwap(ctx, key, old, FormatVersion(next))
			if err != nil {
				return err
			}
			if !swapped {
				return ErrCASConflict
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(casAttempts),
		retry.Delay(casDelay),
		retry.MaxDelay(casMaxDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrCASConflict)
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("incrementing %s: %w", key, err)
	}
	return next, nil
}
