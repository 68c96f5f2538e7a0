package agency

import "errors"

var (
	ErrKeyNotFound = errors.New("agency: key not found")
	ErrUnavailable = errors.New("agency: unavailable")
	ErrBadVersion  = errors.New("agency: malformed version value")
	ErrCASConflict = errors.New("agency: compare-and-swap conflict")
	ErrClosed      = errors.New("agency: closed")
)
