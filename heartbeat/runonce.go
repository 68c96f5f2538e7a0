package heartbeat

import "sync/atomic"

// RunOnceFlag records that a coordinator has completed at least one full
// heartbeat pass. The coordinator loop is its only writer; anything else in
// the process may read it to gate coordinator bootstrap work.
type RunOnceFlag struct {
	done atomic.Bool
}

var processRunOnce RunOnceFlag

// ProcessRunOnce returns the flag shared by the whole process
func ProcessRunOnce() *RunOnceFlag {
	return &processRunOnce
}

func NewRunOnceFlag() *RunOnceFlag {
	return &RunOnceFlag{}
}

func (f *RunOnceFlag) Load() bool {
	return f.done.Load()
}

// mark sets the flag and reports whether this call was the one that set it
func (f *RunOnceFlag) mark() bool {
	return f.done.CompareAndSwap(false, true)
}
