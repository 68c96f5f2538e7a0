package heartbeat

import "fmt"

// VersionPair is a snapshot of the agency's Plan and Current versions, either
// as last observed ("desired") or as last applied by a successful sync.
type VersionPair struct {
	Plan    uint64
	Current uint64
}

func (v VersionPair) Equal(o VersionPair) bool {
	return v == o
}

// Advances reports whether v is newer than o: no field went backwards and at
// least one moved forward. Agency versions are monotonic, so two observations
// are always ordered this way or equal.
func (v VersionPair) Advances(o VersionPair) bool {
	if v.Plan < o.Plan || v.Current < o.Current {
		return false
	}
	return v.Plan > o.Plan || v.Current > o.Current
}

func (v VersionPair) IsZero() bool {
	return v == VersionPair{}
}

func (v VersionPair) String() string {
	return fmt.Sprintf("(%d, %d)", v.Plan, v.Current)
}

// JobResult is what a reconciliation job reports back once it finishes.
type JobResult struct {
	Success        bool
	PlanVersion    uint64
	CurrentVersion uint64
}

func (r JobResult) Versions() VersionPair {
	return VersionPair{Plan: r.PlanVersion, Current: r.CurrentVersion}
}
