package heartbeat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionPairAdvances(t *testing.T) {
	base := VersionPair{Plan: 3, Current: 5}

	assert.True(t, VersionPair{Plan: 4, Current: 5}.Advances(base))
	assert.True(t, VersionPair{Plan: 3, Current: 6}.Advances(base))
	assert.True(t, VersionPair{Plan: 4, Current: 6}.Advances(base))

	assert.False(t, base.Advances(base), "equal pairs do not advance")
	assert.False(t, VersionPair{Plan: 2, Current: 9}.Advances(base), "plan went backwards")
	assert.False(t, VersionPair{Plan: 9, Current: 4}.Advances(base), "current went backwards")
}

func TestVersionPairBasics(t *testing.T) {
	assert.True(t, VersionPair{}.IsZero())
	assert.False(t, VersionPair{Plan: 1}.IsZero())
	assert.True(t, VersionPair{Plan: 1, Current: 2}.Equal(VersionPair{Plan: 1, Current: 2}))
	assert.Equal(t, "(1, 2)", VersionPair{Plan: 1, Current: 2}.String())

	r := JobResult{Success: true, PlanVersion: 3, CurrentVersion: 4}
	assert.Equal(t, VersionPair{Plan: 3, Current: 4}, r.Versions())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("Coordinator")
	assert.NoError(t, err)
	assert.Equal(t, RoleCoordinator, r)

	r, err = ParseRole("dbserver")
	assert.NoError(t, err)
	assert.Equal(t, RoleWorker, r)

	_, err = ParseRole("agent")
	assert.ErrorIs(t, err, ErrInvalidRole)
}
