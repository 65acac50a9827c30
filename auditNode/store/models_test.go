package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusAssigned, StatusToBeSubmitted, true},
		{StatusAssigned, StatusDone, true},
		{StatusToBeSubmitted, StatusAssigned, false},
		{StatusSubmitted, StatusSubmitted, true},
		{StatusSubmitted, StatusToBeSubmitted, false},
		{StatusSubmitted, StatusError, true},
		{StatusDone, StatusError, false},
		{StatusDone, StatusDone, false},
		{StatusError, StatusAssigned, false},
		{StatusError, StatusError, false},
		{StatusAssigned, Status("XX"), false},
		{Status("XX"), StatusDone, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatusPending(t *testing.T) {
	assert.True(t, StatusAssigned.Pending())
	assert.True(t, StatusToBeSubmitted.Pending())
	assert.True(t, StatusSubmitted.Pending())
	assert.False(t, StatusDone.Pending())
	assert.False(t, StatusError.Pending())
	assert.Len(t, Statuses, 5)
}
