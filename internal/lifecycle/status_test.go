package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusInitialized, StatusFunded, true},
		{StatusInitialized, StatusFailed, true},
		{StatusInitialized, StatusConfirmed, false},
		{StatusFunded, StatusConfirmed, true},
		{StatusFunded, StatusFailed, true},
		{StatusFunded, StatusInitialized, false},
		{StatusConfirmed, StatusFunded, false},
		{StatusConfirmed, StatusFailed, false},
		{StatusFailed, StatusInitialized, false},
		{Status("paused"), StatusFailed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, StatusInitialized.Terminal())
	assert.False(t, StatusFunded.Terminal())
	assert.True(t, StatusConfirmed.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, Status("paused").Terminal())
	assert.False(t, Status("paused").Valid())
}
