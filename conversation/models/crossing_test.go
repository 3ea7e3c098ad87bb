package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCrossingClaimable(t *testing.T) {
	tests := []struct {
		name     string
		crossing Crossing
		now      int64
		want     bool
	}{
		{"released", Crossing{Status: CrossingReleased}, 0, true},
		{"live lease", Crossing{Status: CrossingClaimed, LeaseExpiresMs: 100}, 50, false},
		{"lease at boundary", Crossing{Status: CrossingClaimed, LeaseExpiresMs: 100}, 100, false},
		{"expired lease", Crossing{Status: CrossingClaimed, LeaseExpiresMs: 100}, 101, true},
		{"resolved", Crossing{Status: CrossingResolved}, 1 << 40, false},
		{"skipped", Crossing{Status: CrossingSkipped}, 1 << 40, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.crossing.Claimable(tt.now))
		})
	}
}

func TestCrossingTerminal(t *testing.T) {
	assert.True(t, (&Crossing{Status: CrossingResolved}).Terminal())
	assert.True(t, (&Crossing{Status: CrossingSkipped}).Terminal())
	assert.False(t, (&Crossing{Status: CrossingClaimed}).Terminal())
	assert.False(t, (&Crossing{Status: CrossingReleased}).Terminal())
}
