package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKm(t *testing.T) {
	// Austin to Dallas is roughly 293km.
	d := HaversineKm(30.2672, -97.7431, 32.7767, -96.7970)
	assert.InDelta(t, 293, d, 10)

	// Identical points.
	assert.InDelta(t, 0, HaversineKm(45.0, -122.0, 45.0, -122.0), 0.001)

	// Symmetry.
	a := HaversineKm(30.0, -97.0, 40.0, -105.0)
	b := HaversineKm(40.0, -105.0, 30.0, -97.0)
	assert.InDelta(t, a, b, 0.001)
}
