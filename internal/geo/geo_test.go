package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantKM                 float64
		tolerance              float64
	}{
		{
			name: "same point",
			lat1: 43.6777, lon1: -79.6248,
			lat2: 43.6777, lon2: -79.6248,
			wantKM: 0, tolerance: 0.001,
		},
		{
			name: "YYZ to LHR",
			lat1: 43.6777, lon1: -79.6248,
			lat2: 51.4706, lon2: -0.4619,
			wantKM: 5712, tolerance: 30,
		},
		{
			name: "JFK to LAX",
			lat1: 40.6399, lon1: -73.7787,
			lat2: 33.9425, lon2: -118.408,
			wantKM: 3974, tolerance: 30,
		},
		{
			name: "across the antimeridian",
			lat1: 35.5494, lon1: 139.7798,
			lat2: 37.6188, lon2: -122.375,
			wantKM: 8270, tolerance: 60,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MetersToKM(Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2))
			assert.InDelta(t, tt.wantKM, got, tt.tolerance)
		})
	}
}

func TestUnitConversions(t *testing.T) {
	assert.InDelta(t, 1.0, MetersToNM(1852), 1e-9)
	assert.InDelta(t, 1852.0, NMToMeters(1), 1e-9)
	assert.InDelta(t, 1.852, MetersToKM(NMToMeters(1)), 1e-9)
}
