package geo

import (
	"math"
)

// Constants
const (
	EarthRadiusM = 6371000.0 // Mean Earth radius (m)
	MetersPerNM  = 1852.0    // Meters per nautical mile
	MetersPerKM  = 1000.0
)

// Haversine returns the great-circle distance in meters between two
// lat/lon points in decimal degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusM * c
}

// MetersToNM converts meters to nautical miles
func MetersToNM(m float64) float64 {
	return m / MetersPerNM
}

// MetersToKM converts meters to kilometers
func MetersToKM(m float64) float64 {
	return m / MetersPerKM
}

// NMToMeters converts nautical miles to meters
func NMToMeters(nm float64) float64 {
	return nm * MetersPerNM
}
