// Package geo provides pure distance and ETA helpers for pickup dispatch.
package geo

import "math"

// earthRadiusKm is the mean radius used by the haversine formula.
const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceKm returns the great-circle distance between a and b in kilometers.
func DistanceKm(a, b Point) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*sinLng*sinLng

	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// ETAMinutes estimates travel time for a collector covering distanceKm.
// The heuristic assumes roughly 15 km/h through city traffic and never
// reports less than one minute.
func ETAMinutes(distanceKm float64) int {
	if distanceKm < 0 {
		distanceKm = 0
	}
	eta := int(math.Round(distanceKm * 4))
	if eta < 1 {
		return 1
	}
	return eta
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
