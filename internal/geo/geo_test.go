package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	limaCenter   = Point{Lat: -12.0464, Lng: -77.0428}
	limaNearby   = Point{Lat: -12.0500, Lng: -77.0400}
	limaCallao   = Point{Lat: -12.0566, Lng: -77.1181}
	equatorZero  = Point{}
	antipodeTest = Point{Lat: 12.0464, Lng: 102.9572}
)

func TestDistanceKmZeroForSamePoint(t *testing.T) {
	assert.InDelta(t, 0, DistanceKm(limaCenter, limaCenter), 1e-9)
	assert.InDelta(t, 0, DistanceKm(equatorZero, equatorZero), 1e-9)
}

func TestDistanceKmSymmetric(t *testing.T) {
	ab := DistanceKm(limaCenter, limaCallao)
	ba := DistanceKm(limaCallao, limaCenter)
	assert.InDelta(t, ab, ba, 1e-9)
}

func TestDistanceKmLimaNeighborhood(t *testing.T) {
	d := DistanceKm(limaCenter, limaNearby)
	assert.InDelta(t, 0.49, d, 0.05)
}

func TestDistanceKmNonNegative(t *testing.T) {
	points := []Point{limaCenter, limaNearby, limaCallao, equatorZero, antipodeTest}
	for _, a := range points {
		for _, b := range points {
			assert.GreaterOrEqual(t, DistanceKm(a, b), 0.0)
		}
	}
}

func TestDistanceKmAntipodeDoesNotNaN(t *testing.T) {
	d := DistanceKm(limaCenter, antipodeTest)
	assert.False(t, math.IsNaN(d))
	// Half the earth's circumference is the ceiling.
	assert.LessOrEqual(t, d, math.Pi*earthRadiusKm+1)
}

func TestETAMinutesFloor(t *testing.T) {
	assert.Equal(t, 1, ETAMinutes(0))
	assert.Equal(t, 1, ETAMinutes(0.1))
	assert.Equal(t, 1, ETAMinutes(-3))
}

func TestETAMinutesHeuristic(t *testing.T) {
	assert.Equal(t, 2, ETAMinutes(0.5))
	assert.Equal(t, 4, ETAMinutes(1))
	assert.Equal(t, 10, ETAMinutes(2.5))
}

func TestETAMinutesMonotonic(t *testing.T) {
	prev := 0
	for d := 0.0; d <= 30; d += 0.25 {
		eta := ETAMinutes(d)
		assert.GreaterOrEqual(t, eta, 1)
		assert.GreaterOrEqual(t, eta, prev)
		prev = eta
	}
}
