// Package estimate provides pluggable trip-duration estimators.
// The default is a naive haversine/speed model; production wiring
// points at a routing engine instead.
package estimate

import (
	"math"

	"github.com/example/campus-dispatch/internal/models"
)

// Estimator yields a duration estimate in seconds between two
// points.
type Estimator interface {
	EstimateSeconds(from, to models.Coord) (float64, error)
}

// SpeedEstimator divides straight-line distance by an assumed
// speed.
type SpeedEstimator struct {
	SpeedMps float64
}

func (s SpeedEstimator) EstimateSeconds(from, to models.Coord) (float64, error) {
	speed := s.SpeedMps
	if speed <= 0 {
		speed = 8.0 // ~28.8 km/h default city speed
	}
	return Haversine(from.Lat, from.Lon, to.Lat, to.Lon) / speed, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
