// README: Offline arrival estimate from great-circle distance, used when no Maps API key is configured.
package maps

import (
	"context"
	"errors"
	"math"
	"time"

	"carpool/internal/types"
)

const earthRadiusKm = 6371.0

// StraightLine estimates arrival from the haversine distance between the two
// points, stretched by DetourFactor and driven at AverageSpeedKmh.
type StraightLine struct {
	AverageSpeedKmh float64
	DetourFactor    float64
}

func NewStraightLine() *StraightLine {
	return &StraightLine{AverageSpeedKmh: 60, DetourFactor: 1.3}
}

var errNoCoordinates = errors.New("straight-line estimate needs coordinates for both places")

func (s *StraightLine) EstimateArrival(_ context.Context, origin, destination types.Place, departAt time.Time) (time.Time, error) {
	if origin.Point.IsZero() || destination.Point.IsZero() {
		return time.Time{}, errNoCoordinates
	}
	km := haversineKm(origin.Point.Lat, origin.Point.Lng, destination.Point.Lat, destination.Point.Lng) * s.DetourFactor
	d := time.Duration(km / s.AverageSpeedKmh * float64(time.Hour))
	return departAt.Add(d.Round(time.Minute) + TrafficBuffer), nil
}

// Geocode is a no-op; places without coordinates stay as they are.
func (s *StraightLine) Geocode(_ context.Context, p types.Place) (types.Place, error) {
	return p, nil
}

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
