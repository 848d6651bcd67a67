// README: Google Maps adapter: estimated arrival for a trip and address geocoding.
package maps

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"googlemaps.github.io/maps"

	"carpool/internal/types"
)

// TrafficBuffer is added on top of the driving duration Google returns.
const TrafficBuffer = 10 * time.Minute

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// EstimateArrival returns departAt plus the driving time between the two
// places and TrafficBuffer.
func (s *RouteService) EstimateArrival(ctx context.Context, origin, destination types.Place, departAt time.Time) (time.Time, error) {
	r := &maps.DirectionsRequest{
		Origin:        location(origin),
		Destination:   location(destination),
		Mode:          maps.TravelModeDriving,
		DepartureTime: strconv.FormatInt(departAt.Unix(), 10),
		Language:      "zh-TW",
		Region:        "TW",
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return time.Time{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return time.Time{}, fmt.Errorf("no route found")
	}

	leg := routes[0].Legs[0]
	d := leg.Duration
	if leg.DurationInTraffic > d {
		d = leg.DurationInTraffic
	}
	return departAt.Add(d + TrafficBuffer), nil
}

// Geocode fills in the coordinates of a place given only by text.
func (s *RouteService) Geocode(ctx context.Context, p types.Place) (types.Place, error) {
	if !p.Point.IsZero() || p.Text == "" {
		return p, nil
	}
	res, err := s.client.Geocode(ctx, &maps.GeocodingRequest{
		Address:  p.Text,
		Language: "zh-TW",
		Region:   "TW",
	})
	if err != nil {
		return p, fmt.Errorf("geocode %q: %w", p.Text, err)
	}
	if len(res) == 0 {
		return p, fmt.Errorf("geocode %q: no result", p.Text)
	}
	loc := res[0].Geometry.Location
	p.Point = types.Point{Lat: loc.Lat, Lng: loc.Lng}
	return p, nil
}

func location(p types.Place) string {
	if !p.Point.IsZero() {
		return fmt.Sprintf("%f,%f", p.Point.Lat, p.Point.Lng)
	}
	return p.Text
}
