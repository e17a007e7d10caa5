// Package routing resolves an origin and destination into the waypoint list
// a core.PathAnimator traces. The animator never depends on this package;
// callers fetch a route here and hand the result to SetRoute.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/map-overlay/core"
)

var (
	// ErrNoRoute is returned when the provider finds no route between the
	// two places.
	ErrNoRoute = errors.New("no route found")
	// ErrNoGeocode is returned when a place cannot be resolved to a
	// coordinate.
	ErrNoGeocode = errors.New("place not found")
)

// Source produces an ordered waypoint list for a trip.
type Source interface {
	Route(ctx context.Context, origin, destination string) ([]core.LatLng, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, origin, destination string) ([]core.LatLng, error)

// Route implements Source.
func (f SourceFunc) Route(ctx context.Context, origin, destination string) ([]core.LatLng, error) {
	return f(ctx, origin, destination)
}

// MetricsRecorder observes calls made to the routing provider.
type MetricsRecorder interface {
	RoutingCall(operation string, d time.Duration, err error)
}

// StaticSource always returns the same waypoints, regardless of the
// requested places.
type StaticSource []core.LatLng

// Route implements Source.
func (s StaticSource) Route(context.Context, string, string) ([]core.LatLng, error) {
	if len(s) == 0 {
		return nil, ErrNoRoute
	}
	out := make([]core.LatLng, len(s))
	copy(out, s)
	return out, nil
}

// formatLatLng renders a coordinate the way the Directions API accepts it.
func formatLatLng(p core.LatLng) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
