package routing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/signalsfoundry/map-overlay/core"
	"github.com/signalsfoundry/map-overlay/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"googlemaps.github.io/maps"
)

const tracerName = "github.com/signalsfoundry/map-overlay/routing"

// mapsAPI is the subset of *maps.Client used by GoogleSource.
type mapsAPI interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// GoogleSource geocodes both ends of a trip and returns the overview path of
// the first driving route between them.
type GoogleSource struct {
	api     mapsAPI
	mode    maps.Mode
	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer
}

// GoogleOption customises a GoogleSource.
type GoogleOption func(*GoogleSource)

// WithTravelMode overrides the default driving mode.
func WithTravelMode(mode maps.Mode) GoogleOption {
	return func(s *GoogleSource) {
		if mode != "" {
			s.mode = mode
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log logging.Logger) GoogleOption {
	return func(s *GoogleSource) { s.log = logging.OrNoop(log) }
}

// WithMetricsRecorder counts provider calls.
func WithMetricsRecorder(m MetricsRecorder) GoogleOption {
	return func(s *GoogleSource) { s.metrics = m }
}

// NewGoogleSource builds a source backed by the Google Maps web services.
func NewGoogleSource(apiKey string, opts ...GoogleOption) (*GoogleSource, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("google maps: %w", ErrMissingAPIKey)
	}
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("google maps client: %w", err)
	}
	return newGoogleSource(client, opts...), nil
}

func newGoogleSource(api mapsAPI, opts ...GoogleOption) *GoogleSource {
	s := &GoogleSource{
		api:    api,
		mode:   maps.TravelModeDriving,
		log:    logging.Noop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Route implements Source.
func (s *GoogleSource) Route(ctx context.Context, origin, destination string) ([]core.LatLng, error) {
	ctx, span := s.tracer.Start(ctx, "routing.Route", trace.WithAttributes(
		attribute.String("routing.origin", origin),
		attribute.String("routing.destination", destination),
		attribute.String("routing.mode", string(s.mode)),
	))
	defer span.End()

	from, err := s.geocode(ctx, origin)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("geocode origin: %w", err))
	}
	to, err := s.geocode(ctx, destination)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("geocode destination: %w", err))
	}

	path, err := s.directions(ctx, from, to)
	if err != nil {
		return nil, spanError(span, err)
	}
	span.SetAttributes(attribute.Int("routing.waypoints", len(path)))
	s.log.Info(ctx, "route fetched",
		logging.String("origin", origin),
		logging.String("destination", destination),
		logging.Int("waypoints", len(path)),
	)
	return path, nil
}

func (s *GoogleSource) geocode(ctx context.Context, address string) (core.LatLng, error) {
	ctx, span := s.tracer.Start(ctx, "routing.Geocode")
	defer span.End()

	start := time.Now()
	results, err := s.api.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err == nil && len(results) == 0 {
		err = fmt.Errorf("%q: %w", address, ErrNoGeocode)
	}
	s.record("geocode", start, err)
	if err != nil {
		return core.LatLng{}, spanError(span, err)
	}

	loc := results[0].Geometry.Location
	return core.LatLng{Lat: loc.Lat, Lng: loc.Lng}, nil
}

func (s *GoogleSource) directions(ctx context.Context, from, to core.LatLng) ([]core.LatLng, error) {
	ctx, span := s.tracer.Start(ctx, "routing.Directions")
	defer span.End()

	start := time.Now()
	routes, _, err := s.api.Directions(ctx, &maps.DirectionsRequest{
		Origin:      formatLatLng(from),
		Destination: formatLatLng(to),
		Mode:        s.mode,
	})
	if err == nil && len(routes) == 0 {
		err = ErrNoRoute
	}
	var decoded []maps.LatLng
	if err == nil {
		decoded, err = routes[0].OverviewPolyline.Decode()
		if err != nil {
			err = fmt.Errorf("decode overview polyline: %w", err)
		} else if len(decoded) == 0 {
			err = ErrNoRoute
		}
	}
	s.record("directions", start, err)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("directions: %w", err))
	}

	path := make([]core.LatLng, len(decoded))
	for i, p := range decoded {
		path[i] = core.LatLng{Lat: p.Lat, Lng: p.Lng}
	}
	return path, nil
}

func (s *GoogleSource) record(op string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RoutingCall(op, time.Since(start), err)
	}
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
