// Package httpapi exposes a PathAnimator over HTTP: routes are loaded with
// PUT /route and sampled with GET /frame, so a browser overlay or any other
// renderer can poll poses without embedding the animator.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/signalsfoundry/map-overlay/core"
	"github.com/signalsfoundry/map-overlay/internal/logging"
	"github.com/signalsfoundry/map-overlay/internal/observability"
	"github.com/signalsfoundry/map-overlay/routing"
	"github.com/signalsfoundry/map-overlay/timectrl"
)

const (
	// maxCameraFrames bounds GET /camera?frame=n.
	maxCameraFrames = 100000
	// maxRouteBody bounds the PUT /route request body.
	maxRouteBody = 1 << 20
)

// Trip is an origin/destination pair resolved through a routing.Source.
type Trip struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

type routeRequest struct {
	Waypoints   []core.LatLng `json:"waypoints,omitempty"`
	Origin      string        `json:"origin,omitempty"`
	Destination string        `json:"destination,omitempty"`
}

type routeResponse struct {
	Waypoints []core.LatLng `json:"waypoints"`
	Trip      *Trip         `json:"trip,omitempty"`
	Samples   int           `json:"samples"`
	Length    float64       `json:"length"`
}

type cameraResponse struct {
	State  core.CameraState `json:"state"`
	Frames int              `json:"frames"`
	Done   bool             `json:"done"`
}

// Server serves the animator API.
type Server struct {
	animator *core.PathAnimator
	source   routing.Source
	clock    timectrl.Clock
	metrics  *observability.Collector
	log      logging.Logger

	camSeq     core.CameraSequence
	camInitial core.CameraState

	origins []string

	// mu serialises route changes so the animator's route and trip always
	// agree. gen counts route changes.
	mu   sync.Mutex
	trip *Trip
	gen  uint64
}

// Option customises a Server.
type Option func(*Server)

// WithSource enables origin/destination requests.
func WithSource(src routing.Source) Option {
	return func(s *Server) { s.source = src }
}

// WithClock sets the clock used by GET /frame when no t is given.
func WithClock(c timectrl.Clock) Option {
	return func(s *Server) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMetrics records per-handler HTTP metrics and serves /metrics.
func WithMetrics(c *observability.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.log = logging.OrNoop(l) }
}

// WithCameraSequence replaces the default fly-in used by GET /camera.
func WithCameraSequence(seq core.CameraSequence, initial core.CameraState) Option {
	return func(s *Server) {
		s.camSeq = seq
		s.camInitial = initial
	}
}

// WithAllowedOrigins sets the CORS origins. Defaults to "*".
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// NewServer wraps animator.
func NewServer(animator *core.PathAnimator, opts ...Option) *Server {
	seq, initial := core.DefaultFlyIn()
	s := &Server{
		animator:   animator,
		clock:      timectrl.NewMonotonicClock(),
		log:        logging.Noop(),
		camSeq:     seq,
		camInitial: initial,
		origins:    []string{"*"},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the routed, CORS-enabled API.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.Use(RequestIDMiddleware(s.log), TracingMiddleware())

	router.Handle("/route", s.instrument("put_route", s.putRoute)).Methods(http.MethodPut)
	router.Handle("/route", s.instrument("get_route", s.getRoute)).Methods(http.MethodGet)
	router.Handle("/route", s.instrument("delete_route", s.deleteRoute)).Methods(http.MethodDelete)
	router.Handle("/route/track", s.instrument("get_track", s.getTrack)).Methods(http.MethodGet)
	router.Handle("/frame", s.instrument("get_frame", s.getFrame)).Methods(http.MethodGet)
	router.Handle("/camera", s.instrument("get_camera", s.getCamera)).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	cors := handlers.CORS(
		handlers.AllowedOrigins(s.origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", RequestIDHeader}),
		handlers.ExposedHeaders([]string{RequestIDHeader}),
	)
	return handlers.RecoveryHandler()(cors(router))
}

func (s *Server) instrument(name string, fn http.HandlerFunc) http.Handler {
	return s.metrics.Middleware(name, fn)
}

// Trip returns the origin/destination behind the current route, if any.
func (s *Server) Trip() (Trip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trip == nil {
		return Trip{}, false
	}
	return *s.trip, true
}

// LoadTrip resolves trip through the routing source and installs the
// result. It fails with ErrSuperseded when another route change lands while
// the source is being queried.
func (s *Server) LoadTrip(ctx context.Context, trip Trip) (*core.TrackMesh, error) {
	if s.source == nil {
		return nil, ErrNoSource
	}
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	return s.fetchTrip(ctx, trip, gen)
}

// fetchTrip queries the source outside the lock and installs the path only
// if no route change happened since gen was taken.
func (s *Server) fetchTrip(ctx context.Context, trip Trip, gen uint64) (*core.TrackMesh, error) {
	path, err := s.source.Route(ctx, trip.Origin, trip.Destination)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return nil, ErrSuperseded
	}
	track, err := s.animator.SetRoute(path)
	if err != nil {
		return nil, err
	}
	s.gen++
	s.trip = &trip
	return track, nil
}

// Refresh re-fetches the current trip. It is a no-op when the route was
// given as raw waypoints, and the result is dropped when the route changed
// while the fetch was in flight.
func (s *Server) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.trip == nil || s.source == nil {
		s.mu.Unlock()
		return nil
	}
	trip, gen := *s.trip, s.gen
	s.mu.Unlock()

	track, err := s.fetchTrip(ctx, trip, gen)
	switch {
	case errors.Is(err, ErrSuperseded):
		s.log.Debug(ctx, "route refresh superseded",
			logging.String("origin", trip.Origin),
			logging.String("destination", trip.Destination),
		)
		return nil
	case err != nil:
		s.log.Warn(ctx, "route refresh failed",
			logging.String("origin", trip.Origin),
			logging.String("destination", trip.Destination),
			logging.Err(err),
		)
		return err
	}
	s.log.Debug(ctx, "route refreshed", logging.Int("samples", track.SampleCount()))
	return nil
}

// setWaypoints installs a raw waypoint route and forgets any trip, as one
// step.
func (s *Server) setWaypoints(route []core.LatLng) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.animator.SetRoute(route); err != nil {
		return err
	}
	s.gen++
	s.trip = nil
	return nil
}

// clearRoute disposes the route and forgets any trip, as one step.
func (s *Server) clearRoute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.animator.Dispose()
	s.gen++
	s.trip = nil
}

func (s *Server) putRoute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req routeRequest
	body := http.MaxBytesReader(w, r.Body, maxRouteBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: decode body: %v", ErrBadRequest, err))
		return
	}

	switch {
	case len(req.Waypoints) > 0:
		if err := s.setWaypoints(req.Waypoints); err != nil {
			writeError(w, r, err)
			return
		}
	case req.Origin != "" && req.Destination != "":
		if _, err := s.LoadTrip(ctx, Trip{Origin: req.Origin, Destination: req.Destination}); err != nil {
			s.log.Warn(ctx, "route lookup failed", logging.Err(err))
			writeError(w, r, err)
			return
		}
	default:
		writeError(w, r, fmt.Errorf("%w: need waypoints or origin and destination", ErrBadRequest))
		return
	}

	resp, _ := s.currentRoute()
	s.log.Info(ctx, "route loaded",
		logging.Int("waypoints", len(resp.Waypoints)),
		logging.Int("samples", resp.Samples),
	)
	writeJSON(w, http.StatusOK, resp)
}

// currentRoute reads route, track and trip under one lock so they always
// describe the same route.
func (s *Server) currentRoute() (routeResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	route := s.animator.Route()
	track := s.animator.Track()
	if route == nil || track == nil {
		return routeResponse{}, false
	}
	resp := routeResponse{
		Waypoints: route,
		Samples:   track.SampleCount(),
		Length:    track.Length,
	}
	if s.trip != nil {
		trip := *s.trip
		resp.Trip = &trip
	}
	return resp, true
}

func (s *Server) getRoute(w http.ResponseWriter, r *http.Request) {
	resp, ok := s.currentRoute()
	if !ok {
		writeError(w, r, ErrNoRouteSet)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deleteRoute(w http.ResponseWriter, r *http.Request) {
	s.clearRoute()
	s.log.Info(r.Context(), "route cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getTrack(w http.ResponseWriter, r *http.Request) {
	track := s.animator.Track()
	if track == nil {
		writeError(w, r, ErrNoRouteSet)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

func (s *Server) getFrame(w http.ResponseWriter, r *http.Request) {
	now := s.clock.NowMillis()
	if raw := r.URL.Query().Get("t"); raw != "" {
		t, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: t must be integer milliseconds", ErrBadRequest))
			return
		}
		now = t
	}

	xf, ok := s.animator.Tick(now)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, xf)
}

func (s *Server) getCamera(w http.ResponseWriter, r *http.Request) {
	frames := 0
	if raw := r.URL.Query().Get("frame"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxCameraFrames {
			writeError(w, r, fmt.Errorf("%w: frame must be in [0,%d]", ErrBadRequest, maxCameraFrames))
			return
		}
		frames = n
	}

	state, moved := s.camSeq.Advance(s.camInitial, frames)
	writeJSON(w, http.StatusOK, cameraResponse{
		State:  state,
		Frames: moved,
		Done:   s.camSeq.Done(state),
	})
}
