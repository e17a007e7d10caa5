package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/map-overlay/internal/logging"
)

// DefaultPeriod is the time taken to traverse a route once.
const DefaultPeriod = 10 * time.Second

// ErrInvalidRoute is returned by SetRoute for routes that cannot be animated.
var ErrInvalidRoute = errors.New("invalid route")

// Transform is a scene-space pose.
type Transform struct {
	Position    Vec3    `json:"position"`
	Orientation Quat    `json:"orientation"`
	Phase       float64 `json:"phase"`
}

// AnimatorMetricsRecorder receives route lifecycle events.
type AnimatorMetricsRecorder interface {
	RouteSet(waypoints, samples int)
	RouteRejected()
	RouteCleared()
}

// routeState bundles everything derived from one route so it can be
// published with a single pointer store.
type routeState struct {
	route []LatLng
	curve *Curve
	track *TrackMesh
}

// PathAnimator loops a model along a route. SetRoute and Dispose publish a
// new routeState atomically; Tick only reads, so it is safe to call from a
// render callback while another goroutine swaps routes.
type PathAnimator struct {
	proj               Projector
	periodMillis       int64
	forward            Vec3
	samplesPerWaypoint int
	log                logging.Logger
	metrics            AnimatorMetricsRecorder

	state atomic.Pointer[routeState]
}

// AnimatorOption customises a PathAnimator.
type AnimatorOption func(*PathAnimator)

// WithPeriod sets the loop period. Periods shorter than a millisecond are
// ignored.
func WithPeriod(d time.Duration) AnimatorOption {
	return func(a *PathAnimator) {
		if ms := d.Milliseconds(); ms > 0 {
			a.periodMillis = ms
		}
	}
}

// WithForward sets the direction the model faces in its authored frame.
func WithForward(v Vec3) AnimatorOption {
	return func(a *PathAnimator) {
		if v.Normalize() != (Vec3{}) {
			a.forward = v
		}
	}
}

// WithSamplesPerWaypoint overrides the track density multiplier.
func WithSamplesPerWaypoint(n int) AnimatorOption {
	return func(a *PathAnimator) {
		if n > 0 {
			a.samplesPerWaypoint = n
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) AnimatorOption {
	return func(a *PathAnimator) {
		a.log = logging.OrNoop(l)
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m AnimatorMetricsRecorder) AnimatorOption {
	return func(a *PathAnimator) {
		a.metrics = m
	}
}

// NewPathAnimator returns an animator with no route. proj converts route
// waypoints into scene space.
func NewPathAnimator(proj Projector, opts ...AnimatorOption) *PathAnimator {
	a := &PathAnimator{
		proj:               proj,
		periodMillis:       DefaultPeriod.Milliseconds(),
		forward:            DefaultForward,
		samplesPerWaypoint: DefaultSamplesPerWaypoint,
		log:                logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Period returns the loop period.
func (a *PathAnimator) Period() time.Duration {
	return time.Duration(a.periodMillis) * time.Millisecond
}

// SetRoute replaces the current route. It fails with ErrInvalidRoute for
// fewer than two waypoints or out-of-range coordinates, leaving the previous
// route in place.
func (a *PathAnimator) SetRoute(route []LatLng) (*TrackMesh, error) {
	st, err := a.build(route)
	if err != nil {
		if a.metrics != nil {
			a.metrics.RouteRejected()
		}
		a.log.Warn(context.Background(), "route rejected",
			logging.Int("waypoints", len(route)),
			logging.Err(err),
		)
		return nil, err
	}

	a.state.Store(st)

	if a.metrics != nil {
		a.metrics.RouteSet(len(st.route), st.track.SampleCount())
	}
	a.log.Debug(context.Background(), "route set",
		logging.Int("waypoints", len(st.route)),
		logging.Int("samples", st.track.SampleCount()),
		logging.Float64("length", st.track.Length),
	)
	return st.track, nil
}

func (a *PathAnimator) build(route []LatLng) (*routeState, error) {
	if len(route) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 waypoints, got %d", ErrInvalidRoute, len(route))
	}
	if a.proj == nil {
		return nil, fmt.Errorf("%w: no projector configured", ErrInvalidRoute)
	}

	own := make([]LatLng, len(route))
	copy(own, route)

	points := make([]Vec3, len(own))
	for i, wp := range own {
		if !wp.Valid() {
			return nil, fmt.Errorf("%w: waypoint %d (%v, %v) out of range", ErrInvalidRoute, i, wp.Lat, wp.Lng)
		}
		p := a.proj.Project(wp)
		if !p.IsFinite() {
			return nil, fmt.Errorf("%w: waypoint %d projected to a non-finite position", ErrInvalidRoute, i)
		}
		points[i] = p
	}

	curve, err := NewCurve(points)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoute, err)
	}
	return &routeState{
		route: own,
		curve: curve,
		track: newTrackMesh(curve, len(own), a.samplesPerWaypoint),
	}, nil
}

// Tick returns the model pose at nowMillis, or false when no route is set.
// It has no side effects: equal inputs give bitwise-equal results, and
// Tick(t) equals Tick(t+Period).
func (a *PathAnimator) Tick(nowMillis int64) (Transform, bool) {
	st := a.state.Load()
	if st == nil {
		return Transform{}, false
	}
	phase := phaseOf(nowMillis, a.periodMillis)
	return Transform{
		Position:    st.curve.PointAt(phase),
		Orientation: OrientModel(a.forward, st.curve.TangentAt(phase)),
		Phase:       phase,
	}, true
}

// TransformAt implements MotionModel.
func (a *PathAnimator) TransformAt(nowMillis int64) (Transform, bool) {
	return a.Tick(nowMillis)
}

// Track returns the current track mesh, or nil when no route is set.
func (a *PathAnimator) Track() *TrackMesh {
	if st := a.state.Load(); st != nil {
		return st.track
	}
	return nil
}

// Curve returns the current curve, or nil when no route is set.
func (a *PathAnimator) Curve() *Curve {
	if st := a.state.Load(); st != nil {
		return st.curve
	}
	return nil
}

// Route returns a copy of the current route.
func (a *PathAnimator) Route() []LatLng {
	st := a.state.Load()
	if st == nil {
		return nil
	}
	out := make([]LatLng, len(st.route))
	copy(out, st.route)
	return out
}

// Dispose drops the current curve and track. Removing the track from the
// scene is the caller's job.
func (a *PathAnimator) Dispose() {
	if a.state.Swap(nil) != nil && a.metrics != nil {
		a.metrics.RouteCleared()
	}
}

// Phase returns the normalised position in [0,1) of nowMillis within a loop
// of the given period.
func Phase(nowMillis int64, period time.Duration) float64 {
	ms := period.Milliseconds()
	if ms <= 0 {
		ms = DefaultPeriod.Milliseconds()
	}
	return phaseOf(nowMillis, ms)
}

func phaseOf(nowMillis, periodMillis int64) float64 {
	m := nowMillis % periodMillis
	if m < 0 {
		m += periodMillis
	}
	return float64(m) / float64(periodMillis)
}
