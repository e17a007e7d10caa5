package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/map-overlay/core"
	"github.com/signalsfoundry/map-overlay/internal/observability"
	"github.com/signalsfoundry/map-overlay/routing"
	"github.com/signalsfoundry/map-overlay/timectrl"
)

var demoRoute = []core.LatLng{
	{Lat: 43.6629, Lng: -79.3931},
	{Lat: 43.6635, Lng: -79.3920},
	{Lat: 43.6640, Lng: -79.3905},
}

type fakeSource struct {
	calls int
	path  []core.LatLng
	err   error
}

func (f *fakeSource) Route(context.Context, string, string) ([]core.LatLng, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.path, nil
}

// gatedSource blocks every Route call until release is closed, signalling
// entered first so tests can interleave other requests with the fetch.
type gatedSource struct {
	mu      sync.Mutex
	calls   int
	path    []core.LatLng
	entered chan struct{}
	release chan struct{}
}

func newGatedSource(path []core.LatLng) *gatedSource {
	return &gatedSource{path: path, entered: make(chan struct{}, 4), release: make(chan struct{})}
}

func (g *gatedSource) Route(ctx context.Context, _, _ string) ([]core.LatLng, error) {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()
	if first {
		// The initial trip load is not gated.
		return g.path, nil
	}
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.path, nil
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *core.PathAnimator) {
	t.Helper()
	anim := core.NewPathAnimator(core.NewMercatorProjector(demoRoute[0]))
	return NewServer(anim, opts...), anim
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestPutRouteWaypointsThenFrame(t *testing.T) {
	srv, anim := newTestServer(t)
	h := srv.Handler()

	rr := do(t, h, http.MethodPut, "/route", `{"waypoints":[{"lat":43.6629,"lng":-79.3931},{"lat":43.6635,"lng":-79.3920},{"lat":43.6640,"lng":-79.3905}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT /route status = %d, body %s", rr.Code, rr.Body.String())
	}
	var route routeResponse
	if err := json.NewDecoder(rr.Body).Decode(&route); err != nil {
		t.Fatalf("decode route: %v", err)
	}
	if len(route.Waypoints) != 3 || route.Samples != 30 || route.Trip != nil {
		t.Fatalf("unexpected route response: %+v", route)
	}

	rr = do(t, h, http.MethodGet, "/frame?t=2500", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /frame status = %d", rr.Code)
	}
	var got core.Transform
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode transform: %v", err)
	}
	want, _ := anim.Tick(2500)
	if got.Phase != want.Phase || got.Position.DistanceTo(want.Position) > 1e-9 {
		t.Fatalf("frame = %+v, want %+v", got, want)
	}

	rr = do(t, h, http.MethodGet, "/route/track", "")
	var track core.TrackMesh
	if err := json.NewDecoder(rr.Body).Decode(&track); err != nil || track.SampleCount() != 30 {
		t.Fatalf("track = %d samples (%v), want 30", track.SampleCount(), err)
	}
}

func TestFrameUsesClockWhenTOmitted(t *testing.T) {
	clock := &timectrl.ManualClock{}
	srv, anim := newTestServer(t, WithClock(clock))
	if _, err := anim.SetRoute(demoRoute); err != nil {
		t.Fatalf("SetRoute: %v", err)
	}
	clock.Set(7500)

	rr := do(t, srv.Handler(), http.MethodGet, "/frame", "")
	var got core.Transform
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Phase != 0.75 {
		t.Fatalf("phase = %v, want 0.75", got.Phase)
	}
}

func TestRouteErrors(t *testing.T) {
	tests := []struct {
		name   string
		source routing.Source
		body   string
		want   int
	}{
		{name: "malformed json", body: `{`, want: http.StatusBadRequest},
		{name: "empty request", body: `{}`, want: http.StatusBadRequest},
		{name: "single waypoint", body: `{"waypoints":[{"lat":1,"lng":2}]}`, want: http.StatusBadRequest},
		{name: "bad coordinate", body: `{"waypoints":[{"lat":91,"lng":2},{"lat":1,"lng":2}]}`, want: http.StatusBadRequest},
		{name: "no source", body: `{"origin":"a","destination":"b"}`, want: http.StatusNotImplemented},
		{name: "no route", source: &fakeSource{err: routing.ErrNoRoute}, body: `{"origin":"a","destination":"b"}`, want: http.StatusNotFound},
		{name: "provider down", source: &fakeSource{err: errors.New("dial tcp: refused")}, body: `{"origin":"a","destination":"b"}`, want: http.StatusBadGateway},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(t, WithSource(tc.source))
			rr := do(t, srv.Handler(), http.MethodPut, "/route", tc.body)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tc.want, rr.Body.String())
			}
			var body errorBody
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil || body.Error == "" {
				t.Fatalf("error body missing: %v", err)
			}
			if body.RequestID == "" || rr.Header().Get(RequestIDHeader) != body.RequestID {
				t.Fatalf("request id not echoed: header %q body %q", rr.Header().Get(RequestIDHeader), body.RequestID)
			}
		})
	}
}

func TestNoRouteResponses(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	if rr := do(t, h, http.MethodGet, "/frame?t=10", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("GET /frame without route = %d, want 204", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/route/track", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("GET /route/track without route = %d, want 404", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/route", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("GET /route without route = %d, want 404", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/frame?t=soon", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("GET /frame?t=soon = %d, want 400", rr.Code)
	}
}

func TestTripLoadRefreshAndDelete(t *testing.T) {
	src := &fakeSource{path: demoRoute}
	srv, anim := newTestServer(t, WithSource(src))
	h := srv.Handler()

	rr := do(t, h, http.MethodPut, "/route", `{"origin":"Union Station","destination":"Queen's Park"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT /route trip status = %d: %s", rr.Code, rr.Body.String())
	}
	trip, ok := srv.Trip()
	if !ok || trip.Origin != "Union Station" || trip.Destination != "Queen's Park" {
		t.Fatalf("trip = %+v (%v)", trip, ok)
	}

	src.path = demoRoute[1:]
	if err := srv.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if src.calls != 2 || len(anim.Route()) != 2 {
		t.Fatalf("refresh did not reload the route: calls=%d waypoints=%d", src.calls, len(anim.Route()))
	}

	src.err = routing.ErrNoRoute
	if err := srv.Refresh(context.Background()); !errors.Is(err, routing.ErrNoRoute) {
		t.Fatalf("Refresh err = %v, want ErrNoRoute", err)
	}
	if len(anim.Route()) != 2 {
		t.Fatalf("failed refresh must keep the previous route")
	}

	if rr := do(t, h, http.MethodDelete, "/route", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("DELETE /route = %d, want 204", rr.Code)
	}
	if _, ok := srv.Trip(); ok {
		t.Fatalf("trip should be cleared after delete")
	}
	if err := srv.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh with no trip should be a no-op, got %v", err)
	}
	if src.calls != 3 {
		t.Fatalf("refresh without trip hit the source")
	}
}

func TestRefreshDoesNotOverwriteNewerRoute(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		check  func(t *testing.T, anim *core.PathAnimator)
	}{
		{
			name:   "waypoints",
			method: http.MethodPut,
			body:   `{"waypoints":[{"lat":10,"lng":10},{"lat":10.001,"lng":10.001}]}`,
			check: func(t *testing.T, anim *core.PathAnimator) {
				route := anim.Route()
				if len(route) != 2 || route[0] != (core.LatLng{Lat: 10, Lng: 10}) {
					t.Fatalf("route = %+v, want the waypoints put during refresh", route)
				}
			},
		},
		{
			name:   "delete",
			method: http.MethodDelete,
			check: func(t *testing.T, anim *core.PathAnimator) {
				if route := anim.Route(); route != nil {
					t.Fatalf("route = %+v, want none after delete", route)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := newGatedSource(demoRoute)
			srv, anim := newTestServer(t, WithSource(src))
			h := srv.Handler()

			if rr := do(t, h, http.MethodPut, "/route", `{"origin":"a","destination":"b"}`); rr.Code != http.StatusOK {
				t.Fatalf("PUT /route trip status = %d: %s", rr.Code, rr.Body.String())
			}

			done := make(chan error, 1)
			go func() { done <- srv.Refresh(context.Background()) }()
			select {
			case <-src.entered:
			case <-time.After(2 * time.Second):
				t.Fatal("refresh never reached the source")
			}

			rr := do(t, h, tc.method, "/route", tc.body)
			if rr.Code != http.StatusOK && rr.Code != http.StatusNoContent {
				t.Fatalf("%s /route during refresh = %d: %s", tc.method, rr.Code, rr.Body.String())
			}

			close(src.release)
			select {
			case err := <-done:
				if err != nil {
					t.Fatalf("Refresh: %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("refresh did not return")
			}

			tc.check(t, anim)
			if trip, ok := srv.Trip(); ok {
				t.Fatalf("trip = %+v, want none after a newer route change", trip)
			}
		})
	}
}

func TestLoadTripSupersededByWaypoints(t *testing.T) {
	src := newGatedSource(demoRoute)
	src.calls = 1
	srv, anim := newTestServer(t, WithSource(src))
	h := srv.Handler()

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- do(t, h, http.MethodPut, "/route", `{"origin":"a","destination":"b"}`)
	}()
	select {
	case <-src.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("trip load never reached the source")
	}

	if rr := do(t, h, http.MethodPut, "/route", `{"waypoints":[{"lat":10,"lng":10},{"lat":10.001,"lng":10.001}]}`); rr.Code != http.StatusOK {
		t.Fatalf("PUT /route waypoints = %d: %s", rr.Code, rr.Body.String())
	}
	close(src.release)

	rr := <-done
	if rr.Code != http.StatusConflict {
		t.Fatalf("superseded trip load = %d, want 409 (body %s)", rr.Code, rr.Body.String())
	}
	if route := anim.Route(); len(route) != 2 || route[0] != (core.LatLng{Lat: 10, Lng: 10}) {
		t.Fatalf("route = %+v, want the waypoints", route)
	}
	if _, ok := srv.Trip(); ok {
		t.Fatal("superseded trip must not be installed")
	}
}

func TestPutRouteRejectsOversizedBody(t *testing.T) {
	srv, anim := newTestServer(t)
	point := `{"lat":1,"lng":1}`
	body := `{"waypoints":[` + strings.Repeat(point+",", 70000) + point + `]}`
	if len(body) <= maxRouteBody {
		t.Fatalf("body is only %d bytes", len(body))
	}

	rr := do(t, srv.Handler(), http.MethodPut, "/route", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "too large") {
		t.Fatalf("error body = %s", rr.Body.String())
	}
	if anim.Route() != nil {
		t.Fatal("oversized body must not load a route")
	}
}

func TestCameraEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		query string
		want  cameraResponse
	}{
		{query: "", want: cameraResponse{State: core.CameraState{Tilt: 25, Zoom: 17, Heading: 25}}},
		{query: "?frame=10", want: cameraResponse{State: core.CameraState{Tilt: 35, Zoom: 17, Heading: 25}, Frames: 10}},
		{query: "?frame=1000", want: cameraResponse{State: core.CameraState{Tilt: 60, Zoom: 19, Heading: 75}, Frames: 175, Done: true}},
	}
	for _, tc := range tests {
		rr := do(t, h, http.MethodGet, "/camera"+tc.query, "")
		var got cameraResponse
		if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
			t.Fatalf("decode %q: %v", tc.query, err)
		}
		if got != tc.want {
			t.Fatalf("GET /camera%s = %+v, want %+v", tc.query, got, tc.want)
		}
	}

	if rr := do(t, h, http.MethodGet, "/camera?frame=-1", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("negative frame = %d, want 400", rr.Code)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc123")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get(RequestIDHeader); got != "abc123" {
		t.Fatalf("request id = %q, want abc123", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, WithAllowedOrigins("http://localhost:3000"))
	req := httptest.NewRequest(http.MethodOptions, "/route", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestMetricsWiring(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	anim := core.NewPathAnimator(core.NewMercatorProjector(demoRoute[0]), core.WithMetricsRecorder(collector))
	srv := NewServer(anim, WithMetrics(collector))
	h := srv.Handler()

	do(t, h, http.MethodPut, "/route", `{"waypoints":[{"lat":43.6629,"lng":-79.3931},{"lat":43.6640,"lng":-79.3905}]}`)
	do(t, h, http.MethodGet, "/frame?t=1", "")

	if got := testutil.ToFloat64(collector.RoutesSet); got != 1 {
		t.Fatalf("routes set = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("get_frame", "get", "200")); got != 1 {
		t.Fatalf("get_frame requests = %v, want 1", got)
	}

	rr := do(t, h, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "animator_track_samples 20") {
		t.Fatalf("/metrics missing track gauge: %s", rr.Body.String())
	}
}

func TestStartRefreshStops(t *testing.T) {
	srv, _ := newTestServer(t)
	stop := srv.StartRefresh(context.Background(), 0)
	stop()

	stop = srv.StartRefresh(context.Background(), time.Hour)
	stop()
}
