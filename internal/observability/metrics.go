package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the Prometheus metrics for the animator, the render
// loop, the routing collaborator and the HTTP surface.
type Collector struct {
	gatherer prometheus.Gatherer

	RoutesSet      prometheus.Counter
	RoutesRejected prometheus.Counter
	RoutesCleared  prometheus.Counter
	RouteWaypoints prometheus.Gauge
	TrackSamples   prometheus.Gauge

	FrameDuration prometheus.Histogram

	RoutingRequests  *prometheus.CounterVec
	RoutingDurations *prometheus.HistogramVec

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewCollector registers metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.RoutesSet, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "animator_routes_set_total",
		Help: "Routes accepted by the path animator.",
	}), "animator_routes_set_total"); err != nil {
		return nil, err
	}
	if c.RoutesRejected, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "animator_routes_rejected_total",
		Help: "Routes rejected by the path animator as invalid.",
	}), "animator_routes_rejected_total"); err != nil {
		return nil, err
	}
	if c.RoutesCleared, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "animator_routes_cleared_total",
		Help: "Routes disposed by the path animator.",
	}), "animator_routes_cleared_total"); err != nil {
		return nil, err
	}
	if c.RouteWaypoints, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "animator_route_waypoints",
		Help: "Waypoints in the current route.",
	}), "animator_route_waypoints"); err != nil {
		return nil, err
	}
	if c.TrackSamples, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "animator_track_samples",
		Help: "Points in the current track mesh.",
	}), "animator_track_samples"); err != nil {
		return nil, err
	}

	if c.FrameDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "overlay_frame_duration_seconds",
		Help:    "Time spent running all overlays for one frame.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.002, 0.004, 0.008, 0.016, 0.033, 0.1},
	}), "overlay_frame_duration_seconds"); err != nil {
		return nil, err
	}

	if c.RoutingRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "routing_requests_total",
		Help: "Geocoding and directions calls, labeled by operation and result.",
	}, []string{"operation", "result"}), "routing_requests_total"); err != nil {
		return nil, err
	}
	if c.RoutingDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "routing_request_duration_seconds",
		Help:    "Latency of geocoding and directions calls in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"operation"}), "routing_request_duration_seconds"); err != nil {
		return nil, err
	}

	if c.HTTPRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Handled HTTP requests, labeled by handler, method and status code.",
	}, []string{"handler", "method", "code"}), "http_requests_total"); err != nil {
		return nil, err
	}
	if c.HTTPDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP handler latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"handler", "method"}), "http_request_duration_seconds"); err != nil {
		return nil, err
	}

	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RouteSet satisfies core.AnimatorMetricsRecorder.
func (c *Collector) RouteSet(waypoints, samples int) {
	if c == nil {
		return
	}
	c.RoutesSet.Inc()
	c.RouteWaypoints.Set(float64(waypoints))
	c.TrackSamples.Set(float64(samples))
}

// RouteRejected satisfies core.AnimatorMetricsRecorder.
func (c *Collector) RouteRejected() {
	if c == nil {
		return
	}
	c.RoutesRejected.Inc()
}

// RouteCleared satisfies core.AnimatorMetricsRecorder.
func (c *Collector) RouteCleared() {
	if c == nil {
		return
	}
	c.RoutesCleared.Inc()
	c.RouteWaypoints.Set(0)
	c.TrackSamples.Set(0)
}

// FrameRendered satisfies overlay.FrameMetricsRecorder.
func (c *Collector) FrameRendered(d time.Duration) {
	if c == nil {
		return
	}
	c.FrameDuration.Observe(d.Seconds())
}

// RoutingCall satisfies routing.MetricsRecorder.
func (c *Collector) RoutingCall(operation string, d time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.RoutingRequests.WithLabelValues(operation, result).Inc()
	c.RoutingDurations.WithLabelValues(operation).Observe(d.Seconds())
}

// Middleware records request counts and durations for next under the
// handler label name.
func (c *Collector) Middleware(name string, next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	labels := prometheus.Labels{"handler": name}
	return promhttp.InstrumentHandlerDuration(
		c.HTTPDurations.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(c.HTTPRequests.MustCurryWith(labels), next),
	)
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
