package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/peterbourgon/ff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/map-overlay/core"
	"github.com/signalsfoundry/map-overlay/internal/httpapi"
	"github.com/signalsfoundry/map-overlay/internal/logging"
	"github.com/signalsfoundry/map-overlay/internal/observability"
	"github.com/signalsfoundry/map-overlay/routing"
)

// Config holds the server's flag and environment settings.
type Config struct {
	ListenAddress      string
	AnchorLat          float64
	AnchorLng          float64
	AnchorAltitude     float64
	Period             time.Duration
	SamplesPerWaypoint int
	RefreshInterval    time.Duration
	EnvFile            string
	GoogleMaps         bool
	AllowedOrigins     []string
	AccessLog          bool
	LogLevel           string
	LogFormat          string

	// Registerer receives the Prometheus collectors; nil uses the global
	// registry.
	Registerer prometheus.Registerer
	// AccessLogOutput receives Apache-style access lines. Defaults to stderr.
	AccessLogOutput io.Writer
}

func parseConfig(args []string) (Config, error) {
	fs := flag.NewFlagSet("overlay-server", flag.ContinueOnError)
	var (
		addr      = fs.String("addr", ":8080", "HTTP listen address")
		anchorLat = fs.Float64("anchor-lat", 43.66293, "scene anchor latitude")
		anchorLng = fs.Float64("anchor-lng", -79.39314, "scene anchor longitude")
		anchorAlt = fs.Float64("anchor-altitude", 0, "scene anchor altitude in metres")
		period    = fs.Duration("period", core.DefaultPeriod, "time for one loop along the route")
		samples   = fs.Int("samples-per-waypoint", core.DefaultSamplesPerWaypoint, "track points per route waypoint")
		refresh   = fs.Duration("refresh", 0, "re-fetch origin/destination routes at this interval (0 disables)")
		envFile   = fs.String("env-file", ".env", "dotenv file holding GOOGLE_MAPS_API_KEY")
		google    = fs.Bool("google-maps", true, "resolve origin/destination requests with the Google Maps APIs")
		origins   = fs.String("cors-origins", "*", "comma-separated CORS origins")
		accessLog = fs.Bool("access-log", true, "write Apache-style access logs to stderr")
		logLevel  = fs.String("log-level", "info", "log level: debug, info, warn, error")
		logFormat = fs.String("log-format", "text", "log format: text or json")
	)
	if err := ff.Parse(fs, args, ff.WithEnvVarNoPrefix()); err != nil {
		return Config{}, err
	}

	return Config{
		ListenAddress:      *addr,
		AnchorLat:          *anchorLat,
		AnchorLng:          *anchorLng,
		AnchorAltitude:     *anchorAlt,
		Period:             *period,
		SamplesPerWaypoint: *samples,
		RefreshInterval:    *refresh,
		EnvFile:            *envFile,
		GoogleMaps:         *google,
		AllowedOrigins:     splitList(*origins),
		AccessLog:          *accessLog,
		LogLevel:           *logLevel,
		LogFormat:          *logFormat,
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Error(ctx, "failed to listen", logging.String("addr", cfg.ListenAddress), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the API on lis until ctx is cancelled.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	log = logging.OrNoop(log)

	collector, err := observability.NewCollector(cfg.Registerer)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	proj := &core.MercatorProjector{Anchor: core.LatLngAltitude{
		Lat:      cfg.AnchorLat,
		Lng:      cfg.AnchorLng,
		Altitude: cfg.AnchorAltitude,
	}}
	animator := core.NewPathAnimator(proj,
		core.WithPeriod(cfg.Period),
		core.WithSamplesPerWaypoint(cfg.SamplesPerWaypoint),
		core.WithLogger(log),
		core.WithMetricsRecorder(collector),
	)

	opts := []httpapi.Option{
		httpapi.WithLogger(log),
		httpapi.WithMetrics(collector),
		httpapi.WithAllowedOrigins(cfg.AllowedOrigins...),
	}
	if src := newSource(ctx, cfg, log, collector); src != nil {
		opts = append(opts, httpapi.WithSource(src))
	}
	api := httpapi.NewServer(animator, opts...)

	handler := api.Handler()
	if cfg.AccessLog {
		out := cfg.AccessLogOutput
		if out == nil {
			out = os.Stderr
		}
		handler = handlers.LoggingHandler(out, handler)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stopRefresh := api.StartRefresh(ctx, cfg.RefreshInterval)
	defer stopRefresh()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()
	log.Info(ctx, "overlay server listening", logging.String("addr", lis.Addr().String()))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	log.Info(ctx, "shutting down overlay server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newSource(ctx context.Context, cfg Config, log logging.Logger, metrics routing.MetricsRecorder) routing.Source {
	if !cfg.GoogleMaps {
		return nil
	}
	key, err := routing.LoadAPIKey(cfg.EnvFile)
	if err != nil {
		log.Warn(ctx, "origin/destination routing disabled", logging.Err(err))
		return nil
	}
	src, err := routing.NewGoogleSource(key,
		routing.WithLogger(log),
		routing.WithMetricsRecorder(metrics),
	)
	if err != nil {
		log.Warn(ctx, "origin/destination routing disabled", logging.Err(err))
		return nil
	}
	return src
}
