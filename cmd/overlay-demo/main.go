package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/kr/pretty"
	"github.com/peterbourgon/ff"
	"github.com/signalsfoundry/map-overlay/core"
	"github.com/signalsfoundry/map-overlay/internal/logging"
	"github.com/signalsfoundry/map-overlay/internal/observability"
	"github.com/signalsfoundry/map-overlay/overlay"
	"github.com/signalsfoundry/map-overlay/routing"
	"github.com/signalsfoundry/map-overlay/timectrl"
)

// mapCenter is the intro page's map centre on the University of Toronto
// campus; the scooter model sits 100 m below it.
var mapCenter = core.LatLng{Lat: 43.66293, Lng: -79.39314}

// demoRoute is a short drive around Queen's Park.
var demoRoute = []core.LatLng{
	{Lat: 43.66293, Lng: -79.39314},
	{Lat: 43.66431, Lng: -79.39234},
	{Lat: 43.66602, Lng: -79.39361},
	{Lat: 43.66549, Lng: -79.39581},
	{Lat: 43.66350, Lng: -79.39532},
}

type config struct {
	Duration    time.Duration
	Tick        time.Duration
	Accelerated bool
	Period      time.Duration
	Origin      string
	Destination string
	EnvFile     string
	LogEvery    int
	Dump        bool
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

func parseConfig(args []string) (config, error) {
	fs := flag.NewFlagSet("overlay-demo", flag.ContinueOnError)
	var cfg config
	fs.DurationVar(&cfg.Duration, "duration", 20*time.Second, "total frame time to render")
	fs.DurationVar(&cfg.Tick, "tick", 100*time.Millisecond, "frame interval")
	fs.BoolVar(&cfg.Accelerated, "accelerated", true, "render frames back to back instead of in real time")
	fs.DurationVar(&cfg.Period, "period", core.DefaultPeriod, "time for one loop along the route")
	fs.StringVar(&cfg.Origin, "origin", "", "trip origin address (requires a Maps API key)")
	fs.StringVar(&cfg.Destination, "destination", "", "trip destination address")
	fs.StringVar(&cfg.EnvFile, "env-file", ".env", "dotenv file holding GOOGLE_MAPS_API_KEY")
	fs.IntVar(&cfg.LogEvery, "log-every", 10, "log the car pose every n frames (0 disables)")
	fs.BoolVar(&cfg.Dump, "dump", false, "pretty-print the route and final scene")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", "text", "log format: text or json")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while rendering (empty disables)")
	if err := ff.Parse(fs, args, ff.WithEnvVarNoPrefix()); err != nil {
		return config{}, err
	}
	if (cfg.Origin == "") != (cfg.Destination == "") {
		return config{}, errors.New("-origin and -destination must be given together")
	}
	return cfg, nil
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

	collector, err := observability.NewCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to create metrics collector", logging.Err(err))
		os.Exit(1)
	}
	if metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log); metricsSrv != nil {
		defer func() { _ = metricsSrv.Close() }()
	}

	src := routing.Source(routing.StaticSource(demoRoute))
	if cfg.Origin != "" {
		key, err := routing.LoadAPIKey(cfg.EnvFile)
		if err != nil {
			log.Error(ctx, "cannot fetch directions", logging.Err(err))
			os.Exit(1)
		}
		src, err = routing.NewGoogleSource(key,
			routing.WithLogger(log),
			routing.WithMetricsRecorder(collector),
		)
		if err != nil {
			log.Error(ctx, "cannot fetch directions", logging.Err(err))
			os.Exit(1)
		}
	}

	if err := run(ctx, cfg, src, collector, log, os.Stdout); err != nil {
		log.Error(ctx, "demo failed", logging.Err(err))
		os.Exit(1)
	}
}

func serveMetrics(addr string, collector *observability.Collector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()
	log.Info(context.Background(), "metrics listening", logging.String("addr", addr))
	return srv
}

// run renders the intro scene: the camera fly-in, a scooter pinned below the
// map centre and a car looping along the fetched route.
func run(ctx context.Context, cfg config, src routing.Source, collector *observability.Collector, log logging.Logger, out io.Writer) error {
	log = logging.OrNoop(log)

	route, err := src.Route(ctx, cfg.Origin, cfg.Destination)
	if err != nil {
		return fmt.Errorf("fetch route: %w", err)
	}

	anchor := mapCenter
	if cfg.Origin != "" {
		anchor = route[0]
	}
	animator := core.NewPathAnimator(core.NewMercatorProjector(anchor),
		core.WithPeriod(cfg.Period),
		core.WithLogger(log),
		core.WithMetricsRecorder(collector),
	)

	scene := overlay.NewRecordingScene()
	host := overlay.NewHost(scene, log, overlay.WithFrameMetrics(collector))

	seq, initial := core.DefaultFlyIn()
	camera := overlay.NewCameraOverlay(seq, initial, log)
	models := overlay.NewModelOverlay()
	if err := models.Add("scooter", core.NewPinnedModel(core.Vec3{Z: -100}, core.UprightTilt)); err != nil {
		return err
	}
	car := overlay.NewRouteOverlay("car", animator, log)

	for _, o := range []overlay.Overlay{camera, models, car} {
		if err := host.Attach(ctx, o); err != nil {
			return err
		}
	}
	track, err := car.SetRoute(ctx, route)
	if err != nil {
		return err
	}
	log.Info(ctx, "route loaded",
		logging.Int("waypoints", len(route)),
		logging.Int("samples", track.SampleCount()),
		logging.Float64("length_m", track.Length),
	)

	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	loop := timectrl.NewFrameLoop(cfg.Tick, mode, nil)
	if cfg.LogEvery > 0 {
		loop.AddListener(func(now int64) {
			if (loop.Frames()-1)%int64(cfg.LogEvery) != 0 {
				return
			}
			xf, ok := animator.Tick(now)
			if !ok {
				return
			}
			fmt.Fprintf(out, "[%6dms] car phase=%.3f pos=(%.1f, %.1f, %.1f)\n",
				now, xf.Phase, xf.Position.X, xf.Position.Y, xf.Position.Z)
		})
	}

	if cfg.Dump {
		pretty.Fprintf(out, "route: %# v\n", route)
		pretty.Fprintf(out, "track: %# v\n", animator.Track())
	}

	if err := host.Run(ctx, loop, cfg.Duration); err != nil {
		return err
	}

	cam, _ := scene.Camera()
	fmt.Fprintf(out, "rendered %d frames; camera tilt=%.1f zoom=%.2f heading=%.1f\n",
		loop.Frames(), cam.Tilt, cam.Zoom, cam.Heading)
	if cfg.Dump {
		scooter, _ := scene.Transform("scooter")
		pretty.Fprintf(out, "scooter: %# v\n", scooter)
	}
	return nil
}
