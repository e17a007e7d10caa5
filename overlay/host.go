package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/map-overlay/internal/logging"
	"github.com/signalsfoundry/map-overlay/timectrl"
)

// Host owns the attach order of overlays on one scene and fans frames out
// to them. Overlays are detached in reverse attach order.
type Host struct {
	scene   Scene
	log     logging.Logger
	metrics FrameMetricsRecorder

	mu       sync.Mutex
	overlays []Overlay
}

// HostOption customises a Host.
type HostOption func(*Host)

// WithFrameMetrics records per-frame durations.
func WithFrameMetrics(m FrameMetricsRecorder) HostOption {
	return func(h *Host) { h.metrics = m }
}

// NewHost returns a host rendering into scene.
func NewHost(scene Scene, log logging.Logger, opts ...HostOption) *Host {
	h := &Host{scene: scene, log: logging.OrNoop(log)}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Attach calls o.OnAttach and, on success, adds o to the frame fan-out.
func (h *Host) Attach(ctx context.Context, o Overlay) error {
	if o == nil {
		return fmt.Errorf("attach: nil overlay")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, existing := range h.overlays {
		if existing == o {
			return fmt.Errorf("attach: %w", ErrAlreadyAttached)
		}
	}
	if err := o.OnAttach(ctx, h.scene); err != nil {
		return err
	}
	h.overlays = append(h.overlays, o)
	return nil
}

// Len returns the number of attached overlays.
func (h *Host) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.overlays)
}

// Frame runs one frame on every attached overlay in attach order. An
// overlay error is logged and does not stop the others; the joined errors
// are returned.
func (h *Host) Frame(ctx context.Context, nowMillis int64) error {
	start := time.Now()

	h.mu.Lock()
	overlays := make([]Overlay, len(h.overlays))
	copy(overlays, h.overlays)
	h.mu.Unlock()

	var errs []error
	frame := Frame{NowMillis: nowMillis}
	for _, o := range overlays {
		if err := o.OnFrame(ctx, frame); err != nil {
			h.log.Warn(ctx, "overlay frame failed", logging.Int64("now_ms", nowMillis), logging.Err(err))
			errs = append(errs, err)
		}
	}

	if h.metrics != nil {
		h.metrics.FrameRendered(time.Since(start))
	}
	return errors.Join(errs...)
}

// DetachAll detaches every overlay, most recently attached first.
func (h *Host) DetachAll(ctx context.Context) error {
	h.mu.Lock()
	overlays := h.overlays
	h.overlays = nil
	h.mu.Unlock()

	var errs []error
	for i := len(overlays) - 1; i >= 0; i-- {
		if err := overlays[i].OnDetach(ctx); err != nil {
			h.log.Warn(ctx, "overlay detach failed", logging.Err(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run drives the host from loop until ctx is cancelled or duration of frame
// time has passed, then detaches everything.
func (h *Host) Run(ctx context.Context, loop *timectrl.FrameLoop, duration time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	loop.AddListener(func(now int64) {
		_ = h.Frame(ctx, now)
	})

	h.log.Info(ctx, "render loop starting",
		logging.String("mode", loop.Mode.String()),
		logging.String("tick", loop.Tick.String()),
		logging.String("duration", duration.String()),
	)
	<-loop.Start(ctx, duration)
	h.log.Info(ctx, "render loop stopped", logging.Int64("frames", loop.Frames()))

	return h.DetachAll(context.WithoutCancel(ctx))
}
