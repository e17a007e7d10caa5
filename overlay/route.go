package overlay

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/map-overlay/core"
	"github.com/signalsfoundry/map-overlay/internal/logging"
)

// RouteOverlay animates one model along the current route and keeps the
// route's track mesh in the scene.
type RouteOverlay struct {
	id       string
	animator *core.PathAnimator
	log      logging.Logger

	mu    sync.Mutex
	scene Scene
	shown *core.TrackMesh
}

// NewRouteOverlay wraps animator; id names the moving object in the scene.
func NewRouteOverlay(id string, animator *core.PathAnimator, log logging.Logger) *RouteOverlay {
	return &RouteOverlay{
		id:       id,
		animator: animator,
		log:      logging.OrNoop(log).With(logging.String("overlay", id)),
	}
}

// ID returns the scene object id.
func (o *RouteOverlay) ID() string { return o.id }

// Animator exposes the underlying animator.
func (o *RouteOverlay) Animator() *core.PathAnimator { return o.animator }

// OnAttach implements Overlay. A route set before attaching is shown
// immediately.
func (o *RouteOverlay) OnAttach(ctx context.Context, scene Scene) error {
	if scene == nil {
		return fmt.Errorf("attach %s: nil scene", o.id)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.scene != nil {
		return fmt.Errorf("attach %s: %w", o.id, ErrAlreadyAttached)
	}
	o.scene = scene
	o.syncTrackLocked()
	o.log.Debug(ctx, "route overlay attached")
	return nil
}

// SetRoute hands route to the animator and, when attached, swaps the track
// shown in the scene. On error the previous route and track stay.
func (o *RouteOverlay) SetRoute(ctx context.Context, route []core.LatLng) (*core.TrackMesh, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	track, err := o.animator.SetRoute(route)
	if err != nil {
		return nil, err
	}
	o.syncTrackLocked()
	o.log.Info(ctx, "route updated",
		logging.Int("waypoints", len(route)),
		logging.Int("samples", track.SampleCount()),
	)
	return track, nil
}

// ClearRoute disposes the animator's route and removes its track.
func (o *RouteOverlay) ClearRoute(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.animator.Dispose()
	o.syncTrackLocked()
	o.log.Info(ctx, "route cleared")
}

// syncTrackLocked makes the scene show exactly the animator's current track.
func (o *RouteOverlay) syncTrackLocked() {
	if o.scene == nil {
		return
	}
	current := o.animator.Track()
	if current == o.shown {
		return
	}
	if o.shown != nil {
		o.scene.RemoveTrack(o.shown)
	}
	if current != nil {
		o.scene.AddTrack(current)
	}
	o.shown = current
	o.scene.RequestRedraw()
}

// OnFrame implements Overlay.
func (o *RouteOverlay) OnFrame(ctx context.Context, frame Frame) error {
	o.mu.Lock()
	scene := o.scene
	o.mu.Unlock()
	if scene == nil {
		return fmt.Errorf("frame %s: %w", o.id, ErrNotAttached)
	}

	t, ok := o.animator.Tick(frame.NowMillis)
	if !ok {
		return nil
	}
	scene.SetObjectTransform(o.id, t)
	scene.RequestRedraw()
	return nil
}

// OnDetach implements Overlay: the track leaves the scene and the animator
// is disposed.
func (o *RouteOverlay) OnDetach(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.scene == nil {
		return fmt.Errorf("detach %s: %w", o.id, ErrNotAttached)
	}
	if o.shown != nil {
		o.scene.RemoveTrack(o.shown)
		o.shown = nil
	}
	o.animator.Dispose()
	o.scene = nil
	o.log.Debug(ctx, "route overlay detached")
	return nil
}
