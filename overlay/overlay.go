// Package overlay drives scene content from the render loop through a fixed
// attach / frame / detach lifecycle, so ordering can be tested without a
// live map host.
package overlay

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/map-overlay/core"
)

var (
	// ErrNotAttached is returned for frame or detach calls on an overlay
	// that is not attached to a scene.
	ErrNotAttached = errors.New("overlay not attached")
	// ErrAlreadyAttached is returned when attaching an attached overlay.
	ErrAlreadyAttached = errors.New("overlay already attached")
)

// Scene is the host's scene graph as seen by overlays. Implementations own
// rendering; overlays only add, remove and pose things.
type Scene interface {
	AddTrack(track *core.TrackMesh)
	RemoveTrack(track *core.TrackMesh)
	SetObjectTransform(id string, t core.Transform)
	MoveCamera(state core.CameraState)
	RequestRedraw()
}

// Frame is the per-frame input handed to overlays.
type Frame struct {
	NowMillis int64
}

// Overlay is one piece of scene content with an explicit lifecycle.
type Overlay interface {
	OnAttach(ctx context.Context, scene Scene) error
	OnFrame(ctx context.Context, frame Frame) error
	OnDetach(ctx context.Context) error
}

// FrameMetricsRecorder receives per-frame timings.
type FrameMetricsRecorder interface {
	FrameRendered(d time.Duration)
}
