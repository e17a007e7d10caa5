package overlay

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/map-overlay/core"
	"github.com/signalsfoundry/map-overlay/internal/logging"
)

// CameraOverlay plays a camera step sequence, one step per frame. Each frame
// first moves the camera to the current state and then advances it, so the
// final state is shown once before the overlay reports Done.
type CameraOverlay struct {
	seq core.CameraSequence
	log logging.Logger

	mu    sync.Mutex
	scene Scene
	state core.CameraState
	done  bool
}

// NewCameraOverlay starts seq from initial.
func NewCameraOverlay(seq core.CameraSequence, initial core.CameraState, log logging.Logger) *CameraOverlay {
	return &CameraOverlay{
		seq:   seq,
		state: initial,
		log:   logging.OrNoop(log).With(logging.String("overlay", "camera")),
	}
}

// State returns the camera state the next frame will show.
func (o *CameraOverlay) State() core.CameraState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Done reports whether the sequence has converged.
func (o *CameraOverlay) Done() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// OnAttach implements Overlay.
func (o *CameraOverlay) OnAttach(ctx context.Context, scene Scene) error {
	if scene == nil {
		return fmt.Errorf("attach camera: nil scene")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.scene != nil {
		return fmt.Errorf("attach camera: %w", ErrAlreadyAttached)
	}
	o.scene = scene
	return nil
}

// OnFrame implements Overlay. Frames after convergence are no-ops.
func (o *CameraOverlay) OnFrame(ctx context.Context, _ Frame) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.scene == nil {
		return fmt.Errorf("camera frame: %w", ErrNotAttached)
	}
	if o.done {
		return nil
	}

	o.scene.MoveCamera(o.state)
	next, done := o.seq.Step(o.state)
	if done {
		o.done = true
		o.log.Info(ctx, "camera sequence finished",
			logging.Float64("tilt", o.state.Tilt),
			logging.Float64("zoom", o.state.Zoom),
			logging.Float64("heading", o.state.Heading),
		)
		return nil
	}
	o.state = next
	return nil
}

// OnDetach implements Overlay.
func (o *CameraOverlay) OnDetach(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.scene == nil {
		return fmt.Errorf("detach camera: %w", ErrNotAttached)
	}
	o.scene = nil
	return nil
}
