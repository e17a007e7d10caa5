package overlay

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/map-overlay/core"
)

// ModelOverlay poses a set of named models every frame, e.g. a scooter
// pinned below the map centre.
type ModelOverlay struct {
	set *core.MotionSet

	mu    sync.Mutex
	scene Scene
}

// NewModelOverlay returns an overlay with no models.
func NewModelOverlay() *ModelOverlay {
	o := &ModelOverlay{}
	o.set = core.NewMotionSet(o)
	return o
}

// Add registers a model under id.
func (o *ModelOverlay) Add(id string, m core.MotionModel) error {
	return o.set.Add(id, m)
}

// Remove unregisters id.
func (o *ModelOverlay) Remove(id string) error {
	return o.set.Remove(id)
}

// SetObjectTransform forwards poses from the motion set to the scene.
func (o *ModelOverlay) SetObjectTransform(id string, t core.Transform) {
	if o.scene != nil {
		o.scene.SetObjectTransform(id, t)
	}
}

// OnAttach implements Overlay.
func (o *ModelOverlay) OnAttach(_ context.Context, scene Scene) error {
	if scene == nil {
		return fmt.Errorf("attach models: nil scene")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.scene != nil {
		return fmt.Errorf("attach models: %w", ErrAlreadyAttached)
	}
	o.scene = scene
	return nil
}

// OnFrame implements Overlay.
func (o *ModelOverlay) OnFrame(_ context.Context, frame Frame) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.scene == nil {
		return fmt.Errorf("models frame: %w", ErrNotAttached)
	}
	if o.set.UpdateTransforms(frame.NowMillis) > 0 {
		o.scene.RequestRedraw()
	}
	return nil
}

// OnDetach implements Overlay.
func (o *ModelOverlay) OnDetach(context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.scene == nil {
		return fmt.Errorf("detach models: %w", ErrNotAttached)
	}
	o.scene = nil
	return nil
}
