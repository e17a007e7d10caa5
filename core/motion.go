package core

import (
	"fmt"
	"math"
	"sync"
)

// MotionModel yields an object's pose for a clock reading.
type MotionModel interface {
	TransformAt(nowMillis int64) (Transform, bool)
}

// StaticMotionModel always returns the same pose.
type StaticMotionModel struct {
	Pose Transform
}

// TransformAt implements MotionModel.
func (m *StaticMotionModel) TransformAt(int64) (Transform, bool) {
	return m.Pose, true
}

// NewPinnedModel places a model at p with a rotation of tiltX radians about
// its X axis, e.g. the intro scooter stood upright below the camera.
func NewPinnedModel(p Vec3, tiltX float64) *StaticMotionModel {
	return &StaticMotionModel{Pose: Transform{
		Position:    p,
		Orientation: QuatFromAxisAngle(Vec3{X: 1}, tiltX),
	}}
}

// UprightTilt is the X rotation that stands a Y-up asset on the map plane.
const UprightTilt = math.Pi / 2

// TransformUpdater receives per-object poses, typically the host scene.
type TransformUpdater interface {
	SetObjectTransform(id string, t Transform)
}

// MotionSet drives several named motion models and pushes their poses to an
// updater on every frame.
type MotionSet struct {
	mu      sync.RWMutex
	models  map[string]MotionModel
	order   []string
	updater TransformUpdater
}

// NewMotionSet returns an empty set publishing to updater.
func NewMotionSet(updater TransformUpdater) *MotionSet {
	return &MotionSet{
		models:  make(map[string]MotionModel),
		updater: updater,
	}
}

// Add registers m under id.
func (s *MotionSet) Add(id string, m MotionModel) error {
	if id == "" {
		return fmt.Errorf("motion model id is required")
	}
	if m == nil {
		return fmt.Errorf("motion model %q is nil", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[id]; ok {
		return fmt.Errorf("motion model %q already registered", id)
	}
	s.models[id] = m
	s.order = append(s.order, id)
	return nil
}

// Remove unregisters id.
func (s *MotionSet) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[id]; !ok {
		return fmt.Errorf("motion model %q not found", id)
	}
	delete(s.models, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// IDs returns the registered ids in insertion order.
func (s *MotionSet) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// UpdateTransforms evaluates every model at nowMillis and publishes the
// poses that are available. It returns how many poses were published.
func (s *MotionSet) UpdateTransforms(nowMillis int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	updated := 0
	for _, id := range s.order {
		t, ok := s.models[id].TransformAt(nowMillis)
		if !ok {
			continue
		}
		if s.updater != nil {
			s.updater.SetObjectTransform(id, t)
		}
		updated++
	}
	return updated
}
