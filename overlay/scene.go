package overlay

import (
	"sync"

	"github.com/signalsfoundry/map-overlay/core"
)

// RecordingScene is an in-memory Scene. It stands in for the map host in
// the demo CLI, the HTTP server and tests.
type RecordingScene struct {
	mu         sync.RWMutex
	tracks     []*core.TrackMesh
	transforms map[string]core.Transform
	camera     core.CameraState
	cameraSet  bool
	redraws    int
	events     []string
}

// NewRecordingScene returns an empty scene.
func NewRecordingScene() *RecordingScene {
	return &RecordingScene{transforms: make(map[string]core.Transform)}
}

// AddTrack implements Scene.
func (s *RecordingScene) AddTrack(track *core.TrackMesh) {
	if track == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, track)
	s.events = append(s.events, "add-track")
}

// RemoveTrack implements Scene.
func (s *RecordingScene) RemoveTrack(track *core.TrackMesh) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tracks {
		if t == track {
			s.tracks = append(s.tracks[:i], s.tracks[i+1:]...)
			s.events = append(s.events, "remove-track")
			return
		}
	}
}

// SetObjectTransform implements Scene.
func (s *RecordingScene) SetObjectTransform(id string, t core.Transform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transforms[id] = t
}

// MoveCamera implements Scene.
func (s *RecordingScene) MoveCamera(state core.CameraState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.camera = state
	s.cameraSet = true
}

// RequestRedraw implements Scene.
func (s *RecordingScene) RequestRedraw() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redraws++
}

// Tracks returns the tracks currently in the scene.
func (s *RecordingScene) Tracks() []*core.TrackMesh {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.TrackMesh, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Transform returns the last pose set for id.
func (s *RecordingScene) Transform(id string) (core.Transform, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transforms[id]
	return t, ok
}

// Camera returns the last camera state, if any was set.
func (s *RecordingScene) Camera() (core.CameraState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.camera, s.cameraSet
}

// Redraws returns how many redraws were requested.
func (s *RecordingScene) Redraws() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.redraws
}

// Events returns the track add/remove history.
func (s *RecordingScene) Events() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}
