package core

import "fmt"

// CameraParam names one steerable camera parameter.
type CameraParam int

const (
	CameraTilt CameraParam = iota
	CameraZoom
	CameraHeading
)

func (p CameraParam) String() string {
	switch p {
	case CameraTilt:
		return "tilt"
	case CameraZoom:
		return "zoom"
	case CameraHeading:
		return "heading"
	default:
		return fmt.Sprintf("CameraParam(%d)", int(p))
	}
}

// CameraState is the map camera as the host understands it: tilt and
// heading in degrees, zoom as a map zoom level.
type CameraState struct {
	Tilt    float64 `json:"tilt"`
	Zoom    float64 `json:"zoom"`
	Heading float64 `json:"heading"`
}

func (s CameraState) get(p CameraParam) float64 {
	switch p {
	case CameraTilt:
		return s.Tilt
	case CameraZoom:
		return s.Zoom
	default:
		return s.Heading
	}
}

func (s CameraState) with(p CameraParam, v float64) CameraState {
	switch p {
	case CameraTilt:
		s.Tilt = v
	case CameraZoom:
		s.Zoom = v
	default:
		s.Heading = v
	}
	return s
}

// CameraStep moves Param towards Limit by Delta per frame.
type CameraStep struct {
	Param CameraParam `json:"param"`
	Limit float64     `json:"limit"`
	Delta float64     `json:"delta"`
}

func (st CameraStep) pending(s CameraState) bool {
	v := s.get(st.Param)
	switch {
	case st.Delta > 0:
		return v < st.Limit
	case st.Delta < 0:
		return v > st.Limit
	default:
		return false
	}
}

func (st CameraStep) apply(s CameraState) CameraState {
	v := s.get(st.Param) + st.Delta
	if (st.Delta > 0 && v > st.Limit) || (st.Delta < 0 && v < st.Limit) {
		v = st.Limit
	}
	return s.with(st.Param, v)
}

// StepMode selects how a CameraSequence advances.
type StepMode int

const (
	// Sequential advances only the first pending step each frame, so
	// parameters converge one after another.
	Sequential StepMode = iota
	// Simultaneous advances every pending step each frame.
	Simultaneous
)

// CameraSequence is an ordered list of camera steps.
type CameraSequence struct {
	Steps []CameraStep `json:"steps"`
	Mode  StepMode     `json:"mode"`
}

// DefaultFlyIn is the intro fly-in: tilt to 60°, then zoom to 19, then
// heading to 75°, starting from tilt 25, zoom 17, heading 25.
func DefaultFlyIn() (CameraSequence, CameraState) {
	seq := CameraSequence{
		Steps: []CameraStep{
			{Param: CameraTilt, Limit: 60, Delta: 1},
			{Param: CameraZoom, Limit: 19, Delta: 0.05},
			{Param: CameraHeading, Limit: 75, Delta: 0.5},
		},
		Mode: Sequential,
	}
	return seq, CameraState{Tilt: 25, Zoom: 17, Heading: 25}
}

// Done reports whether no step can advance s.
func (q CameraSequence) Done(s CameraState) bool {
	for _, st := range q.Steps {
		if st.pending(s) {
			return false
		}
	}
	return true
}

// Step returns the state for the next frame. The bool is true when s has
// already converged, in which case s is returned unchanged.
func (q CameraSequence) Step(s CameraState) (CameraState, bool) {
	advanced := false
	next := s
	for _, st := range q.Steps {
		if !st.pending(next) {
			continue
		}
		next = st.apply(next)
		advanced = true
		if q.Mode == Sequential {
			break
		}
	}
	return next, !advanced
}

// Advance applies up to n steps and returns the resulting state and the
// number of steps that actually moved the camera.
func (q CameraSequence) Advance(s CameraState, n int) (CameraState, int) {
	moved := 0
	for moved < n {
		next, done := q.Step(s)
		if done {
			break
		}
		s = next
		moved++
	}
	return s, moved
}
