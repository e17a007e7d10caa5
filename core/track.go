package core

// DefaultSamplesPerWaypoint is the track density multiplier: a route of N
// waypoints is drawn with N*DefaultSamplesPerWaypoint points.
const DefaultSamplesPerWaypoint = 10

// TrackMesh is the poly-line drawn under the moving model. It is rebuilt
// from scratch for every route and never appended to.
type TrackMesh struct {
	// Points are evenly spaced by arc length, first and last on the route
	// ends.
	Points []Vec3 `json:"points"`
	// Waypoints is the number of route waypoints the mesh was sampled from.
	Waypoints int `json:"waypoints"`
	// Length is the arc length of the sampled curve in scene units.
	Length float64 `json:"length"`
}

// SampleCount returns the number of points in the mesh.
func (m *TrackMesh) SampleCount() int {
	if m == nil {
		return 0
	}
	return len(m.Points)
}

func newTrackMesh(c *Curve, waypoints, perWaypoint int) *TrackMesh {
	return &TrackMesh{
		Points:    c.SpacedPoints(waypoints * perWaypoint),
		Waypoints: waypoints,
		Length:    c.Length(),
	}
}
