package core

import "math"

// maxMercatorLat is the latitude at which Web Mercator is clipped.
const maxMercatorLat = 85.05112878

// Projector maps a geographic coordinate into scene space. Implementations
// must be deterministic for a fixed map state.
type Projector interface {
	Project(p LatLng) Vec3
}

// ProjectorFunc adapts a plain function to Projector.
type ProjectorFunc func(p LatLng) Vec3

// Project calls f(p).
func (f ProjectorFunc) Project(p LatLng) Vec3 { return f(p) }

// MercatorProjector places coordinates on a local Web Mercator plane centred
// on Anchor. Units are metres: X east, Y north, Z up. Distances are scaled by
// cos(anchor latitude) so they are approximately true near the anchor.
type MercatorProjector struct {
	Anchor LatLngAltitude
}

// NewMercatorProjector anchors the scene at lat/lng on the ground.
func NewMercatorProjector(anchor LatLng) *MercatorProjector {
	return &MercatorProjector{Anchor: LatLngAltitude{Lat: anchor.Lat, Lng: anchor.Lng}}
}

// Project implements Projector.
func (m *MercatorProjector) Project(p LatLng) Vec3 {
	ax, ay := mercator(m.Anchor.Lat, m.Anchor.Lng)
	px, py := mercator(p.Lat, p.Lng)
	k := math.Cos(toRadians(clampLat(m.Anchor.Lat)))
	return Vec3{
		X: (px - ax) * k,
		Y: (py - ay) * k,
		Z: -m.Anchor.Altitude,
	}
}

// ECEFProjector projects onto a spherical Earth in Earth-centred,
// Earth-fixed kilometres. Useful when the host scene is globe based.
type ECEFProjector struct {
	// AltitudeKm is added to the Earth radius for every point.
	AltitudeKm float64
}

// Project implements Projector.
func (e ECEFProjector) Project(p LatLng) Vec3 {
	phi := toRadians(p.Lat)
	lambda := toRadians(p.Lng)
	r := EarthRadiusKm + e.AltitudeKm
	return Vec3{
		X: r * math.Cos(phi) * math.Cos(lambda),
		Y: r * math.Cos(phi) * math.Sin(lambda),
		Z: r * math.Sin(phi),
	}
}

func mercator(lat, lng float64) (float64, float64) {
	phi := toRadians(clampLat(lat))
	x := earthRadiusM * toRadians(lng)
	y := earthRadiusM * math.Log(math.Tan(math.Pi/4+phi/2))
	return x, y
}

func clampLat(lat float64) float64 {
	return math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180.0 }
