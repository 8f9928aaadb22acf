// Package geo provides the pure spherical and local-plane geometry used by
// the bridge pipeline. Nothing here holds state.
package geo

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// EarthRadiusM is the mean Earth radius used for haversine distances.
const EarthRadiusM = 6371000.0

// Point is a WGS84 position in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the great-circle distance between a and b in metres.
func Distance(a, b Point) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusM * c
}

// Bearing returns the initial bearing from a to b in degrees, normalised to [0, 360).
func Bearing(a, b Point) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLon := toRad(b.Lon - a.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return NormalizeDeg(toDeg(math.Atan2(y, x)))
}

// NormalizeDeg maps any angle onto [0, 360).
func NormalizeDeg(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// AngleDiff returns the smallest absolute difference between two headings,
// in [0, 180].
func AngleDiff(a, b float64) float64 {
	d := math.Abs(NormalizeDeg(a) - NormalizeDeg(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// IsHeadingTowards reports whether a vessel at from, steering courseDeg, is
// pointed at target within toleranceDeg.
func IsHeadingTowards(from Point, courseDeg float64, target Point, toleranceDeg float64) bool {
	return AngleDiff(courseDeg, Bearing(from, target)) <= toleranceDeg
}

// LocalPlane is an equirectangular projection centred on an origin. X is
// metres east, Y is metres north. Accurate to well under a metre within the
// few hundred metres the passage checks care about.
type LocalPlane struct {
	origin Point
	cosLat float64
}

// NewLocalPlane returns a tangent plane centred on origin.
func NewLocalPlane(origin Point) LocalPlane {
	return LocalPlane{origin: origin, cosLat: math.Cos(toRad(origin.Lat))}
}

// Project maps p into the plane.
func (lp LocalPlane) Project(p Point) r2.Vec {
	return r2.Vec{
		X: toRad(p.Lon-lp.origin.Lon) * lp.cosLat * EarthRadiusM,
		Y: toRad(p.Lat-lp.origin.Lat) * EarthRadiusM,
	}
}

// AxisUnit returns the unit vector along a compass bearing in plane coordinates.
func AxisUnit(bearingDeg float64) r2.Vec {
	rad := toRad(bearingDeg)
	return r2.Vec{X: math.Sin(rad), Y: math.Cos(rad)}
}

// Crossing describes a track segment crossing a bridge line.
type Crossing struct {
	Crossed   bool
	DistanceM float64 // distance from the bridge to the crossing point
	Forward   bool    // true when the segment moves in the axis direction
	T         float64 // fraction along the segment where the crossing happens
}

// SegmentCrossesAxis reports whether the segment prev -> cur crosses the line
// through bridge perpendicular to the canal axis (axisBearingDeg). A fix
// lying exactly on the line counts as being on the axis-forward side, so a
// track that stops on the line and then continues crosses once.
func SegmentCrossesAxis(prev, cur, bridge Point, axisBearingDeg float64) Crossing {
	lp := NewLocalPlane(bridge)
	axis := AxisUnit(axisBearingDeg)

	p0 := lp.Project(prev)
	p1 := lp.Project(cur)
	d0 := r2.Dot(p0, axis)
	d1 := r2.Dot(p1, axis)

	if (d0 < 0) == (d1 < 0) {
		return Crossing{}
	}

	t := d0 / (d0 - d1)
	at := r2.Add(p0, r2.Scale(t, r2.Sub(p1, p0)))
	return Crossing{
		Crossed:   true,
		DistanceM: r2.Norm(at),
		Forward:   d1 > d0,
		T:         t,
	}
}

// Offset returns the point distanceM from p along bearingDeg. Used by replay
// tooling and tests to lay out tracks.
func Offset(p Point, bearingDeg, distanceM float64) Point {
	lat1 := toRad(p.Lat)
	lon1 := toRad(p.Lon)
	brg := toRad(bearingDeg)
	dr := distanceM / EarthRadiusM

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(dr) + math.Cos(lat1)*math.Sin(dr)*math.Cos(brg))
	lon2 := lon1 + math.Atan2(math.Sin(brg)*math.Sin(dr)*math.Cos(lat1), math.Cos(dr)-math.Sin(lat1)*math.Sin(lat2))
	return Point{Lat: toDeg(lat2), Lon: toDeg(lon2)}
}
