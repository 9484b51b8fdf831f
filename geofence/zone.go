// Package geofence decides containment of tracked points within an
// operational zone. Zones are rectangles in degree space rather than true
// circles; at event scale the difference is irrelevant and the comparison
// is cheap enough to run on every inbound location signal.
package geofence

import "math"

// Point is a position in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Zone is a rectangular region defined by a center and independent
// latitude/longitude half-widths.
type Zone struct {
	Name    string
	Center  Point
	HalfLat float64
	HalfLng float64
}

// Contains reports whether p lies within the zone. Bounds are inclusive:
// a point exactly on the edge is inside.
func (z Zone) Contains(p Point) bool {
	return math.Abs(p.Lat-z.Center.Lat) <= z.HalfLat &&
		math.Abs(p.Lng-z.Center.Lng) <= z.HalfLng
}
