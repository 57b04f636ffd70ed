// Package geofence decides whether a coordinate lies inside any allowed
// circular zone.
package geofence

import "math"

// EarthRadiusMeters is the mean Earth radius used by Distance.
const EarthRadiusMeters = 6371000

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// Zone is a circular area around a center.
type Zone struct {
	ID           string
	Name         string
	Center       Point
	RadiusMeters float64
}

// Result describes the outcome of Check.
type Result struct {
	Inside bool
	// Nearest is the zone whose center is closest to the point, nil when no
	// zones were given.
	Nearest  *Zone
	Distance float64
}

// Distance returns the great-circle distance in meters between a and b using
// the haversine formula.
func Distance(a, b Point) float64 {
	φ1 := a.Lat * math.Pi / 180
	φ2 := b.Lat * math.Pi / 180
	Δφ := (b.Lat - a.Lat) * math.Pi / 180
	Δλ := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(Δφ/2)*math.Sin(Δφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	// Rounding can push h marginally outside [0,1] for antipodal points.
	h = math.Min(1, math.Max(0, h))
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// Contains reports whether p is within the zone. The boundary is inside.
func (z Zone) Contains(p Point) bool {
	return Distance(z.Center, p) <= z.RadiusMeters
}

// Check accepts p if any zone contains it. An empty zone list rejects.
func Check(p Point, zones []Zone) Result {
	res := Result{Distance: math.Inf(1)}
	for i := range zones {
		d := Distance(zones[i].Center, p)
		if d < res.Distance {
			res.Distance = d
			res.Nearest = &zones[i]
		}
		if d <= zones[i].RadiusMeters {
			res.Inside = true
		}
	}
	return res
}
