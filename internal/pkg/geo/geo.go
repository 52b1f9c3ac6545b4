package geo

import (
	"errors"
	"math"
)

const earthRadiusKm = 6371.0

// ErrEmptyPath is returned when an operation requires at least one path vertex.
var ErrEmptyPath = errors.New("geo: path is empty")

// Point is a geographic coordinate (WGS 84).
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point is a usable coordinate. NaN, out-of-range
// values and the (0,0) "no fix" sentinel are all rejected.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return false
	}
	return !p.IsZero()
}

// IsZero reports whether the point is the (0,0) sentinel.
func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	// Rounding can push a marginally past 1 for antipodal points.
	if a > 1 {
		a = 1
	}
	if a < 0 {
		a = 0
	}

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// Distance is Haversine over two Points.
func Distance(a, b Point) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// PathLength sums consecutive great-circle distances along a path, in meters.
// Paths with fewer than two vertices have zero length.
func PathLength(path []Point) float64 {
	if len(path) < 2 {
		return 0
	}
	var total float64
	for i := 1; i < len(path); i++ {
		total += Distance(path[i-1], path[i])
	}
	return total
}

// NearestIndex returns the index of the path vertex closest to p and its
// distance in meters. Ties go to the lowest index.
func NearestIndex(p Point, path []Point) (int, float64, error) {
	if len(path) == 0 {
		return 0, 0, ErrEmptyPath
	}
	best := 0
	bestDist := Distance(p, path[0])
	for i := 1; i < len(path); i++ {
		if d := Distance(p, path[i]); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best, bestDist, nil
}

// ClosestOnSegment projects p onto the segment a-b using a local planar
// approximation (longitude scaled by cos of the mean latitude). It returns the
// projected point, the fraction t in [0,1] along the segment, and the distance
// from p to the projection in meters. Accurate enough for the segment lengths
// seen in road polylines.
func ClosestOnSegment(p, a, b Point) (Point, float64, float64) {
	scale := math.Cos(toRad((a.Lat + b.Lat) / 2))

	vx := (b.Lon - a.Lon) * scale
	vy := b.Lat - a.Lat
	wx := (p.Lon - a.Lon) * scale
	wy := p.Lat - a.Lat

	denom := vx*vx + vy*vy
	t := 0.0
	if denom > 0 {
		t = (wx*vx + wy*vy) / denom
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}

	proj := Point{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lon: a.Lon + t*(b.Lon-a.Lon),
	}
	return proj, t, Distance(p, proj)
}

// BoundingBox returns a bounding box around a point with the given radius in meters.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := radiusMeters / 111320.0
	lonDelta := radiusMeters / (111320.0 * math.Cos(toRad(lat)))

	return lat - latDelta, lon - lonDelta, lat + latDelta, lon + lonDelta
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
