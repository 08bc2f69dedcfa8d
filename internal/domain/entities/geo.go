package entities

import "math"

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between two points using the haversine formula
func DistanceKm(a, b GeoPoint) float64 {
	p := math.Pi / 180
	h := 0.5 - math.Cos((b.Latitude-a.Latitude)*p)/2 +
		math.Cos(a.Latitude*p)*math.Cos(b.Latitude*p)*(1-math.Cos((b.Longitude-a.Longitude)*p))/2
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// BoundingBox is an axis-aligned lat/lon box. MinLon > MaxLon means the box
// crosses the antimeridian.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// BoundingBoxAround returns the box enclosing the circle of radiusKm around center.
// Longitude bounds wrap across the antimeridian.
func BoundingBoxAround(center GeoPoint, radiusKm float64) BoundingBox {
	angular := radiusKm / earthRadiusKm
	latDelta := angular * 180 / math.Pi

	box := BoundingBox{
		MinLat: math.Max(-90, center.Latitude-latDelta),
		MaxLat: math.Min(90, center.Latitude+latDelta),
		MinLon: -180,
		MaxLon: 180,
	}

	// a circle reaching a pole spans every longitude
	cosLat := math.Cos(center.Latitude * math.Pi / 180)
	if sinR := math.Sin(angular); angular < math.Pi/2 && cosLat > sinR {
		lonDelta := math.Asin(sinR/cosLat) * 180 / math.Pi
		box.MinLon = wrapLongitude(center.Longitude - lonDelta)
		box.MaxLon = wrapLongitude(center.Longitude + lonDelta)
	}
	return box
}

// Wraps reports whether the box crosses the antimeridian
func (b BoundingBox) Wraps() bool {
	return b.MinLon > b.MaxLon
}

// Contains reports whether the point lies in the box
func (b BoundingBox) Contains(p GeoPoint) bool {
	if p.Latitude < b.MinLat || p.Latitude > b.MaxLat {
		return false
	}
	if b.Wraps() {
		return p.Longitude >= b.MinLon || p.Longitude <= b.MaxLon
	}
	return p.Longitude >= b.MinLon && p.Longitude <= b.MaxLon
}

// Split returns boxes that do not cross the antimeridian and together cover b
func (b BoundingBox) Split() []BoundingBox {
	if !b.Wraps() {
		return []BoundingBox{b}
	}
	east, west := b, b
	east.MaxLon = 180
	west.MinLon = -180
	return []BoundingBox{east, west}
}

func wrapLongitude(lon float64) float64 {
	switch {
	case lon > 180:
		return lon - 360
	case lon < -180:
		return lon + 360
	}
	return lon
}
