// Route geometry for mock trips and map framing
package geo

import "math"

const (
	// DefaultRouteSteps is the number of intervals in a generated route (16 points).
	DefaultRouteSteps = 15
	// ArcAmplitude is the peak lateral latitude offset in degrees applied mid-route.
	ArcAmplitude = 0.002
	// MinBoundsSpan is the smallest lat/lng span a bounds rectangle may have.
	MinBoundsSpan = 0.005
	// KMPerDegree approximates one degree of arc at city scale.
	KMPerDegree = 111.0
)

// Coord is a latitude/longitude pair in degrees.
type Coord struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Place is a named coordinate used for trip endpoints.
type Place struct {
	Coord `yaml:",inline"`
	Name  string `json:"name" yaml:"name"`
}

// Point is a route vertex in GeoJSON order: [lng, lat].
type Point [2]float64

// Lng returns the longitude of the point.
func (p Point) Lng() float64 { return p[0] }

// Lat returns the latitude of the point.
func (p Point) Lat() float64 { return p[1] }

// Coord converts the point back to a Coord.
func (p Point) Coord() Coord { return Coord{Lat: p[1], Lng: p[0]} }

// InterpolateRoute returns steps+1 points from origin to dest with a sinusoidal
// bulge on latitude. steps <= 0 selects DefaultRouteSteps.
func InterpolateRoute(origin, dest Coord, steps int) []Point {
	if steps <= 0 {
		steps = DefaultRouteSteps
	}
	route := make([]Point, 0, steps+1)
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		arc := math.Sin(t*math.Pi) * ArcAmplitude
		lat := origin.Lat + (dest.Lat-origin.Lat)*t + arc
		lng := origin.Lng + (dest.Lng-origin.Lng)*t
		route = append(route, Point{lng, lat})
	}
	return route
}

// Bounds is a rectangle given by its south-west and north-east corners.
type Bounds struct {
	SW Coord `json:"sw"`
	NE Coord `json:"ne"`
}

// Center returns the midpoint of the rectangle.
func (b Bounds) Center() Coord {
	return Coord{Lat: (b.SW.Lat + b.NE.Lat) / 2, Lng: (b.SW.Lng + b.NE.Lng) / 2}
}

// ComputeBounds covers every coordinate, padding each span up to MinBoundsSpan
// around the midpoint. ok is false for empty input.
func ComputeBounds(coords []Coord) (b Bounds, ok bool) {
	if len(coords) == 0 {
		return Bounds{}, false
	}
	minLat, minLng := math.Inf(1), math.Inf(1)
	maxLat, maxLng := math.Inf(-1), math.Inf(-1)
	for _, c := range coords {
		minLat = math.Min(minLat, c.Lat)
		minLng = math.Min(minLng, c.Lng)
		maxLat = math.Max(maxLat, c.Lat)
		maxLng = math.Max(maxLng, c.Lng)
	}
	latSpan := math.Max(maxLat-minLat, MinBoundsSpan)
	lngSpan := math.Max(maxLng-minLng, MinBoundsSpan)
	mid := Coord{Lat: (minLat + maxLat) / 2, Lng: (minLng + maxLng) / 2}
	return Bounds{
		SW: Coord{Lat: mid.Lat - latSpan/2, Lng: mid.Lng - lngSpan/2},
		NE: Coord{Lat: mid.Lat + latSpan/2, Lng: mid.Lng + lngSpan/2},
	}, true
}

// InterpolatePosition maps progress in [0,1] onto the route.
func InterpolatePosition(route []Point, progress float64) Coord {
	if len(route) == 0 {
		return Coord{}
	}
	if progress <= 0 {
		return route[0].Coord()
	}
	if progress >= 1 {
		return route[len(route)-1].Coord()
	}
	idx := progress * float64(len(route)-1)
	i := int(math.Floor(idx))
	frac := idx - float64(i)
	a := route[i]
	b := route[min(i+1, len(route)-1)]
	return Coord{
		Lat: a.Lat() + (b.Lat()-a.Lat())*frac,
		Lng: a.Lng() + (b.Lng()-a.Lng())*frac,
	}
}

// Bearing returns the heading in degrees (0 = north, clockwise, in [0,360))
// from the interpolated position to the next route vertex. Degenerate routes
// and zero-length deltas yield 0.
func Bearing(route []Point, progress float64) float64 {
	if len(route) < 2 {
		return 0
	}
	pos := InterpolatePosition(route, progress)
	p := math.Max(0, math.Min(1, progress))
	next := route[min(int(math.Floor(p*float64(len(route)-1)))+1, len(route)-1)]
	dLng := next.Lng() - pos.Lng
	dLat := next.Lat() - pos.Lat
	if math.Abs(dLng) < 1e-9 && math.Abs(dLat) < 1e-9 {
		return 0
	}
	deg := math.Atan2(dLng, dLat) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

// FlatDistanceKM is the straight-line distance using a flat-earth approximation.
func FlatDistanceKM(a, b Coord) float64 {
	dLat := b.Lat - a.Lat
	dLng := b.Lng - a.Lng
	return math.Sqrt(dLat*dLat+dLng*dLng) * KMPerDegree
}
