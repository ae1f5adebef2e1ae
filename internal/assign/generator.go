// Deterministic mock trip assignment keyed by entity id
package assign

import (
	"fmt"
	"math"
	"time"

	"dronetaxi-sim/internal/geo"
)

const (
	DefaultDurationMin = 20 * time.Second
	DefaultDurationMax = 40 * time.Second
	// offerSpread bounds how far an offer pickup may sit from the city center, in degrees.
	offerSpread = 0.02
)

// Trip is the derived origin/destination/route attached to a delivering drone.
type Trip struct {
	Origin      geo.Place   `json:"origin"`
	Destination geo.Place   `json:"destination"`
	Route       []geo.Point `json:"route"`
}

// Offer is a proposed ride for the simulated driver.
type Offer struct {
	Seq        int    `json:"seq"`
	Trip       Trip   `json:"trip"`
	Passengers int    `json:"passengers"`
	ETA        string `json:"eta"`
}

// Generator derives stable trip attributes from ids.
type Generator struct {
	landmarks   map[string][]string
	fallback    string
	steps       int
	durationMin time.Duration
	durationMax time.Duration
}

// Option configures a Generator.
type Option func(*Generator)

// WithLandmarks replaces or extends the landmark catalogue for the given city codes.
func WithLandmarks(byCode map[string][]string) Option {
	return func(g *Generator) {
		for code, names := range byCode {
			if len(names) > 0 {
				g.landmarks[code] = names
			}
		}
	}
}

// WithDurationWindow sets the random trip duration window.
func WithDurationWindow(lo, hi time.Duration) Option {
	return func(g *Generator) {
		if lo > 0 && hi >= lo {
			g.durationMin, g.durationMax = lo, hi
		}
	}
}

// WithRouteSteps sets the number of route intervals.
func WithRouteSteps(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.steps = n
		}
	}
}

// NewGenerator returns a generator seeded with DefaultLandmarks.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		landmarks:   make(map[string][]string, len(DefaultLandmarks)),
		fallback:    FallbackCityCode,
		steps:       geo.DefaultRouteSteps,
		durationMin: DefaultDurationMin,
		durationMax: DefaultDurationMax,
	}
	for code, names := range DefaultLandmarks {
		g.landmarks[code] = names
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Landmarks returns the landmark list for the id's city prefix, falling back
// to the default city for unknown prefixes.
func (g *Generator) Landmarks(id string) []string {
	if names, ok := g.landmarks[CityCode(id)]; ok {
		return names
	}
	return g.landmarks[g.fallback]
}

// names picks two distinct landmark names for a seed.
func (g *Generator) names(id string, seed int) (string, string) {
	locs := g.Landmarks(id)
	if len(locs) == 0 {
		return "Origin", "Destination"
	}
	from, to := pickPair(seed, len(locs))
	return locs[from], locs[to]
}

// destinationOffset is the seeded delta from origin to destination.
func destinationOffset(seed int) (dLat, dLng float64) {
	return 0.008 + float64(seed%5)*0.004, 0.01 + float64(seed%7)*0.003
}

// TripFor builds the mock trip for a delivering drone currently at origin.
func (g *Generator) TripFor(id string, origin geo.Coord) Trip {
	seed := Seed(id)
	fromName, toName := g.names(id, seed)
	dLat, dLng := destinationOffset(seed)
	dest := geo.Coord{Lat: origin.Lat + dLat, Lng: origin.Lng + dLng}
	return Trip{
		Origin:      geo.Place{Coord: origin, Name: fromName},
		Destination: geo.Place{Coord: dest, Name: toName},
		Route:       geo.InterpolateRoute(origin, dest, g.steps),
	}
}

// ExplicitTrip builds a trip between configured endpoints.
func (g *Generator) ExplicitTrip(origin, dest geo.Place) Trip {
	return Trip{
		Origin:      origin,
		Destination: dest,
		Route:       geo.InterpolateRoute(origin.Coord, dest.Coord, g.steps),
	}
}

// Duration returns the seeded trip duration for an id within the window.
func (g *Generator) Duration(id string) time.Duration {
	r := seededRandom(Seed(id))
	span := g.durationMax - g.durationMin
	return g.durationMin + time.Duration(r*float64(span))
}

// Offer generates the seq-th ride offer for a driver around a city center.
// Different seq values re-seed the trip.
func (g *Generator) Offer(driverID string, seq int, center geo.Coord) Offer {
	key := fmt.Sprintf("%s/offer-%d", driverID, seq)
	seed := Seed(key)
	origin := geo.Coord{
		Lat: center.Lat + (seededRandom(seed)*2-1)*offerSpread,
		Lng: center.Lng + (seededRandom(seed+1)*2-1)*offerSpread,
	}
	fromName, toName := g.names(driverID, seed)
	dLat, dLng := destinationOffset(seed)
	dest := geo.Coord{Lat: origin.Lat + dLat, Lng: origin.Lng + dLng}
	mins := max(1, int(math.Round(geo.FlatDistanceKM(origin, dest)*2)))
	return Offer{
		Seq: seq,
		Trip: Trip{
			Origin:      geo.Place{Coord: origin, Name: fromName},
			Destination: geo.Place{Coord: dest, Name: toName},
			Route:       geo.InterpolateRoute(origin, dest, g.steps),
		},
		Passengers: 1 + seed%4,
		ETA:        fmt.Sprintf("%d mins", mins),
	}
}

// RangeKM maps a battery level to a range bracket (5-10, 10-20 or 20-40 km),
// picking a stable value inside the bracket from the seed.
func RangeKM(battery, seed int) int {
	r := seededRandom(seed)
	switch {
	case battery < 25:
		return 5 + int(r*6)
	case battery < 50:
		return 10 + int(r*11)
	default:
		return 20 + int(r*21)
	}
}
