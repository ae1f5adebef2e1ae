// Package fleet holds the drone roster, display helpers and the dashboard
// state container driving the fleet map.
package fleet

import (
	"strings"

	"dronetaxi-sim/internal/assign"
	"dronetaxi-sim/internal/battery"
	"dronetaxi-sim/internal/config"
	"dronetaxi-sim/internal/geo"
)

// Status is a drone's operating status.
type Status string

const (
	StatusStandby    Status = "standby"
	StatusDelivering Status = "delivering"
)

// Category groups drones for the fleet table filters.
type Category string

const (
	CategoryActive Category = "active"
	CategoryReady  Category = "ready"
	CategoryLowBat Category = "lowBat"
)

// Marker colours.
const (
	ColorLowBattery = "#FF9F3D"
	ColorDelivering = "#3DA9FF"
	ColorStandby    = "#10B981"
)

// Drone is a roster entity, possibly enriched with a trip.
type Drone struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Model   string       `json:"model"`
	Status  Status       `json:"status"`
	Battery int          `json:"battery"`
	RangeKM int          `json:"range_km"`
	Load    int          `json:"load"`
	Coord   geo.Coord    `json:"coordinates"`
	ETA     string       `json:"eta,omitempty"`
	Trip    *assign.Trip `json:"trip,omitempty"`

	explicit *config.Trip
}

// Delivering reports whether the drone is on a trip.
func (d Drone) Delivering() bool { return d.Status == StatusDelivering }

// City is a service area with its base roster.
type City struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Code   string    `json:"code"`
	Center geo.Coord `json:"center"`
	Zoom   float64   `json:"zoom"`
	Drones []Drone   `json:"-"`
}

// NewCities builds cities and their base rosters from configuration.
func NewCities(cfg []config.City) []City {
	out := make([]City, 0, len(cfg))
	for _, c := range cfg {
		city := City{ID: c.ID, Name: c.Name, Code: c.Code, Center: c.Center, Zoom: c.Zoom}
		for _, d := range c.Drones {
			id := c.DroneID(d)
			status := Status(d.Status)
			if status != StatusDelivering {
				status = StatusStandby
			}
			drone := Drone{
				ID:      id,
				Name:    d.Name,
				Model:   ModelTag(d.Name),
				Status:  status,
				Battery: battery.Clamp(d.Battery),
				RangeKM: assign.RangeKM(d.Battery, assign.Seed(id)),
				Load:    max(0, d.Load),
				Coord:   geo.Coord{Lat: c.Center.Lat + d.Offset.Lat, Lng: c.Center.Lng + d.Offset.Lng},
				ETA:     d.ETA,
			}
			drone.explicit = d.Trip
			city.Drones = append(city.Drones, drone)
		}
		out = append(out, city)
	}
	return out
}

// ModelTag extracts the model token (e.g. "X2") from a display name.
func ModelTag(name string) string {
	for _, f := range strings.Fields(name) {
		if len(f) >= 2 && (f[0] == 'X' || f[0] == 'x') && f[1] >= '0' && f[1] <= '9' {
			return strings.ToUpper(f)
		}
	}
	return ""
}

// Enrich applies battery overrides and attaches trips to delivering drones.
// The input slice is not modified.
func Enrich(drones []Drone, overrides map[string]int, gen *assign.Generator) []Drone {
	out := make([]Drone, len(drones))
	for i, d := range drones {
		if level, ok := overrides[d.ID]; ok {
			d.Battery = battery.Clamp(level)
			d.RangeKM = assign.RangeKM(d.Battery, assign.Seed(d.ID))
		}
		d.Trip = nil
		if d.Delivering() {
			var trip assign.Trip
			if d.explicit != nil {
				trip = gen.ExplicitTrip(d.explicit.Origin, d.explicit.Destination)
			} else {
				trip = gen.TripFor(d.ID, d.Coord)
			}
			d.Trip = &trip
		}
		out[i] = d
	}
	return out
}

// MarkerColor returns the map marker colour: low battery wins over status.
func MarkerColor(d Drone) string {
	switch {
	case d.Battery < battery.LowThreshold:
		return ColorLowBattery
	case d.Delivering():
		return ColorDelivering
	default:
		return ColorStandby
	}
}

// StatusDisplay returns the card status label and its colour.
func StatusDisplay(d Drone) (text, color string) {
	switch {
	case d.Battery < battery.LowThreshold:
		return "LOW BATTERY", ColorLowBattery
	case d.Delivering():
		return "DELIVERING", ColorDelivering
	default:
		return "STANDBY", ColorStandby
	}
}

// CategoryOf assigns a drone to exactly one table category.
func CategoryOf(d Drone) Category {
	switch {
	case d.Battery < battery.LowThreshold:
		return CategoryLowBat
	case d.Delivering():
		return CategoryActive
	default:
		return CategoryReady
	}
}

// TableStatus is the short status shown in the fleet table.
func TableStatus(d Drone) string {
	switch CategoryOf(d) {
	case CategoryLowBat:
		return "LOW BAT"
	case CategoryActive:
		return "ACTIVE"
	default:
		return "READY"
	}
}

// Capacity returns passenger seats for a model name.
func Capacity(name string) int {
	if strings.Contains(name, "X2") {
		return 6
	}
	return 4
}

// Filter is the category and critical-battery filter state.
type Filter struct {
	Active   bool `json:"active"`
	Ready    bool `json:"ready"`
	LowBat   bool `json:"lowBat"`
	Critical bool `json:"critical"`
}

// DefaultFilter shows every category without the critical filter.
func DefaultFilter() Filter {
	return Filter{Active: true, Ready: true, LowBat: true}
}

// Match applies the category bits and the critical filter as an AND.
func (f Filter) Match(d Drone) bool {
	var ok bool
	switch CategoryOf(d) {
	case CategoryActive:
		ok = f.Active
	case CategoryReady:
		ok = f.Ready
	case CategoryLowBat:
		ok = f.LowBat
	}
	if f.Critical && d.Battery >= battery.CriticalThreshold {
		return false
	}
	return ok
}

// Bounds frames every drone's position and, for delivering drones, its route.
func Bounds(drones []Drone) (geo.Bounds, bool) {
	var coords []geo.Coord
	for _, d := range drones {
		coords = append(coords, d.Coord)
		if d.Trip != nil {
			for _, p := range d.Trip.Route {
				coords = append(coords, p.Coord())
			}
		}
	}
	return geo.ComputeBounds(coords)
}
