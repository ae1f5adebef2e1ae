// YAML config loader with CUE validation integration
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"dronetaxi-sim/internal/geo"
)

//go:embed default.yaml
var defaultYAML []byte

// Trip pins an explicit origin and destination for a delivering drone.
type Trip struct {
	Origin      geo.Place `yaml:"origin"`
	Destination geo.Place `yaml:"destination"`
}

// Drone is a static roster entry. Its full id is the city code, a dash and ID.
type Drone struct {
	ID      string    `yaml:"id"`
	Name    string    `yaml:"name"`
	Status  string    `yaml:"status"`
	Battery int       `yaml:"battery"`
	Offset  geo.Coord `yaml:"offset"`
	Load    int       `yaml:"load"`
	ETA     string    `yaml:"eta"`
	Trip    *Trip     `yaml:"trip"`
}

// City is a service area with its fixed roster.
type City struct {
	ID     string    `yaml:"id"`
	Name   string    `yaml:"name"`
	Code   string    `yaml:"code"`
	Center geo.Coord `yaml:"center"`
	Zoom   float64   `yaml:"zoom"`
	Drones []Drone   `yaml:"drones"`
}

// DroneID returns the globally unique id of a roster entry.
func (c City) DroneID(d Drone) string {
	return c.Code + "-" + d.ID
}

// Driver identifies the single simulated driver drone.
type Driver struct {
	DroneID string `yaml:"drone_id"`
	City    string `yaml:"city"`
}

// Timings holds every simulation period and delay.
type Timings struct {
	ProgressTick      time.Duration `yaml:"progress_tick"`
	ProgressMode      string        `yaml:"progress_mode"`
	DurationMin       time.Duration `yaml:"duration_min"`
	DurationMax       time.Duration `yaml:"duration_max"`
	ChargeTick        time.Duration `yaml:"charge_tick"`
	ChargeDuration    time.Duration `yaml:"charge_duration"`
	NotificationDelay time.Duration `yaml:"notification_delay"`
	RejectDelay       time.Duration `yaml:"reject_delay"`
	Cooldown          time.Duration `yaml:"cooldown"`
}

// Config is the root configuration.
type Config struct {
	Cities            []City              `yaml:"cities"`
	Landmarks         map[string][]string `yaml:"landmarks"`
	Driver            Driver              `yaml:"driver"`
	Timings           Timings             `yaml:"timings"`
	RouteSteps        int                 `yaml:"route_steps"`
	ZoomIncrement     float64             `yaml:"zoom_increment"`
	MaxCompletedRides int                 `yaml:"max_completed_rides"`
}

// Default returns the embedded configuration.
func Default() (*Config, error) {
	return Parse(defaultYAML)
}

// Load reads, validates and decodes a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read YAML config: %w", err)
	}
	return Parse(data)
}

// Parse validates data against the CUE schema and decodes it.
func Parse(data []byte) (*Config, error) {
	if err := ValidateWithCue(data); err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal YAML config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	t := &c.Timings
	setDuration(&t.ProgressTick, 500*time.Millisecond)
	setDuration(&t.DurationMin, 20*time.Second)
	setDuration(&t.DurationMax, 40*time.Second)
	setDuration(&t.ChargeTick, 100*time.Millisecond)
	setDuration(&t.ChargeDuration, 5*time.Second)
	setDuration(&t.NotificationDelay, 5*time.Second)
	setDuration(&t.RejectDelay, 2*time.Second)
	setDuration(&t.Cooldown, 10*time.Second)
	if t.ProgressMode == "" {
		t.ProgressMode = "distance"
	}
	if c.RouteSteps <= 0 {
		c.RouteSteps = geo.DefaultRouteSteps
	}
	if c.ZoomIncrement <= 0 {
		c.ZoomIncrement = 0.5
	}
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

// check enforces the cross-field rules the schema cannot express.
func (c *Config) check() error {
	cities := make(map[string]bool, len(c.Cities))
	ids := make(map[string]bool)
	for _, city := range c.Cities {
		if cities[city.ID] {
			return fmt.Errorf("duplicate city id %q", city.ID)
		}
		cities[city.ID] = true
		for _, d := range city.Drones {
			id := city.DroneID(d)
			if ids[id] {
				return fmt.Errorf("duplicate drone id %q", id)
			}
			ids[id] = true
		}
	}
	if c.Driver.City != "" && !cities[c.Driver.City] {
		return fmt.Errorf("driver city %q is not configured", c.Driver.City)
	}
	if c.Timings.DurationMax < c.Timings.DurationMin {
		return fmt.Errorf("duration_max %s is below duration_min %s", c.Timings.DurationMax, c.Timings.DurationMin)
	}
	return nil
}

// City returns the city with id, or the first city when id is unknown.
func (c *Config) City(id string) City {
	for _, city := range c.Cities {
		if city.ID == id {
			return city
		}
	}
	return c.Cities[0]
}

// DriverCity returns the city the driver operates in.
func (c *Config) DriverCity() City {
	return c.City(c.Driver.City)
}
