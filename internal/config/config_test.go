package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() returned error: %v", err)
	}
	if len(cfg.Cities) != 3 {
		t.Fatalf("expected 3 cities, got %d", len(cfg.Cities))
	}
	london := cfg.City("london")
	if london.Code != "LON" || london.Zoom != 12 {
		t.Errorf("unexpected london config: %+v", london)
	}
	var found bool
	for _, d := range london.Drones {
		if london.DroneID(d) == "LON-DR-001" {
			found = true
			if d.Battery != 92 || d.Status != "standby" {
				t.Errorf("unexpected LON-DR-001: %+v", d)
			}
		}
	}
	if !found {
		t.Error("LON-DR-001 missing from default roster")
	}
	if cfg.Driver.DroneID != "AUH-DR-011" || cfg.DriverCity().Code != "AUH" {
		t.Errorf("unexpected driver config: %+v", cfg.Driver)
	}
	if cfg.Timings.ProgressTick != 500*time.Millisecond || cfg.Timings.Cooldown != 10*time.Second {
		t.Errorf("unexpected timings: %+v", cfg.Timings)
	}
	if cfg.RouteSteps != 15 {
		t.Errorf("route steps = %d", cfg.RouteSteps)
	}
}

func TestLoadConfig_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	yaml := `
cities:
  - id: berlin
    name: Berlin
    code: BER
    center: {lat: 52.52, lng: 13.405}
    zoom: 11
    drones:
      - id: DR-001
        name: Skyrunner X2
        status: delivering
        battery: 40
        load: 2
        trip:
          origin: {lat: 52.52, lng: 13.40, name: Mitte}
          destination: {lat: 52.50, lng: 13.45, name: Kreuzberg}
landmarks:
  BER: [Mitte, Kreuzberg, Tegel]
timings:
  cooldown: 3s
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	d := cfg.Cities[0].Drones[0]
	if d.Trip == nil || d.Trip.Destination.Name != "Kreuzberg" || d.Trip.Origin.Lat != 52.52 {
		t.Errorf("trip not decoded: %+v", d.Trip)
	}
	if cfg.Timings.Cooldown != 3*time.Second || cfg.Timings.RejectDelay != 2*time.Second {
		t.Errorf("timings defaults not applied: %+v", cfg.Timings)
	}
	if cfg.City("unknown").ID != "berlin" {
		t.Error("unknown city should fall back to the first city")
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"battery out of range": `
cities:
  - {id: x, name: X, code: XXX, center: {lat: 1, lng: 1}, zoom: 12, drones: [{id: D1, name: N, status: standby, battery: 120}]}
`,
		"unknown status": `
cities:
  - {id: x, name: X, code: XXX, center: {lat: 1, lng: 1}, zoom: 12, drones: [{id: D1, name: N, status: flying, battery: 20}]}
`,
		"no cities": `
cities: []
`,
		"unknown field": `
cities:
  - {id: x, name: X, code: XXX, center: {lat: 1, lng: 1}, zoom: 12, drones: []}
enemy_count: 4
`,
		"bad duration": `
cities:
  - {id: x, name: X, code: XXX, center: {lat: 1, lng: 1}, zoom: 12, drones: []}
timings: {cooldown: soon}
`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(in)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestParseRejectsDuplicates(t *testing.T) {
	in := `
cities:
  - {id: x, name: X, code: XXX, center: {lat: 1, lng: 1}, zoom: 12, drones: [{id: D1, name: N, status: standby, battery: 20}, {id: D1, name: N, status: standby, battery: 30}]}
`
	_, err := Parse([]byte(in))
	if err == nil || !strings.Contains(err.Error(), "duplicate drone id") {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	in = `
cities:
  - {id: x, name: X, code: XXX, center: {lat: 1, lng: 1}, zoom: 12, drones: []}
driver: {drone_id: XXX-D9, city: nowhere}
`
	if _, err := Parse([]byte(in)); err == nil {
		t.Fatal("expected unknown driver city error")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("DRONETAXI_STORE", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("TICK_INTERVAL", "250ms")
	e := FromEnv()
	if e.Store != "redis" || e.RedisAddr != "localhost:6379" || e.GreptimeDatabase != "public" {
		t.Errorf("unexpected env: %+v", e)
	}
	cfg, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	e.Apply(cfg)
	if cfg.Timings.ProgressTick != 250*time.Millisecond {
		t.Errorf("tick override not applied: %s", cfg.Timings.ProgressTick)
	}
}
