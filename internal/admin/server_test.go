package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dronetaxi-sim/internal/battery"
	"dronetaxi-sim/internal/clock"
	"dronetaxi-sim/internal/config"
	"dronetaxi-sim/internal/driver"
	"dronetaxi-sim/internal/fleet"
	"dronetaxi-sim/internal/logging"
	"dronetaxi-sim/internal/rides"
	"dronetaxi-sim/internal/storage"
)

var epoch = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *clock.Virtual) {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	ctx := context.Background()
	log := logging.Discard()
	v := clock.NewVirtual(epoch)
	store := storage.NewMemory()

	overrides := battery.NewOverrides(ctx, store, log)
	t.Cleanup(overrides.Close)
	dash, err := fleet.NewDashboard(v, fleet.NewCities(cfg.Cities), overrides, fleet.WithLogger(log))
	if err != nil {
		t.Fatalf("new dashboard: %v", err)
	}
	t.Cleanup(dash.Close)

	ident, err := driver.IdentityFromConfig(cfg)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	batt := battery.NewDriver(ctx, store, log)
	t.Cleanup(batt.Close)
	rideLog := rides.NewLog(store, rides.WithClock(v.Now), rides.WithLogger(log))
	m := driver.New(v, ident, batt, rideLog, driver.WithLogger(log))
	t.Cleanup(m.Close)
	m.Start()

	return NewServer(dash, m, rideLog, v.Now, log), v
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleFleet(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Handler(), http.MethodGet, "/fleet", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status OK, got %v", w.Code)
	}
	var snap fleet.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if snap.City.ID != "london" {
		t.Errorf("expected london, got %q", snap.City.ID)
	}
	if len(snap.Drones) != 24 {
		t.Errorf("expected 24 drones, got %d", len(snap.Drones))
	}
	if snap.Counts[fleet.CategoryActive] != 6 {
		t.Errorf("unexpected counts: %+v", snap.Counts)
	}
}

func TestHandleSelectCity(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	w := do(t, h, http.MethodPost, "/fleet/cities/paris/select", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status OK, got %v", w.Code)
	}
	var resp struct {
		City    string `json:"city"`
		Changed bool   `json:"changed"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.City != "paris" || !resp.Changed {
		t.Errorf("unexpected response: %+v", resp)
	}

	w = do(t, h, http.MethodPost, "/fleet/cities/atlantis/select", "")
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.City != "paris" || resp.Changed {
		t.Errorf("unknown city should be a no-op, got %+v", resp)
	}
}

func TestHandleSelectAndDeselect(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	before := s.Fleet.Viewport().Zoom

	if w := do(t, h, http.MethodPost, "/fleet/drones/LON-DR-001/select", ""); w.Code != http.StatusOK {
		t.Fatalf("expected status OK, got %v", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/fleet/drones/NOPE/select", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown drone, got %v", w.Code)
	}
	w := do(t, h, http.MethodPost, "/fleet/deselect", "")
	var vp fleet.Viewport
	if err := json.NewDecoder(w.Body).Decode(&vp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if vp.Zoom != before {
		t.Errorf("expected zoom %v restored, got %v", before, vp.Zoom)
	}
}

func TestHandleFilters(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	w := do(t, h, http.MethodPost, "/fleet/filters/ready/toggle", "")
	var f fleet.Filter
	json.NewDecoder(w.Body).Decode(&f)
	if f.Ready {
		t.Errorf("expected ready filter off, got %+v", f)
	}
	if w := do(t, h, http.MethodPost, "/fleet/filters/bogus/toggle", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", w.Code)
	}
	w = do(t, h, http.MethodPost, "/fleet/filters/critical?on=true", "")
	json.NewDecoder(w.Body).Decode(&f)
	if !f.Critical {
		t.Errorf("expected critical filter on")
	}
	if w := do(t, h, http.MethodPost, "/fleet/filters/critical?on=maybe", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", w.Code)
	}
}

func TestHandleBattery(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	w := do(t, h, http.MethodPut, "/fleet/drones/LON-DR-001/battery", `{"battery": 18}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status OK, got %v", w.Code)
	}
	sel := s.Fleet.Roster()
	for _, d := range sel {
		if d.ID == "LON-DR-001" && fleet.MarkerColor(d) != fleet.ColorLowBattery {
			t.Errorf("expected low battery colour, got %s", fleet.MarkerColor(d))
		}
	}
	if w := do(t, h, http.MethodPut, "/fleet/drones/NOPE/battery", `{"battery": 18}`); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", w.Code)
	}
	if w := do(t, h, http.MethodPut, "/fleet/drones/LON-DR-001/battery", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/fleet/batteries/reset", ""); w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %v", w.Code)
	}
}

func TestHandleHistory(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Handler(), http.MethodGet, "/fleet/drones/LON-DR-001/history", "")
	var flights []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&flights); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(flights) < 3 || len(flights) > 5 {
		t.Errorf("expected 3-5 flights, got %d", len(flights))
	}
}

func TestDriverFlow(t *testing.T) {
	s, v := newTestServer(t)
	h := s.Handler()

	if w := do(t, h, http.MethodPost, "/driver/accept", ""); w.Code != http.StatusConflict {
		t.Errorf("accept before notification: expected 409, got %v", w.Code)
	}
	v.Advance(5 * time.Second)

	w := do(t, h, http.MethodPost, "/driver/accept", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status OK, got %v", w.Code)
	}
	var snap driver.Snapshot
	json.NewDecoder(w.Body).Decode(&snap)
	if snap.State != driver.StateInFlight {
		t.Errorf("expected in_flight, got %s", snap.State)
	}
	if w := do(t, h, http.MethodPost, "/driver/charge/start", ""); w.Code != http.StatusConflict {
		t.Errorf("charge in flight: expected 409, got %v", w.Code)
	}

	if w := do(t, h, http.MethodGet, "/driver/completed", ""); w.Code != http.StatusNoContent {
		t.Errorf("expected 204 before completion, got %v", w.Code)
	}
	v.Advance(5 * time.Second)
	if w := do(t, h, http.MethodGet, "/driver/completed", ""); w.Code != http.StatusOK {
		t.Errorf("expected completed ride, got %v", w.Code)
	}

	w = do(t, h, http.MethodGet, "/rides?today=true", "")
	var resp struct {
		Rides []rides.Ride `json:"rides"`
		Stats rides.Stats  `json:"stats"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(resp.Rides) != 1 {
		t.Errorf("expected 1 ride today, got %d", len(resp.Rides))
	}
}

func TestHandleIndex(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Handler(), http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status OK, got %v", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "London fleet") || !strings.Contains(body, "AUH-DR-011") {
		t.Errorf("index missing fleet or driver details")
	}
}
