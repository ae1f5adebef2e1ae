package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"dronetaxi-sim/internal/driver"
	"dronetaxi-sim/internal/fleet"
	"dronetaxi-sim/internal/rides"
)

// Server exposes the fleet dashboard and the driver machine over JSON.
type Server struct {
	Fleet  *fleet.Dashboard
	Driver *driver.Machine
	Rides  *rides.Log
	tpl    *template.Template
	now    func() time.Time
	log    *slog.Logger
}

//go:embed templates/index.html
var content embed.FS

// NewServer wires the handlers. now is used for the "today" rides filter and
// defaults to time.Now.
func NewServer(d *fleet.Dashboard, m *driver.Machine, r *rides.Log, now func() time.Time, log *slog.Logger) *Server {
	funcs := template.FuncMap{
		"percent": func(p float64) string { return strconv.Itoa(int(math.Round(p*100))) + "%" },
	}
	tpl := template.Must(template.New("index.html").Funcs(funcs).ParseFS(content, "templates/index.html"))
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{Fleet: d, Driver: m, Rides: r, tpl: tpl, now: now, log: log}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)

	mux.HandleFunc("GET /fleet", s.handleFleet)
	mux.HandleFunc("GET /fleet/cities", s.handleCities)
	mux.HandleFunc("POST /fleet/cities/{id}/select", s.handleSelectCity)
	mux.HandleFunc("POST /fleet/map-loaded", s.handleMapLoaded)
	mux.HandleFunc("POST /fleet/drones/{id}/select", s.handleSelectDrone)
	mux.HandleFunc("POST /fleet/deselect", s.handleDeselect)
	mux.HandleFunc("POST /fleet/hover", s.handleHover)
	mux.HandleFunc("POST /fleet/filters/critical", s.handleCritical)
	mux.HandleFunc("POST /fleet/filters/{category}/toggle", s.handleToggleCategory)
	mux.HandleFunc("PUT /fleet/drones/{id}/battery", s.handleBattery)
	mux.HandleFunc("POST /fleet/batteries/reset", s.handleResetBatteries)
	mux.HandleFunc("GET /fleet/drones/{id}/history", s.handleHistory)

	mux.HandleFunc("GET /driver", s.handleDriver)
	mux.HandleFunc("POST /driver/accept", s.handleAccept)
	mux.HandleFunc("POST /driver/reject", s.handleReject)
	mux.HandleFunc("POST /driver/charge/start", s.handleStartCharge)
	mux.HandleFunc("POST /driver/charge/stop", s.handleStopCharge)
	mux.HandleFunc("GET /driver/completed", s.handleCompleted)

	mux.HandleFunc("GET /rides", s.handleRides)
	return mux
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.Fleet.Snapshot()
	data := struct {
		Fleet                 fleet.Snapshot
		Driver                driver.Snapshot
		Active, Ready, LowBat int
	}{
		Fleet:  snap,
		Driver: s.Driver.Snapshot(),
		Active: snap.Counts[fleet.CategoryActive],
		Ready:  snap.Counts[fleet.CategoryReady],
		LowBat: snap.Counts[fleet.CategoryLowBat],
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		s.log.Warn("render index failed", "err", err)
	}
}

func (s *Server) handleFleet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Fleet.Snapshot())
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Fleet.Cities())
}

func (s *Server) handleSelectCity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	changed := s.Fleet.SelectCity(id)
	writeJSON(w, http.StatusOK, map[string]any{"city": s.Fleet.Snapshot().City.ID, "changed": changed})
}

func (s *Server) handleMapLoaded(w http.ResponseWriter, r *http.Request) {
	s.Fleet.MapLoaded()
	writeJSON(w, http.StatusOK, s.Fleet.Viewport())
}

func (s *Server) handleSelectDrone(w http.ResponseWriter, r *http.Request) {
	if !s.Fleet.SelectDrone(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "drone not displayed")
		return
	}
	sel, _ := s.Fleet.Selected()
	writeJSON(w, http.StatusOK, map[string]any{"selected": sel, "viewport": s.Fleet.Viewport()})
}

func (s *Server) handleDeselect(w http.ResponseWriter, r *http.Request) {
	s.Fleet.Deselect()
	writeJSON(w, http.StatusOK, s.Fleet.Viewport())
}

func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	s.Fleet.Hover(r.URL.Query().Get("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCritical(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("on"); raw != "" {
		on, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "on must be a boolean")
			return
		}
		s.Fleet.SetCriticalFilter(on)
	} else {
		s.Fleet.ToggleCriticalFilter()
	}
	writeJSON(w, http.StatusOK, s.Fleet.Filter())
}

func (s *Server) handleToggleCategory(w http.ResponseWriter, r *http.Request) {
	if !s.Fleet.ToggleCategory(fleet.Category(r.PathValue("category"))) {
		writeError(w, http.StatusNotFound, "unknown category")
		return
	}
	writeJSON(w, http.StatusOK, s.Fleet.Filter())
}

func (s *Server) handleBattery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Battery *int `json:"battery"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Battery == nil {
		writeError(w, http.StatusBadRequest, "battery is required")
		return
	}
	id := r.PathValue("id")
	level, ok := s.Fleet.UpdateBattery(r.Context(), id, *body.Battery)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown drone")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "battery": level})
}

func (s *Server) handleResetBatteries(w http.ResponseWriter, r *http.Request) {
	s.Fleet.ResetBatteries(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Fleet.History(r.PathValue("id")))
}

func (s *Server) handleDriver(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Driver.Snapshot())
}

func (s *Server) driverCommand(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, s.Driver.Snapshot())
	case errors.Is(err, driver.ErrBatteryDepleted),
		errors.Is(err, driver.ErrInFlight),
		errors.Is(err, driver.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	s.driverCommand(w, s.Driver.Accept())
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.driverCommand(w, s.Driver.Reject())
}

func (s *Server) handleStartCharge(w http.ResponseWriter, r *http.Request) {
	_, err := s.Driver.StartCharge()
	s.driverCommand(w, err)
}

func (s *Server) handleStopCharge(w http.ResponseWriter, r *http.Request) {
	s.Driver.StopCharge()
	s.driverCommand(w, nil)
}

func (s *Server) handleCompleted(w http.ResponseWriter, r *http.Request) {
	ride, ok := s.Driver.TakeCompleted()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleRides(w http.ResponseWriter, r *http.Request) {
	list := s.Rides.List(r.Context())
	if today, _ := strconv.ParseBool(r.URL.Query().Get("today")); today {
		list = s.Rides.Today(r.Context(), s.now())
	}
	if list == nil {
		list = []rides.Ride{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rides": list, "stats": rides.Summarize(list)})
}
