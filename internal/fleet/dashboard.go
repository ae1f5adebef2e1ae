package fleet

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"dronetaxi-sim/internal/assign"
	"dronetaxi-sim/internal/battery"
	"dronetaxi-sim/internal/clock"
	"dronetaxi-sim/internal/events"
	"dronetaxi-sim/internal/geo"
	"dronetaxi-sim/internal/progress"
)

const (
	DefaultZoomIncrement = 0.5
	// MapLoadEase is how long the initial zoom-in runs before the table is revealed.
	MapLoadEase = time.Second
	maxZoom     = 22
)

// Viewport is the map camera.
type Viewport struct {
	Center geo.Coord `json:"center"`
	Zoom   float64   `json:"zoom"`
}

// DroneView is a drone with its live map position and display attributes.
type DroneView struct {
	Drone
	Position    geo.Coord `json:"position"`
	Bearing     float64   `json:"bearing"`
	Progress    float64   `json:"progress"`
	MarkerColor string    `json:"marker_color"`
	StatusText  string    `json:"status_text"`
	TableStatus string    `json:"table_status"`
	Capacity    int       `json:"capacity"`
}

// Snapshot is a consistent read of the dashboard.
type Snapshot struct {
	City          City               `json:"city"`
	Viewport      Viewport           `json:"viewport"`
	Selected      string             `json:"selected,omitempty"`
	Hovered       string             `json:"hovered,omitempty"`
	Filter        Filter             `json:"filter"`
	TableRevealed bool               `json:"table_revealed"`
	Counts        map[Category]int   `json:"counts"`
	Drones        []DroneView        `json:"drones"`
	Progress      map[string]float64 `json:"progress"`
}

// Dashboard is the fleet state container: active city, battery overrides,
// viewport, selection, hover and filters. Views are derived on every read.
type Dashboard struct {
	mu            sync.Mutex
	sched         clock.Scheduler
	cities        []City
	active        int
	gen           *assign.Generator
	overrides     *battery.Overrides
	unsubBattery  func()
	progress      *progress.Clock
	viewport      Viewport
	selected      string
	preSelectZoom float64
	hasPreSelect  bool
	hovered       string
	filter        Filter
	tableRevealed bool
	revealCancel  clock.CancelFunc
	zoomIncrement float64
	progressOpts  []progress.Option
	events        events.Writer
	log           *slog.Logger
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithGenerator sets the trip generator.
func WithGenerator(g *assign.Generator) Option {
	return func(d *Dashboard) {
		if g != nil {
			d.gen = g
		}
	}
}

// WithZoomIncrement sets the zoom step applied on first selection.
func WithZoomIncrement(z float64) Option {
	return func(d *Dashboard) {
		if z > 0 {
			d.zoomIncrement = z
		}
	}
}

// WithProgressOptions passes options to the dashboard's progress clock.
func WithProgressOptions(opts ...progress.Option) Option {
	return func(d *Dashboard) { d.progressOpts = append(d.progressOpts, opts...) }
}

// WithEvents sets the event sink.
func WithEvents(w events.Writer) Option {
	return func(d *Dashboard) {
		if w != nil {
			d.events = w
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dashboard) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDashboard creates a dashboard showing the first city. The initial
// viewport is the city center at its zoom plus one increment, ready for the
// map-load ease-in.
func NewDashboard(sched clock.Scheduler, cities []City, overrides *battery.Overrides, opts ...Option) (*Dashboard, error) {
	if len(cities) == 0 {
		return nil, errors.New("fleet: at least one city is required")
	}
	if overrides == nil {
		return nil, errors.New("fleet: battery overrides are required")
	}
	d := &Dashboard{
		sched:         sched,
		cities:        cities,
		gen:           assign.NewGenerator(),
		overrides:     overrides,
		filter:        DefaultFilter(),
		zoomIncrement: DefaultZoomIncrement,
		events:        events.Discard,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	popts := append([]progress.Option{progress.WithLogger(d.log)}, d.progressOpts...)
	popts = append(popts, progress.OnComplete(d.onTripComplete))
	d.progress = progress.New(sched, popts...)

	city := cities[0]
	d.viewport = Viewport{Center: city.Center, Zoom: city.Zoom + d.zoomIncrement}
	d.mu.Lock()
	d.syncProgressLocked()
	d.mu.Unlock()
	d.unsubBattery = overrides.OnChange(d.onOverridesChanged)
	return d, nil
}

// onOverridesChanged re-checks the selection after any override write,
// including ones made by other processes sharing the store.
func (d *Dashboard) onOverridesChanged() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enforceSelectionLocked()
}

// Start begins advancing trips.
func (d *Dashboard) Start() { d.progress.Start() }

// Close stops every timer owned by the dashboard.
func (d *Dashboard) Close() {
	d.unsubBattery()
	d.progress.Close()
	d.mu.Lock()
	if d.revealCancel != nil {
		d.revealCancel()
		d.revealCancel = nil
	}
	d.mu.Unlock()
}

// Progress exposes the dashboard's progress clock.
func (d *Dashboard) Progress() *progress.Clock { return d.progress }

func (d *Dashboard) city() City { return d.cities[d.active] }

func (d *Dashboard) rosterLocked() []Drone {
	return Enrich(d.city().Drones, d.overrides.All(), d.gen)
}

func (d *Dashboard) displayedLocked(roster []Drone) []Drone {
	out := make([]Drone, 0, len(roster))
	for _, dr := range roster {
		if d.filter.Match(dr) {
			out = append(out, dr)
		}
	}
	return out
}

func (d *Dashboard) viewLocked(dr Drone) DroneView {
	v := DroneView{Drone: dr, Position: dr.Coord, Capacity: Capacity(dr.Name)}
	if dr.Trip != nil {
		if s, ok := d.progress.State(dr.ID); ok {
			v.Position = geo.Coord{Lat: s.Lat, Lng: s.Lng}
			v.Bearing = s.Bearing
			v.Progress = s.Progress
		} else if len(dr.Trip.Route) > 0 {
			v.Position = dr.Trip.Route[0].Coord()
			v.Bearing = geo.Bearing(dr.Trip.Route, 0)
		}
	}
	v.MarkerColor = MarkerColor(dr)
	v.StatusText, _ = StatusDisplay(dr)
	v.TableStatus = TableStatus(dr)
	return v
}

func (d *Dashboard) syncProgressLocked() {
	var entries []progress.Entry
	for _, dr := range d.rosterLocked() {
		if dr.Trip == nil {
			continue
		}
		entries = append(entries, progress.Entry{
			ID:         dr.ID,
			Route:      dr.Trip.Route,
			DistanceKM: geo.FlatDistanceKM(dr.Trip.Origin.Coord, dr.Trip.Destination.Coord),
			Duration:   d.gen.Duration(dr.ID),
		})
	}
	d.progress.Sync(entries)
}

// enforceSelectionLocked clears a selection the displayed subset no longer contains.
func (d *Dashboard) enforceSelectionLocked() {
	if d.selected == "" {
		return
	}
	for _, dr := range d.displayedLocked(d.rosterLocked()) {
		if dr.ID == d.selected {
			return
		}
	}
	d.selected = ""
	d.hasPreSelect = false
}

func (d *Dashboard) emit(e events.Event) {
	if e.Time.IsZero() {
		e.Time = d.sched.Now()
	}
	if err := d.events.WriteEvent(e); err != nil {
		d.log.Warn("event write failed", "kind", e.Kind, "err", err)
	}
}

// onTripComplete drains a fleet drone's battery through the override store.
// The drone stays delivering with its progress pinned at 1.
func (d *Dashboard) onTripComplete(id string) {
	d.mu.Lock()
	var (
		found bool
		level int
		city  string
	)
	for _, dr := range d.rosterLocked() {
		if dr.ID == id && dr.Trip != nil {
			found = true
			level = battery.Apply(dr.Battery, battery.Drain(dr.Trip.Origin.Coord, dr.Trip.Destination.Coord))
			city = d.city().ID
			break
		}
	}
	d.mu.Unlock()
	if !found {
		return
	}
	level = d.overrides.Set(context.Background(), id, level)
	d.mu.Lock()
	d.enforceSelectionLocked()
	d.mu.Unlock()
	d.log.Info("trip completed", "drone_id", id, "battery", level)
	d.emit(events.Event{Kind: events.KindTripCompleted, DroneID: id, City: city, Progress: 1, Battery: level})
}

// SelectCity switches the active city. Unknown ids and the current city are
// no-ops. Selection and hover are cleared and the viewport refits the roster.
func (d *Dashboard) SelectCity(id string) bool {
	d.mu.Lock()
	idx := slices.IndexFunc(d.cities, func(c City) bool { return c.ID == id })
	if idx < 0 || idx == d.active {
		d.mu.Unlock()
		return false
	}
	d.active = idx
	d.selected = ""
	d.hasPreSelect = false
	d.hovered = ""
	city := d.city()
	d.viewport = Viewport{Center: city.Center, Zoom: city.Zoom}
	if b, ok := Bounds(d.rosterLocked()); ok {
		d.viewport = Viewport{Center: b.Center(), Zoom: math.Min(city.Zoom, FitZoom(b))}
	}
	d.syncProgressLocked()
	d.mu.Unlock()
	d.emit(events.Event{Kind: events.KindCitySelected, City: id})
	return true
}

// FitZoom approximates the web-map zoom level that frames b.
func FitZoom(b geo.Bounds) float64 {
	span := math.Max(b.NE.Lng-b.SW.Lng, b.NE.Lat-b.SW.Lat)
	if span <= 0 {
		return maxZoom
	}
	return math.Max(0, math.Min(maxZoom, math.Log2(360/span)))
}

// MapLoaded eases the viewport to the city zoom and reveals the fleet table
// once the ease completes.
func (d *Dashboard) MapLoaded() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.viewport.Zoom = d.city().Zoom
	if d.revealCancel != nil || d.tableRevealed {
		return
	}
	d.revealCancel = d.sched.After(MapLoadEase, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.tableRevealed = true
		d.revealCancel = nil
	})
}

// SelectDrone focuses a displayed drone. The first selection remembers the
// current zoom and zooms in; switching between drones keeps the zoom.
func (d *Dashboard) SelectDrone(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	shown := d.displayedLocked(d.rosterLocked())
	i := slices.IndexFunc(shown, func(dr Drone) bool { return dr.ID == id })
	if i < 0 {
		return false
	}
	dr := shown[i]
	if d.selected == "" {
		d.preSelectZoom = d.viewport.Zoom
		d.hasPreSelect = true
		d.viewport.Zoom += d.zoomIncrement
	}
	d.selected = id
	d.viewport.Center = d.viewLocked(dr).Position
	return true
}

// Deselect restores the pre-selection zoom and clears the selection.
func (d *Dashboard) Deselect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.hasPreSelect {
		d.viewport.Zoom = d.preSelectZoom
	}
	d.hasPreSelect = false
	d.selected = ""
}

// Hover marks a drone as hovered; empty or unknown ids clear it.
func (d *Dashboard) Hover(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hovered = ""
	if slices.ContainsFunc(d.city().Drones, func(dr Drone) bool { return dr.ID == id }) {
		d.hovered = id
	}
}

// ToggleCategory flips one category bit. Unknown categories are ignored.
func (d *Dashboard) ToggleCategory(c Category) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch c {
	case CategoryActive:
		d.filter.Active = !d.filter.Active
	case CategoryReady:
		d.filter.Ready = !d.filter.Ready
	case CategoryLowBat:
		d.filter.LowBat = !d.filter.LowBat
	default:
		return false
	}
	d.enforceSelectionLocked()
	return true
}

// SetCriticalFilter shows only drones below the critical threshold when on.
func (d *Dashboard) SetCriticalFilter(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter.Critical = on
	d.enforceSelectionLocked()
}

// ToggleCriticalFilter flips the critical-battery filter.
func (d *Dashboard) ToggleCriticalFilter() {
	d.mu.Lock()
	on := !d.filter.Critical
	d.mu.Unlock()
	d.SetCriticalFilter(on)
}

func (d *Dashboard) knownLocked(id string) (string, bool) {
	for _, c := range d.cities {
		if slices.ContainsFunc(c.Drones, func(dr Drone) bool { return dr.ID == id }) {
			return c.ID, true
		}
	}
	return "", false
}

// UpdateBattery stores a battery override for a drone in any city. Unknown
// ids are no-ops. The stored (clamped) level is returned.
func (d *Dashboard) UpdateBattery(ctx context.Context, id string, level int) (int, bool) {
	d.mu.Lock()
	city, ok := d.knownLocked(id)
	d.mu.Unlock()
	if !ok {
		d.log.Debug("ignoring battery update for unknown drone", "drone_id", id)
		return 0, false
	}
	level = d.overrides.Set(ctx, id, level)
	d.mu.Lock()
	d.enforceSelectionLocked()
	d.mu.Unlock()
	d.emit(events.Event{Kind: events.KindBatteryUpdated, DroneID: id, City: city, Battery: level})
	return level, true
}

// ResetBatteries clears every override.
func (d *Dashboard) ResetBatteries(ctx context.Context) {
	d.overrides.Reset(ctx)
	d.mu.Lock()
	d.enforceSelectionLocked()
	city := d.city().ID
	d.mu.Unlock()
	d.emit(events.Event{Kind: events.KindBatteryReset, City: city})
}

// Cities lists the configured cities.
func (d *Dashboard) Cities() []City {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.cities)
}

// Roster returns the enriched roster of the active city.
func (d *Dashboard) Roster() []Drone {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rosterLocked()
}

// Displayed returns the filtered roster in configuration order.
func (d *Dashboard) Displayed() []Drone {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.displayedLocked(d.rosterLocked())
}

// Table returns the displayed drones ordered Active, Low Bat, Ready.
func (d *Dashboard) Table() []DroneView {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tableLocked(d.rosterLocked())
}

func (d *Dashboard) tableLocked(roster []Drone) []DroneView {
	shown := d.displayedLocked(roster)
	out := make([]DroneView, 0, len(shown))
	for _, dr := range shown {
		out = append(out, d.viewLocked(dr))
	}
	slices.SortStableFunc(out, func(a, b DroneView) int {
		return tableOrder(a.Drone) - tableOrder(b.Drone)
	})
	return out
}

func tableOrder(d Drone) int {
	switch CategoryOf(d) {
	case CategoryActive:
		return 0
	case CategoryLowBat:
		return 1
	default:
		return 2
	}
}

// Counts tallies categories over the full roster, ignoring filters.
func (d *Dashboard) Counts() map[Category]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return countsOf(d.rosterLocked())
}

func countsOf(roster []Drone) map[Category]int {
	out := map[Category]int{CategoryActive: 0, CategoryReady: 0, CategoryLowBat: 0}
	for _, dr := range roster {
		out[CategoryOf(dr)]++
	}
	return out
}

// Viewport returns the map camera.
func (d *Dashboard) Viewport() Viewport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewport
}

// Selected returns the selected drone view.
func (d *Dashboard) Selected() (DroneView, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.findLocked(d.selected)
}

// Hovered returns the hovered drone view.
func (d *Dashboard) Hovered() (DroneView, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.findLocked(d.hovered)
}

func (d *Dashboard) findLocked(id string) (DroneView, bool) {
	if id == "" {
		return DroneView{}, false
	}
	for _, dr := range d.rosterLocked() {
		if dr.ID == id {
			return d.viewLocked(dr), true
		}
	}
	return DroneView{}, false
}

// Filter returns the filter state.
func (d *Dashboard) Filter() Filter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filter
}

// TableRevealed reports whether the map-load animation has finished.
func (d *Dashboard) TableRevealed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tableRevealed
}

// History returns the mock flight history of a drone.
func (d *Dashboard) History(id string) []assign.Flight {
	return d.gen.History(id)
}

// Snapshot returns every view in one consistent read.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	roster := d.rosterLocked()
	return Snapshot{
		City:          d.city(),
		Viewport:      d.viewport,
		Selected:      d.selected,
		Hovered:       d.hovered,
		Filter:        d.filter,
		TableRevealed: d.tableRevealed,
		Counts:        countsOf(roster),
		Drones:        d.tableLocked(roster),
		Progress:      d.progress.Snapshot(),
	}
}
