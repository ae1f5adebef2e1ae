// Package driver sequences the ride lifecycle of the single simulated driver:
// offer, notification, accept or reject, flight, completion and cooldown.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"dronetaxi-sim/internal/assign"
	"dronetaxi-sim/internal/battery"
	"dronetaxi-sim/internal/clock"
	"dronetaxi-sim/internal/config"
	"dronetaxi-sim/internal/events"
	"dronetaxi-sim/internal/fleet"
	"dronetaxi-sim/internal/geo"
	"dronetaxi-sim/internal/progress"
	"dronetaxi-sim/internal/rides"
)

// State is a ride lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateOfferPending State = "offer_pending"
	StateNotified     State = "notified"
	StateAccepted     State = "accepted"
	StateRejected     State = "rejected"
	StateInFlight     State = "in_flight"
	StateCompleted    State = "completed"
	StateCooldown     State = "cooldown"
)

// Status is the headline of the driver card.
type Status string

const (
	StatusDriving  Status = "driving"
	StatusCharging Status = "charging"
	StatusWaiting  Status = "waiting"
)

// Waiting labels.
const (
	LabelPreparing = "Preparing next ride"
	LabelPending   = "Ride request pending"
	LabelWaiting   = "Waiting for rides"
)

var (
	ErrBatteryDepleted   = errors.New("driver: battery depleted, charge before accepting")
	ErrInvalidTransition = errors.New("driver: command not valid in current state")
	ErrInFlight          = errors.New("driver: ride in flight")
)

// Timings are the machine's delays and periods.
type Timings struct {
	Notification time.Duration
	Reject       time.Duration
	Cooldown     time.Duration
	ChargeTick   time.Duration
	Charge       time.Duration
	ProgressTick time.Duration
	ProgressMode progress.Mode
}

// DefaultTimings returns the stock delays: 5s notification, 2s reject, 10s
// cooldown, 5s charge in 100ms ticks and a 500ms progress tick.
func DefaultTimings() Timings {
	return Timings{
		Notification: 5 * time.Second,
		Reject:       2 * time.Second,
		Cooldown:     10 * time.Second,
		ChargeTick:   battery.DefaultChargeTick,
		Charge:       battery.DefaultChargeDuration,
		ProgressTick: progress.DefaultTick,
		ProgressMode: progress.ModeDistance,
	}
}

// TimingsFromConfig maps configured timings onto the machine.
func TimingsFromConfig(t config.Timings) Timings {
	return Timings{
		Notification: t.NotificationDelay,
		Reject:       t.RejectDelay,
		Cooldown:     t.Cooldown,
		ChargeTick:   t.ChargeTick,
		Charge:       t.ChargeDuration,
		ProgressTick: t.ProgressTick,
		ProgressMode: progress.Mode(t.ProgressMode),
	}
}

// Identity describes the driver's drone.
type Identity struct {
	DroneID  string    `json:"drone_id"`
	Name     string    `json:"name"`
	City     string    `json:"city"`
	Center   geo.Coord `json:"center"`
	Position geo.Coord `json:"position"`
}

// IdentityFromConfig resolves the configured driver drone in its city roster.
func IdentityFromConfig(cfg *config.Config) (Identity, error) {
	city := cfg.DriverCity()
	for _, d := range city.Drones {
		if city.DroneID(d) != cfg.Driver.DroneID {
			continue
		}
		return Identity{
			DroneID:  cfg.Driver.DroneID,
			Name:     d.Name,
			City:     city.ID,
			Center:   city.Center,
			Position: geo.Coord{Lat: city.Center.Lat + d.Offset.Lat, Lng: city.Center.Lng + d.Offset.Lng},
		}, nil
	}
	return Identity{}, fmt.Errorf("driver drone %q not found in city %q", cfg.Driver.DroneID, city.ID)
}

// Transition is one state change, delivered to the observer.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	Seq  int       `json:"seq"`
	At   time.Time `json:"at"`
}

// Snapshot is the driver card view.
type Snapshot struct {
	DroneID     string        `json:"drone_id"`
	Name        string        `json:"name"`
	City        string        `json:"city"`
	State       State         `json:"state"`
	Status      Status        `json:"status"`
	Label       string        `json:"label"`
	Battery     int           `json:"battery"`
	Charging    bool          `json:"charging"`
	NeedsCharge bool          `json:"needs_charge"`
	CanAccept   bool          `json:"can_accept"`
	Offer       *assign.Offer `json:"offer,omitempty"`
	Trip        *assign.Trip  `json:"trip,omitempty"`
	Progress    float64       `json:"progress"`
	Position    geo.Coord     `json:"position"`
	Bearing     float64       `json:"bearing"`
	Load        int           `json:"load"`
	Capacity    int           `json:"capacity"`
	StartedAt   time.Time     `json:"started_at,omitzero"`
}

// Machine is the ride offer state machine. Commands are synchronous and safe
// for concurrent use; timer callbacks arrive through the scheduler.
type Machine struct {
	mu       sync.Mutex
	sched    clock.Scheduler
	ident    Identity
	timings  Timings
	gen      *assign.Generator
	battery  *battery.Driver
	charger  *battery.Charger
	progress *progress.Clock
	rides    *rides.Log
	events   events.Writer
	log      *slog.Logger
	observer func(Transition)

	state       State
	seq         int
	offer       *assign.Offer
	active      *assign.Offer
	position    geo.Coord
	startedAt   time.Time
	prompted    int
	needsCharge bool
	completed   *rides.Ride
	timer       clock.CancelFunc
	unsub       func()
	started     bool
	closed      bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithTimings overrides delays; zero fields keep their defaults.
func WithTimings(t Timings) Option {
	return func(m *Machine) {
		def := m.timings
		pick := func(v, d time.Duration) time.Duration {
			if v > 0 {
				return v
			}
			return d
		}
		m.timings = Timings{
			Notification: pick(t.Notification, def.Notification),
			Reject:       pick(t.Reject, def.Reject),
			Cooldown:     pick(t.Cooldown, def.Cooldown),
			ChargeTick:   pick(t.ChargeTick, def.ChargeTick),
			Charge:       pick(t.Charge, def.Charge),
			ProgressTick: pick(t.ProgressTick, def.ProgressTick),
			ProgressMode: def.ProgressMode,
		}
		if t.ProgressMode == progress.ModeDistance || t.ProgressMode == progress.ModeDuration {
			m.timings.ProgressMode = t.ProgressMode
		}
	}
}

// WithGenerator sets the offer generator.
func WithGenerator(g *assign.Generator) Option {
	return func(m *Machine) {
		if g != nil {
			m.gen = g
		}
	}
}

// WithEvents sets the event sink.
func WithEvents(w events.Writer) Option {
	return func(m *Machine) {
		if w != nil {
			m.events = w
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.log = l
		}
	}
}

// WithObserver registers fn for every state transition. fn runs outside the
// machine's lock and may call back into the machine.
func WithObserver(fn func(Transition)) Option {
	return func(m *Machine) { m.observer = fn }
}

// New creates an idle machine. Call Start to generate the first offer.
func New(sched clock.Scheduler, ident Identity, batt *battery.Driver, log *rides.Log, opts ...Option) *Machine {
	m := &Machine{
		sched:    sched,
		ident:    ident,
		timings:  DefaultTimings(),
		gen:      assign.NewGenerator(),
		battery:  batt,
		rides:    log,
		events:   events.Discard,
		log:      slog.Default(),
		state:    StateIdle,
		position: ident.Position,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.charger = battery.NewCharger(sched, m.timings.ChargeTick, m.timings.Charge)
	m.progress = progress.New(sched,
		progress.WithTick(m.timings.ProgressTick),
		progress.WithMode(m.timings.ProgressMode),
		progress.WithLogger(m.log),
		progress.OnComplete(m.onComplete),
	)
	m.unsub = batt.Subscribe(m.onBattery)
	return m
}

// Start generates the first offer. Further calls are no-ops.
func (m *Machine) Start() {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return
	}
	m.started = true
	var ts []Transition
	m.newOfferLocked(&ts)
	m.mu.Unlock()
	m.publish(ts)
}

func (m *Machine) moveLocked(ts *[]Transition, to State) {
	*ts = append(*ts, Transition{From: m.state, To: to, Seq: m.seq, At: m.sched.Now()})
	m.state = to
}

func (m *Machine) cancelTimerLocked() {
	if m.timer != nil {
		m.timer()
		m.timer = nil
	}
}

func (m *Machine) newOfferLocked(ts *[]Transition) {
	m.seq++
	offer := m.gen.Offer(m.ident.DroneID, m.seq, m.ident.Center)
	m.offer = &offer
	m.needsCharge = false
	m.moveLocked(ts, StateOfferPending)
	m.cancelTimerLocked()
	m.timer = m.sched.After(m.timings.Notification, m.notify)
}

func (m *Machine) notify() {
	m.mu.Lock()
	if m.closed || m.state != StateOfferPending {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	var ts []Transition
	m.moveLocked(&ts, StateNotified)
	prompt := m.promptLocked(m.battery.Level())
	m.mu.Unlock()
	m.publish(ts)
	if prompt {
		m.emit(events.Event{Kind: events.KindNeedsCharge, State: string(StateNotified), Message: "battery depleted"})
	}
}

// promptLocked raises the charge prompt at most once per offer.
func (m *Machine) promptLocked(level int) bool {
	if m.state != StateNotified || level > battery.Empty || m.prompted == m.seq {
		return false
	}
	m.prompted = m.seq
	m.needsCharge = true
	return true
}

func (m *Machine) onBattery(level int) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if level > battery.Empty {
		m.needsCharge = false
	}
	prompt := m.promptLocked(level)
	m.mu.Unlock()
	if prompt {
		m.emit(events.Event{Kind: events.KindNeedsCharge, State: string(StateNotified), Message: "battery depleted"})
	}
	// Any write other than the charger's own tick supersedes the charge.
	if m.charger.Active() && level != m.charger.Level() && m.charger.Stop() {
		m.emit(events.Event{Kind: events.KindChargeStopped, Battery: level, Message: "overridden"})
	}
}

// Accept starts flying the notified offer.
func (m *Machine) Accept() error {
	m.mu.Lock()
	switch m.state {
	case StateNotified:
	case StateAccepted, StateInFlight:
		m.mu.Unlock()
		return ErrInFlight
	default:
		m.mu.Unlock()
		return ErrInvalidTransition
	}
	if m.battery.Level() <= battery.Empty {
		m.mu.Unlock()
		return ErrBatteryDepleted
	}
	stoppedCharge := m.charger.Stop()
	var ts []Transition
	m.moveLocked(&ts, StateAccepted)
	m.active, m.offer = m.offer, nil
	m.needsCharge = false
	m.startedAt = m.sched.Now()
	trip := m.active.Trip
	m.progress.Track(progress.Entry{
		ID:         m.ident.DroneID,
		Route:      trip.Route,
		DistanceKM: geo.FlatDistanceKM(trip.Origin.Coord, trip.Destination.Coord),
		Duration:   m.gen.Duration(fmt.Sprintf("%s/offer-%d", m.ident.DroneID, m.seq)),
	})
	m.progress.Start()
	m.moveLocked(&ts, StateInFlight)
	m.mu.Unlock()

	if stoppedCharge {
		m.emit(events.Event{Kind: events.KindChargeStopped, Battery: m.battery.Level(), Message: "ride accepted"})
	}
	m.publish(ts)
	m.log.Info("ride accepted", "drone_id", m.ident.DroneID, "from", trip.Origin.Name, "to", trip.Destination.Name)
	m.emit(events.Event{Kind: events.KindTripStarted, State: string(StateInFlight), Battery: m.battery.Level()})
	return nil
}

// Reject drops the notified offer; a new one is generated after the reject delay.
func (m *Machine) Reject() error {
	m.mu.Lock()
	switch m.state {
	case StateNotified:
	case StateAccepted, StateInFlight:
		m.mu.Unlock()
		return ErrInFlight
	default:
		m.mu.Unlock()
		return ErrInvalidTransition
	}
	var ts []Transition
	m.moveLocked(&ts, StateRejected)
	m.offer = nil
	m.needsCharge = false
	m.moveLocked(&ts, StateIdle)
	m.cancelTimerLocked()
	m.timer = m.sched.After(m.timings.Reject, func() { m.regenerate(StateIdle) })
	m.mu.Unlock()
	m.publish(ts)
	return nil
}

func (m *Machine) regenerate(from State) {
	m.mu.Lock()
	if m.closed || m.state != from {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	var ts []Transition
	m.newOfferLocked(&ts)
	m.mu.Unlock()
	m.publish(ts)
}

func (m *Machine) onComplete(id string) {
	m.mu.Lock()
	if m.closed || m.state != StateInFlight || id != m.ident.DroneID || m.active == nil {
		m.mu.Unlock()
		return
	}
	offer := *m.active
	m.progress.Untrack(id)
	m.progress.Stop()
	m.mu.Unlock()

	ctx := context.Background()
	trip := offer.Trip
	level := battery.Apply(m.battery.Level(), battery.Drain(trip.Origin.Coord, trip.Destination.Coord))
	level = m.battery.Set(ctx, level)
	ride := m.rides.Append(ctx, rides.Ride{
		DroneID:     m.ident.DroneID,
		DroneName:   m.ident.Name,
		Origin:      placeName(trip.Origin, "Origin"),
		Destination: placeName(trip.Destination, "Destination"),
		Passengers:  offer.Passengers,
		CompletedAt: m.sched.Now().UTC(),
		ETA:         offer.ETA,
	})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	var ts []Transition
	m.moveLocked(&ts, StateCompleted)
	m.completed = &ride
	m.active = nil
	m.position = trip.Destination.Coord
	m.moveLocked(&ts, StateCooldown)
	m.cancelTimerLocked()
	m.timer = m.sched.After(m.timings.Cooldown, func() { m.regenerate(StateCooldown) })
	m.mu.Unlock()

	m.publish(ts)
	m.log.Info("ride completed", "drone_id", m.ident.DroneID, "ride_id", ride.ID, "battery", level)
	m.emit(events.Event{Kind: events.KindRideCompleted, State: string(StateCompleted), Battery: level, Progress: 1, Message: ride.ID})
}

func placeName(p geo.Place, def string) string {
	if p.Name == "" {
		return def
	}
	return p.Name
}

// StartCharge begins charging the driver battery. It reports false when the
// battery is already full or a charge is running.
func (m *Machine) StartCharge() (bool, error) {
	m.mu.Lock()
	if m.state == StateAccepted || m.state == StateInFlight {
		m.mu.Unlock()
		return false, ErrInFlight
	}
	level := m.battery.Level()
	started := m.charger.Start(level, m.onChargeLevel, m.onChargeDone)
	m.mu.Unlock()
	if started {
		m.emit(events.Event{Kind: events.KindChargeStarted, Battery: level})
	}
	return started, nil
}

func (m *Machine) onChargeLevel(level int) {
	// A tick computed before an override or stop must not land after it.
	if level < battery.Full && !m.charger.Active() {
		return
	}
	m.battery.Set(context.Background(), level)
}

func (m *Machine) onChargeDone() {
	m.emit(events.Event{Kind: events.KindChargeStopped, Battery: m.battery.Level(), Message: "full"})
}

// StopCharge stops a running charge at the last computed level.
func (m *Machine) StopCharge() bool {
	if !m.charger.Stop() {
		return false
	}
	m.emit(events.Event{Kind: events.KindChargeStopped, Battery: m.battery.Level(), Message: "stopped"})
	return true
}

// SetBattery overrides the driver battery, e.g. to simulate a depleted pack.
// A running charge is stopped at the new level.
func (m *Machine) SetBattery(ctx context.Context, level int) int {
	level = m.battery.Set(ctx, level)
	m.emit(events.Event{Kind: events.KindBatteryUpdated, Battery: level})
	return level
}

// TakeCompleted returns the last completed ride once.
func (m *Machine) TakeCompleted() (rides.Ride, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completed == nil {
		return rides.Ride{}, false
	}
	r := *m.completed
	m.completed = nil
	return r, true
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Identity returns the driver's drone.
func (m *Machine) Identity() Identity { return m.ident }

// Snapshot returns the driver card view.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	level := m.battery.Level()
	charging := m.charger.Active()
	s := Snapshot{
		DroneID:     m.ident.DroneID,
		Name:        m.ident.Name,
		City:        m.ident.City,
		State:       m.state,
		Battery:     level,
		Charging:    charging,
		NeedsCharge: m.needsCharge,
		CanAccept:   m.state == StateNotified && level > battery.Empty,
		Position:    m.position,
		Capacity:    fleet.Capacity(m.ident.Name),
		StartedAt:   m.startedAt,
	}
	if m.offer != nil {
		o := *m.offer
		s.Offer = &o
	}
	if m.active != nil {
		trip := m.active.Trip
		s.Trip = &trip
		s.Load = m.active.Passengers
		if st, ok := m.progress.State(m.ident.DroneID); ok {
			s.Progress = st.Progress
			s.Position = geo.Coord{Lat: st.Lat, Lng: st.Lng}
			s.Bearing = st.Bearing
		}
	}
	s.Status, s.Label = statusOf(m.state, charging, s.Progress, level)
	return s
}

func statusOf(state State, charging bool, p float64, level int) (Status, string) {
	switch {
	case state == StateInFlight || state == StateAccepted:
		return StatusDriving, fmt.Sprintf("%d%% to destination", int(math.Round(p*100)))
	case charging:
		return StatusCharging, fmt.Sprintf("Charging %d%%", level)
	case state == StateCooldown || state == StateCompleted:
		return StatusWaiting, LabelPreparing
	case state == StateNotified:
		return StatusWaiting, LabelPending
	default:
		return StatusWaiting, LabelWaiting
	}
}

// Close cancels every timer and detaches from the battery store.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.cancelTimerLocked()
	m.mu.Unlock()
	m.charger.Stop()
	m.progress.Close()
	m.unsub()
}

func (m *Machine) publish(ts []Transition) {
	for _, t := range ts {
		m.log.Debug("driver state", "from", t.From, "to", t.To, "seq", t.Seq)
		m.emit(events.Event{Time: t.At, Kind: events.KindDriverState, State: string(t.To)})
		if m.observer != nil {
			m.observer(t)
		}
	}
}

func (m *Machine) emit(e events.Event) {
	if e.Time.IsZero() {
		e.Time = m.sched.Now()
	}
	e.DroneID = m.ident.DroneID
	e.City = m.ident.City
	if err := m.events.WriteEvent(e); err != nil {
		m.log.Warn("event write failed", "kind", e.Kind, "err", err)
	}
}
