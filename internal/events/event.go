// Package events carries simulation events to pluggable sinks.
package events

import "time"

// Kind names an event type.
type Kind string

const (
	KindTripStarted    Kind = "trip_started"
	KindTripCompleted  Kind = "trip_completed"
	KindBatteryUpdated Kind = "battery_updated"
	KindBatteryReset   Kind = "battery_reset"
	KindCitySelected   Kind = "city_selected"
	KindDriverState    Kind = "driver_state"
	KindRideCompleted  Kind = "ride_completed"
	KindChargeStarted  Kind = "charge_started"
	KindChargeStopped  Kind = "charge_stopped"
	KindNeedsCharge    Kind = "needs_charge"
)

// Event is one simulation occurrence. Unused fields are left zero.
type Event struct {
	Time     time.Time `json:"ts"`
	Kind     Kind      `json:"kind"`
	DroneID  string    `json:"drone_id,omitempty"`
	City     string    `json:"city,omitempty"`
	State    string    `json:"state,omitempty"`
	Battery  int       `json:"battery,omitempty"`
	Progress float64   `json:"progress,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Writer consumes events.
type Writer interface {
	WriteEvent(Event) error
}

// Optional: writers can also support batch mode
type batchWriter interface {
	WriteEvents([]Event) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(Event) error

// WriteEvent calls f.
func (f WriterFunc) WriteEvent(e Event) error { return f(e) }

// Discard drops every event.
var Discard Writer = WriterFunc(func(Event) error { return nil })
