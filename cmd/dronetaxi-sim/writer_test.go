package main

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"dronetaxi-sim/internal/assign"
	"dronetaxi-sim/internal/config"
	"dronetaxi-sim/internal/driver"
	"dronetaxi-sim/internal/events"
	"dronetaxi-sim/internal/logging"
	"dronetaxi-sim/internal/rides"
)

func TestNewWritersPrintOnly(t *testing.T) {
	w, cleanup, err := newWriters(config.Env{GreptimeEndpoint: "localhost:4001"}, output{PrintOnly: true}, logging.Discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	cleanup()
	if _, ok := w.(*events.JSONStdoutWriter); !ok {
		t.Fatalf("expected *events.JSONStdoutWriter, got %T", w)
	}
}

func TestNewWritersGreptimeFallback(t *testing.T) {
	w, cleanup, err := newWriters(config.Env{}, output{}, logging.Discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	cleanup()
	if _, ok := w.(*events.JSONStdoutWriter); !ok {
		t.Fatalf("expected *events.JSONStdoutWriter, got %T", w)
	}
}

func TestNewWritersLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	w, cleanup, err := newWriters(config.Env{}, output{PrintOnly: true, LogFile: path}, logging.Discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	defer cleanup()
	if _, ok := w.(*events.MultiWriter); !ok {
		t.Fatalf("expected *events.MultiWriter, got %T", w)
	}
	if err := w.WriteEvent(events.Event{Time: time.Now(), Kind: events.KindBatteryReset}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected log file to be non-empty")
	}
}

func TestNewWritersPretty(t *testing.T) {
	w, cleanup, err := newWriters(config.Env{}, output{Pretty: true}, logging.Discard())
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	cleanup()
	if _, ok := w.(*events.TextWriter); !ok {
		t.Fatalf("expected *events.TextWriter, got %T", w)
	}
}

func TestTUIWritersWithoutFile(t *testing.T) {
	w, cleanup, err := tuiWriters("")
	if err != nil {
		t.Fatalf("tuiWriters returned error: %v", err)
	}
	cleanup()
	if _, ok := w.(*events.FileWriter); ok {
		t.Fatalf("expected no file writer without a log file")
	}
	if err := w.WriteEvent(events.Event{Kind: events.KindDriverState}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestLateWriterDropsUntilSet(t *testing.T) {
	var got []events.Kind
	l := &lateWriter{}
	if err := l.WriteEvent(events.Event{Kind: events.KindDriverState}); err != nil {
		t.Fatalf("write before set: %v", err)
	}
	l.set(events.WriterFunc(func(e events.Event) error {
		got = append(got, e.Kind)
		return nil
	}))
	l.WriteEvent(events.Event{Kind: events.KindRideCompleted})
	if len(got) != 1 || got[0] != events.KindRideCompleted {
		t.Fatalf("unexpected events %v", got)
	}
}

type fakeAcceptor struct {
	mu       sync.Mutex
	accepts  int
	charges  int
	depleted bool
	done     chan struct{}
}

func (f *fakeAcceptor) Accept() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepts++
	if f.depleted {
		return driver.ErrBatteryDepleted
	}
	f.done <- struct{}{}
	return nil
}

func (f *fakeAcceptor) StartCharge() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges++
	f.depleted = false
	f.done <- struct{}{}
	return true, nil
}

func TestAutoAcceptChargesWhenDepleted(t *testing.T) {
	f := &fakeAcceptor{depleted: true, done: make(chan struct{}, 4)}
	w := autoAccept(f, events.Discard, logging.Discard())

	w.WriteEvent(events.Event{Kind: events.KindDriverState, State: string(driver.StateOfferPending)})
	w.WriteEvent(events.Event{Kind: events.KindDriverState, State: string(driver.StateNotified)})
	waitFor(t, f.done)
	w.WriteEvent(events.Event{Kind: events.KindChargeStopped, Message: "full"})
	waitFor(t, f.done)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accepts != 2 || f.charges != 1 {
		t.Fatalf("expected 2 accepts and 1 charge, got %d and %d", f.accepts, f.charges)
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatalf("timed out")
	}
}

func TestRenderRides(t *testing.T) {
	list := []rides.Ride{
		{ID: "a", DroneID: "AUH-DR-011", Origin: "Louvre Abu Dhabi", Destination: "Yas Marina", Passengers: 2, CompletedAt: time.Now()},
		{ID: "b", DroneID: "AUH-DR-011", Origin: "Yas Marina", Destination: "Corniche Beach", Passengers: 3, CompletedAt: time.Now()},
	}
	out := renderRides(list)
	for _, want := range []string{"Louvre Abu Dhabi", "Corniche Beach", "2 rides, 5 passengers"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderHistory(t *testing.T) {
	gen := assign.NewGenerator()
	out := renderHistory("LON-DR-001", gen.History("LON-DR-001"))
	if !strings.Contains(out, "LON-DR-001") || !strings.Contains(out, "Status") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
