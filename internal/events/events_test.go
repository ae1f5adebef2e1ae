package events

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"dronetaxi-sim/internal/logging"
)

var ts = time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)

func TestJSONStdoutWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &JSONStdoutWriter{out: &buf}
	if err := w.WriteEvents([]Event{
		{Time: ts, Kind: KindTripCompleted, DroneID: "LON-DR-012", Progress: 1},
		{Time: ts, Kind: KindBatteryUpdated, DroneID: "LON-DR-012", Battery: 51},
	}); err != nil {
		t.Fatalf("WriteEvents: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	var e Event
	if err := json.Unmarshal([]byte(lines[1]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Kind != KindBatteryUpdated || e.Battery != 51 {
		t.Errorf("unexpected event: %+v", e)
	}
	if !strings.Contains(lines[0], `"kind":"trip_completed"`) {
		t.Errorf("missing kind: %s", lines[0])
	}
}

func TestFileWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	for i := 0; i < 2; i++ {
		w, err := NewFileWriter(path)
		if err != nil {
			t.Fatalf("NewFileWriter: %v", err)
		}
		if err := w.WriteEvent(Event{Time: ts, Kind: KindDriverState, State: "idle"}); err != nil {
			t.Fatalf("WriteEvent: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	if n != 2 {
		t.Fatalf("expected 2 lines, got %d", n)
	}
}

type recorder struct{ events []Event }

func (r *recorder) WriteEvent(e Event) error {
	r.events = append(r.events, e)
	return nil
}

func TestMultiWriterContinuesAfterError(t *testing.T) {
	rec := &recorder{}
	failing := WriterFunc(func(Event) error { return errors.New("boom") })
	mw := NewMultiWriter(failing, nil, rec)
	err := mw.WriteEvent(Event{Kind: KindRideCompleted})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(rec.events) != 1 {
		t.Fatalf("second writer not called: %+v", rec.events)
	}
	if err := NewMultiWriter(rec, Discard).WriteEvents([]Event{{}, {}}); err != nil {
		t.Fatalf("WriteEvents: %v", err)
	}
	if len(rec.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(rec.events))
	}
}

type mockGreptimeClient struct {
	table *table.Table
	err   error
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	if len(tables) > 0 {
		m.table = tables[0]
	}
	return &gpb.GreptimeResponse{}, m.err
}

func TestGreptimeWriterBuildsTable(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, table: DefaultGreptimeTable, log: logging.Discard()}
	err := w.WriteEvents([]Event{
		{Time: ts, Kind: KindTripCompleted, DroneID: "AUH-DR-007", City: "abu-dhabi", Progress: 1},
		{Time: ts, Kind: KindBatteryUpdated, DroneID: "AUH-DR-007", Battery: 47},
	})
	if err != nil {
		t.Fatalf("WriteEvents: %v", err)
	}
	if m.table == nil {
		t.Fatal("expected table to be captured")
	}
	rows := m.table.GetRows()
	if len(rows.Schema) != 8 {
		t.Fatalf("unexpected schema length: %d", len(rows.Schema))
	}
	if rows.Schema[0].Datatype != gpb.ColumnDataType_STRING {
		t.Errorf("kind column type = %v", rows.Schema[0].Datatype)
	}
	if len(rows.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows.Rows))
	}
	if got := rows.Rows[0].Values[1].GetStringValue(); got != "AUH-DR-007" {
		t.Errorf("drone_id = %q", got)
	}
	if got := rows.Rows[1].Values[4].GetI64Value(); got != 47 {
		t.Errorf("battery = %d", got)
	}
}

func TestGreptimeWriterPropagatesError(t *testing.T) {
	m := &mockGreptimeClient{err: errors.New("unavailable")}
	w := &GreptimeDBWriter{client: m, table: DefaultGreptimeTable, log: logging.Discard()}
	if err := w.WriteEvent(Event{Time: ts, Kind: KindCitySelected}); err == nil {
		t.Fatal("expected error")
	}
	if err := w.WriteEvents(nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}
