package events

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
)

// DefaultGreptimeTable receives simulation events.
const DefaultGreptimeTable = "dronetaxi_events"

// greptimeClient is the subset of the ingester client used by the writer.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes events to GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	mu      sync.Mutex
	client  greptimeClient
	table   string
	timeout time.Duration
	log     *slog.Logger
}

// NewGreptimeDBWriter connects to endpoint ("host" or "host:port", gRPC port
// 4001 by default) and writes into database.
func NewGreptimeDBWriter(endpoint, database string, log *slog.Logger) (*GreptimeDBWriter, error) {
	host, port := endpoint, 4001
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		n, perr := strconv.Atoi(p)
		if perr != nil {
			return nil, fmt.Errorf("invalid greptime port %q: %w", p, perr)
		}
		host, port = h, n
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create greptime client: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &GreptimeDBWriter{client: client, table: DefaultGreptimeTable, timeout: 5 * time.Second, log: log}, nil
}

// WriteEvent inserts a single event.
func (w *GreptimeDBWriter) WriteEvent(e Event) error {
	return w.WriteEvents([]Event{e})
}

// WriteEvents inserts multiple events as one table write.
func (w *GreptimeDBWriter) WriteEvents(rows []Event) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := eventTable(w.table, rows)
	if err != nil {
		return err
	}
	timeout := w.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		if w.log != nil {
			w.log.Error("greptime write failed", "rows", len(rows), "err", err)
		}
		return err
	}
	if w.log != nil {
		w.log.Debug("greptime write", "rows", len(rows))
	}
	return nil
}

func eventTable(name string, rows []Event) (*table.Table, error) {
	tbl, err := table.New(name)
	if err != nil {
		return nil, err
	}
	for _, col := range []string{"kind", "drone_id", "city"} {
		if err := tbl.AddTagColumn(col, types.STRING); err != nil {
			return nil, err
		}
	}
	if err := tbl.AddFieldColumn("state", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("battery", types.INT64); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("progress", types.FLOAT64); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("message", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	for _, e := range rows {
		if err := tbl.AddRow(string(e.Kind), e.DroneID, e.City, e.State, int64(e.Battery), e.Progress, e.Message, e.Time); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}
