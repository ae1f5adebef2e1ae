package main

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"dronetaxi-sim/internal/config"
	"dronetaxi-sim/internal/driver"
	"dronetaxi-sim/internal/events"
)

// output holds the event sink flags shared by the commands.
type output struct {
	PrintOnly bool
	Pretty    bool
	LogFile   string
}

func (o *output) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.PrintOnly, "print-only", false, "Print events to STDOUT instead of writing to GreptimeDB")
	cmd.Flags().BoolVar(&o.Pretty, "pretty", false, "Print colorized text instead of JSON lines")
	cmd.Flags().StringVar(&o.LogFile, "log-file", "", "Path to export events (JSONL)")
}

// newWriters sets up the event writer based on flags and env vars.
// It returns the writer and a cleanup function to close any resources.
func newWriters(env config.Env, o output, log *slog.Logger) (events.Writer, func(), error) {
	cleanup := func() {}

	writer, err := baseWriter(env, o, log)
	if err != nil {
		return nil, nil, err
	}
	if o.LogFile == "" {
		return writer, cleanup, nil
	}
	fw, err := events.NewFileWriter(o.LogFile)
	if err != nil {
		return nil, nil, err
	}
	cleanup = func() { fw.Close() }
	return events.NewMultiWriter(writer, fw), cleanup, nil
}

// baseWriter chooses the underlying writer based on the print flags and env vars.
func baseWriter(env config.Env, o output, log *slog.Logger) (events.Writer, error) {
	if o.PrintOnly || env.GreptimeEndpoint == "" {
		if o.Pretty {
			return events.NewTextWriter(), nil
		}
		return events.NewJSONStdoutWriter(), nil
	}
	return events.NewGreptimeDBWriter(env.GreptimeEndpoint, env.GreptimeDatabase, log)
}

// lateWriter forwards to a writer attached after construction. Events written
// before set are dropped.
type lateWriter struct {
	mu sync.RWMutex
	w  events.Writer
}

func (l *lateWriter) set(w events.Writer) {
	l.mu.Lock()
	l.w = w
	l.mu.Unlock()
}

func (l *lateWriter) WriteEvent(e events.Event) error {
	l.mu.RLock()
	w := l.w
	l.mu.RUnlock()
	if w == nil {
		return nil
	}
	return w.WriteEvent(e)
}

// acceptor is the part of the driver machine used by autoAccept.
type acceptor interface {
	Accept() error
	StartCharge() (bool, error)
}

// autoAccept wraps next so every shown ride request is accepted. A depleted
// battery is charged first and the request accepted once charging finishes.
func autoAccept(m acceptor, next events.Writer, log *slog.Logger) events.Writer {
	accept := func() {
		err := m.Accept()
		if errors.Is(err, driver.ErrBatteryDepleted) {
			if _, err := m.StartCharge(); err != nil {
				log.Warn("auto charge failed", "err", err)
			}
			return
		}
		if err != nil {
			log.Warn("auto accept failed", "err", err)
		}
	}
	return events.WriterFunc(func(e events.Event) error {
		err := next.WriteEvent(e)
		switch {
		case e.Kind == events.KindDriverState && e.State == string(driver.StateNotified):
			go accept()
		case e.Kind == events.KindChargeStopped && e.Message == "full":
			go accept()
		}
		return err
	})
}

// tuiWriters returns the event sink used next to the TUI: only the optional
// JSONL export, since stdout belongs to the terminal UI.
func tuiWriters(logFile string) (events.Writer, func(), error) {
	if logFile == "" {
		return events.Discard, func() {}, nil
	}
	fw, err := events.NewFileWriter(logFile)
	if err != nil {
		return nil, nil, err
	}
	return fw, func() { fw.Close() }, nil
}
