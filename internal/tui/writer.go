// Package tui renders the simulated driver in the terminal with bubbletea.
package tui

import (
	"fmt"
	"os"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"dronetaxi-sim/internal/events"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// eventMsg carries a simulation event for the log viewport.
type eventMsg struct{ events.Event }

// Writer forwards events into a running bubbletea program.
type Writer struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewWriter starts the driver TUI. Quitting the TUI interrupts the process so
// the command's signal handling shuts the simulation down.
func NewWriter(ctrl Controller, today RideSource) *Writer {
	w := &Writer{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newModel(ctrl, today), tea.WithAltScreen())
	w.program = p
	go func() {
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "tui: %v\n", err)
		}
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// WriteEvent implements events.Writer.
func (w *Writer) WriteEvent(e events.Event) error {
	w.program.Send(eventMsg{e})
	return nil
}

// WriteEvents implements batch mode.
func (w *Writer) WriteEvents(list []events.Event) error {
	for _, e := range list {
		w.program.Send(eventMsg{e})
	}
	return nil
}

// Close stops the program and waits for it to restore the terminal.
func (w *Writer) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}
