package events

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	kindStyles = map[Kind]lipgloss.Style{
		KindTripStarted:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		KindTripCompleted:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		KindRideCompleted:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		KindNeedsCharge:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		KindChargeStarted:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		KindChargeStopped:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		KindBatteryUpdated: lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
		KindBatteryReset:   lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
	}
	defaultKindStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	timeStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// TextWriter prints human-friendly, colorized events.
type TextWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTextWriter creates a TextWriter writing to os.Stdout.
func NewTextWriter() *TextWriter {
	return &TextWriter{out: os.Stdout}
}

// FormatText renders e as a single line without trailing newline.
func FormatText(e Event) string {
	style, ok := kindStyles[e.Kind]
	if !ok {
		style = defaultKindStyle
	}
	parts := []string{
		timeStyle.Render(e.Time.Format("15:04:05.000")),
		style.Render(fmt.Sprintf("%-15s", e.Kind)),
	}
	if e.DroneID != "" {
		parts = append(parts, e.DroneID)
	}
	if e.State != "" {
		parts = append(parts, "state="+e.State)
	}
	if e.Battery > 0 || e.Kind == KindBatteryUpdated {
		parts = append(parts, fmt.Sprintf("battery=%d%%", e.Battery))
	}
	if e.Progress > 0 {
		parts = append(parts, fmt.Sprintf("progress=%.0f%%", e.Progress*100))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, " ")
}

// WriteEvent prints one event.
func (w *TextWriter) WriteEvent(e Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintln(w.out, FormatText(e))
	return err
}
