package events

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// JSONStdoutWriter prints events as JSON lines to STDOUT.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// WriteEvent outputs an event in JSON format.
func (w *JSONStdoutWriter) WriteEvent(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteEvents outputs multiple events in JSON format.
func (w *JSONStdoutWriter) WriteEvents(rows []Event) error {
	for _, e := range rows {
		if err := w.WriteEvent(e); err != nil {
			return err
		}
	}
	return nil
}
