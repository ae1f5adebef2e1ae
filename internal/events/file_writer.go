package events

import (
	"encoding/json"
	"os"
	"sync"
)

// FileWriter appends events to a JSONL file.
type FileWriter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileWriter opens path for appending, creating it if needed.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileWriter{file: f, enc: json.NewEncoder(f)}, nil
}

// WriteEvent logs a single event.
func (f *FileWriter) WriteEvent(e Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enc.Encode(e)
}

// WriteEvents logs multiple events.
func (f *FileWriter) WriteEvents(rows []Event) error {
	for _, e := range rows {
		if err := f.WriteEvent(e); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying file.
func (f *FileWriter) Close() error {
	return f.file.Close()
}
