package events

import "errors"

// MultiWriter fans events out to multiple writers.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a new MultiWriter, skipping nil writers.
func NewMultiWriter(ws ...Writer) *MultiWriter {
	mw := &MultiWriter{}
	for _, w := range ws {
		if w != nil {
			mw.writers = append(mw.writers, w)
		}
	}
	return mw
}

// WriteEvent sends an event to all writers. Every writer is tried; errors are joined.
func (mw *MultiWriter) WriteEvent(e Event) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteEvent(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteEvents sends multiple events to all writers, using batch if supported.
func (mw *MultiWriter) WriteEvents(rows []Event) error {
	var errs []error
	for _, w := range mw.writers {
		if bw, ok := w.(batchWriter); ok {
			if err := bw.WriteEvents(rows); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		for _, r := range rows {
			if err := w.WriteEvent(r); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
