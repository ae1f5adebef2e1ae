package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"
)

// Replay reads JSONL events from r and writes them to w. A speed >0 keeps the
// recorded spacing divided by speed; speed <= 0 replays without delay.
func Replay(ctx context.Context, r io.Reader, w Writer, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var prev time.Time
	n := 0
	for {
		var e Event
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		if !prev.IsZero() && speed > 0 {
			if err := wait(ctx, time.Duration(float64(e.Time.Sub(prev))/speed)); err != nil {
				return n, err
			}
		}
		if err := w.WriteEvent(e); err != nil {
			return n, err
		}
		n++
		prev = e.Time
	}
}

// ReplayFile opens path and replays its events.
func ReplayFile(ctx context.Context, path string, w Writer, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return Replay(ctx, f, w, speed)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
