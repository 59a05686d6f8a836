package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

// Ingester consumes ingress events. *Monitor implements it.
type Ingester interface {
	Ingest(ctx context.Context, ev Event) error
}

// IngesterFunc adapts a function to Ingester.
type IngesterFunc func(ctx context.Context, ev Event) error

func (f IngesterFunc) Ingest(ctx context.Context, ev Event) error { return f(ctx, ev) }

// ReplayLog feeds JSONL events from r to ing. A speed >0 replays with the
// recorded spacing divided by speed; speed <= 0 inserts no delay. Events the
// ingester rejects are reported through onReject and replay continues.
func ReplayLog(ctx context.Context, r io.Reader, ing Ingester, speed float64, onReject func(Event, error)) (int, error) {
	dec := json.NewDecoder(r)
	var prev time.Time
	n := 0
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		if !prev.IsZero() && speed > 0 {
			diff := time.Duration(float64(ev.Timestamp.Sub(prev)) / speed)
			if diff > 0 {
				select {
				case <-time.After(diff):
				case <-ctx.Done():
					return n, ctx.Err()
				}
			}
		}
		if err := ing.Ingest(ctx, ev); err != nil {
			if onReject != nil {
				onReject(ev, err)
			}
		} else {
			n++
		}
		prev = ev.Timestamp
	}
}

// ReplayLogFile opens a file and replays its events.
func ReplayLogFile(ctx context.Context, path string, ing Ingester, speed float64, onReject func(Event, error)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayLog(ctx, f, ing, speed, onReject)
}

// EventLogWriter records ingress events as JSONL so they can be replayed.
type EventLogWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	f   *os.File
}

// NewEventLogWriter creates path and returns a writer appending events to it.
func NewEventLogWriter(path string) (*EventLogWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &EventLogWriter{enc: json.NewEncoder(f), f: f}, nil
}

// Tee returns an ingester that records each event before passing it on.
func (w *EventLogWriter) Tee(next Ingester) Ingester {
	return IngesterFunc(func(ctx context.Context, ev Event) error {
		w.mu.Lock()
		err := w.enc.Encode(ev)
		w.mu.Unlock()
		if err != nil {
			return err
		}
		return next.Ingest(ctx, ev)
	})
}

// Close closes the log file.
func (w *EventLogWriter) Close() error { return w.f.Close() }
