package log

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Recorder is the append-only sink for match events (spectators, replay).
// Events for one lobby must be kept in the order given.
type Recorder interface {
	Record(ctx context.Context, events ...GameEvent) error
}

// --- MemoryLogger: stores events in memory for test assertions ---

type MemoryLogger struct {
	mu     sync.Mutex
	events []GameEvent
	seq    int
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

func (l *MemoryLogger) Record(_ context.Context, events ...GameEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, event := range events {
		l.seq++
		event.Seq = l.seq
		l.events = append(l.events, event)
	}
	return nil
}

func (l *MemoryLogger) Events() []GameEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]GameEvent, len(l.events))
	copy(out, l.events)
	return out
}

// OfType filters events by type.
func OfType(events []GameEvent, t EventType) []GameEvent {
	var result []GameEvent
	for _, e := range events {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result
}

// --- TextLogger: writes human-readable lines to an io.Writer ---

type TextLogger struct {
	MemoryLogger
	w io.Writer
}

func NewTextLogger(w io.Writer) *TextLogger {
	return &TextLogger{w: w}
}

func (l *TextLogger) Record(ctx context.Context, events ...GameEvent) error {
	if err := l.MemoryLogger.Record(ctx, events...); err != nil {
		return err
	}
	for _, e := range events {
		if _, err := fmt.Fprintln(l.w, FormatEvent(e)); err != nil {
			return err
		}
	}
	return nil
}

// --- Formatting ---

// FormatEvent formats a single event as a human-readable line.
func FormatEvent(e GameEvent) string {
	phase := e.Phase
	// Pad phase to 12 chars for alignment
	for len(phase) < 12 {
		phase += " "
	}
	return fmt.Sprintf("T%-2d %s| %s", e.Turn, phase, e.Details)
}
