package logging

import (
	"context"
	"sync"

	"github.com/mdl-run/mdl/internal/ports"
)

const defaultBufferLimit = 1000

type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarn
	levelError
)

type bufferedEntry struct {
	level  logLevel
	msg    string
	fields []interface{}
}

// EventBuffer absorbs log lines emitted before the CLI has resolved its
// final logger configuration (level, JSON vs. human, output writer), then
// replays them once a real Logger is available. The mdl CLI does not use it:
// main resolves -v/--verbose from its arguments before building the logger.
type EventBuffer struct {
	mu     sync.Mutex
	limit  int
	events []bufferedEntry
}

// NewEventBuffer creates a buffer with the given capacity (default 1000).
func NewEventBuffer(limit int) *EventBuffer {
	if limit <= 0 {
		limit = defaultBufferLimit
	}
	return &EventBuffer{limit: limit, events: make([]bufferedEntry, 0, limit)}
}

func (b *EventBuffer) add(entry bufferedEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == b.limit {
		copy(b.events, b.events[1:])
		b.events[len(b.events)-1] = entry
		return
	}
	b.events = append(b.events, entry)
}

func (b *EventBuffer) Debug(msg string, fields ...interface{}) { b.add(bufferedEntry{levelDebug, msg, fields}) }
func (b *EventBuffer) Info(msg string, fields ...interface{})  { b.add(bufferedEntry{levelInfo, msg, fields}) }
func (b *EventBuffer) Warn(msg string, fields ...interface{})  { b.add(bufferedEntry{levelWarn, msg, fields}) }
func (b *EventBuffer) Error(msg string, fields ...interface{}) { b.add(bufferedEntry{levelError, msg, fields}) }

// Flush replays buffered events into delegate in original order, then empties
// the buffer.
func (b *EventBuffer) Flush(delegate ports.Logger) {
	if delegate == nil {
		return
	}
	b.mu.Lock()
	events := make([]bufferedEntry, len(b.events))
	copy(events, b.events)
	b.events = b.events[:0]
	b.mu.Unlock()

	ctx := context.Background()
	for _, entry := range events {
		switch entry.level {
		case levelDebug:
			delegate.Debug(ctx, entry.msg, entry.fields...)
		case levelInfo:
			delegate.Info(ctx, entry.msg, entry.fields...)
		case levelWarn:
			delegate.Warn(ctx, entry.msg, entry.fields...)
		case levelError:
			delegate.Error(ctx, entry.msg, entry.fields...)
		}
	}
}
