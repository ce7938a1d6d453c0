package logging

import (
	"context"

	"github.com/google/uuid"

	"github.com/mdl-run/mdl/internal/ports"
)

// NewCorrelationID returns a fresh UUIDv4 suitable for tagging one CLI
// invocation's worth of log output.
func NewCorrelationID() string {
	return uuid.NewString()
}

// WithNewCorrelationID attaches a freshly generated correlation ID to ctx.
func WithNewCorrelationID(ctx context.Context) context.Context {
	return ports.WithCorrelationID(ctx, NewCorrelationID())
}
