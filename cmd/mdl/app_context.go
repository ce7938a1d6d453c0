package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mdl-run/mdl/internal/infra/events"
	"github.com/mdl-run/mdl/internal/langruntime"
	"github.com/mdl-run/mdl/internal/ports"
)

// AppContext bundles the long-lived services main wires up once at startup:
// the logger, the event publisher every pipeline stage reports through, and
// the language runtime registry the execution engine and retainer executor
// both dispatch scripts via.
type AppContext struct {
	Logger      ports.Logger
	Events      *events.Publisher
	Registry    *langruntime.Registry
	ProjectRoot string
}

// CommandContext returns the command's context (falling back to Background)
// together with a component-scoped logger.
func (a *AppContext) CommandContext(cmd *cobra.Command, component string) (context.Context, ports.Logger) {
	ctx := context.Background()
	if cmd != nil && cmd.Context() != nil {
		ctx = cmd.Context()
	}
	return ctx, a.LoggerFor(component)
}

// LoggerFor derives a child logger scoped to component.
func (a *AppContext) LoggerFor(component string) ports.Logger {
	if a == nil || a.Logger == nil {
		return nil
	}
	return a.Logger.With("component", component)
}
