package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/mdl-run/mdl/internal/infra/events"
	"github.com/mdl-run/mdl/internal/infra/logging"
	"github.com/mdl-run/mdl/internal/langruntime"
	"github.com/mdl-run/mdl/internal/ports"
)

func main() {
	level := "info"
	for _, a := range os.Args[1:] {
		if a == "-v" || a == "--verbose" {
			level = "debug"
		}
	}

	appLogger := logging.New(logging.Options{Level: level, Component: "cli"})
	correlationID := uuid.NewString()
	ctx := ports.WithCorrelationID(context.Background(), correlationID)

	publisher := events.New()

	app := &AppContext{
		Logger:   appLogger,
		Events:   publisher,
		Registry: langruntime.NewRegistry(),
	}

	rootCmd := newRootCmd(app)
	appLogger.Info(ctx, "starting mdl", "pid", os.Getpid())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
