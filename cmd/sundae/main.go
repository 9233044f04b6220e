package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/opensundae/opensundae/cmd/sundae/commands"
	"github.com/opensundae/opensundae/pkg/environ"
	"github.com/opensundae/opensundae/pkg/pipeline"
	"github.com/opensundae/opensundae/pkg/recon"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	// Setup structured logging
	setupLogging()

	// Create context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown. Cancellation takes
	// effect at the next stage boundary; the run is recorded cancelled.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Received interrupt signal, shutting down...")
		cancel()
	}()

	// Execute root command
	if err := commands.Execute(ctx, Version, Commit, BuildDate); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy onto process exit codes so CI can
// branch on the failure class: 2 validation, 3 partial apply, 4 run
// already in progress, 1 everything else.
func exitCode(err error) int {
	var inProgress *pipeline.RunInProgressError
	var partial *recon.PartialApplyError
	var validation environ.ValidationErrors
	var unknownEnv *environ.UnknownEnvironmentError
	var classified *recon.Error

	switch {
	case errors.As(err, &inProgress):
		return 4
	case errors.As(err, &partial):
		return 3
	case errors.As(err, &validation), errors.As(err, &unknownEnv):
		return 2
	case errors.As(err, &classified) && classified.Code == recon.ErrCodeValidation:
		return 2
	default:
		return 1
	}
}

// setupLogging configures zerolog for structured logging
func setupLogging() {
	// Use console writer for human-readable output
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Set log level from environment or default to Info
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
