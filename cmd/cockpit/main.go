package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"cockpit/internal/bootstrap"
	"cockpit/internal/cli"
	"cockpit/internal/config"
	"cockpit/internal/logging"
	"cockpit/internal/output"
)

func main() {
	if err := run(); err != nil {
		formatter := output.NewFormatter(os.Stderr)
		formatter.Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadCockpit()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logOpts := []logging.Option{
		logging.Name("cockpit"),
		logging.Path(cfg.Log.Path),
		logging.Level(cfg.Log.Level),
		logging.Console(nil),
	}
	// Console logs would interleave with command output unless asked for.
	if cfg.Log.Level == "debug" {
		logOpts = append(logOpts, logging.Console(os.Stderr))
	}
	logger, err := logging.New(logOpts...)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	sink := cli.NewEventSink(output.NewFormatter(os.Stderr), logger)
	app, err := bootstrap.BuildCockpit(cfg, sink, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return fmt.Errorf("initializing app: %w", err)
	}
	defer func() { _ = app.Close() }()

	deps := &cli.Dependencies{
		App:    app,
		Config: cfg,
		Sink:   sink,
	}

	return cli.NewRootCmd(deps).Execute()
}
