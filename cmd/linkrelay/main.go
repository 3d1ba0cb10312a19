package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"linkrelay/internal/app"
	"linkrelay/internal/config"
	"linkrelay/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (default: $LINKRELAY_CONFIG or built-in defaults)")
	mode := flag.String("mode", app.ModeAll, "which half to run: watcher, publisher or all")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg config.Config
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			logging.New("info").Error("cannot load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.Load()
	}

	logger := logging.New(cfg.Logging.Level)

	watcher := *mode == app.ModeWatcher || *mode == app.ModeAll
	publisher := *mode == app.ModePublisher || *mode == app.ModeAll
	if err := cfg.Validate(watcher, publisher); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	application := app.New(cfg, *mode, logger)
	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
