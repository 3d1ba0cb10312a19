// Package app wires configuration into the watcher and publisher halves and
// runs them to completion.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"linkrelay/internal/config"
	"linkrelay/internal/infrastructure/parser"
	"linkrelay/internal/infrastructure/relay"
	"linkrelay/internal/infrastructure/storage"
	"linkrelay/internal/infrastructure/telegram"
	"linkrelay/internal/infrastructure/token"
	"linkrelay/internal/logging"
	"linkrelay/internal/scanner"
	"linkrelay/internal/server"
	"linkrelay/internal/usecase"
)

// Run modes. "all" hosts both halves in one process, which is how the system
// is usually deployed during development.
const (
	ModeWatcher   = "watcher"
	ModePublisher = "publisher"
	ModeAll       = "all"
)

// Application owns both halves of the pipeline and their shared lifecycle.
type Application struct {
	cfg  config.Config
	mode string
	log  *slog.Logger

	stores []*storage.Store
}

// New builds an application for the given mode. Validation is the caller's
// job; New assumes the config is usable.
func New(cfg config.Config, mode string, baseLogger *slog.Logger) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	return &Application{cfg: cfg, mode: mode, log: baseLogger}
}

// Run starts the halves selected by the mode and blocks until the context is
// cancelled or one of them fails. Every half is built before any goroutine
// starts, so a build failure returns with nothing running and store teardown
// cannot race a live half.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.closeStores()

	var runners []func(context.Context) error

	if a.mode == ModePublisher || a.mode == ModeAll {
		run, err := a.buildPublisher()
		if err != nil {
			return err
		}
		runners = append(runners, run)
	}
	if a.mode == ModeWatcher || a.mode == ModeAll {
		run, err := a.buildWatcher()
		if err != nil {
			return err
		}
		runners = append(runners, run)
	}
	if len(runners) == 0 {
		return fmt.Errorf("unknown mode %q", a.mode)
	}

	return runAll(ctx, cancel, runners)
}

// runAll launches every runner and waits for all of them to return, cancelling
// the rest as soon as one stops. The first real failure wins; plain
// cancellation is a clean exit.
func runAll(ctx context.Context, cancel context.CancelFunc, runners []func(context.Context) error) error {
	errCh := make(chan error, len(runners))
	for _, run := range runners {
		go func(run func(context.Context) error) { errCh <- run(ctx) }(run)
	}

	var firstErr error
	for range runners {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
			firstErr = err
		}
		cancel()
	}
	return firstErr
}

func (a *Application) buildWatcher() (func(context.Context) error, error) {
	log := a.log.With("component", "watcher")

	store, err := storage.Open(a.cfg.Watcher.Database, log.With("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("open watcher store: %w", err)
	}
	a.stores = append(a.stores, store)

	issuer := token.NewIssuer(token.Config{
		Secret: a.cfg.Relay.Secret,
		Issuer: "watcher",
		TTL:    a.cfg.Relay.TokenTTL.Std(),
	})
	sink := relay.NewClient(a.cfg.Watcher.PublisherURL, issuer, nil)

	provider := a.cfg.Watcher.Provider
	registry := scanner.NewRegistry()
	registry.Register(
		parser.NewUserTimelineScanner(provider.APIBaseURL, provider.APIKey, provider.PageSize, nil,
			a.log.With("component", "scanner.timeline")),
		parser.NewStreamScanner(provider.APIBaseURL, provider.APIKey, provider.PageSize, nil,
			a.log.With("component", "scanner.stream")),
		parser.NewPageScanner(nil, a.log.With("component", "scanner.page")),
		parser.NewFeedScanner(a.log.With("component", "scanner.feed")),
	)

	sources := make([]scanner.Source, 0, len(a.cfg.Sources))
	for _, src := range a.cfg.Sources {
		sources = append(sources, scanner.Source{
			Name:     src.Name,
			Type:     src.Type,
			Handle:   src.Handle,
			URL:      src.URL,
			Selector: src.Selector,
		})
	}

	poller := usecase.NewPoller(usecase.PollerDeps{
		Registry: registry,
		Sources:  sources,
		Ledger:   store,
		Sink:     sink,
		Interval: a.cfg.Watcher.Interval.Std(),
		Stagger:  a.cfg.Watcher.Stagger.Std(),
		Logger:   a.log.With("component", "poller"),
	})

	return poller.Run, nil
}

func (a *Application) buildPublisher() (func(context.Context) error, error) {
	log := a.log.With("component", "publisher")

	store, err := storage.Open(a.cfg.Publisher.Database, log.With("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("open publisher store: %w", err)
	}
	a.stores = append(a.stores, store)

	queue := usecase.NewQueue()
	verifier := token.NewVerifier(a.cfg.Relay.Secret)
	ingress := server.New(verifier, store, queue, a.log.With("component", "ingress"))

	channel, err := telegram.New(a.cfg.Publisher.Telegram.BotToken, a.log.With("component", "telegram"))
	if err != nil {
		return nil, fmt.Errorf("telegram channel: %w", err)
	}

	dispatcher := usecase.NewDispatcher(usecase.DispatcherDeps{
		Queue:             queue,
		Client:            channel,
		ChannelID:         a.cfg.Publisher.Telegram.ChatID,
		DefaultRetryAfter: a.cfg.Publisher.DefaultRetryAfter.Std(),
		Logger:            a.log.With("component", "dispatcher"),
	})

	httpServer := &http.Server{
		Addr:              a.cfg.Publisher.Listen,
		Handler:           ingress.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return func(ctx context.Context) error {
		serveErr := make(chan error, 1)
		go func() {
			log.Info("ingress listening", "addr", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
				return
			}
			serveErr <- nil
		}()

		dispatchErr := make(chan error, 1)
		go func() { dispatchErr <- dispatcher.Run(ctx) }()

		select {
		case err := <-serveErr:
			return err
		case err := <-dispatchErr:
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
				err = shutdownErr
			}
			return err
		}
	}, nil
}

func (a *Application) closeStores() {
	for _, store := range a.stores {
		if err := store.Close(); err != nil {
			a.log.Warn("store close failed", "error", err)
		}
	}
	a.stores = nil
}
