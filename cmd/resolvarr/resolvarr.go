// Package resolvarr wires the service together and supervises its lifetime.
package resolvarr

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dylanmazurek/resolvarr/internal/config"
	"github.com/dylanmazurek/resolvarr/internal/logger"
	"github.com/dylanmazurek/resolvarr/pkg/debrid"
	"github.com/dylanmazurek/resolvarr/pkg/debrid/store"
	"github.com/dylanmazurek/resolvarr/pkg/server"
	"github.com/dylanmazurek/resolvarr/pkg/version"
	"github.com/rs/zerolog"
)

// Start runs the service until the context is canceled or a component fails.
func Start(ctx context.Context) error {
	cfg := config.Get()
	_log := logger.Default()

	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Printf(`
+----------------------------------------------+
|  resolvarr %s
|  provider: %s (%s)
|  log level: %s
+----------------------------------------------+
`, version.GetInfo(), cfg.Provider.Name, cfg.Provider.Host, cfg.LogLevel)

	availStore, err := store.Open(cfg.StoreFile(), cfg.Availability.RecheckWindow())
	if err != nil {
		return err
	}
	defer func() {
		if err := availStore.Close(); err != nil {
			_log.Error().Err(err).Msg("error closing availability store")
		}
	}()

	svc := debrid.New(availStore)
	srv := server.New(svc)

	svcCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := svc.StartWorker(svcCtx); err != nil {
		return fmt.Errorf("starting availability worker: %w", err)
	}

	errCh := make(chan error, 1)
	safeGo(_log, errCh, func() error {
		return srv.Start(svcCtx)
	})

	select {
	case <-ctx.Done():
		_log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			_log.Error().Err(err).Msg("component failed, shutting down")
			cancel()
			stopWorker(_log, svc)
			return err
		}
	}

	cancel()

	// Give the HTTP server a moment to drain before the worker and store go.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer drainCancel()
	select {
	case <-errCh:
	case <-drainCtx.Done():
	}

	stopWorker(_log, svc)
	return nil
}

func stopWorker(log zerolog.Logger, svc *debrid.Service) {
	if err := svc.Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping availability worker")
	}
}

// safeGo runs fn on a goroutine, converting panics into errors so one
// component cannot take the process down silently.
func safeGo(log zerolog.Logger, errCh chan<- error, fn func() error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
				errCh <- fmt.Errorf("panic: %v", r)
			}
		}()
		errCh <- fn()
	}()
}
