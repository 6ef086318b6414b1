package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"fieldops.io/fieldops/internal/pkg/logger"
)

// Start begins consuming River jobs, including the periodic notification cleanup.
func (a *Application) Start(ctx context.Context) error {
	if a.DB == nil || a.DB.RiverClient == nil {
		return nil
	}
	if err := a.DB.RiverClient.Start(ctx); err != nil {
		return fmt.Errorf("start river client: %w", err)
	}
	logger.Info("background jobs started", zap.Int("modules", len(a.Modules)))
	return nil
}

// Shutdown stops job consumption first so no cleanup runs against a closing
// pool, then lets modules drain (pending event publishes), then closes the
// database and Redis. Every step runs; the failures are joined.
func (a *Application) Shutdown(ctx context.Context) error {
	var errs []error

	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop river client: %w", err))
		}
	}

	for _, mod := range a.Modules {
		if mod == nil {
			continue
		}
		if err := mod.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown module %s: %w", mod.Name(), err))
		}
	}

	if a.Infra != nil {
		a.Infra.Close()
	} else if a.DB != nil {
		a.DB.Close()
	}

	err := errors.Join(errs...)
	if err != nil {
		logger.Warn("application shutdown incomplete", zap.Error(err))
	}
	return err
}
