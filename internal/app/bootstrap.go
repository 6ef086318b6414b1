// Package app is the composition root: it wires config, storage, the
// notification pipeline and the HTTP router.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"fieldops.io/fieldops/internal/api/handlers"
	"fieldops.io/fieldops/internal/api/middleware"
	"fieldops.io/fieldops/internal/app/modules"
	"fieldops.io/fieldops/internal/config"
	"fieldops.io/fieldops/internal/infrastructure"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Infra   *modules.Infrastructure
	Modules []modules.Module
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	notificationModule, err := modules.NewNotificationModule(infra)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init notification module: %w", err)
	}
	allModules := []modules.Module{notificationModule}

	workers := river.NewWorkers()
	var periodic []*river.PeriodicJob
	for _, mod := range allModules {
		mod.RegisterWorkers(workers)
		periodic = append(periodic, mod.PeriodicJobs()...)
	}
	if err := infra.InitRiver(workers, periodic); err != nil {
		infra.Close()
		return nil, fmt.Errorf("init river workers: %w", err)
	}

	var limiter middleware.Limiter
	if infra.Redis != nil {
		limiter = middleware.NewRedisLimiter(infra.Redis, cfg.Redis.TriggerLimitPerMinute, time.Minute)
	}

	server := handlers.NewServer(modules.NewServerDeps(allModules))

	return &Application{
		Config:  cfg,
		Router:  newRouter(cfg, server, modules.JWTConfig(cfg.Security), limiter),
		DB:      infra.DB,
		Infra:   infra,
		Modules: allModules,
	}, nil
}
