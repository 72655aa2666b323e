// Package app is the composition root. Bootstrap stays orchestration-only;
// construction lives in the modules package.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"chatpilot.io/pilot/internal/api/handlers"
	"chatpilot.io/pilot/internal/api/openapi"
	"chatpilot.io/pilot/internal/app/modules"
	"chatpilot.io/pilot/internal/config"
	"chatpilot.io/pilot/internal/infrastructure"
	"chatpilot.io/pilot/internal/pkg/worker"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Pools   *worker.Pools
	Modules []modules.Module

	infra       *modules.Infrastructure
	maintenance *modules.MaintenanceModule
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	doc, err := openapi.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}

	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	billing := modules.NewBillingModule(infra)
	maintenance := modules.NewMaintenanceModule(infra)

	workers := river.NewWorkers()
	billing.RegisterWorkers(workers)
	maintenance.RegisterWorkers(workers)
	if err := infra.InitRiver(workers); err != nil {
		infra.Close()
		return nil, fmt.Errorf("init river workers: %w", err)
	}

	// The ledger picks its alert dispatcher from the River client, so it is
	// built only after InitRiver.
	chat, err := modules.NewChatModule(ctx, infra, billing.BuildLedger())
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init chat module: %w", err)
	}

	allModules := []modules.Module{billing, chat, maintenance}
	server := handlers.NewServer(modules.NewServerDeps(infra, allModules))

	router, err := newRouter(cfg, server, modules.NewJWTConfig(cfg), doc)
	if err != nil {
		infra.Close()
		return nil, err
	}

	return &Application{
		Config:      cfg,
		Router:      router,
		DB:          infra.DB,
		Pools:       infra.Pools,
		Modules:     allModules,
		infra:       infra,
		maintenance: maintenance,
	}, nil
}
