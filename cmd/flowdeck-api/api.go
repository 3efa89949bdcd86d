// Package main provides the Flowdeck API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/flowdeck/flowdeck/pkg/eventbus"
	"github.com/flowdeck/flowdeck/pkg/gateway"
	"github.com/flowdeck/flowdeck/pkg/ledger"
	"github.com/flowdeck/flowdeck/pkg/locks"
	"github.com/flowdeck/flowdeck/pkg/persistence"
	"github.com/flowdeck/flowdeck/pkg/plans"
	"github.com/flowdeck/flowdeck/pkg/platforms"
	"github.com/flowdeck/flowdeck/pkg/platforms/makecom"
	"github.com/flowdeck/flowdeck/pkg/platforms/n8n"
	"github.com/flowdeck/flowdeck/pkg/platforms/zapier"
	"github.com/flowdeck/flowdeck/pkg/services"
	"github.com/flowdeck/flowdeck/pkg/web"
)

type API struct {
	logger       *slog.Logger
	orchestrator *services.Orchestrator
	validate     *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	locker locks.Locker,
	planCatalogPath string,
) (*API, error) {
	resolver := plans.NewResolver()

	if planCatalogPath != "" {
		loaded, err := plans.NewResolverFromFile(planCatalogPath)
		if err != nil {
			return nil, err
		}

		resolver = loaded
	}

	gw := gateway.NewClient(logger)

	adapters := platforms.NewRegistry(logger)
	adapters.Register(n8n.NewAdapter(gw, logger))
	adapters.Register(makecom.NewAdapter(gw, logger))
	adapters.Register(zapier.NewAdapter(logger))

	ledgerService := ledger.NewService(p, resolver, eventBus, logger)

	orchestrator := services.NewOrchestrator(p, adapters, ledgerService, resolver, locker, eventBus, logger)

	return &API{
		logger:       logger,
		orchestrator: orchestrator,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.orchestrator, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowdeck API")
	})

	t := app.Group("/tenants/:tenantId")

	t.Get("/connections", handlers.GetConnections)
	t.Post("/connections", handlers.CreateConnection)
	t.Delete("/connections/:connectionId", handlers.DeactivateConnection)

	p := t.Group("/platforms/:platform")
	p.Get("/workflows", handlers.GetWorkflows)
	p.Patch("/workflows/:workflowId/status", handlers.SetWorkflowStatus)
	p.Get("/workflows/:workflowId/executions", handlers.GetWorkflowExecutions)

	t.Get("/credits", handlers.GetCreditBalance)
	t.Get("/credits/transactions", handlers.GetCreditTransactions)
	t.Post("/credits/grants", handlers.GrantCredits)
	t.Put("/plan", handlers.ChangePlan)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
