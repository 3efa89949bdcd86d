// Package main provides the Flowdeck scheduler: a cron-driven daemon that
// resets every tenant's monthly regular allowance.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowdeck/flowdeck/pkg/eventbus"
	"github.com/flowdeck/flowdeck/pkg/ledger"
	"github.com/flowdeck/flowdeck/pkg/persistence"
	"github.com/flowdeck/flowdeck/pkg/plans"
)

// Scheduler sweeps every credit account on a cron schedule and overwrites
// each regular balance with the tier's allocation.
type Scheduler struct {
	id           string
	persistence  persistence.Persistence
	ledger       *ledger.Service
	schedule     string
	logger       *slog.Logger
	restartCount int
}

// NewScheduler creates a new Scheduler instance. The schedule is validated
// up front so a bad expression fails at startup, not at the first reset.
func NewScheduler(
	id string,
	p persistence.Persistence,
	eventBus eventbus.EventBus,
	schedule string,
	planCatalogPath string,
	logger *slog.Logger,
) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, err
	}

	resolver := plans.NewResolver()

	if planCatalogPath != "" {
		loaded, err := plans.NewResolverFromFile(planCatalogPath)
		if err != nil {
			return nil, err
		}

		resolver = loaded
	}

	return &Scheduler{
		id:          id,
		persistence: p,
		ledger:      ledger.NewService(p, resolver, eventBus, logger),
		schedule:    schedule,
		logger:      logger.With("module", "scheduler"),
	}, nil
}

// Start begins the scheduler service.
func (s *Scheduler) Start(ctx context.Context) {
	sCtx, cancel := context.WithCancel(ctx)

	s.logger.Info("Starting scheduler", "schedule", s.schedule)

	s.handleSignals(sCtx, cancel)
	s.run(sCtx)
}

// handleSignals sets up signal handling for graceful shutdown and restart.
func (s *Scheduler) handleSignals(ctx context.Context, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		s.logger.Info("Received signal", "signal", sig)

		switch sig {
		case syscall.SIGHUP:
			s.logger.Info("Reloading configuration...")
			s.restart(ctx, cancel)
		case syscall.SIGINT, syscall.SIGTERM:
			s.logger.Info("Shutting down gracefully...")
			s.stop(cancel)
			os.Exit(0)
		default:
			s.logger.Warn("Unhandled signal received", "signal", sig)
		}
	}()
}

// restart handles service restart with exponential backoff.
func (s *Scheduler) restart(ctx context.Context, cancel context.CancelFunc) {
	s.restartCount++
	newCtx := context.WithoutCancel(ctx)

	s.stop(cancel)

	if s.restartCount > 5 {
		s.logger.Error("Restart limit reached, exiting...")
		os.Exit(1)
	}

	backoff := time.Duration(s.restartCount) * time.Second
	s.logger.Info("Restarting scheduler...", "backoff", backoff)
	time.Sleep(backoff)

	s.Start(newCtx)
}

// run installs the cron entry and blocks until the context is cancelled.
func (s *Scheduler) run(ctx context.Context) {
	runner := cron.New()

	_, err := runner.AddFunc(s.schedule, func() {
		if err := s.ResetAllAccounts(ctx); err != nil {
			s.logger.Error("Monthly reset sweep failed", "error", err)
		}
	})
	if err != nil {
		s.logger.Error("Failed to register reset schedule", "error", err)

		return
	}

	runner.Start()

	<-ctx.Done()
	s.logger.Info("Scheduler context cancelled, stopping...")

	stopCtx := runner.Stop()
	<-stopCtx.Done()
}

// ResetAllAccounts sweeps every credit account and applies the monthly
// allowance reset. A failing tenant is logged and skipped; one bad account
// must not starve the rest of the fleet.
func (s *Scheduler) ResetAllAccounts(ctx context.Context) error {
	started := time.Now()

	tenantIDs, err := s.persistence.CreditAccountTenantIDs(ctx)
	if err != nil {
		return err
	}

	s.logger.Info("Starting monthly allowance reset", "accounts", len(tenantIDs))

	reset := 0
	failed := 0

	for _, tenantID := range tenantIDs {
		if _, err := s.ledger.ApplyMonthlyReset(ctx, tenantID); err != nil {
			s.logger.Error("Failed to reset allowance", "tenant_id", tenantID, "error", err)
			failed++

			continue
		}

		reset++
	}

	s.logger.Info("Monthly allowance reset finished",
		"reset", reset, "failed", failed, "duration", time.Since(started))

	return nil
}

// stop gracefully shuts down the scheduler.
func (s *Scheduler) stop(cancel context.CancelFunc) {
	s.logger.Info("Stopping scheduler")

	if cancel != nil {
		cancel()
	}
}
