package main

import (
	"context"
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"

	"github.com/flowdeck/flowdeck/pkg/plans"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the reset schedule and plan catalog without starting the daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "reset-schedule",
				Usage: "Cron expression for the monthly allowance reset",
				Value: defaultResetSchedule,
			},
			&cli.StringFlag{
				Name:  "plan-catalog",
				Usage: "Path to a plan catalog JSON file; empty selects the built-in catalog",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			schedule := command.String("reset-schedule")

			if _, err := cron.ParseStandard(schedule); err != nil {
				return fmt.Errorf("invalid reset schedule %q: %w", schedule, err)
			}

			_, _ = fmt.Fprintf(os.Stdout, "Reset schedule %q is valid\n", schedule)

			resolver := plans.NewResolver()

			if path := command.String("plan-catalog"); path != "" {
				loaded, err := plans.NewResolverFromFile(path)
				if err != nil {
					return fmt.Errorf("invalid plan catalog: %w", err)
				}

				resolver = loaded
			}

			for _, tier := range resolver.Tiers() {
				allocation, err := resolver.Allocation(tier)
				if err != nil {
					return err
				}

				_, _ = fmt.Fprintf(os.Stdout, "  tier %-8s allocation %d\n", tier, allocation)
			}

			return nil
		},
	}
}
