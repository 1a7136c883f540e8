package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"boothpay/internal/app"
	"boothpay/internal/config"
	"boothpay/internal/logger"
	"boothpay/internal/service"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "paymentctl",
		Short:        "Operate booth payments: charge, reconcile, sweep",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg := config.Load()
			logger.Init(cfg.LogLevel, cfg.LogFormat)
		},
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(chargeCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(auditCmd())

	return root
}

// withApp connects to every backend, runs fn and closes them again
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg := config.Load()
	a, err := app.New(cfg, app.Options{ClientID: cfg.NATS.ClientID + "-ctl"})
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(cmd.Context(), a)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.DB.RunMigrations(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}

func chargeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "charge [booking-id]",
		Short: "Create or return the payment session of a booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookingID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || bookingID <= 0 {
				return fmt.Errorf("invalid booking id %q", args[0])
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Services.Charges.Charge(ctx, bookingID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Pull gateway status and settle bookings",
	}
	cmd.AddCommand(reconcileOrderCmd())
	cmd.AddCommand(reconcileSweepCmd())
	return cmd
}

func reconcileOrderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "order [order-id]",
		Short: "Reconcile a single order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Services.Reconciler.ReconcileOne(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
}

type sweepLine struct {
	OrderID string                   `json:"order_id"`
	Result  *service.ReconcileResult `json:"result,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

func reconcileSweepCmd() *cobra.Command {
	var (
		maxAge time.Duration
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reconcile stale PENDING bookings, oldest first",
		Long: `Reconcile PENDING bookings older than --max-age.

Each order is reconciled independently; a failing order is reported and the
sweep moves on. Exits non-zero if any order failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				items, err := a.Services.Reconciler.ReconcileSweep(ctx, maxAge, limit)
				if err != nil {
					return err
				}

				lines := make([]sweepLine, 0, len(items))
				failed := 0
				for _, item := range items {
					line := sweepLine{OrderID: item.OrderID, Result: item.Result}
					if item.Err != nil {
						line.Error = item.Err.Error()
						failed++
					}
					lines = append(lines, line)
				}
				if err := printJSON(cmd.OutOrStdout(), lines); err != nil {
					return err
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d orders failed to reconcile", failed, len(items))
				}
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", service.DefaultSweepMaxAge, "only bookings pending longer than this")
	cmd.Flags().IntVar(&limit, "limit", service.DefaultSweepLimit, "maximum bookings per sweep")

	return cmd
}

func auditCmd() *cobra.Command {
	var size int

	cmd := &cobra.Command{
		Use:   "audit [order-id]",
		Short: "Show the gateway snapshots observed for an order, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Search == nil {
					return fmt.Errorf("audit index is disabled, set ELASTICSEARCH_ENABLED=true")
				}
				docs, err := a.Search.History(ctx, args[0], size)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), docs)
			})
		},
	}

	cmd.Flags().IntVar(&size, "size", 20, "maximum snapshots to show")

	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
