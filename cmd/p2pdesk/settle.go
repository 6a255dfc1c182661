package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ecucondorSA/autorenta-sub030/internal/adapters/payment/mercadopago"
	"github.com/ecucondorSA/autorenta-sub030/internal/adapters/venue/binance"
	"github.com/ecucondorSA/autorenta-sub030/internal/application/usecases"
	"github.com/ecucondorSA/autorenta-sub030/internal/concurrency"
	"github.com/ecucondorSA/autorenta-sub030/internal/config"
	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
	"github.com/ecucondorSA/autorenta-sub030/internal/metrics"
)

func settleCmd() *cobra.Command {
	var noGrace bool

	cmd := &cobra.Command{
		Use:   "settle <order-ref-or-url>",
		Short: "Verify the buyer's payment and release one sell order",
		Long: `Fetch a sell order, verify the buyer's incoming transfer and release the
crypto only when amount and sender name match exactly.

Exit codes:
  0  released
  1  failure (nothing released)
  2  browser profile busy
  3  payment not verified (security alert)
  4  2FA not confirmed in time, complete manually
  5  a browser session is logged out, log in and retry`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if noGrace {
				cfg.Settlement.GracePeriod = 0
			}
			return runSettle(cmd, args[0], cfg, newLogger(cmd.ErrOrStderr(), cfg))
		},
	}

	cmd.Flags().BoolVar(&noGrace, "no-grace", false, "close the browser as soon as the run ends")

	return cmd
}

func runSettle(cmd *cobra.Command, ref string, cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager, err := newManager(cfg, cfg.Settlement.Profile, log)
	if err != nil {
		return err
	}

	session, err := manager.Launch(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Error("Failed to close browser session", "error", err)
		}
	}()
	go stopOnLockLoss(ctx, session.Lost(), stop, log)

	clock := concurrency.SystemClock{}

	venueOpts := []binance.Option{binance.WithSettleDelay(cfg.Settlement.PageSettle)}
	if cfg.Settlement.VenueBaseURL != "" {
		venueOpts = append(venueOpts, binance.WithBaseURL(cfg.Settlement.VenueBaseURL))
	}
	venue := binance.New(session.Page(), clock, log, venueOpts...)

	// Second tab in the same context keeps both logins alive side by side
	paymentPage, err := session.NewPage()
	if err != nil {
		return fmt.Errorf("failed to open payment tab: %w", err)
	}
	payment := mercadopago.New(paymentPage, cfg.Settlement.ActivityURL, cfg.Settlement.PageSettle, clock, log)

	orchestrator := usecases.NewSettlementOrchestrator(venue, payment, clock, cfg.Settlement.ReleaseTimeout, log)
	order, settleErr := orchestrator.Settle(ctx, ref)

	if err := printOrder(cmd.OutOrStdout(), order); err != nil {
		log.Warn("Failed to print settlement result", "error", err)
	}

	if grace := cfg.Settlement.GracePeriod; grace > 0 && ctx.Err() == nil {
		log.Info("Leaving browser open for inspection", "grace_period", grace.String(), "state", order.State)
		_ = clock.Sleep(ctx, grace)
	}

	pushMetrics(cfg.Metrics, cfg.Settlement.Profile, log)

	return settleErr
}

// pushMetrics hands the run's counters to the Pushgateway; the process
// exits before any scrape could see them
func pushMetrics(cfg config.MetricsConfig, instance string, log *slog.Logger) {
	if cfg.PushgatewayURL == "" {
		return
	}
	if err := metrics.Push(cfg.PushgatewayURL, cfg.Job, instance); err != nil {
		log.Warn("Failed to push settlement metrics", "error", err)
	}
}

func printOrder(w io.Writer, order *models.SettlementOrder) error {
	if order == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(order)
}
