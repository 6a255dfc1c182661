package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecucondorSA/autorenta-sub030/internal/adapters/cache/redis"
	"github.com/ecucondorSA/autorenta-sub030/internal/adapters/storage/postgresql"
	"github.com/ecucondorSA/autorenta-sub030/internal/adapters/venue/binance"
	simulated "github.com/ecucondorSA/autorenta-sub030/internal/adapters/venue/test"
	"github.com/ecucondorSA/autorenta-sub030/internal/adapters/web"
	"github.com/ecucondorSA/autorenta-sub030/internal/adapters/web/handlers"
	"github.com/ecucondorSA/autorenta-sub030/internal/application/ports"
	"github.com/ecucondorSA/autorenta-sub030/internal/application/usecases"
	"github.com/ecucondorSA/autorenta-sub030/internal/concurrency"
	"github.com/ecucondorSA/autorenta-sub030/internal/config"
	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
)

func monitorCmd() *cobra.Command {
	var (
		mode string
		port int
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll P2P quotes for every active market and serve them over HTTP",
		Long: `Run the price monitor until SIGINT/SIGTERM.

In live mode the monitor drives the configured browser profile and holds its
lock for as long as it runs. Test mode generates quotes and needs no browser.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Monitor.Mode = mode
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runMonitor(cmd.Context(), cfg, newLogger(cmd.ErrOrStderr(), cfg))
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "data mode: live or test (overrides monitor.mode)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides server.port)")

	return cmd
}

func runMonitor(parent context.Context, cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgresql.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	checks := map[string]handlers.Check{"database": store.Ping}

	var cache ports.PriceCache
	if cfg.Cache.Enabled {
		rc, err := redis.New(cfg.Cache)
		if err != nil {
			log.Warn("Cache unavailable, serving prices from storage only", "error", err)
		} else {
			defer rc.Close()
			cache = rc
			checks["cache"] = rc.Ping
		}
	}

	clock := concurrency.SystemClock{}

	var venue ports.TradingVenue
	switch models.DataMode(cfg.Monitor.Mode) {
	case models.DataModeTest:
		venue = simulated.New(time.Now().UnixNano())
	default:
		manager, err := newManager(cfg, cfg.Monitor.Profile, log)
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

		opts := []binance.Option{binance.WithSettleDelay(cfg.Settlement.PageSettle)}
		if cfg.Settlement.VenueBaseURL != "" {
			opts = append(opts, binance.WithBaseURL(cfg.Settlement.VenueBaseURL))
		}
		live := binance.New(session.Page(), clock, log, opts...)
		if err := usecases.VerifySession(ctx, live.GetName(), live); err != nil {
			return err
		}
		venue = live
	}

	monitor := usecases.NewPriceMonitor(store, venue, cache, clock, usecases.PriceMonitorOptions{
		TopN:         cfg.Monitor.TopN,
		IdleWait:     cfg.Monitor.IdleWait,
		MarketDelay:  cfg.Monitor.MarketDelay,
		ErrorBackoff: cfg.Monitor.ErrorBackoff,
	}, log)

	server := web.NewServer(cfg.Server.Port, web.Dependencies{
		Prices:     usecases.NewMarketDataUseCase(store, cache, log),
		Monitor:    monitor,
		Mode:       cfg.Monitor.Mode,
		Profiles:   allProfiles(cfg),
		StaleAfter: cfg.Browser.StaleAfter,
		Checks:     checks,
	}, log.With("component", "http"))

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("HTTP server failed", "error", err)
			serverErr <- err
			stop()
		}
	}()

	if err := monitor.Start(ctx); err != nil {
		return err
	}

	log.Info("Shutting down gracefully...")
	if err := server.Shutdown(context.WithoutCancel(ctx)); err != nil {
		log.Warn("HTTP server shutdown failed", "error", err)
	}

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	default:
	}
	log.Info("Shutdown complete")
	return nil
}
