package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ecucondorSA/autorenta-sub030/internal/adapters/browser"
	"github.com/ecucondorSA/autorenta-sub030/internal/application/ports"
	"github.com/ecucondorSA/autorenta-sub030/internal/config"
	"github.com/ecucondorSA/autorenta-sub030/internal/domain/models"
	"github.com/ecucondorSA/autorenta-sub030/internal/logger"
	"github.com/ecucondorSA/autorenta-sub030/internal/profile"
)

// Version is set at build time
var Version = "dev"

// Exit codes reported to schedulers wrapping the CLI
const (
	exitOK       = 0
	exitFailure  = 1
	exitBusy     = 2
	exitMismatch = 3
	exitTimeout  = 4
	exitSession  = 5
)

var configPath string

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "p2pdesk",
		Short:         "P2P desk automation: price monitoring and order settlement",
		Version:       Version,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CONFIG_FILE or configs/config.yaml)")

	root.AddCommand(monitorCmd())
	root.AddCommand(settleCmd())
	root.AddCommand(profilesCmd())

	return root
}

// exitCode maps a command error to the process exit status
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, models.ErrProfileBusy):
		return exitBusy
	case errors.Is(err, models.ErrVerificationMismatch):
		return exitMismatch
	case errors.Is(err, models.ErrReleaseTimeout):
		return exitTimeout
	case errors.Is(err, models.ErrSessionExpired):
		return exitSession
	default:
		return exitFailure
	}
}

// describe turns a command error into an operator-facing line
func describe(err error) string {
	switch {
	case errors.Is(err, models.ErrProfileBusy):
		return fmt.Sprintf("profile busy: another process owns this browser profile, retry later (%v)", err)
	case errors.Is(err, models.ErrVerificationMismatch):
		return fmt.Sprintf("SECURITY ALERT: payment not verified, order was NOT released (%v)", err)
	case errors.Is(err, models.ErrReleaseTimeout):
		return fmt.Sprintf("2FA not confirmed in time, complete the release manually (%v)", err)
	case errors.Is(err, models.ErrSessionExpired):
		return fmt.Sprintf("not logged in: log in to the browser profile and retry, nothing was released (%v)", err)
	case errors.Is(err, models.ErrExtraction):
		return fmt.Sprintf("could not read order details, nothing was released (%v)", err)
	default:
		return fmt.Sprintf("error: %v", err)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath, true)
	}
	return config.Load()
}

// stopOnLockLoss cancels the command once another process has taken the
// browser profile over
func stopOnLockLoss(ctx context.Context, lost <-chan struct{}, stop func(), log *slog.Logger) {
	select {
	case <-lost:
		log.Error("Browser profile taken over by another process, stopping")
		stop()
	case <-ctx.Done():
	}
}

// newLogger writes to stderr so stdout stays machine readable
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	return logger.NewWithWriter(w, cfg.Log.Level)
}

func browserProfile(cfg *config.Config, name string) (models.BrowserProfileConfig, error) {
	p, err := cfg.Profile(name)
	if err != nil {
		return models.BrowserProfileConfig{}, err
	}
	return models.BrowserProfileConfig{
		ProfileName:  name,
		ProfilePath:  p.Path,
		LockFilePath: p.LockFile,
	}, nil
}

func allProfiles(cfg *config.Config) []models.BrowserProfileConfig {
	out := make([]models.BrowserProfileConfig, 0, len(cfg.Profiles))
	for _, name := range cfg.ProfileNames() {
		p, _ := browserProfile(cfg, name)
		out = append(out, p)
	}
	return out
}

func managerOptions(b config.BrowserConfig) profile.Options {
	opts := profile.DefaultOptions()
	opts.StaleAfter = b.StaleAfter
	opts.HeartbeatInterval = b.HeartbeatInterval
	opts.Launch = ports.LaunchOptions{
		Headless:       b.Headless,
		ViewportWidth:  b.ViewportWidth,
		ViewportHeight: b.ViewportHeight,
		Args:           profile.AutomationFlags,
	}
	return opts
}

func newManager(cfg *config.Config, name string, log *slog.Logger) (*profile.Manager, error) {
	prof, err := browserProfile(cfg, name)
	if err != nil {
		return nil, err
	}
	launcher := browser.NewLauncher(cfg.Browser.InstallDrivers, log)
	return profile.NewManager(prof, launcher, managerOptions(cfg.Browser), log), nil
}
