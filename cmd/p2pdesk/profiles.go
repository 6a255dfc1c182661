package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecucondorSA/autorenta-sub030/internal/config"
	"github.com/ecucondorSA/autorenta-sub030/internal/profile"
)

func profilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "Show the lock status of every configured browser profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printProfiles(cmd.OutOrStdout(), cfg, time.Now())
		},
	}
}

func printProfiles(w io.Writer, cfg *config.Config, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROFILE\tSTATE\tPID\tAGE\tLOCK FILE")

	for _, p := range allProfiles(cfg) {
		lockPath := p.LockFilePath
		if lockPath == "" {
			lockPath = profile.DefaultLockPath(p.ProfilePath)
		}

		info, err := profile.Inspect(lockPath, cfg.Browser.StaleAfter, now)
		if err != nil {
			fmt.Fprintf(tw, "%s\terror: %v\t-\t-\t%s\n", p.ProfileName, err, lockPath)
			continue
		}

		switch {
		case !info.Present:
			fmt.Fprintf(tw, "%s\tfree\t-\t-\t%s\n", p.ProfileName, lockPath)
		case info.Stale:
			fmt.Fprintf(tw, "%s\tstale\t%d\t%s\t%s\n", p.ProfileName, info.PID, info.Age.Round(time.Second), lockPath)
		default:
			fmt.Fprintf(tw, "%s\tlocked\t%d\t%s\t%s\n", p.ProfileName, info.PID, info.Age.Round(time.Second), lockPath)
		}
	}

	return tw.Flush()
}
