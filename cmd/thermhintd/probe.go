package main

import (
	"fmt"
	"text/tabwriter"

	"codeberg.org/mutker/thermhint/internal/coordinator"
	"codeberg.org/mutker/thermhint/internal/logger"
	"github.com/spf13/cobra"
)

// probeCmd reports the capability tiers the platform offers
var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Detect platform capabilities and print the selected tiers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := logger.Default()

		app, _, err := buildApplication(cfg, log)
		if err != nil {
			return err
		}

		coord := coordinator.New(
			coordinator.WithLogger(log),
			coordinator.WithRefreshInterval(cfg.RefreshInterval),
		)
		if err := coord.SetApplication(app); err != nil {
			return err
		}
		defer coord.Close()

		caps := coord.Capabilities()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "platform\t%s\n", cfg.Platform)
		fmt.Fprintf(w, "api level\t%d\n", caps.APILevel)
		fmt.Fprintf(w, "thermal tier\t%s\n", caps.Thermal)
		fmt.Fprintf(w, "hint tier\t%s\n", caps.Hint)
		fmt.Fprintf(w, "thread sync\t%s\n", caps.ThreadSync)
		fmt.Fprintf(w, "preferred update rate\t%s\n", caps.PreferredUpdateRate)
		fmt.Fprintf(w, "thermal status\t%s\n", coord.ThermalStatus())
		fmt.Fprintf(w, "thermal headroom\t%.3f\n", coord.ThermalHeadroom())
		return w.Flush()
	},
}
