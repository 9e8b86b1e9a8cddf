package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"codeberg.org/mutker/thermhint/internal/logger"
	"codeberg.org/mutker/thermhint/internal/metrics"
	"codeberg.org/mutker/thermhint/internal/platform"
	"github.com/spf13/cobra"
)

var historyLimit int

// historyCmd prints recorded frames, newest first
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent frames from the history database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		collector, err := metrics.NewService(metrics.Config{
			Enabled:   true,
			DBPath:    cfg.Metrics.DBPath,
			BatchSize: 1,
		}, logger.Default())
		if err != nil {
			return err
		}
		defer collector.Close()

		frames, err := collector.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSTATUS\tHEADROOM\tACTUAL\tTARGET\tTHREADS\tTIERS\tSESSION")
		for _, f := range frames {
			fmt.Fprintf(w, "%s\t%s\t%.3f\t%s\t%s\t%d\t%s/%s\t%s\n",
				f.Timestamp.Local().Format(time.StampMilli),
				platform.ThermalStatus(f.ThermalStatus),
				f.Headroom,
				f.Actual.Round(time.Microsecond),
				f.Target.Round(time.Microsecond),
				f.Threads,
				f.ThermalTier, f.HintTier,
				f.SessionID,
			)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of frames to show")
}
