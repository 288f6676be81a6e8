package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clip-harvester/internal/filter"
	"clip-harvester/internal/pipeline"
)

func newSweepCmd() *cobra.Command {
	var (
		minSeconds int
		maxSeconds int
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete downloaded videos outside the duration bounds",
		Long:  "sweep probes every downloaded file and deletes the media/caption pair for videos outside the duration bounds. Records are kept so the videos are never downloaded again.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			bounds := filter.DurationBounds{
				MinSeconds: cfg.MinDurationSeconds,
				MaxSeconds: cfg.MaxDurationSeconds,
			}
			if cmd.Flags().Changed("min-seconds") {
				bounds.MinSeconds = minSeconds
			}
			if cmd.Flags().Changed("max-seconds") {
				bounds.MaxSeconds = maxSeconds
			}
			if !bounds.Enabled() {
				return fmt.Errorf("nothing to sweep: set --min-seconds and/or --max-seconds")
			}

			log := newLogger(cfg)
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = s.Close()
			}()

			result, err := pipeline.Sweep(cmd.Context(), s, bounds, log)
			if err != nil {
				return err
			}
			fmt.Printf("checked %d, deleted %d, kept %d, missing %d\n",
				result.Checked, result.Deleted, result.Kept, result.Missing)
			return nil
		},
	}

	cmd.Flags().IntVar(&minSeconds, "min-seconds", 0, "delete videos shorter than this")
	cmd.Flags().IntVar(&maxSeconds, "max-seconds", 0, "delete videos longer than this")

	return cmd
}
