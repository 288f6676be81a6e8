package main

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-source record counts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = s.Close()
			}()

			counts, err := s.CountByStatus(cmd.Context())
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Source", "Status", "Count"})
			total := 0
			for _, c := range counts {
				t.AppendRow(table.Row{c.SourceKey, c.Status, c.Count})
				total += c.Count
			}
			t.AppendFooter(table.Row{"total", "", total})
			t.Render()
			return nil
		},
	}
	return cmd
}
