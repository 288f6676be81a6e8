package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"clip-harvester/internal/fetcher"
)

func newDepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check that the external tools are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := fetcher.DependencyStatus()

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Tool", "Found", "Path"})
			t.AppendRow(table.Row{"yt-dlp", report.FetcherFound, report.FetcherPath})
			t.AppendRow(table.Row{"ffprobe", report.ProberFound, report.ProberPath})
			t.Render()

			if !report.FetcherFound || !report.ProberFound {
				return fmt.Errorf("missing external tools")
			}
			return nil
		},
	}
	return cmd
}
