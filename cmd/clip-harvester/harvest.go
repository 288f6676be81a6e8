package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clip-harvester/internal/download"
	"clip-harvester/internal/enrich"
	"clip-harvester/internal/filter"
	"clip-harvester/internal/listing"
	"clip-harvester/internal/pipeline"
	"clip-harvester/internal/report"
)

func newHarvestCmd() *cobra.Command {
	var (
		sources      []string
		sourcesFile  string
		outputDir    string
		maxItems     int
		tags         []string
		tagMode      string
		days         int
		workers      int
		qualityFloor int
		rateLimit    float64
		cookies      string
	)

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "List, filter, and download new videos from the given sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("output") {
				cfg.OutputDir = outputDir
			}
			if flags.Changed("max-items") {
				cfg.MaxItems = maxItems
			}
			if flags.Changed("tags") {
				cfg.RequiredHashtags = tags
			}
			if flags.Changed("tag-mode") {
				cfg.HashtagMode = tagMode
			}
			if flags.Changed("days") {
				cfg.WindowDays = days
			}
			if flags.Changed("workers") {
				cfg.Workers = workers
			}
			if flags.Changed("quality-floor") {
				cfg.QualityFloor = qualityFloor
			}
			if flags.Changed("rate-limit") {
				cfg.RateLimitMBps = rateLimit
			}
			if flags.Changed("cookies-from-browser") {
				cfg.CookiesFromBrowser = cookies
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if sourcesFile != "" {
				fromFile, err := listing.ReadSourcesFile(sourcesFile)
				if err != nil {
					return err
				}
				sources = append(sources, fromFile...)
			}
			if len(sources) == 0 {
				return fmt.Errorf("no sources: use --source or --sources")
			}

			log := newLogger(cfg)
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = s.Close()
			}()

			sink := report.NewSink(cfg.ErrorLog)
			defer sink.Close()

			mode := filter.MatchAll
			if strings.EqualFold(strings.TrimSpace(cfg.HashtagMode), "any") {
				mode = filter.MatchAny
			}

			p := &pipeline.Pipeline{
				Store: s,
				Sink:  sink,
				Lister: &listing.Lister{
					CookiesFromBrowser: cfg.CookiesFromBrowser,
					Log:                log,
				},
				Enricher: &enrich.Enricher{
					CookiesFromBrowser: cfg.CookiesFromBrowser,
					Log:                log,
				},
				Rules: filter.Rules{
					RequiredHashtags: cfg.RequiredHashtags,
					HashtagMode:      mode,
					WindowDays:       cfg.WindowDays,
				},
				Download: download.Options{
					OutputDir:          cfg.OutputDir,
					Workers:            cfg.Workers,
					CookiesFromBrowser: cfg.CookiesFromBrowser,
					RateLimitMBps:      cfg.RateLimitMBps,
					QualityFloor:       cfg.QualityFloor,
					AttemptTimeout:     10 * time.Minute,
					Log:                log,
				},
				BaseURL:  cfg.BaseURL,
				MaxItems: cfg.MaxItems,
				Log:      log,
			}

			summary, err := p.Harvest(cmd.Context(), sources)
			if err != nil {
				return err
			}

			sink.WriteSummary(os.Stdout)
			fmt.Printf("run %s: %d source(s), %d downloaded, %d failed\n",
				summary.RunID, summary.Sources, summary.Counts.DownloadedOK, summary.Counts.DownloadedFail)
			if summary.Counts.DownloadedFail > 0 {
				fmt.Printf("failures are logged in %s\n", cfg.ErrorLog)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, "source handle or URL (repeatable)")
	cmd.Flags().StringVar(&sourcesFile, "sources", "", "file with one source per line")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "cap listed items per source (0 = all)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "required hashtags")
	cmd.Flags().StringVar(&tagMode, "tag-mode", "all", "hashtag match mode: any or all")
	cmd.Flags().IntVar(&days, "days", 0, "only videos from the last N days (0 = no window)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent downloads")
	cmd.Flags().IntVar(&qualityFloor, "quality-floor", 0, "minimum short side in pixels (0 = off)")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "per-download rate limit in MB/s (0 = off)")
	cmd.Flags().StringVar(&cookies, "cookies-from-browser", "", "browser to read cookies from")

	return cmd
}
