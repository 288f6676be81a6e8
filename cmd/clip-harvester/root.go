package main

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"clip-harvester/internal/config"
	"clip-harvester/internal/store"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:          "clip-harvester",
	Short:        "Bulk short-form video harvester",
	Long:         "clip-harvester lists creator feeds, filters by hashtags and dates, and downloads new videos with caption sidecars, deduplicating across runs.",
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(newHarvestCmd())
	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newRequeueCmd())
	rootCmd.AddCommand(newDepsCmd())
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel)))
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)
	return log
}

func openStore(cfg config.Config) (*store.Store, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	return store.Open(cfg.DBPath)
}
