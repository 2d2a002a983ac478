// Package cmd implements the imfs CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/app"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/config"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/logging"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// Commands read from this struct via the deps they receive.
var globalFlags struct {
	APIKey    string
	Format    string
	Out       string
	DBPath    string
	Timeout   string
	Rate      float64
	LogLevel  string
	LogFormat string
	Profile   string
	Quiet     bool
	Verbose   bool
	Debug     bool
}

// profiler is the running pkg/profile session, if --profile was given.
var profiler interface{ Stop() }

// rootCmd is the base command. Running `imfs` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "imfs",
	Short: "imfs — interactive modeling and forecasting service",
	Long: `imfs fits forecasting models on time series and reconciles their
rolling-origin forecasts into train, validation, test and out-of-sample
segments. It runs as an HTTP service (imfs serve) or as a pipeline-friendly
CLI that reads and writes JSONL.

Series can be imported from FRED®, Federal Reserve Bank of St. Louis;
https://fred.stlouisfed.org/

Quick start:
  imfs config init                              # create a config.json
  imfs fetch UNRATE                             # import a FRED series into the store
  imfs fit arimax --series UNRATE --train-boundary 2019-12-01 \
      --val-boundary 2022-12-01 --horizon 12 --save
  imfs serve                                    # start the HTTP API`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return startProfile(globalFlags.Profile)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		stopProfile()
	},
}

// Execute is the entry point called by main.
func Execute() {
	err := rootCmd.Execute()
	stopProfile()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// startProfile starts a pkg/profile session writing to the working
// directory. mode is one of cpu, mem, block, mutex, trace or goroutine.
func startProfile(mode string) error {
	if mode == "" {
		return nil
	}
	var opt func(*profile.Profile)
	switch strings.ToLower(mode) {
	case "cpu":
		opt = profile.CPUProfile
	case "mem":
		opt = profile.MemProfile
	case "block":
		opt = profile.BlockProfile
	case "mutex":
		opt = profile.MutexProfile
	case "trace":
		opt = profile.TraceProfile
	case "goroutine":
		opt = profile.GoroutineProfile
	default:
		return fmt.Errorf("--profile: unknown mode %q (use cpu, mem, block, mutex, trace, goroutine)", mode)
	}
	profiler = profile.Start(opt, profile.ProfilePath("."), profile.NoShutdownHook)
	return nil
}

func stopProfile() {
	if profiler != nil {
		profiler.Stop()
		profiler = nil
	}
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE.
func buildDeps() (*app.Deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	switch {
	case cfg.Debug:
		level = "debug"
	case cfg.Quiet:
		level = "error"
	}
	logger := logging.Setup(level, cfg.LogFormat, os.Stderr)
	return app.New(cfg, logger), nil
}

// loadConfig resolves config and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globalFlags.APIKey)
	if err != nil {
		return nil, err
	}

	// Apply CLI flag overrides
	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug

	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}
	if globalFlags.DBPath != "" {
		cfg.DBPath = globalFlags.DBPath
	}
	if globalFlags.Timeout != "" {
		if d, err2 := time.ParseDuration(globalFlags.Timeout); err2 == nil {
			cfg.Timeout = d
		}
	}
	if globalFlags.Rate > 0 {
		cfg.Rate = globalFlags.Rate
	}
	if globalFlags.LogLevel != "" {
		cfg.LogLevel = globalFlags.LogLevel
	}
	if globalFlags.LogFormat != "" {
		cfg.LogFormat = globalFlags.LogFormat
	}
	return cfg, nil
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.APIKey, "fred-api-key", "",
		"FRED API key (overrides env FRED_API_KEY and config.json)")
	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json|jsonl|csv|tsv|md (default: table)")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.StringVar(&globalFlags.DBPath, "db", "",
		"path of the local model and series store (default: ~/.imfs/imfs.db)")
	pf.StringVar(&globalFlags.Timeout, "timeout", "",
		"FRED request timeout (e.g. 30s, 2m)")
	pf.Float64Var(&globalFlags.Rate, "rate", 0,
		"max FRED requests per second (default: 5.0)")
	pf.StringVar(&globalFlags.LogLevel, "log-level", "",
		"log level: debug|info|warn|error (default: info)")
	pf.StringVar(&globalFlags.LogFormat, "log-format", "",
		"log format: text|json (default: text)")
	pf.StringVar(&globalFlags.Profile, "profile", "",
		"write a pprof profile to the working directory: cpu|mem|block|mutex|trace|goroutine")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show timing stats after output")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"debug logging, including FRED requests (API key redacted)")
}
