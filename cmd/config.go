package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/config"
	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage imfs configuration",
	Long: `Read and write the configuration stored in config.json in the working
directory. Environment variables (IMFS_<KEY>, FRED_API_KEY) and flags
override the file.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config.json in the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config.json already exists at %s (delete it first to re-initialise)", path)
		}
		if err := config.WriteFile(path, config.Template()); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Created %s\n", path)
		fmt.Fprintln(out, "  Set fred_api_key to import series from FRED.")
		fmt.Fprintln(out, "  Get a free key at: https://fred.stlouisfed.org/docs/api/api_key.html")
		return nil
	},
}

var configGetShowSecrets bool

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the resolved configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		apiKey := "(not set)"
		switch {
		case cfg.APIKey != "" && configGetShowSecrets:
			apiKey = cfg.APIKey
		case cfg.APIKey != "":
			apiKey = cfg.RedactedAPIKey()
		}
		src := "(not found)"
		if cfg.ConfigPath != "" {
			src = cfg.ConfigPath
		}

		table := model.Table{
			Header: []string{"KEY", "VALUE"},
			Rows: [][]string{
				{"fred_api_key", apiKey},
				{"fred_base_url", cfg.BaseURL},
				{"default_format", cfg.Format},
				{"timeout", cfg.Timeout.String()},
				{"rate", fmt.Sprintf("%.1f req/s", cfg.Rate)},
				{"db_path", cfg.DBPath},
				{"addr", cfg.Addr},
				{"neural_url", cfg.NeuralURL},
				{"neural_timeout", cfg.NeuralTimeout.String()},
				{"neural_rate", fmt.Sprintf("%.1f req/s", cfg.NeuralRate)},
				{"server_rate", fmt.Sprintf("%.1f req/s", cfg.ServerRate)},
				{"server_burst", strconv.Itoa(cfg.ServerBurst)},
				{"log_level", cfg.LogLevel},
				{"log_format", cfg.LogFormat},
				{"config_file", src},
			},
		}
		return emit(cmd, cfg.Format, newResult(model.KindTable, "config get", table, len(table.Rows), time.Now()))
	},
}

// configSetters maps every writable config.json key to its parser.
var configSetters = map[string]func(f *config.File, val string) error{
	"fred_api_key":   func(f *config.File, v string) error { f.FREDAPIKey = v; return nil },
	"fred_base_url":  func(f *config.File, v string) error { f.FREDBaseURL = v; return nil },
	"default_format": func(f *config.File, v string) error { f.DefaultFormat = v; return nil },
	"timeout":        durationSetter(func(f *config.File) *string { return &f.Timeout }),
	"rate":           floatSetter(func(f *config.File) *float64 { return &f.Rate }),
	"db_path":        func(f *config.File, v string) error { f.DBPath = v; return nil },
	"addr":           func(f *config.File, v string) error { f.Addr = v; return nil },
	"neural_url":     func(f *config.File, v string) error { f.NeuralURL = v; return nil },
	"neural_timeout": durationSetter(func(f *config.File) *string { return &f.NeuralTimeout }),
	"neural_rate":    floatSetter(func(f *config.File) *float64 { return &f.NeuralRate }),
	"server_rate":    floatSetter(func(f *config.File) *float64 { return &f.ServerRate }),
	"server_burst": func(f *config.File, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("server_burst must be a positive integer")
		}
		f.ServerBurst = n
		return nil
	},
	"log_level":  func(f *config.File, v string) error { f.LogLevel = v; return nil },
	"log_format": func(f *config.File, v string) error { f.LogFormat = v; return nil },
}

func durationSetter(field func(*config.File) *string) func(*config.File, string) error {
	return func(f *config.File, v string) error {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid duration %q (e.g. 30s, 2m)", v)
		}
		*field(f) = v
		return nil
	}
}

func floatSetter(field func(*config.File) *float64) func(*config.File, string) error {
	return func(f *config.File, v string) error {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			return fmt.Errorf("%q must be a positive number", v)
		}
		*field(f) = r
		return nil
	}
}

func configKeys() []string {
	keys := make([]string, 0, len(configSetters))
	for k := range configSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in config.json",
	Args:  cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return configKeys(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.ToLower(args[0])
		if key == "api_key" || key == "format" {
			key = map[string]string{"api_key": "fred_api_key", "format": "default_format"}[key]
		}
		set, ok := configSetters[key]
		if !ok {
			return fmt.Errorf("unknown config key %q\n\nValid keys: %s", args[0], strings.Join(configKeys(), ", "))
		}

		path := config.DefaultConfigFile
		f, err := loadConfigFile(path)
		if os.IsNotExist(err) {
			f, err = config.Template(), nil
		}
		if err != nil {
			return err
		}
		if err := set(&f, args[1]); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if err := config.WriteFile(path, f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s in %s\n", key, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configGetCmd.Flags().BoolVar(&configGetShowSecrets, "show-secrets", false, "show the FRED API key in plain text")
}

// loadConfigFile reads a config.json as written by config init.
func loadConfigFile(path string) (config.File, error) {
	var f config.File
	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parsing %s: %w", path, err)
	}
	return f, nil
}
