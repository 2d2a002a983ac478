// Package config handles loading and resolving imfs configuration.
// Resolution order (first non-empty value wins):
//  1. CLI flags (--fred-api-key and the per-command flags)
//  2. Environment variables with the IMFS_ prefix (IMFS_DB_PATH, ...),
//     plus FRED_API_KEY; a .env file in the working directory is loaded
//     into the environment first
//  3. config.json in the current working directory
//  4. Built-in defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultConfigFile    = "config.json"
	DefaultFormat        = "table"
	DefaultTimeout       = 30 * time.Second
	DefaultRate          = 5.0
	DefaultAddr          = ":8080"
	DefaultNeuralURL     = "http://localhost:8000"
	DefaultNeuralTimeout = 10 * time.Minute
	DefaultNeuralRate    = 2.0
	DefaultServerRate    = 20.0
	DefaultServerBurst   = 40
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultFREDBaseURL   = "https://api.stlouisfed.org/fred/"

	EnvPrefix = "IMFS"
	EnvAPIKey = "FRED_API_KEY"
	EnvDBPath = "IMFS_DB_PATH"
)

// File is the on-disk representation of config.json. Omitted keys keep
// their defaults.
type File struct {
	FREDAPIKey    string  `json:"fred_api_key"`
	FREDBaseURL   string  `json:"fred_base_url,omitempty"`
	DefaultFormat string  `json:"default_format,omitempty"`
	Timeout       string  `json:"timeout,omitempty"`
	Rate          float64 `json:"rate,omitempty"`
	DBPath        string  `json:"db_path,omitempty"`
	Addr          string  `json:"addr,omitempty"`
	NeuralURL     string  `json:"neural_url,omitempty"`
	NeuralTimeout string  `json:"neural_timeout,omitempty"`
	NeuralRate    float64 `json:"neural_rate,omitempty"`
	ServerRate    float64 `json:"server_rate,omitempty"`
	ServerBurst   int     `json:"server_burst,omitempty"`
	LogLevel      string  `json:"log_level,omitempty"`
	LogFormat     string  `json:"log_format,omitempty"`
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; the File is only read during loading.
type Config struct {
	APIKey        string
	BaseURL       string
	Format        string
	Timeout       time.Duration
	Rate          float64
	DBPath        string
	Addr          string
	NeuralURL     string
	NeuralTimeout time.Duration
	NeuralRate    float64
	ServerRate    float64
	ServerBurst   int
	LogLevel      string
	LogFormat     string
	ConfigPath    string // path of the config.json that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	Quiet   bool
	Verbose bool
	Debug   bool
}

// Load resolves configuration from all sources.
// flagAPIKey is the value of --fred-api-key (empty string if not set).
func Load(flagAPIKey string) (*Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("fred_api_key", EnvPrefix+"_FRED_API_KEY", EnvAPIKey); err != nil {
		return nil, fmt.Errorf("binding %s: %w", EnvAPIKey, err)
	}

	cfg := &Config{}
	path, err := filepath.Abs(DefaultConfigFile)
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("parsing config.json: %w", err)
		}
		cfg.ConfigPath = path
	}

	cfg.APIKey = v.GetString("fred_api_key")
	cfg.BaseURL = v.GetString("fred_base_url")
	cfg.Format = v.GetString("default_format")
	cfg.Timeout = duration(v.GetString("timeout"), DefaultTimeout)
	cfg.Rate = positive(v.GetFloat64("rate"), DefaultRate)
	cfg.DBPath = v.GetString("db_path")
	cfg.Addr = v.GetString("addr")
	cfg.NeuralURL = v.GetString("neural_url")
	cfg.NeuralTimeout = duration(v.GetString("neural_timeout"), DefaultNeuralTimeout)
	cfg.NeuralRate = positive(v.GetFloat64("neural_rate"), DefaultNeuralRate)
	cfg.ServerRate = positive(v.GetFloat64("server_rate"), DefaultServerRate)
	cfg.ServerBurst = v.GetInt("server_burst")
	if cfg.ServerBurst < 1 {
		cfg.ServerBurst = DefaultServerBurst
	}
	cfg.LogLevel = v.GetString("log_level")
	cfg.LogFormat = v.GetString("log_format")

	if flagAPIKey != "" {
		cfg.APIKey = flagAPIKey
	}

	// Set default DB path if still unset
	if cfg.DBPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DBPath = filepath.Join(home, ".imfs", "imfs.db")
		}
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("fred_base_url", DefaultFREDBaseURL)
	v.SetDefault("default_format", DefaultFormat)
	v.SetDefault("timeout", DefaultTimeout.String())
	v.SetDefault("rate", DefaultRate)
	v.SetDefault("db_path", "")
	v.SetDefault("addr", DefaultAddr)
	v.SetDefault("neural_url", DefaultNeuralURL)
	v.SetDefault("neural_timeout", DefaultNeuralTimeout.String())
	v.SetDefault("neural_rate", DefaultNeuralRate)
	v.SetDefault("server_rate", DefaultServerRate)
	v.SetDefault("server_burst", DefaultServerBurst)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_format", DefaultLogFormat)
}

// duration parses s, falling back to def when s is empty or invalid.
func duration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}

func positive(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

// ValidateFRED returns an error if the FRED API key is missing.
// Only commands that download data need it.
func (c *Config) ValidateFRED() error {
	if c.APIKey == "" {
		return errors.New(
			"FRED API key not found.\n\n" +
				"Set it one of these ways:\n" +
				"  1. CLI flag:        imfs --fred-api-key YOUR_KEY ...\n" +
				"  2. Environment:     export FRED_API_KEY=YOUR_KEY\n" +
				"  3. config.json:     {\"fred_api_key\": \"YOUR_KEY\"}\n\n" +
				"Get a free key at https://fred.stlouisfed.org/docs/api/api_key.html",
		)
	}
	return nil
}

// RedactedAPIKey returns the API key with most characters replaced by asterisks.
// Safe for logging and display.
func (c *Config) RedactedAPIKey() string {
	if len(c.APIKey) <= 4 {
		return "****"
	}
	return c.APIKey[:2] + "****" + c.APIKey[len(c.APIKey)-2:]
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config.json via `imfs config init`.
func Template() File {
	return File{
		FREDBaseURL:   DefaultFREDBaseURL,
		DefaultFormat: DefaultFormat,
		Timeout:       "30s",
		Rate:          DefaultRate,
		Addr:          DefaultAddr,
		NeuralURL:     DefaultNeuralURL,
		NeuralTimeout: DefaultNeuralTimeout.String(),
		NeuralRate:    DefaultNeuralRate,
		ServerRate:    DefaultServerRate,
		ServerBurst:   DefaultServerBurst,
		LogLevel:      DefaultLogLevel,
		LogFormat:     DefaultLogFormat,
	}
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
