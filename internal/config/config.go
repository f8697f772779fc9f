package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for medtrack
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Adherence AdherenceConfig `mapstructure:"adherence" yaml:"adherence"`
	Report    ReportConfig    `mapstructure:"report" yaml:"report"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string  `mapstructure:"address" yaml:"address"`
	Port         int     `mapstructure:"port" yaml:"port"`
	ReadTimeout  int     `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout int     `mapstructure:"write_timeout" yaml:"write_timeout"`
	RateLimit    float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // writes per second per user, 0 disables
	RateBurst    int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// StorageConfig selects and configures the persistence backend
type StorageConfig struct {
	Backend         string `mapstructure:"backend" yaml:"backend"` // file, badger, sqlite, memory
	DataDir         string `mapstructure:"data_dir" yaml:"data_dir"`
	MedicationsDir  string `mapstructure:"medications_dir" yaml:"medications_dir"`
	SQLitePath      string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	BadgerPath      string `mapstructure:"badger_path" yaml:"badger_path"`
	BreakerFailures uint32 `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	BreakerTimeout  int    `mapstructure:"breaker_timeout" yaml:"breaker_timeout"` // seconds
}

// AdherenceConfig holds query defaults for the adherence engine
type AdherenceConfig struct {
	DefaultWindowHours int `mapstructure:"default_window_hours" yaml:"default_window_hours"`
	HistoryLimit       int `mapstructure:"history_limit" yaml:"history_limit"`
}

// ReportConfig holds PDF report settings
type ReportConfig struct {
	Title  string `mapstructure:"title" yaml:"title"`
	Footer string `mapstructure:"footer" yaml:"footer"`
}

// LoggingConfig holds zap logger settings
type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

const defaultFooter = "This report is generated from self-reported dose records. " +
	"It is not a clinical record and must not replace advice from a healthcare professional."

// Loaded bundles a Config with the viper instance it came from so callers
// can watch the file for changes.
type Loaded struct {
	*Config
	v *viper.Viper
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Loaded, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.medications_dir", filepath.Join(dataDir, "medications"))
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "medtrack.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "medtrack.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (MEDTRACK_SERVER_PORT, MEDTRACK_STORAGE_BACKEND, etc.)
	v.SetEnvPrefix("MEDTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	return &Loaded{Config: cfg, v: v}, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)

	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.breaker_failures", 5)
	v.SetDefault("storage.breaker_timeout", 30)

	v.SetDefault("adherence.default_window_hours", 24)
	v.SetDefault("adherence.history_limit", 5)

	v.SetDefault("report.title", "Medication Adherence Report")
	v.SetDefault("report.footer", defaultFooter)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "medtrack")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "medtrack")
}

func validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case BackendFile, BackendBadger, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("storage.backend %q is not supported (file, badger, sqlite, memory)", cfg.Storage.Backend)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Adherence.DefaultWindowHours < 0 {
		return fmt.Errorf("adherence.default_window_hours must not be negative")
	}
	if cfg.Adherence.HistoryLimit < 1 {
		return fmt.Errorf("adherence.history_limit must be at least 1")
	}
	if cfg.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}

	return nil
}

// BreakerTimeoutDuration returns the open-state duration of the storage breaker
func (s StorageConfig) BreakerTimeoutDuration() time.Duration {
	return time.Duration(s.BreakerTimeout) * time.Second
}

// Watch re-reads the config file on change and hands the new, validated
// Config to onChange. Invalid edits are reported through onError and the
// previous configuration stays in effect.
func (l *Loaded) Watch(onChange func(*Config), onError func(error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(l.v)
		if err != nil {
			onError(err)
			return
		}
		l.Config = cfg
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// WriteDefault writes a YAML file holding the default configuration
func WriteDefault(path, dataDir string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	v := viper.New()
	setDefaults(v)
	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}
	v.Set("storage.data_dir", dataDir)
	v.Set("storage.medications_dir", filepath.Join(dataDir, "medications"))
	v.Set("storage.sqlite_path", filepath.Join(dataDir, "medtrack.db"))
	v.Set("storage.badger_path", filepath.Join(dataDir, "badger"))

	cfg, err := decode(v)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, out, 0644)
}
