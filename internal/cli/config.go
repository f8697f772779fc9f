package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gmsas95/medtrack/internal/config"
	"github.com/gmsas95/medtrack/internal/store"
)

// DefaultConfigPath is where `config init` writes when no path is given
func DefaultConfigPath(dataDir string) string {
	if dataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".config", "medtrack", "medtrack.yaml")
		}
		return "medtrack.yaml"
	}
	return filepath.Join(dataDir, "medtrack.yaml")
}

func HandleConfigCommand(args []string, configPath, dataDir string, out io.Writer) error {
	if len(args) == 0 {
		PrintConfigHelp(out)
		return nil
	}

	switch args[0] {
	case "init":
		path := configPath
		if path == "" {
			path = DefaultConfigPath(dataDir)
		}
		if err := config.WriteDefault(path, dataDir); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Wrote default configuration to %s\n", path)

	case "show", "view":
		loaded, err := config.Load(configPath, dataDir)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(loaded.Config)
		if err != nil {
			return err
		}
		fmt.Fprint(out, string(data))

	case "get":
		if len(args) < 2 {
			fmt.Fprintln(out, "Usage: medtrack config get <key>")
			fmt.Fprintln(out, "Example: medtrack config get storage.backend")
			return ErrUsage
		}
		loaded, err := config.Load(configPath, dataDir)
		if err != nil {
			return err
		}
		return printConfigValue(loaded.Config, args[1], out)

	case "path":
		if configPath == "" {
			configPath = DefaultConfigPath(dataDir)
		}
		fmt.Fprintln(out, configPath)

	default:
		PrintConfigHelp(out)
		return ErrUsage
	}
	return nil
}

func printConfigValue(cfg *config.Config, key string, out io.Writer) error {
	switch key {
	case "server.address":
		fmt.Fprintln(out, cfg.Server.Address)
	case "server.port":
		fmt.Fprintln(out, cfg.Server.Port)
	case "storage.backend":
		fmt.Fprintln(out, cfg.Storage.Backend)
	case "storage.data_dir":
		fmt.Fprintln(out, cfg.Storage.DataDir)
	case "storage.medications_dir":
		fmt.Fprintln(out, cfg.Storage.MedicationsDir)
	case "adherence.default_window_hours":
		fmt.Fprintln(out, cfg.Adherence.DefaultWindowHours)
	case "logging.level":
		fmt.Fprintln(out, cfg.Logging.Level)
	default:
		fmt.Fprintf(out, "Unknown key: %s\n", key)
		fmt.Fprintln(out, "Available keys: server.address, server.port, storage.backend, storage.data_dir, storage.medications_dir, adherence.default_window_hours, logging.level")
		return ErrUsage
	}
	return nil
}

// HandleStatusCommand prints version, config and storage locations
func HandleStatusCommand(cfg *config.Config, out io.Writer) {
	fmt.Fprintln(out, "medtrack Status")
	fmt.Fprintln(out, "===============")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Version: %s\n", Version)
	fmt.Fprintf(out, "Data:    %s\n", cfg.Storage.DataDir)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Storage:")
	fmt.Fprintf(out, "  Backend: %s\n", cfg.Storage.Backend)
	switch cfg.Storage.Backend {
	case config.BackendFile:
		fmt.Fprintf(out, "  Path:    %s\n", cfg.Storage.MedicationsDir)
	case config.BackendSQLite:
		fmt.Fprintf(out, "  Path:    %s\n", cfg.Storage.SQLitePath)
	case config.BackendBadger:
		fmt.Fprintf(out, "  Path:    %s\n", cfg.Storage.BadgerPath)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Server Configuration:")
	fmt.Fprintf(out, "  Address: %s:%d\n", cfg.Server.Address, cfg.Server.Port)
	fmt.Fprintf(out, "  URL: http://localhost:%d\n", cfg.Server.Port)
}

// HandleDoctorCommand checks that the data directory is writable and the
// configured backend opens. It returns false when any check failed.
func HandleDoctorCommand(cfg *config.Config, logger *zap.Logger, out io.Writer) bool {
	fmt.Fprintln(out, "medtrack Doctor")
	fmt.Fprintln(out, "===============")
	fmt.Fprintln(out)

	healthy := true
	check := func(name string, err error) {
		if err != nil {
			fmt.Fprintf(out, "✗ %s: %v\n", name, err)
			healthy = false
			return
		}
		fmt.Fprintf(out, "✓ %s\n", name)
	}

	check("Data directory writable", func() error {
		if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
			return err
		}
		f, err := os.CreateTemp(cfg.Storage.DataDir, ".doctor-*")
		if err != nil {
			return err
		}
		f.Close()
		return os.Remove(f.Name())
	}())

	check(fmt.Sprintf("Storage backend %q opens", cfg.Storage.Backend), func() error {
		backend, err := store.Open(cfg.Storage, logger)
		if err != nil {
			return err
		}
		defer backend.Close()
		users, err := backend.List(context.Background())
		if err == nil {
			fmt.Fprintf(out, "  %d user document(s)\n", len(users))
		}
		return err
	}())

	fmt.Fprintln(out)
	if healthy {
		fmt.Fprintln(out, "All checks passed")
	} else {
		fmt.Fprintln(out, "Some checks failed")
	}
	return healthy
}

func PrintConfigHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: medtrack config <command>")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  init        Write a default configuration file")
	fmt.Fprintln(out, "  show        Print the effective configuration")
	fmt.Fprintln(out, "  get <key>   Print one configuration value")
	fmt.Fprintln(out, "  path        Print the configuration file path")
}

func PrintHelp(out io.Writer) {
	fmt.Fprintln(out, "medtrack - medication adherence tracker")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage: medtrack [--config file] [--data dir] <command> [flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  serve                      Run the HTTP API")
	fmt.Fprintln(out, "  add       --name --dosage --frequency [--start] [--end] [--notes]")
	fmt.Fprintln(out, "  list                       List medications")
	fmt.Fprintln(out, "  update    --id [--name] [--dosage] [--frequency] [--start] [--end] [--notes] [--clear-end] [--clear-notes]")
	fmt.Fprintln(out, "  delete    --id             Remove a medication")
	fmt.Fprintln(out, "  take      --id [--at] [--slot]")
	fmt.Fprintln(out, "  miss      --id [--at] [--slot]")
	fmt.Fprintln(out, "  adherence [--id]           Overall or per-medication adherence rate")
	fmt.Fprintln(out, "  due       [--hours]        Medications due within the window")
	fmt.Fprintln(out, "  stats                      Adherence statistics")
	fmt.Fprintln(out, "  report    [--out file]     Write the PDF adherence report")
	fmt.Fprintln(out, "  import    --file [--concurrency] [--strict] [--report file]")
	fmt.Fprintln(out, "  config    <init|show|get|path>")
	fmt.Fprintln(out, "  status                     Show configuration summary")
	fmt.Fprintln(out, "  doctor                     Check data directory and storage backend")
	fmt.Fprintln(out, "  version                    Print version")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Every medication command except import accepts --user (default $MEDTRACK_USER or \"default\").")
}
