package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/gmsas95/medtrack/internal/app"
	"github.com/gmsas95/medtrack/internal/cli"
	"github.com/gmsas95/medtrack/internal/config"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	flag.Usage = func() { cli.PrintHelp(os.Stderr) }
	flag.Parse()

	cli.Version = version

	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	config.ApplyEnvAliases()

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"serve"}
	}

	if err := run(args[0], args[1:]); err != nil {
		if !errors.Is(err, cli.ErrUsage) {
			fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		}
		os.Exit(1)
	}
}

func run(name string, args []string) error {
	switch name {
	case "help", "--help", "-h":
		cli.PrintHelp(os.Stdout)
		return nil
	case "version", "--version", "-v":
		fmt.Printf("medtrack version %s\n", version)
		return nil
	case "config":
		return cli.HandleConfigCommand(args, *configPath, *dataDir, os.Stdout)
	}

	loaded, err := config.Load(*configPath, *dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch name {
	case "status":
		cli.HandleStatusCommand(loaded.Config, os.Stdout)
		return nil
	case "doctor":
		logger, _, err := app.NewLogger(loaded.Logging, true)
		if err != nil {
			return err
		}
		defer logger.Sync()
		if !cli.HandleDoctorCommand(loaded.Config, logger, os.Stdout) {
			return cli.ErrUsage
		}
		return nil
	case "serve":
		application, err := initApp(loaded, false)
		if err != nil {
			return err
		}
		defer application.Close()
		return application.RunServer(loaded)
	}

	if !cli.IsCommand(name) {
		cli.PrintHelp(os.Stderr)
		return fmt.Errorf("unknown command %q", name)
	}

	application, err := initApp(loaded, true)
	if err != nil {
		return err
	}
	defer application.Close()
	return cli.NewRunner(application, os.Stdout).Run(context.Background(), name, args)
}

func initApp(loaded *config.Loaded, quiet bool) (*app.App, error) {
	logger, level, err := app.NewLogger(loaded.Logging, quiet)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	logger.Info("Starting medtrack",
		zap.String("version", version),
		zap.String("backend", loaded.Storage.Backend),
	)

	return app.Bootstrap(context.Background(), loaded.Config, logger, level, version)
}
