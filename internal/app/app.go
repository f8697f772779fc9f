package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gmsas95/medtrack/internal/adherence"
	"github.com/gmsas95/medtrack/internal/api"
	"github.com/gmsas95/medtrack/internal/config"
	"github.com/gmsas95/medtrack/internal/medication"
	"github.com/gmsas95/medtrack/internal/metrics"
	"github.com/gmsas95/medtrack/internal/report"
	"github.com/gmsas95/medtrack/internal/store"
)

type App struct {
	Config      *config.Config
	Backend     store.Backend
	Medications *medication.Store
	Engine      *adherence.Engine
	Reports     *report.Renderer
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	Level       zap.AtomicLevel
	Version     string
}

// NewLogger builds the process logger from config. quiet raises the floor
// to warn, which keeps one-shot CLI commands free of startup chatter.
func NewLogger(cfg config.LoggingConfig, quiet bool) (*zap.Logger, zap.AtomicLevel, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, level, fmt.Errorf("invalid logging.level: %w", err)
	}
	if quiet && level.Level() < zapcore.WarnLevel {
		level.SetLevel(zapcore.WarnLevel)
	}
	zcfg.Level = level

	logger, err := zcfg.Build()
	if err != nil {
		return nil, level, err
	}
	return logger, level, nil
}

// Bootstrap opens the configured backend and loads every user document
func Bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger, level zap.AtomicLevel, version string) (*App, error) {
	backend, err := store.Open(cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.Default()
	meds := medication.NewStore(backend, logger, medication.WithMetrics(m))
	if err := meds.Load(ctx); err != nil {
		backend.Close()
		return nil, err
	}

	return &App{
		Config:      cfg,
		Backend:     backend,
		Medications: meds,
		Engine:      adherence.NewEngine(meds, adherence.WithHistoryLimit(cfg.Adherence.HistoryLimit)),
		Reports:     report.NewRenderer(cfg.Report.Title, cfg.Report.Footer),
		Metrics:     m,
		Logger:      logger,
		Level:       level,
		Version:     version,
	}, nil
}

func (app *App) Close() error {
	return app.Backend.Close()
}

func (app *App) newServer() *api.Server {
	return api.New(app.Config, api.Deps{
		Medications: app.Medications,
		Engine:      app.Engine,
		Reports:     app.Reports,
		Metrics:     app.Metrics,
		Backend:     store.Name(app.Backend),
		Version:     app.Version,
	}, app.Logger)
}

// applyReload pushes the settings that can change at runtime onto the
// running components.
func (app *App) applyReload(server *api.Server, cfg *config.Config) {
	server.SetDefaultWindow(cfg.Adherence.DefaultWindowHours)
	if lvl, err := zapcore.ParseLevel(cfg.Logging.Level); err == nil {
		app.Level.SetLevel(lvl)
	}
	app.Logger.Info("Configuration reloaded",
		zap.Int("default_window_hours", cfg.Adherence.DefaultWindowHours),
		zap.String("log_level", cfg.Logging.Level),
	)
}

// RunServer serves HTTP until SIGINT or SIGTERM. When loaded is non-nil the
// config file is watched and reloadable settings are applied live.
func (app *App) RunServer(loaded *config.Loaded) error {
	server := app.newServer()

	if loaded != nil {
		loaded.Watch(
			func(cfg *config.Config) { app.applyReload(server, cfg) },
			func(err error) {
				app.Logger.Warn("Ignoring invalid configuration change", zap.Error(err))
			},
		)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	app.Logger.Info("Server started",
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
		zap.String("backend", store.Name(app.Backend)),
		zap.String("url", fmt.Sprintf("http://localhost:%d", app.Config.Server.Port)),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	app.Logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}
	return nil
}
