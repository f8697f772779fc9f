package store

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/gmsas95/medtrack/internal/config"
)

// Open creates the backend selected by cfg.Backend. When breaker failures
// are configured the backend is wrapped in a circuit breaker.
func Open(cfg config.StorageConfig, logger *zap.Logger) (Backend, error) {
	var (
		backend Backend
		err     error
	)

	switch cfg.Backend {
	case config.BackendFile, "":
		backend, err = NewFileBackend(cfg.MedicationsDir)
	case config.BackendBadger:
		backend, err = OpenBadger(cfg.BadgerPath)
	case config.BackendSQLite:
		backend, err = OpenSQLite(cfg.SQLitePath)
	case config.BackendMemory:
		backend = NewMemoryBackend()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("Storage backend opened",
		zap.String("backend", Name(backend)),
	)

	if cfg.BreakerFailures == 0 {
		return backend, nil
	}
	return NewBreakerBackend(backend, cfg.BreakerFailures, cfg.BreakerTimeoutDuration(), logger), nil
}
