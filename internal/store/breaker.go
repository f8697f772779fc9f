package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/medtrack/internal/errors"
)

// BreakerBackend guards Get and Put with a circuit breaker. After the
// configured number of consecutive failures calls fail fast with
// ErrStorageUnavailable until the open timeout elapses.
type BreakerBackend struct {
	next Backend
	cb   *gobreaker.CircuitBreaker[[]byte]
}

func NewBreakerBackend(next Backend, failures uint32, timeout time.Duration, logger *zap.Logger) *BreakerBackend {
	if failures == 0 {
		failures = 5
	}
	settings := gobreaker.Settings{
		Name:        "store-" + Name(next),
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A missing document or a caller cancellation says nothing about
		// backend health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Storage circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &BreakerBackend{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

func (b *BreakerBackend) Name() string { return Name(b.next) }

// State returns the current breaker state
func (b *BreakerBackend) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerBackend) Get(ctx context.Context, userID string) ([]byte, error) {
	doc, err := b.cb.Execute(func() ([]byte, error) {
		return b.next.Get(ctx, userID)
	})
	return doc, translateBreakerErr(err)
}

func (b *BreakerBackend) Put(ctx context.Context, userID string, doc []byte) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.next.Put(ctx, userID, doc)
	})
	return translateBreakerErr(err)
}

// List runs once at startup and is not guarded.
func (b *BreakerBackend) List(ctx context.Context) ([]string, error) {
	return b.next.List(ctx)
}

func (b *BreakerBackend) Close() error {
	return b.next.Close()
}

func translateBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.Wrap(err, apperrors.ErrStorageUnavailable.Code, apperrors.ErrStorageUnavailable.Message)
	}
	return err
}
