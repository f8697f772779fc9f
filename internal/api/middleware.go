package api

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	apperrors "github.com/gmsas95/medtrack/internal/errors"
)

// userLimiter hands out one token bucket per user id
type userLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newUserLimiter(perSecond float64, burst int) *userLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &userLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *userLimiter) allow(userID string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// rateLimit throttles writes per user. Reads are not limited.
func (s *Server) rateLimit(c *fiber.Ctx) error {
	if s.limiter == nil {
		return c.Next()
	}
	if !s.limiter.allow(c.Params("user")) {
		return s.fail(c, apperrors.ErrRateLimited)
	}
	return c.Next()
}

// validateUser rejects user ids that cannot be stored safely
func (s *Server) validateUser(c *fiber.Ctx) error {
	if err := s.inputs.ValidateUserID(c.Params("user")); err != nil {
		return s.fail(c, err)
	}
	return c.Next()
}
