package service

import (
	"context"

	"github.com/openraffle/raffle/common/logger"
	"github.com/openraffle/raffle/common/ratelimit"
)

// AdminService backs the admin UI login and read-only status
type AdminService struct {
	cycles  *CycleService
	limiter Limiter
	token   string
	log     *logger.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(cycles *CycleService, limiter Limiter, token string, log *logger.Logger) *AdminService {
	return &AdminService{
		cycles:  cycles,
		limiter: limiter,
		token:   token,
		log:     log,
	}
}

// Authorized reports whether token is the admin token
func (s *AdminService) Authorized(token string) bool {
	return SecretMatches(s.token, token)
}

// Verify checks an admin token for origin. The verification limiter is
// fail-closed: if its store is down nobody can verify.
func (s *AdminService) Verify(ctx context.Context, origin, token string) (bool, error) {
	result, err := s.limiter.Check(ctx, origin, ratelimit.OpVerification, ratelimit.FailClosed, nil)
	if err != nil {
		return false, storeError("verification rate limit", err)
	}
	if !result.Allowed {
		return false, &RateLimitError{
			Operation:         ratelimit.OpVerification,
			Limit:             result.Limit,
			RetryAfterSeconds: result.RetryAfterSeconds,
		}
	}

	ok := s.Authorized(token)
	if !ok {
		s.log.Warn("admin verification failed", "origin", origin)
	}
	return ok, nil
}

// Status is the admin view of the cycle
func (s *AdminService) Status(ctx context.Context) (*Status, error) {
	return s.cycles.Status(ctx)
}
