package container

import (
	"fmt"
	"time"

	"github.com/openraffle/raffle/cmd/raffle/repository"
	"github.com/openraffle/raffle/cmd/raffle/service"
	"github.com/openraffle/raffle/common/bootstrap"
	"github.com/openraffle/raffle/common/cache"
	"github.com/openraffle/raffle/common/ratelimit"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Rate limiting
	RateLimiter *ratelimit.RateLimiter
	Throttle    *ratelimit.GlobalThrottle
	Janitor     *ratelimit.Janitor

	// DrawCache backs draw history reads; nil when disabled
	DrawCache cache.Cache

	// Repositories
	RosterRepo *repository.RosterRepository
	CycleRepo  *repository.CycleRepository
	DrawRepo   *repository.DrawRepository

	// Services
	AdmissionService  *service.AdmissionService
	CycleService      *service.CycleService
	DrawService       *service.DrawService
	ArchiveService    *service.ArchiveService
	HistoryService    *service.HistoryService
	AdminService      *service.AdminService
	DispatcherService *service.DispatcherService
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config
	log := components.Logger

	store, err := newRateLimitStore(components)
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.NewRateLimiter(store, log)
	log.Info("rate limiter ready", "backend", cfg.RateLimit.Backend)

	// Initialize repositories
	rosterRepo := repository.NewRosterRepository(components.DB)
	cycleRepo := repository.NewCycleRepository(components.DB)
	drawRepo := repository.NewDrawRepository(components.DB)

	// Initialize services (bottom-up: dependencies first)
	timeout := cfg.Database.StatementTimeout
	cycleService := service.NewCycleService(rosterRepo, cycleRepo, drawRepo, log, timeout)
	drawService := service.NewDrawService(rosterRepo, cycleRepo, drawRepo, log, service.CryptoPicker, timeout)
	archiveService := service.NewArchiveService(drawRepo, log, timeout)

	history := service.NewHistoryService(drawRepo, timeout)
	drawCache := newDrawCache(components)
	if drawCache != nil {
		history.WithCache(drawCache, cfg.Raffle.HistoryCacheTTL, log)
	}

	checks := map[string]service.Pinger{
		"database":         service.PingFunc(components.DB.Health),
		"rate_limit_store": limiter,
	}
	if components.Redis != nil {
		checks["redis"] = components.Redis
	}

	dispatcher := service.NewDispatcherService(cycleService, drawService, archiveService, limiter, service.DispatcherConfig{
		Secret:    cfg.Raffle.DrawSecret,
		Retention: cfg.RateLimit.Retention,
		Timeout:   timeout,
		Checks:    checks,
	}, log)

	return &Container{
		Components:        components,
		RateLimiter:       limiter,
		DrawCache:         drawCache,
		Throttle:          ratelimit.NewGlobalThrottle(cfg.RateLimit.GlobalRPS, cfg.RateLimit.GlobalBurst),
		Janitor:           ratelimit.NewJanitor(limiter, log, cfg.RateLimit.PruneInterval, cfg.RateLimit.Retention, timeout),
		RosterRepo:        rosterRepo,
		CycleRepo:         cycleRepo,
		DrawRepo:          drawRepo,
		AdmissionService:  service.NewAdmissionService(rosterRepo, cycleRepo, limiter, log, cfg.Raffle.BatchMax, timeout),
		CycleService:      cycleService,
		DrawService:       drawService,
		ArchiveService:    archiveService,
		HistoryService:    history,
		AdminService:      service.NewAdminService(cycleService, limiter, cfg.Raffle.AdminToken, log),
		DispatcherService: dispatcher,
	}, nil
}

// newRateLimitStore picks the limiter backend from RATE_LIMIT_BACKEND
func newRateLimitStore(components *bootstrap.Components) (ratelimit.Store, error) {
	switch backend := components.Config.RateLimit.Backend; backend {
	case "postgres":
		return ratelimit.NewPostgresStore(components.DB), nil
	case "redis":
		if components.Redis == nil {
			return nil, fmt.Errorf("rate limit backend redis selected but redis is not connected")
		}
		return ratelimit.NewRedisStore(components.Redis.GetUnderlying(), components.Config.RateLimit.Retention), nil
	case "memory":
		components.Logger.Warn("in-memory rate limiting: windows are not shared between instances")
		return ratelimit.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend: %s", backend)
	}
}

// newDrawCache shares draw history through Redis when it is connected
func newDrawCache(components *bootstrap.Components) cache.Cache {
	if components.Config.Raffle.HistoryCacheTTL <= 0 {
		return nil
	}
	if components.Redis != nil {
		return cache.NewRedisCache(components.Redis.GetUnderlying(), "raffle:")
	}
	return cache.NewMemoryCache(components.Logger, time.Minute)
}
