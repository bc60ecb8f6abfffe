package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/openraffle/raffle/cmd/raffle/container"
	raffleMiddleware "github.com/openraffle/raffle/cmd/raffle/middleware"
	"github.com/openraffle/raffle/cmd/raffle/routes"
	"github.com/openraffle/raffle/common/bootstrap"
	"github.com/openraffle/raffle/common/db"
	commonMiddleware "github.com/openraffle/raffle/common/middleware"
	"github.com/openraffle/raffle/common/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Bootstrap common components (config, logger, DB, optional Redis)
	components, err := bootstrap.Setup(ctx, "raffle", bootstrap.WithDBInitHook(db.CreateSchema))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap raffle: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	if serviceContainer.DrawCache != nil {
		defer serviceContainer.DrawCache.Close()
	}

	// Rate limit history is trimmed in the background
	go serviceContainer.Janitor.Run(ctx)

	e := setupEcho()
	setupMiddleware(e, serviceContainer)
	setupHealthCheck(e, components)
	registerRoutes(e, serviceContainer)

	srv := server.New("raffle", components.Config.Service.Port, e, components.Logger)
	if err := srv.Run(ctx); err != nil {
		components.Logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, c *container.Container) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(raffleMiddleware.RequestIDContext())
	e.Use(middleware.ContextTimeout(c.Components.Config.Service.RequestTimeout))
	e.Use(commonMiddleware.GlobalThrottleMiddleware(c.Throttle))
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":  "unavailable",
				"service": "raffle",
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "raffle",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterEntryRoutes(e, serviceContainer)
	routes.RegisterDrawRoutes(e, serviceContainer)
	routes.RegisterCycleRoutes(e, serviceContainer)
	routes.RegisterAdminRoutes(e, serviceContainer)
}
