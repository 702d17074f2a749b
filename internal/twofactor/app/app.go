package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpapi "github.com/homevault/twofactor/internal/twofactor/http"
	"github.com/homevault/twofactor/internal/twofactor/service"
	"github.com/homevault/twofactor/internal/twofactor/store"
	"github.com/homevault/twofactor/internal/twofactor/store/drivers/sqlite"
	"github.com/homevault/twofactor/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application wires the two-factor service together: store, services, HTTP
// server and the background housekeeping worker.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	enrollmentService   *service.EnrollmentService
	factorService       *service.FactorService
	deviceService       *service.DeviceService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("TWOFA_JWT_SECRET must be set")
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "twofactor-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("twofactor service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully stops the server, housekeeping and database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down twofactor service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("twofactor service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initServices() {
	// No biometric bridge or code transport is wired server side yet; the
	// authenticator method carries deployments until a provider lands.
	app.enrollmentService = service.NewEnrollmentService(app.db, nil, nil, service.EnrollmentConfig{
		Issuer:          app.cfg.Issuer,
		SessionTTL:      app.cfg.SessionTTL,
		MaxAttempts:     app.cfg.MaxAttempts,
		LockoutCooldown: app.cfg.LockoutCooldown,
		SkewWindows:     app.cfg.SkewWindows,
	})

	app.factorService = service.NewFactorService(app.db, nil, service.FactorConfig{
		Issuer:                 app.cfg.Issuer,
		SkewWindows:            app.cfg.SkewWindows,
		MaxAttempts:            app.cfg.MaxAttempts,
		LockoutCooldown:        app.cfg.LockoutCooldown,
		RevokeDevicesOnDisable: app.cfg.RevokeDevicesOnDisable,
	})

	app.deviceService = service.NewDeviceService(app.db, app.cfg.TrustTTL)

	app.housekeepingService = service.NewHousekeepingService(
		app.enrollmentService,
		app.factorService,
		app.deviceService,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

func (app *Application) initHTTP() {
	app.router = httpapi.NewRouter(
		[]byte(app.cfg.JWTSecret),
		app.cfg.Issuer,
		BuildVersion,
		app.db,
		app.logger,
	)
	app.router.EnrollmentService = app.enrollmentService
	app.router.FactorService = app.factorService
	app.router.DeviceService = app.deviceService
	app.router.ApplyRoutes()

	app.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.cfg.Port),
		Handler: app.router,
	}
}
