package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"odoomaster/internal/config"
	apierrors "odoomaster/internal/errors"
	"odoomaster/internal/infra/sqlite"
	"odoomaster/internal/infrastructure"
	"odoomaster/internal/license"
	customMiddleware "odoomaster/internal/middleware"
	"odoomaster/internal/revocation"
	"odoomaster/internal/security"
	"odoomaster/internal/services"
	handlers "odoomaster/internal/transport/http"
	"odoomaster/pkg/contracts"
)

// runtimeSampleInterval is how often process gauges are refreshed
const runtimeSampleInterval = 15 * time.Second

// Hardware yields the device fingerprint and names the strategy behind it
type Hardware interface {
	Fingerprint(ctx context.Context) string
	Source() string
}

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	Services      *ServiceContainer
	OTelProviders *infrastructure.OTelProviders
	ErrorHandler  *apierrors.ErrorHandler
	LicenseGate   *customMiddleware.LicenseGate
	Runtime       *infrastructure.RuntimeMetrics

	hardware Hardware
	ledgerDB *sql.DB
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	License  services.LicenseService
	Health   *services.HealthService
	Verifier *license.Verifier
	Registry *revocation.Registry
	Store    *license.Store
	// Authority is nil unless a private key is configured
	Authority *license.Authority
}

// Option customizes New
type Option func(*Application)

// WithHardware replaces the fingerprint provider
func WithHardware(hw Hardware) Option {
	return func(a *Application) { a.hardware = hw }
}

// NewApplication loads the configuration and the global logger, then wires the daemon
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(cfg, logger)
}

// New wires an application from a resolved configuration
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", contracts.GetVersionString()),
		slog.String("base_dir", cfg.License.BaseDir))

	if err := config.PathsFor(cfg.License.BaseDir).EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		ErrorHandler:  apierrors.NewErrorHandler(logger, false),
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.hardware == nil {
		app.hardware = security.NewFingerprintProvider(logger)
	}

	if err := app.initializeServices(context.Background()); err != nil {
		app.closeLedger()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices builds the licensing core. A configured but unusable
// key aborts startup; an absent key only narrows what the daemon can do.
func (a *Application) initializeServices(ctx context.Context) error {
	lc := a.Config.License

	metrics, err := license.NewMetrics(a.OTelProviders.Meter, a.OTelProviders.Tracer)
	if err != nil {
		return fmt.Errorf("failed to create license metrics: %w", err)
	}

	var authority *license.Authority
	if lc.PrivateKeyPEM != "" || config.FileExists(lc.PrivateKeyFile) {
		key, err := license.LoadPrivateKey(lc.PrivateKeyPEM, lc.PrivateKeyFile, lc.PrivateKeyPassphrase)
		if err != nil {
			return err
		}
		authority, err = license.NewAuthority(key,
			license.WithAuthorityLogger(a.Logger),
			license.WithAuthorityMetrics(metrics))
		if err != nil {
			return err
		}
	}

	publicKey, err := license.LoadPublicKey(lc.PublicKeyPEM, lc.PublicKeyFile)
	if err != nil {
		return err
	}
	if publicKey == nil && authority != nil {
		publicKey = authority.PublicKey()
	}
	if publicKey == nil {
		a.Logger.WarnContext(ctx, "No license public key configured, signed bundles will be rejected",
			slog.String("public_key_file", lc.PublicKeyFile),
			slog.Bool("allow_legacy", lc.AllowLegacy))
	}

	registry := revocation.NewRegistry(lc.RevocationFile, revocation.WithLogger(a.Logger))
	verifier := license.NewVerifier(publicKey, registry,
		license.WithAllowLegacy(lc.AllowLegacy),
		license.WithLegacySecret(lc.LegacySecret),
		license.WithVerifierLogger(a.Logger),
		license.WithVerifierMetrics(metrics))
	store := license.NewStore(verifier, a.hardware, license.PathsFromConfig(lc),
		license.WithStoreLogger(a.Logger),
		license.WithStoreMetrics(metrics))

	deps := services.LicenseDeps{
		Authority: authority,
		Verifier:  verifier,
		Registry:  registry,
		Store:     store,
		Hardware:  a.hardware,
		Metrics:   metrics,
	}
	healthDeps := services.HealthDeps{
		Verifier:  verifier,
		Authority: authority,
	}

	// the ledger only exists where licenses are issued
	if authority != nil {
		db, err := sqlite.InitDB(ctx, lc.LedgerPath)
		if err != nil {
			return fmt.Errorf("failed to open license ledger: %w", err)
		}
		a.ledgerDB = db
		deps.Ledger = sqlite.NewLicenseRepository(db)
		healthDeps.Ledger = db
	}

	a.Runtime, err = infrastructure.NewRuntimeMetrics(a.OTelProviders.Meter, runtimeSampleInterval)
	if err != nil {
		return err
	}
	healthDeps.Runtime = a.Runtime

	licenseService := services.NewLicenseService(deps, a.Logger)
	a.Services = &ServiceContainer{
		License:   licenseService,
		Health:    services.NewHealthService(contracts.Version, healthDeps, a.Logger),
		Verifier:  verifier,
		Registry:  registry,
		Store:     store,
		Authority: authority,
	}

	a.LicenseGate = customMiddleware.NewLicenseGate(licenseService, a.Logger,
		customMiddleware.WithGateTTL(lc.GateTTL),
		customMiddleware.WithGateMeter(a.OTelProviders.Meter))

	a.Logger.InfoContext(ctx, "License services initialized",
		slog.Bool("signing", authority != nil),
		slog.Bool("public_key", publicKey != nil),
		slog.Bool("allow_legacy", lc.AllowLegacy),
		slog.String("hardware_source", a.hardware.Source()))

	return nil
}

// setupRouter configures the HTTP router.
// Ordering: RequestID → RealIP → OTel → Logger → Recoverer → SecurityHeaders
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(middleware.RealIP)

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	r.Group(func(r chi.Router) {
		telemetry, err := customMiddleware.NewHTTPTelemetry(a.OTelProviders)
		if err != nil {
			a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(telemetry.Handler)
		}

		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.ErrorHandler))
		r.Use(customMiddleware.SecurityHeaders)

		a.setupAPIRoutes(r)
	})

	// outside the group: scrapes are neither logged nor traced
	r.Handle("/metrics", handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP, a.ErrorHandler))

	a.Router = r
}

// setupAPIRoutes configures API routes
func (a *Application) setupAPIRoutes(r chi.Router) {
	validator := customMiddleware.NewRequestValidator(a.Config.Server.MaxBodyBytes)
	healthHandler := handlers.NewHealthHandler(a.Services.Health, a.Logger)
	licenseHandler := handlers.NewLicenseHandler(a.Services.License, validator, a.ErrorHandler, a.Logger).
		WithGate(a.LicenseGate)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/ready", healthHandler.ReadinessCheck)
		r.Get("/health/live", healthHandler.LivenessCheck)
		r.Get("/version", healthHandler.Version)

		// Issuance and revocation
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.APIKeyAuth(a.Config.Security.AdminAPIKey, a.ErrorHandler, a.Logger))
			r.Mount("/admin", licenseHandler.AdminRoutes())
		})

		// Verification and local installation management
		r.Group(func(r chi.Router) {
			if rl := a.Config.Security.RateLimit; rl.Enabled {
				r.Use(customMiddleware.NewRateLimiter(rl.RPS, rl.Burst, a.ErrorHandler, a.Logger).Handler)
			}
			r.Post("/licenses/verify", licenseHandler.Verify)
			r.Mount("/license", licenseHandler.LocalRoutes())
		})

		// Application routes require a valid local license
		r.Group(func(r chi.Router) {
			r.Use(a.LicenseGate.Handler)
			r.Get("/app/entitlement", licenseHandler.Entitlement)
		})
	})
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Serve runs the HTTP server and the runtime collector until ctx is done or
// the listener fails, then shuts everything down
func (a *Application) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(gctx, "Starting HTTP server",
			slog.String("address", a.Server.Addr),
			slog.String("level", a.Config.Logging.Level))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.Runtime.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(context.Background())
	})

	return g.Wait()
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	if err := a.closeLedger(); err != nil {
		errs = append(errs, fmt.Errorf("ledger close error: %w", err))
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return errors.Join(errs...)
}

func (a *Application) closeLedger() error {
	if a.ledgerDB == nil {
		return nil
	}
	err := sqlite.CloseDB(a.ledgerDB)
	a.ledgerDB = nil
	return err
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.Serve(ctx)
}
