package app

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"nodelock/internal/config"
	"nodelock/internal/infrastructure"
	"nodelock/internal/license"
	"nodelock/internal/middleware"
	"nodelock/internal/security"
	handlers "nodelock/internal/transport/http"
)

// Application wires the protected app shell together: configuration,
// logging, metrics, the license verifier and gate, and the HTTP server.
type Application struct {
	cfg      *config.Config
	logger   *slog.Logger
	router   *chi.Mux
	server   *http.Server
	metrics  *infrastructure.MetricsProvider
	tracing  *infrastructure.TracingProvider
	verifier *license.Verifier
	gate     *middleware.LicenseGate
	guard    *license.Guard
}

// New builds the application from configuration. It does not start the
// server; call Run.
func New() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("version", handlers.Version),
		slog.Int("port", cfg.Server.Port),
	)

	app := &Application{
		cfg:    cfg,
		logger: logger,
	}

	var licenseMetrics *license.Metrics
	if cfg.Metrics.Enabled {
		provider, err := infrastructure.InitializeMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		app.metrics = provider

		licenseMetrics, err = license.InitializeMetrics(otel.Meter(license.MeterName))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize license metrics: %w", err)
		}
	}

	if cfg.Tracing.Enabled {
		tracing, err := infrastructure.InitializeTracing()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		app.tracing = tracing
	}

	publicKey, err := verificationKey(cfg.License)
	if err != nil {
		return nil, err
	}

	fingerprints := security.NewFingerprintManager()
	verifierOpts := []license.VerifierOption{
		license.WithVerifierLogger(logger),
	}
	if licenseMetrics != nil {
		verifierOpts = append(verifierOpts, license.WithVerifierMetrics(licenseMetrics))
	}
	app.verifier = license.NewVerifier(publicKey, fingerprints.Fingerprint, verifierOpts...)
	app.gate = middleware.NewLicenseGate(app.verifier, cfg.License.TokenFile, logger)
	app.guard = license.NewGuard(app.verifier, cfg.License.TokenFile,
		license.WithGuardLogger(logger),
	)

	app.logStartupVerdict(fingerprints)
	app.buildRouter(fingerprints)

	app.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      app.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return app, nil
}

// verificationKey returns the configured public key override if set,
// otherwise the key embedded in the binary.
func verificationKey(cfg config.LicenseConfig) (ed25519.PublicKey, error) {
	if cfg.PublicKey != "" {
		key, err := license.ParsePublicKey(cfg.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("invalid configured public key: %w", err)
		}
		return key, nil
	}
	key, err := license.EmbeddedPublicKey()
	if err != nil {
		return nil, fmt.Errorf("embedded public key is corrupt: %w", err)
	}
	return key, nil
}

// logStartupVerdict records the license state once at boot so operators
// see immediately whether the installation is usable, with a renewal
// hint for expired licenses and an activation hint for everything else.
func (a *Application) logStartupVerdict(fingerprints *security.FingerprintManager) {
	ctx := infrastructure.EnsureTraceID(context.Background())
	verdict := a.verifier.VerifyFile(ctx, a.cfg.License.TokenFile, time.Now())

	switch {
	case verdict.Allowed():
		a.logger.Info("license verified",
			slog.String("customer", verdict.CustomerName),
			slog.Bool("lifetime", verdict.Lifetime),
		)
	case verdict.State == license.StateExpired:
		a.logger.Warn("license expired, renewal required",
			slog.String("customer", verdict.CustomerName),
			slog.Time("expired_at", verdict.ExpiresAt),
		)
	default:
		a.logger.Warn("no valid license, activation required",
			slog.String("state", string(verdict.State)),
			slog.String("fingerprint", fingerprints.Fingerprint()),
		)
	}
}

func (a *Application) buildRouter(fingerprints *security.FingerprintManager) {
	recorder := handlers.NewActivityRecorder()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Tracer)
	r.Use(middleware.StructuredLogger(a.logger))
	r.Use(middleware.Recoverer(a.logger))
	r.Use(recorder.Middleware)
	r.Use(a.gate.Handler)

	health := handlers.NewHealthHandler()
	r.Get("/api/health", health.Health)
	r.Get("/api/version", health.VersionInfo)

	licenseHandler := handlers.NewLicenseHandler(
		a.verifier,
		fingerprints.Fingerprint,
		a.cfg.License.TokenFile,
		a.logger,
		a.gate.Invalidate,
	)
	r.Route("/api/license", func(r chi.Router) {
		r.Get("/status", licenseHandler.Status)
		r.Get("/fingerprint", licenseHandler.Fingerprint)
		r.Group(func(r chi.Router) {
			if a.cfg.Server.RateLimit.Enabled {
				limiter := middleware.NewRateLimiter(
					a.cfg.Server.RateLimit.RPS,
					a.cfg.Server.RateLimit.Burst,
					a.logger,
				)
				r.Use(limiter.Handler)
			}
			r.Post("/activate", licenseHandler.Activate)
		})
	})

	reports := handlers.NewReportHandler(a.guard, recorder.Rows, a.logger)
	r.Mount("/api/reports", reports.Routes())

	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	a.router = r
}

// Run starts the HTTP server and blocks until the context is cancelled
// or a termination signal arrives, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("http server listening", slog.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		if a.metrics != nil {
			if err := a.metrics.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("metrics shutdown failed", slog.String("error", err.Error()))
			}
		}
		if a.tracing != nil {
			if err := a.tracing.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("tracing shutdown failed", slog.String("error", err.Error()))
			}
		}
		return nil
	})

	err := g.Wait()
	infrastructure.CloseLogFile()
	return err
}

// Router exposes the configured router, for tests.
func (a *Application) Router() http.Handler {
	return a.router
}
