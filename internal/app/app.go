// Package app wires configuration, infrastructure, services, and surfaces
// into the running process.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/runwhale/runwhale/internal/auth"
	"github.com/runwhale/runwhale/internal/config"
	"github.com/runwhale/runwhale/internal/crypto"
	"github.com/runwhale/runwhale/internal/events"
	"github.com/runwhale/runwhale/internal/httpserver"
	"github.com/runwhale/runwhale/internal/platform"
	"github.com/runwhale/runwhale/internal/telemetry"
	"github.com/runwhale/runwhale/pkg/chat"
	"github.com/runwhale/runwhale/pkg/credential"
	"github.com/runwhale/runwhale/pkg/deployment"
	"github.com/runwhale/runwhale/pkg/docker"
	"github.com/runwhale/runwhale/pkg/environment"
	"github.com/runwhale/runwhale/pkg/notifier"
	"github.com/runwhale/runwhale/pkg/recovery"
	"github.com/runwhale/runwhale/pkg/user"
)

// Run is the main application entry point. It connects infrastructure, runs
// recovery, and serves until the context is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting runwhale",
		"environment", cfg.Environment,
		"listen", cfg.ListenAddr(),
	)

	// Database
	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	// Redis (rate-limit buckets)
	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	// Env-var column encryption.
	encKey := cfg.EncryptionKey
	if encKey == "" {
		encKey = generateDevKey()
		logger.Warn("ENCRYPTION_KEY not set, using an ephemeral key; sealed env vars will not survive a restart")
	}
	encryptor, err := crypto.NewEncryptor(encKey)
	if err != nil {
		return fmt.Errorf("initializing encryptor: %w", err)
	}

	// Docker engine
	driver, err := docker.New(ctx, cfg.DockerSocketPath, logger)
	if err != nil {
		return fmt.Errorf("connecting to docker: %w", err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Error("closing docker driver", "error", err)
		}
	}()

	// Metrics
	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	// Event bus
	bus := events.NewBus(logger)

	// Services
	userSvc := user.NewService(db, logger)
	credentialSvc := credential.NewService(db, logger)
	envSvc := environment.NewService(db, driver, bus, cfg.NginxContainerName, logger)

	deployStore := deployment.NewStore(db, encryptor)
	engine := deployment.NewEngine(deployStore, envSvc.Store(), driver, bus, deployment.ProxyConfig{
		LetsEncryptEmail: cfg.LetsEncryptEmail,
		Staging:          cfg.LetsEncryptStaging,
	}, logger)
	workerPool := deployment.NewPool(engine, cfg.DeployWorkers, logger)
	deploySvc := deployment.NewService(deployStore, envSvc.Store(), driver, engine, workerPool, bus, logger)
	envSvc.SetDeploymentCleaner(deploySvc)

	// Chat surface + notifier.
	bot, err := chat.New(cfg.TelegramBotToken, cfg.BaseURL, userSvc, credentialSvc, logger)
	if err != nil {
		return fmt.Errorf("initializing chat surface: %w", err)
	}
	notifier.New(userSvc, bot, logger).Register(bus)

	// Recovery runs to completion before the handler surface opens.
	if cfg.RecoveryEnabled {
		supervisor := recovery.New(db, deployStore, envSvc.Store(), driver, engine, bus, logger)
		if err := supervisor.Run(ctx); err != nil {
			return fmt.Errorf("running recovery: %w", err)
		}
	} else {
		logger.Info("deployment recovery disabled (ENABLE_DEPLOYMENT_RECOVERY=false)")
	}

	// Background surfaces.
	workerPool.Start(ctx)
	go bot.Run(ctx)

	// HTTP surface.
	srv := httpserver.NewServer(cfg.CORSAllowedOrigins, cfg.MetricsPath, logger, db, metricsReg)

	credentialHandler := credential.NewHandler(logger, credentialSvc)
	srv.Router.Get("/auth/verify", credentialHandler.HandleVerify)

	limiter := auth.NewRateLimiter(rdb, logger)
	throttleWindow := time.Duration(cfg.ThrottleTTLSeconds) * time.Second

	envHandler := environment.NewHandler(logger, envSvc, deploySvc)
	deployHandler := deployment.NewHandler(logger, deploySvc, limiter)

	srv.Router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(credentialSvc, logger))
		r.Use(limiter.Limit("default", cfg.ThrottleLimit, throttleWindow))

		r.Mount("/auth", credentialHandler.Routes())
		r.Mount("/environments", envHandler.Routes())
		r.Mount("/deployments", deployHandler.Routes())
	})

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		workerPool.Wait()
		return err
	case err := <-errCh:
		return err
	}
}

// generateDevKey produces an ephemeral hex key for development runs.
func generateDevKey() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
