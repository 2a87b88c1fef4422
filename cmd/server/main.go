// Package main is the entry point for the Momofin backend server binary.
// It dispatches four subcommands (serve, migrate, bootstrap and version) via a
// switch on os.Args. The serve command runs migrations on startup.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/momofin/momofin-backend/internal/api"
	"github.com/momofin/momofin-backend/internal/audit"
	"github.com/momofin/momofin-backend/internal/config"
	"github.com/momofin/momofin-backend/internal/db"
	"github.com/momofin/momofin-backend/internal/db/repositories"
	"github.com/momofin/momofin-backend/internal/middleware"
	"github.com/momofin/momofin-backend/internal/storage"
	"github.com/momofin/momofin-backend/internal/telemetry"

	_ "github.com/momofin/momofin-backend/internal/storage/azure"
	_ "github.com/momofin/momofin-backend/internal/storage/gcs"
	_ "github.com/momofin/momofin-backend/internal/storage/local"
	_ "github.com/momofin/momofin-backend/internal/storage/s3"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run(args []string) error {
	command := "serve"
	if len(args) > 1 {
		command = args[1]
	}

	if command == "version" {
		fmt.Printf("Momofin backend %s\n", api.Version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", args[0])
		}
		return runMigrations(cfg, args[2])
	case "bootstrap":
		opts, err := parseBootstrapFlags(args[2:])
		if err != nil {
			return err
		}
		return runBootstrap(cfg, opts)
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, bootstrap, version", command)
	}
}

func serve(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	slog.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if version, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", version, "dirty", dirty)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	telemetry.StartDBStatsCollector(ctx, database)

	if cfg.Telemetry.Metrics.Enabled {
		metrics := startMetricsServer(cfg.Telemetry.Metrics.PrometheusPort)
		defer metrics.Close()
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = middleware.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to configure redis: %w", err)
		}
		defer rdb.Close()
	}

	store, err := storage.NewStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	shipper, err := audit.NewMultiShipper(shipperConfigs(cfg.Audit.Shippers))
	if err != nil {
		return fmt.Errorf("failed to configure audit shippers: %w", err)
	}
	recorder := audit.NewRecorder(repositories.NewLogEntryRepository(database),
		audit.WithShipper(shipper),
		audit.WithWriteTimeout(cfg.Audit.WriteTimeout),
	)

	router, bgServices, err := api.NewRouter(cfg, database, api.Dependencies{
		Storage:  store,
		Recorder: recorder,
		Redis:    rdb,
	})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("starting server",
			"addr", cfg.Server.GetAddress(),
			"storage", cfg.Storage.DefaultBackend,
			"tls", cfg.Security.TLS.Enabled,
			"redis", cfg.Redis.Enabled,
			"shippers", shipper.Len(),
		)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := shutdown(shutdownCtx, server, bgServices, recorder); err != nil {
		return err
	}
	slog.Info("server stopped gracefully")
	return nil
}

type httpShutdowner interface {
	Shutdown(ctx context.Context) error
}

type backgroundStopper interface {
	Shutdown()
}

type activityDrainer interface {
	Close(ctx context.Context) error
}

// shutdown stops the HTTP server and background services, then drains pending
// activity log writes before the DB handle closes. The recorder is drained even
// when the server did not stop cleanly.
func shutdown(ctx context.Context, server httpShutdowner, bg backgroundStopper, recorder activityDrainer) error {
	serverErr := server.Shutdown(ctx)
	if serverErr != nil {
		slog.Error("server forced to shutdown", "error", serverErr)
	}

	bg.Shutdown()

	if err := recorder.Close(ctx); err != nil {
		slog.Warn("activity log writes did not finish", "error", err)
	}

	if serverErr != nil {
		return fmt.Errorf("server forced to shutdown: %w", serverErr)
	}
	return nil
}

// startMetricsServer serves /metrics on a dedicated port so it is not reachable
// through the public API ingress.
func startMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("starting Prometheus metrics server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return srv
}

// shipperConfigs converts the YAML shipper settings into audit shipper configs.
func shipperConfigs(in []config.AuditShipperConfig) []audit.ShipperConfig {
	out := make([]audit.ShipperConfig, 0, len(in))
	for _, c := range in {
		sc := audit.ShipperConfig{Enabled: c.Enabled, Type: c.Type}
		if c.Webhook != nil {
			sc.Webhook = &audit.WebhookConfig{
				URL:           c.Webhook.URL,
				Headers:       c.Webhook.Headers,
				Timeout:       time.Duration(c.Webhook.TimeoutSecs) * time.Second,
				SigningSecret: c.Webhook.SigningSecret,
				BatchSize:     c.Webhook.BatchSize,
				FlushInterval: time.Duration(c.Webhook.FlushInterval) * time.Second,
			}
		}
		if c.File != nil {
			sc.File = &audit.FileConfig{
				Path:       c.File.Path,
				MaxSizeMB:  c.File.MaxSizeMB,
				MaxBackups: c.File.MaxBackups,
			}
		}
		out = append(out, sc)
	}
	return out
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", version, dirty)
	return nil
}
