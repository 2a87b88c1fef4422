// Package api wires the HTTP routes of the Momofin backend.
//
// Route groups:
//   - /auth/login is public and sits behind the strict auth rate limiter.
//   - /auth/register and /logs require an admin bearer token.
//   - /documents requires any member token and uses the upload limiter.
//   - /health, /ready and /version are unauthenticated checks.
package api

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	authapi "github.com/momofin/momofin-backend/internal/api/auth"
	"github.com/momofin/momofin-backend/internal/api/documents"
	"github.com/momofin/momofin-backend/internal/api/logs"
	"github.com/momofin/momofin-backend/internal/audit"
	"github.com/momofin/momofin-backend/internal/auth"
	"github.com/momofin/momofin-backend/internal/config"
	"github.com/momofin/momofin-backend/internal/db/repositories"
	"github.com/momofin/momofin-backend/internal/middleware"
	"github.com/momofin/momofin-backend/internal/services"
	"github.com/momofin/momofin-backend/internal/storage"
)

// Dependencies are the long-lived resources the server process owns.
type Dependencies struct {
	// Storage holds document bytes
	Storage storage.Storage
	// Recorder receives activity log entries
	Recorder audit.Sink
	// Redis is nil unless redis.enabled is set
	Redis *redis.Client
	// Logger defaults to slog.Default()
	Logger *slog.Logger
}

// BackgroundServices holds goroutines started while building the router. The
// caller stops them after the HTTP server has drained.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background goroutines
func (bg *BackgroundServices) Shutdown() {
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB, deps Dependencies) (*gin.Engine, *BackgroundServices, error) {
	if deps.Storage == nil || deps.Recorder == nil {
		return nil, nil, fmt.Errorf("storage and recorder are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWT.SigningSecret, cfg.Auth.JWT.TokenTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token service: %w", err)
	}

	orgRepo := repositories.NewOrganizationRepository(db)
	userRepo := repositories.NewUserRepository(db)
	logRepo := repositories.NewLogEntryRepository(db)
	docRepo := repositories.NewDocumentRepository(sqlx.NewDb(db, "postgres"))

	authService := services.NewAuthenticationService(orgRepo, userRepo, cfg.Auth.BcryptCost)
	documentService := services.NewDocumentService(docRepo, deps.Storage,
		[]byte(cfg.Integrity.HMACSecret), cfg.Integrity.DefaultAlgorithm)

	bg := &BackgroundServices{}
	limit := func(name string, rl middleware.RateLimitConfig) gin.HandlerFunc {
		if !cfg.Security.RateLimiting.Enabled {
			return func(c *gin.Context) { c.Next() }
		}
		if cfg.Security.RateLimiting.Backend == "redis" && deps.Redis != nil {
			return middleware.RateLimitMiddleware(middleware.NewRedisLimiter(deps.Redis, rl, "ratelimit:"+name), rl.RequestsPerMinute)
		}
		limiter := middleware.NewRateLimiter(rl)
		bg.rateLimiters = append(bg.rateLimiters, limiter)
		return middleware.RateLimitMiddleware(limiter, rl.RequestsPerMinute)
	}

	general := middleware.DefaultRateLimitConfig()
	if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
		general.RequestsPerMinute = cfg.Security.RateLimiting.RequestsPerMinute
	}
	if cfg.Security.RateLimiting.Burst > 0 {
		general.BurstSize = cfg.Security.RateLimiting.Burst
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware(deps.Logger))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS.AllowedOrigins, cfg.Security.CORS.AllowedMethods))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, deps.Storage, deps.Redis))
	router.GET("/version", versionHandler())

	requireMember := middleware.AuthMiddleware(tokens, authService)
	requireAdmin := middleware.RequireRole(auth.RoleAdmin)

	authHandlers := authapi.NewHandlers(authService, tokens, deps.Recorder)
	authGroup := router.Group("/auth", limit("auth", middleware.AuthRateLimitConfig()))
	{
		authGroup.POST("/login", authHandlers.LoginHandler())
		authGroup.POST("/register", requireMember, requireAdmin, authHandlers.RegisterHandler())
	}

	documentHandlers := documents.NewHandlers(documentService, deps.Recorder, cfg.Server.MaxUploadBytes())
	documentGroup := router.Group("/documents", requireMember, limit("upload", middleware.UploadRateLimitConfig()))
	{
		documentGroup.POST("", documentHandlers.UploadHandler())
		documentGroup.POST("/verify", documentHandlers.VerifyHandler())
		documentGroup.GET("/:id", documentHandlers.GetHandler())
		documentGroup.GET("/:id/content", documentHandlers.ContentHandler())
		documentGroup.GET("/:id/integrity", documentHandlers.IntegrityHandler())
	}

	logHandlers := logs.NewHandlers(logRepo)
	router.GET("/logs", requireMember, requireAdmin, limit("general", general), logHandlers.ListHandler())

	return router, bg, nil
}
