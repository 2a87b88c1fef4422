package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/momofin/momofin-backend/internal/storage"
)

// Version is stamped at build time with -ldflags "-X ...api.Version=..."
var Version = "dev"

const checkTimeout = 2 * time.Second

func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler checks every dependency a request may touch. rdb may be nil.
func readinessHandler(db *sql.DB, store storage.Storage, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
		defer cancel()

		checks := gin.H{}
		notReady := func(name, message string) {
			checks[name] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  message,
			})
		}

		if err := db.PingContext(ctx); err != nil {
			notReady("database", "database not ready")
			return
		}
		checks["database"] = "healthy"

		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				notReady("redis", "redis not ready")
				return
			}
			checks["redis"] = "healthy"
		}

		// a known-absent key exercises credentials and connectivity
		if _, err := store.Exists(ctx, ".readiness-check"); err != nil {
			notReady("storage", "storage backend not ready")
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version": Version,
		})
	}
}
