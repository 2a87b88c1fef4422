// Package logs exposes an organization's activity log to its admins.
package logs

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/momofin/momofin-backend/internal/db/models"
	"github.com/momofin/momofin-backend/internal/db/repositories"
	"github.com/momofin/momofin-backend/internal/middleware"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// LogLister reads persisted activity log entries
type LogLister interface {
	List(ctx context.Context, filters repositories.LogEntryFilters, limit, offset int) ([]*models.LogEntry, int, error)
}

// Handlers serves GET /logs
type Handlers struct {
	entries LogLister
}

// NewHandlers creates the log handlers
func NewHandlers(entries LogLister) *Handlers {
	return &Handlers{entries: entries}
}

// ListHandler lists the requester organization's entries, newest first.
// Runs behind RequireRole(admin).
// GET /logs?level=ERROR&limit=50&offset=0
func (h *Handlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{middleware.ErrorKey: "Authentication required"})
			return
		}

		limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{middleware.ErrorKey: "limit must be a positive integer"})
			return
		}
		if limit > maxLimit {
			limit = maxLimit
		}
		offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if err != nil || offset < 0 {
			c.JSON(http.StatusBadRequest, gin.H{middleware.ErrorKey: "offset must be a non-negative integer"})
			return
		}

		filters := repositories.LogEntryFilters{OrganizationID: &user.OrganizationID}
		if level := strings.ToUpper(strings.TrimSpace(c.Query("level"))); level != "" {
			filters.Level = &level
		}

		entries, total, err := h.entries.List(c.Request.Context(), filters, limit, offset)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to list log entries", "organization_id", user.OrganizationID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{middleware.ErrorKey: "Internal server error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"logs": entries,
			"pagination": gin.H{
				"limit":  limit,
				"offset": offset,
				"total":  total,
			},
		})
	}
}
