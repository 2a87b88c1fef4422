// Package middleware provides Gin HTTP middleware for authentication, role
// checks, rate limiting, request ids, logging, metrics and security headers.
//
// The order is fixed in api.NewRouter:
//
//	Recovery → RequestID → Metrics → Logger → CORS → SecurityHeaders → RateLimit → Auth → RequireRole → Handler
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/momofin/momofin-backend/internal/audit"
	"github.com/momofin/momofin-backend/internal/auth"
	"github.com/momofin/momofin-backend/internal/db/models"
	"github.com/momofin/momofin-backend/internal/services"
)

// Context keys set by AuthMiddleware.
const (
	UserKey           = "user"
	UserIDKey         = "user_id"
	OrganizationIDKey = "organization_id"
)

// ErrorKey is the JSON field used for every error body.
const ErrorKey = "errorMessage"

// TokenParser validates bearer tokens.
type TokenParser interface {
	ParseClaims(token string) (*auth.Claims, error)
}

// UserResolver maps token claims to the stored user.
type UserResolver interface {
	FetchUserByUsername(ctx context.Context, username string) (*models.User, error)
	FetchMember(ctx context.Context, organizationName, username string) (*models.User, error)
}

// AuthMiddleware requires a valid bearer token and loads the requester.
func AuthMiddleware(tokens TokenParser, users UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				ErrorKey: err.Error(),
			})
			return
		}

		claims, err := tokens.ParseClaims(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				ErrorKey: "Invalid or expired token",
			})
			return
		}

		ctx := c.Request.Context()
		var user *models.User
		if claims.Organization != "" {
			user, err = users.FetchMember(ctx, claims.Organization, claims.Subject)
		} else {
			user, err = users.FetchUserByUsername(ctx, claims.Subject)
		}
		if errors.Is(err, services.ErrUserNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				ErrorKey: "User not found",
			})
			return
		}
		if err != nil {
			slog.ErrorContext(ctx, "failed to load token subject", "subject", claims.Subject, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				ErrorKey: "Internal server error",
			})
			return
		}

		c.Set(UserKey, user)
		c.Set(UserIDKey, user.ID)
		c.Set(OrganizationIDKey, user.OrganizationID)
		c.Request = c.Request.WithContext(audit.WithActor(ctx, audit.Actor{
			UserID:         user.ID,
			OrganizationID: user.OrganizationID,
		}))

		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated user holds role.
// It must run after AuthMiddleware.
func RequireRole(role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				ErrorKey: "Authentication required",
			})
			return
		}
		held, err := auth.ParseRole(user.Role)
		if err != nil || !held.Satisfies(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				ErrorKey: "You are not allowed to perform this action",
			})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the user stored by AuthMiddleware.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, exists := c.Get(UserKey)
	if !exists {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}
