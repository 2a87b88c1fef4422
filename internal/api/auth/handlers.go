// Package auth implements the /auth endpoints: member login and admin-driven
// member registration.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/momofin/momofin-backend/internal/audit"
	"github.com/momofin/momofin-backend/internal/db/models"
	"github.com/momofin/momofin-backend/internal/middleware"
	"github.com/momofin/momofin-backend/internal/services"
)

const (
	loginURI    = "/auth/login"
	registerURI = "/auth/register"
)

// Authenticator is the subset of services.AuthenticationService the handlers use.
type Authenticator interface {
	Authenticate(ctx context.Context, organizationName, username, password string) (*models.User, error)
	RegisterMember(ctx context.Context, org *models.Organization, username, password, email, name, position string) (*models.User, error)
}

// TokenIssuer signs session tokens for authenticated members.
type TokenIssuer interface {
	IssueMemberToken(username, organization string) (string, error)
}

// Handlers serves the /auth routes
type Handlers struct {
	svc      Authenticator
	tokens   TokenIssuer
	recorder audit.Sink
}

// NewHandlers creates the auth handlers
func NewHandlers(svc Authenticator, tokens TokenIssuer, recorder audit.Sink) *Handlers {
	return &Handlers{svc: svc, tokens: tokens, recorder: recorder}
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	OrganizationName string `json:"organizationName"`
	Username         string `json:"username"`
	Password         string `json:"password"`
}

// LoginResponse is returned on a successful login
type LoginResponse struct {
	User *models.User `json:"user"`
	JWT  string       `json:"jwt"`
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Position string `json:"position"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterResponse is returned on a successful registration
type RegisterResponse struct {
	User *models.User `json:"user"`
}

// LoginHandler authenticates a member and issues a token
// POST /auth/login
func (h *Handlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				middleware.ErrorKey: "Invalid request body",
			})
			return
		}

		ctx := c.Request.Context()
		user, err := h.svc.Authenticate(ctx, req.OrganizationName, req.Username, req.Password)
		if err != nil {
			if errors.Is(err, services.ErrInvalidCredentials) || errors.Is(err, services.ErrOrganizationNotFound) {
				h.recorder.Log(ctx, audit.LevelError,
					fmt.Sprintf("Failed login attempt for user: %s from organization: %s", req.Username, req.OrganizationName),
					loginURI)
				c.JSON(http.StatusUnauthorized, gin.H{
					middleware.ErrorKey: err.Error(),
				})
				return
			}
			slog.ErrorContext(ctx, "login failed", "organization", req.OrganizationName, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				middleware.ErrorKey: "Internal server error",
			})
			return
		}

		token, err := h.tokens.IssueMemberToken(user.Username, req.OrganizationName)
		if err != nil {
			slog.ErrorContext(ctx, "failed to issue token", "user_id", user.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				middleware.ErrorKey: "Internal server error",
			})
			return
		}

		ctx = audit.WithActor(ctx, audit.Actor{UserID: user.ID, OrganizationID: user.OrganizationID})
		h.recorder.Log(ctx, audit.LevelInfo,
			fmt.Sprintf("Successful login for user: %s from organization: %s", req.Username, req.OrganizationName),
			loginURI)

		c.JSON(http.StatusOK, LoginResponse{User: user, JWT: token})
	}
}

// RegisterHandler creates a member in the requester's organization. It runs
// behind AuthMiddleware and RequireRole(admin).
// POST /auth/register
func (h *Handlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		requester, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				middleware.ErrorKey: "Authentication required",
			})
			return
		}

		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				middleware.ErrorKey: "Invalid request body",
			})
			return
		}
		if missing := missingFields(req); len(missing) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				middleware.ErrorKey: "Missing required fields: " + strings.Join(missing, ", "),
			})
			return
		}

		ctx := c.Request.Context()
		user, err := h.svc.RegisterMember(ctx, requester.Organization,
			req.Username, req.Password, req.Email, req.Name, req.Position)
		if err != nil {
			if errors.Is(err, services.ErrUserAlreadyExists) {
				c.JSON(http.StatusConflict, gin.H{
					middleware.ErrorKey: err.Error(),
				})
				return
			}
			slog.ErrorContext(ctx, "registration failed", "requester_id", requester.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				middleware.ErrorKey: "Internal server error",
			})
			return
		}

		h.recorder.Log(ctx, audit.LevelInfo,
			fmt.Sprintf("Successful registration of user: %s to organization: %s", user.Username, requester.OrganizationName()),
			registerURI)

		c.JSON(http.StatusOK, RegisterResponse{User: user})
	}
}

func missingFields(req RegisterRequest) []string {
	var missing []string
	if strings.TrimSpace(req.Username) == "" {
		missing = append(missing, "username")
	}
	if req.Password == "" {
		missing = append(missing, "password")
	}
	if strings.TrimSpace(req.Email) == "" {
		missing = append(missing, "email")
	}
	return missing
}
