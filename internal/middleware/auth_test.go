package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momofin/momofin-backend/internal/audit"
	"github.com/momofin/momofin-backend/internal/auth"
	"github.com/momofin/momofin-backend/internal/db/models"
	"github.com/momofin/momofin-backend/internal/services"
)

const testSecret = "middleware-test-secret-with-32-bytes!"

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type stubResolver struct {
	byUsername map[string]*models.User
	members    map[string]*models.User // key: org + "/" + username
	err        error
	calls      []string
}

func (s *stubResolver) FetchUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.calls = append(s.calls, "username:"+username)
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.byUsername[username]; ok {
		return u, nil
	}
	return nil, services.ErrUserNotFound
}

func (s *stubResolver) FetchMember(_ context.Context, org, username string) (*models.User, error) {
	s.calls = append(s.calls, "member:"+org+"/"+username)
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.members[org+"/"+username]; ok {
		return u, nil
	}
	return nil, services.ErrUserNotFound
}

var (
	adminUser  = &models.User{ID: "u-admin", OrganizationID: "org-1", Username: "testUser", Role: "admin"}
	memberUser = &models.User{ID: "u-member", OrganizationID: "org-1", Username: "plainUser", Role: "member"}
)

func newTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	return tokens
}

func newAuthRouter(t *testing.T, resolver *stubResolver, extra ...gin.HandlerFunc) *gin.Engine {
	t.Helper()
	r := gin.New()
	r.Use(AuthMiddleware(newTokens(t), resolver))
	handlers := append(extra, func(c *gin.Context) {
		user, _ := CurrentUser(c)
		actor, _ := audit.ActorFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"username":       user.Username,
			"userId":         c.GetString(UserIDKey),
			"organizationId": c.GetString(OrganizationIDKey),
			"actorUserId":    actor.UserID,
		})
	})
	r.GET("/", handlers...)
	return r
}

func doGet(r http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	msg, _ := body[ErrorKey].(string)
	return msg
}

// ---------------------------------------------------------------------------
// AuthMiddleware
// ---------------------------------------------------------------------------

func TestAuthMiddleware_RejectsMissingOrMalformedHeader(t *testing.T) {
	r := newAuthRouter(t, &stubResolver{})

	for _, header := range []string{"", "Basic dXNlcjpwYXNz", "Bearer ", "bearer abc"} {
		w := doGet(r, header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
		assert.NotEmpty(t, errorMessage(t, w), "header %q", header)
	}
}

func TestAuthMiddleware_RejectsInvalidToken(t *testing.T) {
	other, err := auth.NewTokenService("a-completely-different-secret-value!!", time.Hour)
	require.NoError(t, err)
	foreign, err := other.IssueToken("testUser")
	require.NoError(t, err)

	resolver := &stubResolver{byUsername: map[string]*models.User{"testUser": adminUser}}
	r := newAuthRouter(t, resolver)

	for _, token := range []string{"not-a-jwt", foreign} {
		w := doGet(r, "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Invalid or expired token", errorMessage(t, w))
	}
	assert.Empty(t, resolver.calls, "resolver must not be consulted for invalid tokens")
}

func TestAuthMiddleware_UsernameToken(t *testing.T) {
	resolver := &stubResolver{byUsername: map[string]*models.User{"testUser": adminUser}}
	r := newAuthRouter(t, resolver)

	token, err := newTokens(t).IssueToken("testUser")
	require.NoError(t, err)

	w := doGet(r, "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "testUser", body["username"])
	assert.Equal(t, "u-admin", body["userId"])
	assert.Equal(t, "org-1", body["organizationId"])
	assert.Equal(t, "u-admin", body["actorUserId"])
	assert.Equal(t, []string{"username:testUser"}, resolver.calls)
}

func TestAuthMiddleware_MemberTokenResolvesWithinOrganization(t *testing.T) {
	resolver := &stubResolver{members: map[string]*models.User{"Momofin/testUser": adminUser}}
	r := newAuthRouter(t, resolver)

	token, err := newTokens(t).IssueMemberToken("testUser", "Momofin")
	require.NoError(t, err)

	w := doGet(r, "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"member:Momofin/testUser"}, resolver.calls)
}

func TestAuthMiddleware_UnknownSubject(t *testing.T) {
	r := newAuthRouter(t, &stubResolver{})
	token, err := newTokens(t).IssueToken("ghost")
	require.NoError(t, err)

	w := doGet(r, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "User not found", errorMessage(t, w))
}

func TestAuthMiddleware_ResolverFailure(t *testing.T) {
	r := newAuthRouter(t, &stubResolver{err: errors.New("connection refused")})
	token, err := newTokens(t).IssueToken("testUser")
	require.NoError(t, err)

	w := doGet(r, "Bearer "+token)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", errorMessage(t, w))
}

// ---------------------------------------------------------------------------
// RequireRole
// ---------------------------------------------------------------------------

func TestRequireRole(t *testing.T) {
	resolver := &stubResolver{byUsername: map[string]*models.User{
		"testUser":  adminUser,
		"plainUser": memberUser,
	}}
	r := newAuthRouter(t, resolver, RequireRole(auth.RoleAdmin))
	tokens := newTokens(t)

	adminToken, err := tokens.IssueToken("testUser")
	require.NoError(t, err)
	memberToken, err := tokens.IssueToken("plainUser")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, doGet(r, "Bearer "+adminToken).Code)

	w := doGet(r, "Bearer "+memberToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotEmpty(t, errorMessage(t, w))
}

func TestRequireRole_UnknownStoredRole(t *testing.T) {
	legacy := &models.User{ID: "u-9", OrganizationID: "org-1", Username: "legacyUser", Role: "owner"}
	resolver := &stubResolver{byUsername: map[string]*models.User{"legacyUser": legacy}}
	r := newAuthRouter(t, resolver, RequireRole(auth.RoleMember))

	token, err := newTokens(t).IssueToken("legacyUser")
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, doGet(r, "Bearer "+token).Code)
}

func TestRequireRole_WithoutAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/", RequireRole(auth.RoleMember), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := doGet(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
