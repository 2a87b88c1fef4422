package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(RequestIDMiddleware(), LoggerMiddleware(logger))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	tests := []struct {
		path      string
		wantLevel string
		wantCode  float64
	}{
		{"/ok?x=1", "INFO", 200},
		{"/boom", "ERROR", 500},
		{"/missing", "WARN", 404},
	}

	for _, tt := range tests {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		req.Header.Set(RequestIDHeader, "rid-"+tt.wantLevel)
		r.ServeHTTP(httptest.NewRecorder(), req)

		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec), tt.path)
		assert.Equal(t, "http request", rec["msg"])
		assert.Equal(t, tt.wantLevel, rec["level"], tt.path)
		assert.Equal(t, tt.wantCode, rec["status"], tt.path)
		assert.Equal(t, "rid-"+tt.wantLevel, rec["request_id"])
	}
}

func TestCORSMiddleware(t *testing.T) {
	newRouter := func(origins []string) *gin.Engine {
		r := gin.New()
		r.Use(CORSMiddleware(origins, []string{"GET", "POST"}))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	t.Run("allowed origin echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://app.momofin.com")
		w := httptest.NewRecorder()
		newRouter([]string{"https://app.momofin.com"}).ServeHTTP(w, req)

		assert.Equal(t, "https://app.momofin.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example")
		w := httptest.NewRecorder()
		newRouter([]string{"https://app.momofin.com"}).ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "https://app.momofin.com")
		w := httptest.NewRecorder()
		newRouter([]string{"*"}).ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}
