package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func serve(t *testing.T, c *Checker, path string) (*httptest.ResponseRecorder, HealthStatus) {
	t.Helper()
	e := echo.New()
	c.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body HealthStatus
	if path == "/api/v1/health" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	t.Run("all dependencies healthy", func(t *testing.T) {
		rec, body := serve(t, NewChecker("1.0.0", map[string]Pinger{"database": ok, "redis": nil}), "/api/v1/health")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "healthy", body.Status)
		assert.Equal(t, "healthy", body.Checks["database"].Status)
		assert.Equal(t, "disabled", body.Checks["redis"].Status)
	})

	t.Run("dependency down", func(t *testing.T) {
		rec, body := serve(t, NewChecker("1.0.0", map[string]Pinger{"database": down}), "/api/v1/health")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "connection refused", body.Checks["database"].Message)
	})
}

func TestReady(t *testing.T) {
	c := NewChecker("1.0.0", nil)

	rec, _ := serve(t, c, "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c.SetReady(true)
	rec, _ = serve(t, c, "/api/v1/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = serve(t, c, "/api/v1/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
}
