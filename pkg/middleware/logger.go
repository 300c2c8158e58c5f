package middleware

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/context"
)

// Logger logs one line per ops request. Health routes are logged at debug.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			entry := logger.WithContext(req.Context()).WithFields(map[string]any{
				"method":        req.Method,
				"uri":           req.RequestURI,
				"route":         c.Path(),
				"status":        c.Response().Status,
				"remote_ip":     c.RealIP(),
				"response_time": time.Since(start),
				"response_size": c.Response().Size,
			}).WithFields(appctx.LogFields(req.Context()))
			if c.Path() == "/metrics" || c.Path() == "/api/v1/health/live" {
				entry.Debug("Request")
			} else {
				entry.Info("Request")
			}

			return nil
		}
	}
}
