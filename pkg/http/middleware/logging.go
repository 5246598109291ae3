package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "FinRank/pkg/logger"
)

// RequestLogging logs every request at debug level. Failures and slow
// requests are escalated by the metrics middleware, so this stays
// quiet in production log levels.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if l != nil {
				l.Debug("http request",
					applogger.String("method", c.Request().Method),
					applogger.String("uri", c.Request().RequestURI),
					applogger.String("remote", c.RealIP()),
					applogger.Int("status", c.Response().Status),
					applogger.Duration("took", time.Since(start)),
				)
			}
			return err
		}
	}
}
