package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/comorbidity/internal/platform/fhir"
)

// RequestTimeout sets a deadline on the request context. Handlers observe it
// through ctx; when it expires before a response is written the client gets a
// 503 OperationOutcome. Health probes are exempt.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 || strings.HasPrefix(c.Request().URL.Path, "/health") {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return timeoutError(c)
			}
			return err
		}
	}
}

func timeoutError(c echo.Context) error {
	return c.JSON(http.StatusServiceUnavailable, fhir.TimeoutOutcome())
}
