// Package middleware provides Echo middleware for the request boundary,
// request ids, logging and metrics.
package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
)

// PanicError is a recovered panic turned into an ordinary error.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(e.Value)
}

// Unwrap returns the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Boundary recovers panics raised further down the chain and returns them as
// *PanicError, so that every failure reaches the echo HTTPErrorHandler as a
// returned error. http.ErrAbortHandler is re-panicked to keep its meaning.
func Boundary(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				pe := &PanicError{Value: r, Stack: debug.Stack()}
				logger.Error("panic in handler",
					"err", pe.Error(),
					"path", c.Request().URL.Path,
					"request_id", GetRequestID(c),
					"stack", string(pe.Stack),
				)
				err = pe
			}()
			return next(c)
		}
	}
}

// statusCode resolves the status a request ends with. When a handler returns
// an error the response has not been written yet; the error handler will use
// the *echo.HTTPError code, or 500 for anything else.
func statusCode(c echo.Context, err error) int {
	res := c.Response()
	if err == nil || res.Committed {
		return res.Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
