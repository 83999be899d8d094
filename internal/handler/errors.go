package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"chat-edge/internal/assets"
	"chat-edge/internal/metrics"
	"chat-edge/internal/middleware"
	"chat-edge/internal/service"
)

// UnexpectedErrorPrefix starts the body of every 500 caused by an
// unclassified failure.
const UnexpectedErrorPrefix = "Unexpected error: "

const jsonContentType = "application/json; charset=utf-8"

// Failure kinds, used as the chat_edge_failures_total label.
const (
	kindConfig            = "config_error"
	kindCapabilityMissing = "capability_missing"
	kindHTTP              = "http_error"
	kindUnexpected        = "unexpected_error"
)

// answer is the JSON body of a configuration error. The chat UI renders the
// answer field as a reply, so the message reaches the user.
type answer struct {
	Answer string `json:"answer"`
}

// NewErrorHandler returns the echo HTTPErrorHandler that turns every error
// returned by the public handlers into a response. m may be nil.
func NewErrorHandler(logger *slog.Logger, m *metrics.Metrics) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_responder")

	return func(err error, c echo.Context) {
		kind, status := classifyError(err)
		m.RecordFailure(kind)

		req := c.Request()
		logger.Error("request failed",
			"kind", kind,
			"status", status,
			"err", err,
			"method", req.Method,
			"path", req.URL.Path,
			"request_id", middleware.GetRequestID(c),
		)

		if c.Response().Committed {
			return
		}

		var werr error
		switch kind {
		case kindConfig:
			werr = writeJSON(c, status, answer{Answer: configMessage(err)})
		case kindCapabilityMissing:
			werr = c.String(status, err.Error())
		case kindHTTP:
			werr = c.String(status, httpErrorMessage(err))
		default:
			werr = c.String(status, unexpectedMessage(err))
		}
		if werr != nil {
			logger.Error("writing error response", "err", werr, "path", req.URL.Path)
		}
	}
}

// classifyError maps err to its failure kind and response status.
func classifyError(err error) (string, int) {
	var cfgErr *service.ConfigError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &cfgErr):
		return kindConfig, http.StatusInternalServerError
	case errors.Is(err, assets.ErrUnavailable):
		return kindCapabilityMissing, http.StatusInternalServerError
	case errors.As(err, &httpErr):
		return kindHTTP, httpErr.Code
	default:
		return kindUnexpected, http.StatusInternalServerError
	}
}

func configMessage(err error) string {
	var ce *service.ConfigError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}

func httpErrorMessage(err error) string {
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		return err.Error()
	}
	if msg, ok := he.Message.(string); ok && msg != "" {
		return msg
	}
	return http.StatusText(he.Code)
}

func unexpectedMessage(err error) string {
	msg := err.Error()
	if msg == "" {
		msg = fmt.Sprintf("%T", err)
	}
	return UnexpectedErrorPrefix + msg
}

func writeJSON(c echo.Context, status int, v any) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, jsonContentType)
	res.WriteHeader(status)
	return json.NewEncoder(res).Encode(v)
}
