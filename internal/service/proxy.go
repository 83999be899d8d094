// Package service implements the chat forwarding logic.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"chat-edge/internal/client"
	"chat-edge/internal/config"
	"chat-edge/internal/model"
)

// ConfigError reports a backend configuration problem detected before any I/O.
// Its message is meant to be shown to the chat user as an answer.
type ConfigError struct {
	Message string
	Err     error
}

func (e *ConfigError) Error() string { return e.Message }

func (e *ConfigError) Unwrap() error { return e.Err }

// ProxyService forwards chat requests to the backend.
type ProxyService struct {
	client  *client.BackendClient
	backend config.BackendConfig
	logger  *slog.Logger
}

// NewProxyService creates a ProxyService. It never fails on a bad backend URL;
// that is reported per request so the chat UI can display it.
func NewProxyService(c *client.BackendClient, cfg *config.Config, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client:  c,
		backend: cfg.Backend,
		logger:  logger.With("component", "proxy_service"),
	}
}

// Forward relays pr to the backend and returns the backend's response
// unchanged. The caller is responsible for closing the response body.
//
// A missing or malformed backend URL yields a *ConfigError without any network
// call. Transport failures are returned wrapped and are never retried.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	target, err := s.targetURL(pr.Path, pr.RawPath, pr.RawQuery)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"target", target.Redacted(),
	)

	resp, err := s.client.DoStream(pr.Ctx, pr.Method, target.String(), pr.Header, pr.Body, pr.ContentLength)
	if err != nil {
		return nil, fmt.Errorf("forward to backend: %w", err)
	}
	return resp, nil
}

// targetURL resolves path and query against the configured backend base URL.
// It is recomputed for every request.
func (s *ProxyService) targetURL(path, rawPath, rawQuery string) (*url.URL, error) {
	base, err := s.backend.BaseURL()
	switch {
	case errors.Is(err, config.ErrBackendURLUnset):
		return nil, &ConfigError{
			Message: "BACKEND_URL is not configured. Set backend.url in the config file or the BACKEND_URL environment variable.",
			Err:     err,
		}
	case err != nil:
		return nil, &ConfigError{
			Message: fmt.Sprintf("BACKEND_URL is invalid: %q is not an absolute http(s) URL.", s.backend.URL),
			Err:     err,
		}
	}

	ref := &url.URL{Path: path, RawPath: rawPath, RawQuery: rawQuery}
	return base.ResolveReference(ref), nil
}
