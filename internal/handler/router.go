// Package handler provides the HTTP handlers of the public and admin listeners.
package handler

import (
	"io"
	"log/slog"

	"github.com/labstack/echo/v4"

	"chat-edge/internal/assets"
	"chat-edge/internal/model"
	"chat-edge/internal/route"
	"chat-edge/internal/service"
)

// RouterHandler classifies every public request and hands it to exactly one
// of the chat forwarder or the asset adapter.
type RouterHandler struct {
	proxy  *service.ProxyService
	assets *assets.Adapter
	logger *slog.Logger
}

// NewRouterHandler creates a RouterHandler.
func NewRouterHandler(proxy *service.ProxyService, adapter *assets.Adapter, logger *slog.Logger) *RouterHandler {
	return &RouterHandler{
		proxy:  proxy,
		assets: adapter,
		logger: logger.With("component", "router"),
	}
}

// Handle dispatches the request on its path. Errors are returned unwritten
// for the echo HTTPErrorHandler.
func (h *RouterHandler) Handle(c echo.Context) error {
	req := c.Request()
	if route.Classify(req.URL.Path) == route.ChatAPI {
		return h.forward(c)
	}
	return h.assets.Serve(c.Response(), req)
}

// forward relays the request to the backend and streams the backend response
// back with its status, headers and body unchanged. Bodies over
// server.body_max_bytes never get here: BodyLimit answers them with a plain
// 413.
func (h *RouterHandler) forward(c echo.Context) error {
	req := c.Request()

	resp, err := h.proxy.Forward(model.NewProxyRequest(req))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	dst := c.Response().Header()
	for key, vals := range resp.Header {
		for _, v := range vals {
			dst.Add(key, v)
		}
	}
	// A nil entry stops net/http from adding a sniffed Content-Type or a Date
	// the backend did not send.
	for _, key := range []string{echo.HeaderContentType, "Date"} {
		if _, ok := resp.Header[key]; !ok {
			dst[key] = nil
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// The status is already sent, so a failed copy can only truncate the body.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", req.URL.Path,
		)
	}

	return nil
}
