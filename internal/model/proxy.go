// Package model defines shared types for the router.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest is an inbound chat request to be relayed to the backend.
// Header and Body are treated as opaque and passed through as-is.
type ProxyRequest struct {
	Ctx           context.Context
	Method        string
	Path          string
	RawPath       string
	RawQuery      string
	Header        http.Header
	Body          io.ReadCloser
	ContentLength int64
}

// NewProxyRequest derives a ProxyRequest from an inbound HTTP request
// without modifying it.
func NewProxyRequest(r *http.Request) *ProxyRequest {
	return &ProxyRequest{
		Ctx:           r.Context(),
		Method:        r.Method,
		Path:          r.URL.Path,
		RawPath:       r.URL.RawPath,
		RawQuery:      r.URL.RawQuery,
		Header:        r.Header,
		Body:          r.Body,
		ContentLength: r.ContentLength,
	}
}

// ProxyResponse is the backend response to be streamed back unchanged.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
