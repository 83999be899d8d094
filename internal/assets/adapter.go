package assets

import (
	"log/slog"
	"net/http"
	"net/url"
)

// IndexPath is the document served for the root path.
const IndexPath = "/index.html"

// Adapter serves non-API requests through the bound asset capability.
type Adapter struct {
	binding Binding
	logger  *slog.Logger
}

// NewAdapter creates an Adapter over binding.
func NewAdapter(binding Binding, logger *slog.Logger) *Adapter {
	return &Adapter{
		binding: binding,
		logger:  logger.With("component", "asset_adapter"),
	}
}

// Serve delegates r to the asset capability, rewriting "/" to IndexPath
// first. Whatever the capability writes, including its own 404s, is the
// response. It returns ErrUnavailable without writing anything when no
// capability is bound.
func (a *Adapter) Serve(w http.ResponseWriter, r *http.Request) error {
	h, ok := a.binding.Handler()
	if !ok {
		return ErrUnavailable
	}

	if r.URL.Path == "/" {
		a.logger.Debug("rewriting root path", "to", IndexPath)
		r = withPath(r, IndexPath)
	}

	h.ServeHTTP(w, r)
	return nil
}

// withPath returns a shallow copy of r whose URL path is p. The original
// request and its URL are left untouched.
func withPath(r *http.Request, p string) *http.Request {
	r2 := new(http.Request)
	*r2 = *r
	r2.URL = new(url.URL)
	*r2.URL = *r.URL
	r2.URL.Path = p
	r2.URL.RawPath = ""
	return r2
}
