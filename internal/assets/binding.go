// Package assets serves the static chat UI for every non-API route.
package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"

	"chat-edge/internal/config"
)

// ErrUnavailable is returned when no asset capability is bound.
var ErrUnavailable = errors.New("static asset capability is not configured: set assets.dir (ASSETS_DIR) or assets.embedded")

// Binding is either Present, holding the handler that resolves request paths
// to static files, or Absent. The zero value is Absent.
type Binding struct {
	handler http.Handler
}

// Present binds h as the asset capability. A nil h yields an Absent binding.
func Present(h http.Handler) Binding {
	return Binding{handler: h}
}

// Absent returns a binding without an asset capability.
func Absent() Binding {
	return Binding{}
}

// Handler returns the bound handler and whether one is present.
func (b Binding) Handler() (http.Handler, bool) {
	return b.handler, b.handler != nil
}

// NewBinding builds the asset capability selected by cfg.Assets.
func NewBinding(cfg *config.Config) (Binding, error) {
	switch cfg.Assets.Mode() {
	case "dir":
		return Present(FileServer(os.DirFS(cfg.Assets.Dir))), nil
	case "embedded":
		sub, err := fs.Sub(embeddedUI, "ui")
		if err != nil {
			return Absent(), fmt.Errorf("assets: embedded ui: %w", err)
		}
		return Present(FileServer(sub)), nil
	default:
		return Absent(), nil
	}
}
