package assets

import "embed"

// embeddedUI is the bundled chat client served when assets.embedded is set.
//
//go:embed ui
var embeddedUI embed.FS
