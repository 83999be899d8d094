// Package route classifies inbound requests into the two handling paths.
package route

// ChatPath is the only path forwarded to the chat backend.
const ChatPath = "/api/chat"

// Kind is the classification of a request path.
type Kind int

const (
	// Asset requests are served by the static asset capability.
	Asset Kind = iota
	// ChatAPI requests are forwarded to the chat backend.
	ChatAPI
)

func (k Kind) String() string {
	switch k {
	case ChatAPI:
		return "chat"
	default:
		return "asset"
	}
}

// Classify returns ChatAPI when path is exactly ChatPath and Asset otherwise.
// Method and body are irrelevant, so a GET to ChatPath is still ChatAPI.
func Classify(path string) Kind {
	if path == ChatPath {
		return ChatAPI
	}
	return Asset
}
