package model

// PrimarySource is the implicit source of fragments that carry no discriminator.
const PrimarySource = ""

// StreamFragment is one decoded line of a streamed agent response.
type StreamFragment struct {
	Content string
	Source  string
}

// Primary reports whether the fragment belongs to the primary reply.
func (f StreamFragment) Primary() bool {
	return f.Source == PrimarySource
}

// Channel is "primary" or "side", for metric labels.
func (f StreamFragment) Channel() string {
	if f.Primary() {
		return "primary"
	}
	return "side"
}

// ChatRequest is the body of the outgoing-message API.
type ChatRequest struct {
	Message      string `json:"message"`
	SessionID    string `json:"session_id"`
	SpeakingUser string `json:"speaking_user,omitempty"`
}

// RelayFrame is one NDJSON line written by the development agent relay.
type RelayFrame struct {
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}
