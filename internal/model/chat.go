package model

// Chat roles understood by the completion service.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry of a chat transcript.
//
// Transcripts are never stored server-side: the client sends its history with
// every message and receives the extended history back.
type Turn struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}
