package models

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation with the generator.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
