package model

import "encoding/json"

const (
	RoleTool      = "tool"
	RoleAssistant = "assistant"
	RoleError     = "error"
)

// ConversationChunk is one object of the newline-delimited stream returned
// by the conversation API.
type ConversationChunk struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Created int64    `json:"created"`
	Object  string   `json:"object"`
	Choices []Choice `json:"choices"`
	Error   string   `json:"error,omitempty"`
}

type Choice struct {
	Messages []ChatMessage `json:"messages"`
}

type ChatMessage struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
	EndTurn bool   `json:"end_turn"`
	Date    string `json:"date"`
}

// ToolContent is the JSON document carried as a string in a tool message.
type ToolContent struct {
	Citations []Citation      `json:"citations"`
	Intent    json.RawMessage `json:"intent,omitempty"`
}
