// Package chat defines the assistant completion port the server calls
// through. The tool-calling loop itself lives behind the Completer
// interface; this package only carries the message shapes and token
// accounting the usage meter needs.
package chat

import (
	"context"
	"encoding/json"
)

type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
}

// Usage is the token accounting reported for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	CachedTokens int `json:"cached_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type Completion struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Completer produces an assistant reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (*Completion, error)
}
