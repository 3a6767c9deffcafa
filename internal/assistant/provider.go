package assistant

import (
	"context"
	"encoding/json"
)

// Message roles on the conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is one entry of the conversation history threaded through a
// turn. Tool-call requests and tool results ride on the same type so the
// history stays a single ordered sequence.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a single tool invocation requested by the model. Args holds
// the raw JSON argument object as received.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ModelReply is the model's answer for one round: either free text, or a
// batch of tool calls to execute.
type ModelReply struct {
	Content   string
	ToolCalls []ToolCall
}

// ModelProvider is the outbound boundary to the language model.
type ModelProvider interface {
	Complete(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (*ModelReply, error)
}

// ToolDefinition mirrors the chat-completions function-tool JSON shape.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
