// Package agent runs the conversation loop: think via the LLM bridge,
// act via the tool orchestrator, then ask the judge whether the turn is
// done, bounded by a round budget and a turn timeout.
package agent

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/yyup/agentd/internal/tools"
)

// ErrBridgeUnavailable wraps transport and provider failures from the
// model endpoint.
var ErrBridgeUnavailable = errors.New("llm bridge unavailable")

// MessageRole identifies who authored a prompt message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message is one entry in the prompt transcript.
type Message struct {
	Role    MessageRole
	Content string

	// ToolCalls carries the requests an assistant message issued.
	ToolCalls []ToolRequest

	// ToolCallID and ToolName tie a tool message back to its request.
	ToolCallID string
	ToolName   string
}

// ToolRequest is one tool invocation the model asked for.
type ToolRequest struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Thought is the model's output for one round: answer text, tool
// requests, or both (text alongside requests is treated as reasoning).
type Thought struct {
	Text         string
	ToolRequests []ToolRequest
}

// Prompt is the input to one think round.
type Prompt struct {
	Messages []Message

	// Tools the model may request.
	Tools []tools.Definition

	// OnDelta, when set, receives streamed output chunks as they arrive.
	OnDelta func(text string)
}

// Bridge produces one Thought per prompt. Implementations wrap a
// concrete model endpoint; the loop only depends on this interface.
type Bridge interface {
	Think(ctx context.Context, prompt *Prompt) (*Thought, error)
}
