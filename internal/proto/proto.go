// Package proto defines the provider-agnostic chat types that flow between
// the HTTP API, the agent loop and the LLM bridge.
package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Role is a message author role.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Function is the function invoked by a tool call. Arguments holds the
// JSON document the model produced.
type Function struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// RawArguments turns model output into Arguments. Input that is not valid
// JSON is kept as a JSON string so the message still encodes.
func RawArguments(s string) json.RawMessage {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}

// ToolCall is a model-requested tool invocation. On tool messages it also
// records whether the result is an error.
type ToolCall struct {
	ID       string   `json:"id"`
	Function Function `json:"function"`
	IsError  bool     `json:"isError,omitempty"`
}

// Message is a single chat message.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

func (m Message) String() string {
	var sb strings.Builder
	switch m.Role {
	case RoleSystem:
		sb.WriteString("**System**: ")
	case RoleUser:
		sb.WriteString("**Prompt**: ")
	case RoleAssistant:
		sb.WriteString("**Assistant**: ")
	case RoleTool:
		for _, call := range m.ToolCalls {
			fmt.Fprintf(&sb, "> Ran tool: `%s`\n", call.Function.Name)
		}
		return sb.String()
	}
	sb.WriteString(m.Content)
	for _, call := range m.ToolCalls {
		fmt.Fprintf(&sb, "\n> Called tool: `%s` %s", call.Function.Name, bytes.TrimSpace(call.Function.Arguments))
	}
	return sb.String()
}

// Conversation renders messages as markdown, skipping system messages.
func Conversation(messages []Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			continue
		}
		sb.WriteString(msg.String())
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
	Required    []string
}

// Request is a provider-agnostic completion request.
type Request struct {
	Messages            []Message
	API                 string
	Model               string
	User                string
	Tools               []ToolDefinition
	Temperature         *float64
	TopP                *float64
	TopK                *int64
	MaxTokens           *int64
	MaxCompletionTokens *int64
	Stop                []string
	ToolCaller          ToolCaller
}

// ToolCaller executes a named tool with JSON arguments.
type ToolCaller func(name string, args []byte) (string, error)

// Finish describes the end of a model step.
type Finish struct {
	Reason       string `json:"finishReason"`
	InputTokens  int64  `json:"promptTokens"`
	OutputTokens int64  `json:"completionTokens"`
}

// Chunk is a single streamed unit. At most one field is set.
type Chunk struct {
	Content   string
	Reasoning string
	ToolCall  *ToolCall
	Finish    *Finish
}

// ToolCallStatus is the outcome of a tool call.
type ToolCallStatus struct {
	ID     string
	Name   string
	Result string
	Err    error
}
