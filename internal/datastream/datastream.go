// Package datastream encodes agent events in the line-oriented data stream
// protocol read by AI SDK chat front ends. Each part is written as
// "<code>:<json>\n" and flushed immediately.
package datastream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Header marks a response body as a data stream.
const (
	Header        = "x-vercel-ai-data-stream"
	HeaderVersion = "v1"
)

// Protocol selects the encoding of a chat response.
type Protocol string

// Supported protocols. ProtocolText only carries text deltas.
const (
	ProtocolData Protocol = "data"
	ProtocolText Protocol = "text"
)

// ParseProtocol parses s, defaulting to ProtocolData when s is empty.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(s) {
	case "", ProtocolData:
		return ProtocolData, nil
	case ProtocolText:
		return ProtocolText, nil
	}
	return "", fmt.Errorf("unknown stream protocol %q", s)
}

// SetHeaders sets the response headers for p.
func (p Protocol) SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	if p == ProtocolData {
		h.Set(Header, HeaderVersion)
	}
}

// Part type codes.
const (
	codeText       = '0'
	codeData       = '2'
	codeError      = '3'
	codeToolCall   = '9'
	codeToolResult = 'a'
	codeFinishMsg  = 'd'
	codeFinishStep = 'e'
	codeStartStep  = 'f'
	codeReasoning  = 'g'
)

// Usage is the token usage reported with finish parts.
type Usage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.PromptTokens += u2.PromptTokens
	u.CompletionTokens += u2.CompletionTokens
}

type startStep struct {
	MessageID string `json:"messageId"`
}

type toolCall struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

type toolResult struct {
	ToolCallID string `json:"toolCallId"`
	Result     any    `json:"result"`
}

type finishStep struct {
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
	IsContinued  bool   `json:"isContinued"`
}

type finishMessage struct {
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
}

// Writer writes stream parts to an underlying writer. The first write error
// is sticky: later calls do nothing and return it.
type Writer struct {
	w        io.Writer
	protocol Protocol
	err      error
}

// NewWriter returns a Writer encoding p onto w. If w is an http.Flusher it
// is flushed after every part.
func NewWriter(w io.Writer, p Protocol) *Writer {
	return &Writer{w: w, protocol: p}
}

// Err returns the first write error.
func (w *Writer) Err() error {
	return w.err
}

// StartStep opens a model step.
func (w *Writer) StartStep(messageID string) error {
	return w.part(codeStartStep, startStep{MessageID: messageID})
}

// Text writes a text delta.
func (w *Writer) Text(delta string) error {
	if delta == "" {
		return w.err
	}
	if w.protocol == ProtocolText {
		return w.raw([]byte(delta))
	}
	return w.part(codeText, delta)
}

// Reasoning writes a reasoning delta.
func (w *Writer) Reasoning(delta string) error {
	if delta == "" {
		return w.err
	}
	return w.part(codeReasoning, delta)
}

// ToolCall announces a tool call. Empty args are sent as {}.
func (w *Writer) ToolCall(id, name string, args []byte) error {
	if len(args) == 0 || !json.Valid(args) {
		args = []byte("{}")
	}
	return w.part(codeToolCall, toolCall{ToolCallID: id, ToolName: name, Args: args})
}

// ToolResult reports the result of a tool call. Results that are valid JSON
// are embedded as-is; anything else is sent as a string.
func (w *Writer) ToolResult(id string, result string) error {
	var v any = result
	if json.Valid([]byte(result)) {
		v = json.RawMessage(result)
	}
	return w.part(codeToolResult, toolResult{ToolCallID: id, Result: v})
}

// Error writes an error part.
func (w *Writer) Error(msg string) error {
	return w.part(codeError, msg)
}

// FinishStep closes a model step.
func (w *Writer) FinishStep(reason string, usage Usage, continued bool) error {
	return w.part(codeFinishStep, finishStep{FinishReason: reason, Usage: usage, IsContinued: continued})
}

// FinishMessage closes the response.
func (w *Writer) FinishMessage(reason string, usage Usage) error {
	return w.part(codeFinishMsg, finishMessage{FinishReason: reason, Usage: usage})
}

// Data writes custom data values for the front end.
func (w *Writer) Data(values ...any) error {
	if values == nil {
		values = []any{}
	}
	return w.part(codeData, values)
}

func (w *Writer) part(code byte, v any) error {
	if w.err != nil || w.protocol == ProtocolText {
		return w.err
	}
	var buf bytes.Buffer
	buf.WriteByte(code)
	buf.WriteByte(':')
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encode terminates the line.
	if err := enc.Encode(v); err != nil {
		w.err = fmt.Errorf("encode part %c: %w", code, err)
		return w.err
	}
	return w.raw(buf.Bytes())
}

func (w *Writer) raw(b []byte) error {
	if w.err != nil {
		return w.err
	}
	if _, err := w.w.Write(b); err != nil {
		w.err = err
		return err
	}
	if f, ok := w.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
