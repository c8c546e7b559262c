// Package stream defines the streaming completion contract implemented by
// LLM bridges and the helpers shared by implementations.
package stream

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/opensuperagent/superagent/internal/proto"
)

// ErrNoContent means the current part carries nothing for the caller.
var ErrNoContent = errors.New("no content")

// Client starts streaming completions.
type Client interface {
	Request(ctx context.Context, request proto.Request) Stream
}

// Stream is a multi-step completion stream.
//
// Next advances to the next part and returns false at the end of a step or
// on error. After a step ends, CallTools runs the tool calls requested in
// that step; if it returns statuses, calling Next again starts the next step.
type Stream interface {
	Next() bool
	Current() (proto.Chunk, error)
	Close() error
	Err() error
	Messages() []proto.Message
	CallTools() []proto.ToolCallStatus
	DrainWarnings() []string
}

// CallTools executes calls concurrently and returns, in call order, the tool
// messages to append to the conversation and the status of each call. A
// failing tool produces an error result instead of aborting the batch.
func CallTools(calls []proto.ToolCall, caller proto.ToolCaller) ([]proto.Message, []proto.ToolCallStatus) {
	msgs := make([]proto.Message, len(calls))
	statuses := make([]proto.ToolCallStatus, len(calls))

	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			msgs[i], statuses[i] = CallTool(call.ID, call.Function.Name, call.Function.Arguments, caller)
			return nil
		})
	}
	_ = g.Wait()

	return msgs, statuses
}

// CallTool executes a single tool call.
func CallTool(id, name string, data []byte, caller proto.ToolCaller) (proto.Message, proto.ToolCallStatus) {
	status := proto.ToolCallStatus{ID: id, Name: name}
	if caller == nil {
		status.Err = errors.New("tools are disabled")
	} else {
		status.Result, status.Err = caller(name, data)
	}

	content := status.Result
	if status.Err != nil {
		content = status.Err.Error()
	}

	return proto.Message{
		Role:    proto.RoleTool,
		Content: content,
		ToolCalls: []proto.ToolCall{{
			ID:      id,
			IsError: status.Err != nil,
			Function: proto.Function{
				Name:      name,
				Arguments: data,
			},
		}},
	}, status
}
