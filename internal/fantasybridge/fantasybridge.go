package fantasybridge

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"charm.land/fantasy"

	"github.com/opensuperagent/superagent/internal/proto"
	"github.com/opensuperagent/superagent/internal/stream"
)

var _ stream.Client = &Client{}

// Config represents provider configuration used by the fantasy bridge.
type Config struct {
	API            string
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	ThinkingBudget int
}

// Client is a stream.Client backed by charm.land/fantasy.
type Client struct {
	provider fantasy.Provider
	config   Config
}

// New creates a new Fantasy-backed stream client.
func New(cfg Config) (*Client, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{provider: provider, config: cfg}, nil
}

// Request implements stream.Client.
func (c *Client) Request(ctx context.Context, request proto.Request) stream.Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		ctx:         streamCtx,
		cancel:      cancel,
		provider:    c.provider,
		request:     request,
		messages:    request.Messages,
		config:      c.config,
		warningSeen: map[string]struct{}{},
	}
	if err := s.startStep(); err != nil {
		s.err = err
	}
	return s
}

// Stream is a stream.Stream implementation backed by fantasy stream events.
type Stream struct {
	ctx      context.Context
	cancel   context.CancelFunc
	provider fantasy.Provider
	request  proto.Request
	config   Config

	mu sync.Mutex

	messages []proto.Message

	partCh  chan fantasy.StreamPart
	current proto.Chunk
	emit    bool
	err     error

	stepText         strings.Builder
	stepToolCalls    []proto.ToolCall
	stepToolCallSeen map[string]struct{}
	stepDone         bool
	warningSeen      map[string]struct{}
	pendingWarnings  []string
}

// Next implements stream.Stream.
func (s *Stream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return false
	}

	if s.stepDone {
		if err := s.startStep(); err != nil {
			s.err = err
			return false
		}
	}

	part, ok := <-s.partCh
	if !ok {
		s.finalizeStep()
		return false
	}

	s.current, s.emit = s.consumePart(part)
	return true
}

// Current implements stream.Stream.
func (s *Stream) Current() (proto.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return proto.Chunk{}, s.err
	}
	if !s.emit {
		return proto.Chunk{}, stream.ErrNoContent
	}
	return s.current, nil
}

// Close implements stream.Stream.
func (s *Stream) Close() error {
	s.cancel()
	return nil
}

// Err implements stream.Stream.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Messages implements stream.Stream.
func (s *Stream) Messages() []proto.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages
}

// CallTools implements stream.Stream.
func (s *Stream) CallTools() []proto.ToolCallStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, statuses := stream.CallTools(s.stepToolCalls, s.request.ToolCaller)
	s.messages = append(s.messages, msgs...)

	s.stepToolCalls = nil
	s.stepToolCallSeen = map[string]struct{}{}

	return statuses
}

// DrainWarnings implements stream.Stream.
func (s *Stream) DrainWarnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	warnings := append([]string(nil), s.pendingWarnings...)
	s.pendingWarnings = nil
	return warnings
}

func (s *Stream) startStep() error {
	model, err := s.provider.LanguageModel(s.ctx, s.request.Model)
	if err != nil {
		return fmt.Errorf("fantasy language model: %w", err)
	}

	seq, err := model.Stream(s.ctx, s.buildCall())
	if err != nil {
		return fmt.Errorf("fantasy stream: %w", err)
	}

	s.partCh = make(chan fantasy.StreamPart, 64)
	s.stepDone = false
	s.stepText.Reset()
	s.stepToolCalls = nil
	s.stepToolCallSeen = map[string]struct{}{}

	go func() {
		defer close(s.partCh)
		for part := range seq {
			select {
			case <-s.ctx.Done():
				return
			case s.partCh <- part:
			}
		}
	}()

	return nil
}

func (s *Stream) buildCall() fantasy.Call {
	call := fantasy.Call{
		Prompt:          toFantasyPrompt(s.messages),
		MaxOutputTokens: s.request.MaxTokens,
		Temperature:     s.request.Temperature,
		TopP:            s.request.TopP,
		TopK:            s.request.TopK,
		Tools:           toFantasyTools(s.request.Tools),
		ToolChoice:      toolChoiceForRequest(s.request),
		ProviderOptions: fantasy.ProviderOptions{},
	}
	applyProviderOptions(&call, s.config, s.request)
	return call
}

func (s *Stream) finalizeStep() {
	msg := proto.Message{
		Role:      proto.RoleAssistant,
		Content:   s.stepText.String(),
		ToolCalls: append([]proto.ToolCall(nil), s.stepToolCalls...),
	}
	if msg.Content != "" || len(msg.ToolCalls) > 0 {
		s.messages = append(s.messages, msg)
	}
	s.stepDone = true
}

// consumePart records part into the current step and returns the chunk it
// surfaces to the caller, if any.
func (s *Stream) consumePart(part fantasy.StreamPart) (proto.Chunk, bool) {
	switch part.Type {
	case fantasy.StreamPartTypeTextDelta:
		s.stepText.WriteString(part.Delta)
		return proto.Chunk{Content: part.Delta}, part.Delta != ""
	case fantasy.StreamPartTypeReasoningDelta:
		return proto.Chunk{Reasoning: part.Delta}, part.Delta != ""
	case fantasy.StreamPartTypeToolCall:
		if part.ProviderExecuted {
			return proto.Chunk{}, false
		}
		if _, exists := s.stepToolCallSeen[part.ID]; exists {
			return proto.Chunk{}, false
		}
		s.stepToolCallSeen[part.ID] = struct{}{}
		call := proto.ToolCall{
			ID: part.ID,
			Function: proto.Function{
				Name:      part.ToolCallName,
				Arguments: proto.RawArguments(part.ToolCallInput),
			},
		}
		s.stepToolCalls = append(s.stepToolCalls, call)
		return proto.Chunk{ToolCall: &call}, true
	case fantasy.StreamPartTypeFinish:
		return proto.Chunk{Finish: &proto.Finish{
			Reason:       string(part.FinishReason),
			InputTokens:  part.Usage.InputTokens,
			OutputTokens: part.Usage.OutputTokens,
		}}, true
	case fantasy.StreamPartTypeError:
		s.err = part.Error
		if s.err == nil {
			s.err = fmt.Errorf("%s stream failed", s.config.API)
		}
	case fantasy.StreamPartTypeWarnings:
		s.collectWarnings(part.Warnings)
	}
	return proto.Chunk{}, false
}

func (s *Stream) collectWarnings(warnings []fantasy.CallWarning) {
	for _, warning := range warnings {
		text := strings.TrimSpace(warning.Message)
		if text == "" {
			text = strings.TrimSpace(warning.Details)
		}
		if text == "" && warning.Setting != "" {
			text = fmt.Sprintf("unsupported setting: %s", warning.Setting)
		}
		if text == "" {
			text = "provider warning"
		}
		key := string(warning.Type) + ":" + text
		if _, exists := s.warningSeen[key]; exists {
			continue
		}
		s.warningSeen[key] = struct{}{}
		s.pendingWarnings = append(s.pendingWarnings, text)
	}
}
