package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/datastream"
	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/proto"
	"github.com/opensuperagent/superagent/internal/stream"
	"github.com/opensuperagent/superagent/internal/tools"
)

// Turn is one user turn of a conversation.
type Turn struct {
	// Agent names the agent; empty selects the default agent.
	Agent string
	// API and Model override the selected model when Model is set.
	API      string
	Model    string
	Messages []proto.Message
}

// Sink receives the events of a running turn. datastream.Writer is a Sink.
type Sink interface {
	StartStep(messageID string) error
	Text(delta string) error
	Reasoning(delta string) error
	ToolCall(id, name string, args []byte) error
	ToolResult(id, result string) error
	FinishStep(reason string, usage datastream.Usage, continued bool) error
	FinishMessage(reason string, usage datastream.Usage) error
}

// Result summarises a finished turn.
type Result struct {
	Agent        string
	API          string
	Model        string
	Steps        int
	FinishReason string
	Usage        datastream.Usage
	// Messages is the conversation without system messages, ending with the
	// messages produced by this turn.
	Messages []proto.Message
}

type plan struct {
	agentName string
	agent     config.Agent
	api       config.API
	model     config.Model
	messages  []proto.Message
	tools     []proto.ToolDefinition
	caller    proto.ToolCaller
}

// Run executes t, forwarding every event to sink. The model is called again
// after each step that requested tools, up to the agent's step limit.
func (s *Service) Run(ctx context.Context, t Turn, sink Sink) (res Result, err error) {
	start := time.Now()
	p, err := s.prepare(ctx, t)
	if err != nil {
		return res, err
	}
	res = Result{Agent: p.agentName}
	defer func() {
		res.API, res.Model = p.model.API, p.model.Name
		s.metrics.ObserveStream(p.model.API, p.model.Name, err)
		if err != nil {
			s.logger.Error("turn failed", "agent", p.agentName, "model", p.model.Name, "err", err)
			return
		}
		s.logger.Info("turn finished",
			"agent", p.agentName,
			"model", p.model.Name,
			"steps", res.Steps,
			"finish", res.FinishReason,
			"tokens", res.Usage.PromptTokens+res.Usage.CompletionTokens,
			"took", time.Since(start).Round(time.Millisecond),
		)
	}()

	st, more, err := s.open(ctx, p)
	if err != nil {
		return res, err
	}
	defer func() { _ = st.Close() }()

	for step := 1; ; step++ {
		if step > 1 {
			more = st.Next()
		}
		res.Steps = step
		if err := sink.StartStep("msg-" + uuid.NewString()); err != nil {
			return res, err
		}

		finish := proto.Finish{Reason: "unknown"}
		for ; more; more = st.Next() {
			chunk, err := st.Current()
			if errors.Is(err, stream.ErrNoContent) {
				continue
			}
			if err != nil {
				break
			}
			if err := forward(sink, chunk, &finish); err != nil {
				return res, err
			}
		}
		if err := st.Err(); err != nil {
			return res, s.ActionForStreamError(err, p.model, "").Err
		}
		for _, w := range st.DrainWarnings() {
			s.logger.Warn("provider warning", "model", p.model.Name, "warning", w)
		}

		statuses := st.CallTools()
		for _, status := range statuses {
			result := status.Result
			if status.Err != nil {
				result = status.Err.Error()
			}
			if err := sink.ToolResult(status.ID, result); err != nil {
				return res, err
			}
		}

		usage := datastream.Usage{PromptTokens: finish.InputTokens, CompletionTokens: finish.OutputTokens}
		res.Usage.Add(usage)
		res.FinishReason = finish.Reason
		continued := len(statuses) > 0 && step < p.agent.MaxSteps
		if err := sink.FinishStep(finish.Reason, usage, continued); err != nil {
			return res, err
		}
		if !continued {
			break
		}
	}

	res.Messages = withoutSystem(st.Messages())
	return res, sink.FinishMessage(res.FinishReason, res.Usage)
}

func forward(sink Sink, chunk proto.Chunk, finish *proto.Finish) error {
	switch {
	case chunk.Content != "":
		return sink.Text(chunk.Content)
	case chunk.Reasoning != "":
		return sink.Reasoning(chunk.Reasoning)
	case chunk.ToolCall != nil:
		return sink.ToolCall(chunk.ToolCall.ID, chunk.ToolCall.Function.Name, chunk.ToolCall.Function.Arguments)
	case chunk.Finish != nil:
		*finish = *chunk.Finish
	}
	return nil
}

// open starts the stream and reads its first part, retrying failed starts
// as ActionForStreamError advises. It reports whether a first part is
// pending.
func (s *Service) open(ctx context.Context, p *plan) (stream.Stream, bool, error) {
	var (
		st    stream.Stream
		more  bool
		tries int
	)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.RetryDelay), uint64(max(s.cfg.MaxRetries, 0))), //nolint:gosec
		ctx,
	)
	op := func() error {
		tries++
		pc, err := ProviderConfig(ctx, s.cfg, p.api, p.model)
		if err != nil {
			return backoff.Permanent(err)
		}
		client, err := s.newClient(pc)
		if err != nil {
			return backoff.Permanent(errs.Wrap(err, "Could not create the provider client."))
		}

		candidate := client.Request(ctx, s.request(p))
		next := candidate.Next()
		if err := candidate.Err(); err != nil {
			_ = candidate.Close()
			act := s.ActionForStreamError(err, p.model, lastUserPrompt(p.messages))
			if !act.Retry {
				return backoff.Permanent(act.Err)
			}
			if act.ModelOverride != "" {
				api, mod, rerr := ResolveModel(s.cfg, p.model.API, act.ModelOverride)
				if rerr != nil {
					return backoff.Permanent(act.Err)
				}
				p.api, p.model = api, mod
			}
			setLastUserPrompt(p.messages, act.Prompt)
			s.logger.Warn("retrying stream", "model", p.model.Name, "attempt", tries, "reason", act.Err.Reason)
			return act.Err
		}
		st, more = candidate, next
		return nil
	}
	if err := backoff.Retry(op, policy); err != nil {
		return nil, false, err
	}
	return st, more, nil
}

func (s *Service) request(p *plan) proto.Request {
	cfg := s.cfg
	req := proto.Request{
		Messages:   p.messages,
		API:        p.model.API,
		Model:      p.model.Name,
		User:       cfg.User,
		Stop:       cfg.Stop,
		Tools:      p.tools,
		ToolCaller: p.caller,
	}
	if p.api.User != "" {
		req.User = p.api.User
	}
	if cfg.Temperature > 0 {
		v := cfg.Temperature
		req.Temperature = &v
	}
	if cfg.TopP > 0 {
		v := cfg.TopP
		req.TopP = &v
	}
	if cfg.TopK > 0 {
		v := cfg.TopK
		req.TopK = &v
	}
	// o1 models do not accept max_tokens.
	if cfg.MaxTokens > 0 && !strings.HasPrefix(p.model.Name, "o1") {
		v := cfg.MaxTokens
		req.MaxTokens = &v
	}
	if cfg.MaxCompletionTokens > 0 {
		v := cfg.MaxCompletionTokens
		req.MaxCompletionTokens = &v
	}
	return req
}

func (s *Service) prepare(ctx context.Context, t Turn) (*plan, error) {
	if len(t.Messages) == 0 {
		return nil, errs.Invalid(errs.UserErrorf("messages are required"), "At least one message is required.")
	}
	for _, m := range t.Messages {
		if !m.Role.Valid() {
			return nil, errs.Invalid(errs.UserErrorf("unknown role %q", m.Role), "Invalid message.")
		}
	}

	name, a, err := s.cfg.AgentNamed(t.Agent)
	if err != nil {
		return nil, err
	}

	apiName, modelName := t.API, t.Model
	if modelName == "" {
		apiName, modelName, err = s.defaultModel(ctx, a)
		if err != nil {
			return nil, err
		}
	}
	api, mod, err := ResolveModel(s.cfg, apiName, modelName)
	if err != nil {
		return nil, err
	}
	if mod.MaxChars == 0 {
		mod.MaxChars = s.cfg.MaxInputChars
	}

	instructions, err := a.Resolve(ctx)
	if err != nil {
		return nil, errs.Wrapf(err, "Could not load the instructions of agent %s.", name)
	}
	messages := make([]proto.Message, 0, len(instructions)+len(t.Messages))
	for _, in := range instructions {
		messages = append(messages, proto.Message{Role: proto.RoleSystem, Content: in})
	}
	messages = append(messages, t.Messages...)
	if !s.cfg.NoLimit && mod.MaxChars > 0 {
		if prompt := lastUserPrompt(messages); int64(len(prompt)) > mod.MaxChars {
			setLastUserPrompt(messages, strings.ToValidUTF8(prompt[:mod.MaxChars], ""))
		}
	}

	p := &plan{agentName: name, agent: a, api: api, model: mod, messages: messages}
	if s.tools != nil && len(a.Tools) > 0 {
		p.tools = tools.ToProto(s.tools.Definitions(a.Tools...))
		if len(p.tools) > 0 {
			p.caller = s.tools.Caller(ctx, a.Tools...)
		}
	}
	return p, nil
}

// defaultModel picks the set-model selection, then the agent's model, then
// the configured default.
func (s *Service) defaultModel(ctx context.Context, a config.Agent) (string, string, error) {
	if s.models != nil {
		sel, ok, err := s.models.Get(ctx)
		if err != nil {
			return "", "", errs.Unavailable(err, "Could not read the selected model.")
		}
		if ok {
			return sel.API, sel.Model, nil
		}
	}
	if a.Model != "" {
		return "", a.Model, nil
	}
	return s.cfg.API, s.cfg.Model, nil
}

func lastUserIndex(msgs []proto.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == proto.RoleUser {
			return i
		}
	}
	return -1
}

func lastUserPrompt(msgs []proto.Message) string {
	if i := lastUserIndex(msgs); i >= 0 {
		return msgs[i].Content
	}
	return ""
}

func setLastUserPrompt(msgs []proto.Message, prompt string) {
	if i := lastUserIndex(msgs); i >= 0 {
		msgs[i].Content = prompt
	}
}

func withoutSystem(msgs []proto.Message) []proto.Message {
	out := make([]proto.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != proto.RoleSystem {
			out = append(out, m)
		}
	}
	return out
}
