package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opensuperagent/superagent/internal/agent"
	"github.com/opensuperagent/superagent/internal/datastream"
	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/proto"
	"github.com/opensuperagent/superagent/internal/storage"
)

type chatRequest struct {
	ID       string          `json:"id"`
	Messages []proto.Message `json:"messages"`
	Model    string          `json:"model"`
	API      string          `json:"api"`
	Agent    string          `json:"agent"`
}

// streamResponse sets the stream headers on the first write, so failures
// before any output still get a JSON error response.
type streamResponse struct {
	*echo.Response
	protocol datastream.Protocol
}

func (r *streamResponse) Write(b []byte) (int, error) {
	if !r.Committed {
		r.protocol.SetHeaders(r.Header())
		r.WriteHeader(http.StatusOK)
	}
	return r.Response.Write(b)
}

func (s *Server) chat(c echo.Context) error {
	if s.Agent == nil {
		return notConfigured("Chat")
	}
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return errs.Invalid(err, "Invalid request body.")
	}
	protocol, err := datastream.ParseProtocol(c.QueryParam("protocol"))
	if err != nil {
		return errs.Invalid(err, "Invalid stream protocol.")
	}
	if req.ID != "" && !storage.ValidID(req.ID) {
		return errs.Invalid(storage.ErrInvalidID, "Invalid conversation id.")
	}

	res := &streamResponse{Response: c.Response(), protocol: protocol}
	w := datastream.NewWriter(res, protocol)
	result, err := s.Agent.Run(c.Request().Context(), agent.Turn{
		Agent:    req.Agent,
		API:      req.API,
		Model:    req.Model,
		Messages: req.Messages,
	}, w)
	if err != nil {
		if !res.Committed {
			return err
		}
		// Headers are gone; the failure travels in the stream.
		s.Logger.Warn("chat stream failed", "id", req.ID, "err", err)
		_ = w.Error(errs.ReasonOf(err))
		return nil
	}

	if req.ID != "" && s.History != nil && !s.cfg.NoCache {
		meta := storage.Conversation{Agent: result.Agent, API: result.API, Model: result.Model}
		if _, err := s.History.Record(req.ID, "", meta, result.Messages); err != nil {
			s.Logger.Error("could not save conversation", "id", req.ID, "err", err)
		}
	}
	return nil
}
