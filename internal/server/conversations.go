package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/proto"
	"github.com/opensuperagent/superagent/internal/storage"
)

type conversationResponse struct {
	storage.Conversation
	History []proto.Message `json:"history"`
}

func (s *Server) listConversations(c echo.Context) error {
	if s.History == nil {
		return notConfigured("Conversation history")
	}
	return c.JSON(http.StatusOK, s.History.DB.List())
}

func (s *Server) getConversation(c echo.Context) error {
	if s.History == nil {
		return notConfigured("Conversation history")
	}
	conv, msgs, err := s.History.Load(c.Param("id"))
	if err != nil {
		return historyError(err)
	}
	if msgs == nil {
		msgs = []proto.Message{}
	}
	return c.JSON(http.StatusOK, conversationResponse{Conversation: conv, History: msgs})
}

func (s *Server) deleteConversation(c echo.Context) error {
	if s.History == nil {
		return notConfigured("Conversation history")
	}
	if err := s.History.Remove(c.Param("id")); err != nil {
		return historyError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func historyError(err error) error {
	if errors.Is(err, storage.ErrNoMatches) {
		return errs.NotFound(err, "Conversation not found.")
	}
	return errs.Wrap(err, "Could not read the conversation history.")
}
