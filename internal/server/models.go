package server

import (
	"net/http"
	"slices"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/opensuperagent/superagent/internal/agent"
	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/errs"
)

type setModelRequest struct {
	ModelName string `json:"modelName"`
	API       string `json:"api"`
}

type selectionResponse struct {
	Success   bool       `json:"success,omitempty"`
	ModelName string     `json:"modelName"`
	API       string     `json:"api"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

type agentInfo struct {
	Name string `json:"name"`
	config.Agent
	Default bool `json:"default"`
}

func (s *Server) getModel(c echo.Context) error {
	if s.Agent == nil {
		return notConfigured("Model selection")
	}
	sel, err := s.Agent.Selection(c.Request().Context())
	if err != nil {
		return err
	}
	out := selectionResponse{ModelName: sel.Model, API: sel.API}
	if !sel.UpdatedAt.IsZero() {
		out.UpdatedAt = &sel.UpdatedAt
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) setModel(c echo.Context) error {
	if s.Agent == nil {
		return notConfigured("Model selection")
	}
	var req setModelRequest
	if err := c.Bind(&req); err != nil {
		return errs.Invalid(err, "Invalid request body.")
	}
	sel, err := s.Agent.SetModel(c.Request().Context(), req.API, req.ModelName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, selectionResponse{
		Success:   true,
		ModelName: sel.Model,
		API:       sel.API,
		UpdatedAt: &sel.UpdatedAt,
	})
}

func (s *Server) models(c echo.Context) error {
	if s.Agent == nil {
		return notConfigured("Model selection")
	}
	sel, err := s.Agent.Selection(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, agent.Models(s.cfg, sel))
}

func (s *Server) agents(c echo.Context) error {
	names := make([]string, 0, len(s.cfg.Agents))
	for name := range s.cfg.Agents {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]agentInfo, 0, len(names))
	for _, name := range names {
		_, a, err := s.cfg.AgentNamed(name)
		if err != nil {
			return err
		}
		out = append(out, agentInfo{Name: name, Agent: a, Default: name == s.cfg.DefaultAgent})
	}
	return c.JSON(http.StatusOK, out)
}
