package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/imagegen"
)

// maxToolArgs bounds the body of a direct tool call.
const maxToolArgs = 1 << 20

type generateImageRequest struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider"`
	Size     string `json:"size"`
	N        int    `json:"n"`
}

func (s *Server) listTools(c echo.Context) error {
	if s.Tools == nil {
		return c.JSON(http.StatusOK, []any{})
	}
	return c.JSON(http.StatusOK, s.Tools.Definitions())
}

func (s *Server) callTool(c echo.Context) error {
	if s.Tools == nil {
		return notConfigured("Tools")
	}
	args, err := io.ReadAll(io.LimitReader(c.Request().Body, maxToolArgs))
	if err != nil {
		return errs.Invalid(err, "Could not read the tool arguments.")
	}
	out, err := s.Tools.Call(c.Request().Context(), c.Param("name"), args)
	if err != nil {
		return err
	}
	if json.Valid([]byte(out)) {
		return c.JSONBlob(http.StatusOK, []byte(out))
	}
	return c.JSON(http.StatusOK, map[string]string{"result": out})
}

func (s *Server) generateImage(c echo.Context) error {
	if s.Images == nil {
		return notConfigured("Image generation")
	}
	var req generateImageRequest
	if err := c.Bind(&req); err != nil {
		return errs.Invalid(err, "Invalid request body.")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return errs.Invalid(imagegen.ErrEmptyPrompt, "Missing prompt.")
	}
	res, err := s.Images.Generate(c.Request().Context(), req.Provider, imagegen.Request{
		Prompt: req.Prompt,
		Size:   req.Size,
		N:      req.N,
	})
	if err != nil {
		return imagegen.Classify(err)
	}
	return c.JSON(http.StatusOK, res)
}
