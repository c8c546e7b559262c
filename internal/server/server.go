// Package server exposes the agent, the tools and the vendor clients over
// the HTTP API read by the chat front end.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/opensuperagent/superagent/internal/agent"
	"github.com/opensuperagent/superagent/internal/config"
	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/imagegen"
	"github.com/opensuperagent/superagent/internal/logging"
	"github.com/opensuperagent/superagent/internal/metrics"
	"github.com/opensuperagent/superagent/internal/storage"
	"github.com/opensuperagent/superagent/internal/tools"
)

const shutdownTimeout = 10 * time.Second

// Options are the services behind the routes. Nil services make their
// routes answer 501.
type Options struct {
	Agent   *agent.Service
	Tools   *tools.Registry
	Images  *imagegen.Set
	Browser tools.Sessions
	Pages   tools.Pages
	History *storage.History
	Metrics *metrics.Metrics
	Logger  *log.Logger
}

// Server is the HTTP API.
type Server struct {
	cfg *config.Config
	Options
	echo    *echo.Echo
	limiter *limiter
}

// New builds the server and its routes.
func New(cfg *config.Config, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	s := &Server{cfg: cfg, Options: opts, echo: echo.New()}
	if cfg.RateLimit > 0 {
		s.limiter = newLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(s.observe)
	e.Use(middleware.Recover())
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if s.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}

	api := e.Group("/api", s.rateLimit)
	api.POST("/chat", s.chat)
	api.GET("/set-model", s.getModel)
	api.POST("/set-model", s.setModel)
	api.GET("/models", s.models)
	api.GET("/agents", s.agents)
	api.GET("/tools", s.listTools)
	api.POST("/tools/:name", s.callTool)
	api.POST("/generate-image", s.generateImage)

	b := api.Group("/browser/sessions")
	b.POST("", s.createSession)
	b.GET("", s.listSessions)
	b.GET("/:id", s.getSession)
	b.DELETE("/:id", s.releaseSession)
	b.GET("/:id/live", s.liveSession)

	h := api.Group("/conversations")
	h.GET("", s.listConversations)
	h.GET("/:id", s.getConversation)
	h.DELETE("/:id", s.deleteConversation)

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.Logger.Info("listening", "addr", addr)
		errc <- s.echo.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.Logger.Info("shutting down")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type errorBody struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (s *Server) handleError(err error, c echo.Context) {
	code, body := errorResponse(err)
	req := c.Request()
	if code >= http.StatusInternalServerError {
		s.Logger.Error("request failed", "method", req.Method, "path", req.URL.Path, "status", code, "err", err)
	} else {
		s.Logger.Debug("request rejected", "method", req.Method, "path", req.URL.Path, "status", code, "err", err)
	}
	if c.Response().Committed {
		return
	}
	if req.Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, body)
}

// errorResponse maps err to a status and a JSON body. Classified errors
// carry their reason; unclassified ones are reported as internal.
func errorResponse(err error) (int, errorBody) {
	var e errs.Error
	if errors.As(err, &e) {
		body := errorBody{Error: errs.ReasonOf(err)}
		if e.Err != nil && e.Err.Error() != body.Error {
			body.Details = e.Err.Error()
		}
		kind := errs.KindOf(err)
		body.Retryable = kind == errs.KindUnavailable
		return statusOf(kind), body
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, errorBody{Error: msg}
	}
	return http.StatusInternalServerError, errorBody{Error: "Internal server error."}
}

func statusOf(k errs.Kind) int {
	switch k {
	case errs.KindInvalid:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindUpstream:
		return http.StatusBadGateway
	case errs.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func notConfigured(what string) error {
	return echo.NewHTTPError(http.StatusNotImplemented, what+" is not configured.")
}
