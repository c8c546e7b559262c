package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/opensuperagent/superagent/internal/browserbase"
	"github.com/opensuperagent/superagent/internal/errs"
	"github.com/opensuperagent/superagent/internal/httpx"
	"github.com/opensuperagent/superagent/internal/tools"
)

const dialTimeout = 10 * time.Second

// sessionLister is implemented by browser backends that can list sessions.
type sessionLister interface {
	ListSessions(ctx context.Context, status string) ([]browserbase.Session, error)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) createSession(c echo.Context) error {
	if s.Browser == nil {
		return notConfigured("Browser sessions")
	}
	var req browserbase.CreateRequest
	if err := c.Bind(&req); err != nil {
		return errs.Invalid(err, "Invalid request body.")
	}
	ctx := c.Request().Context()
	sess, err := s.Browser.CreateSession(ctx, req)
	if err != nil {
		return httpx.Classify(err, "Could not create the browser session.")
	}
	s.Logger.Info("browser session created", "id", sess.ID, "region", sess.Region)
	return c.JSON(http.StatusCreated, tools.View(ctx, s.Browser, sess))
}

func (s *Server) listSessions(c echo.Context) error {
	lister, ok := s.Browser.(sessionLister)
	if !ok {
		return notConfigured("Browser session listing")
	}
	status := c.QueryParam("status")
	if status == "" {
		status = browserbase.StatusRunning
	}
	list, err := lister.ListSessions(c.Request().Context(), status)
	if err != nil {
		return httpx.Classify(err, "Could not list browser sessions.")
	}
	if list == nil {
		list = []browserbase.Session{}
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) getSession(c echo.Context) error {
	if s.Browser == nil {
		return notConfigured("Browser sessions")
	}
	ctx := c.Request().Context()
	sess, err := s.Browser.GetSession(ctx, c.Param("id"))
	if err != nil {
		return httpx.Classify(err, "Could not look up the browser session.")
	}
	return c.JSON(http.StatusOK, tools.View(ctx, s.Browser, sess))
}

func (s *Server) releaseSession(c echo.Context) error {
	if s.Browser == nil {
		return notConfigured("Browser sessions")
	}
	id := c.Param("id")
	if s.Pages != nil {
		s.Pages.Close(id)
	}
	sess, err := s.Browser.Release(c.Request().Context(), id)
	if err != nil {
		return httpx.Classify(err, "Could not release the browser session.")
	}
	s.Logger.Info("browser session released", "id", id)
	return c.JSON(http.StatusOK, sess)
}

// liveSession proxies a websocket to the CDP endpoint of a running session.
func (s *Server) liveSession(c echo.Context) error {
	if s.Browser == nil {
		return notConfigured("Browser sessions")
	}
	id := c.Param("id")
	sess, err := s.Browser.GetSession(c.Request().Context(), id)
	if err != nil {
		return httpx.Classify(err, "Could not look up the browser session.")
	}
	if sess.Status != browserbase.StatusRunning {
		return errs.Invalid(fmt.Errorf("session is %s", sess.Status), "The browser session is not running.")
	}
	if sess.ConnectURL == "" {
		return errs.Upstream(errors.New("missing connect url"), "The browser session has no live endpoint.")
	}

	dialCtx, cancel := context.WithTimeout(c.Request().Context(), dialTimeout)
	defer cancel()
	upstream, _, err := websocket.DefaultDialer.DialContext(dialCtx, sess.ConnectURL, nil)
	if err != nil {
		return errs.Unavailable(err, "Could not connect to the browser session.")
	}
	defer upstream.Close() //nolint:errcheck

	client, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already answered the request.
		s.Logger.Warn("websocket upgrade failed", "id", id, "err", err)
		return nil
	}
	defer client.Close() //nolint:errcheck

	s.Logger.Info("live view attached", "id", id)
	errc := make(chan error, 2)
	go func() { errc <- pipe(client, upstream) }()
	go func() { errc <- pipe(upstream, client) }()
	err = <-errc
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.Logger.Warn("live view closed", "id", id, "err", err)
	} else {
		s.Logger.Info("live view detached", "id", id)
	}
	return nil
}

func pipe(src, dst *websocket.Conn) error {
	for {
		kind, msg, err := src.ReadMessage()
		if err != nil {
			return err
		}
		if err := dst.WriteMessage(kind, msg); err != nil {
			return err
		}
	}
}
