// Package web serves the TeachMe chat UI and its JSON API.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"TeachMe/internal/chatbot"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// DefaultCookieName is used when Options.CookieName is empty.
const DefaultCookieName = "teachme_session"

// Sockets accepts WebSocket clients for a session.
type Sockets interface {
	ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) error
}

// Options holds Server dependencies
type Options struct {
	Bot        *chatbot.ChatBot
	Sockets    Sockets
	CookieName string
	Logger     *slog.Logger
}

// Server is the HTTP front end.
type Server struct {
	echo       *echo.Echo
	bot        *chatbot.ChatBot
	sockets    Sockets
	cookieName string
	logger     *slog.Logger
}

// New creates the server and registers its routes.
func New(opts Options) (*Server, error) {
	if opts.Bot == nil {
		return nil, errors.New("chat bot is required")
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	renderer, err := newRenderer()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer

	s := &Server{
		echo:       e,
		bot:        opts.Bot,
		sockets:    opts.Sockets,
		cookieName: opts.CookieName,
		logger:     opts.Logger,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				s.logger.Warn("request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			s.logger.Debug("request", attrs...)
			return nil
		},
	}))

	s.RegisterRoutes(e)
	return s, nil
}

// RegisterRoutes registers routes with the echo server.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.Health)

	withSession := s.sessionMiddleware

	// Pages and form posts
	e.GET("/", s.Index, withSession)
	e.GET("/chat/:role", s.ChatPage, withSession)
	e.POST("/chat/:role/messages", s.SubmitForm, withSession)
	e.POST("/settings/backend-url", s.BackendURLForm, withSession)
	e.POST("/settings/role", s.RoleForm, withSession)

	// JSON API
	e.GET("/api/session", s.GetSession, withSession)
	e.GET("/api/chat/:role/messages", s.GetMessages, withSession)
	e.POST("/api/chat/:role/messages", s.PostMessage, withSession)
	e.PUT("/api/settings/backend-url", s.PutBackendURL, withSession)

	e.GET("/ws", s.WebSocket, withSession)
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Health returns health status.
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
