package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"TeachMe/internal/backend"
	"TeachMe/internal/chatbot"
	"TeachMe/internal/session"

	"github.com/labstack/echo/v4"
)

// Index sends the browser to the student conversation.
// GET /
func (s *Server) Index(c echo.Context) error {
	return c.Redirect(http.StatusFound, chatPath(session.RoleStudent))
}

// ChatPage renders the conversation of one role.
// GET /chat/:role
func (s *Server) ChatPage(c echo.Context) error {
	role, err := session.ParseRole(c.Param("role"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	sess := currentSession(c)
	return c.Render(http.StatusOK, "chat.html", newChatPage(sess, role, s.bot.Status(sess.ID, role)))
}

// SubmitForm handles the question form and redirects back to the page,
// where the outcome is rendered.
// POST /chat/:role/messages
func (s *Server) SubmitForm(c echo.Context) error {
	role, err := session.ParseRole(c.Param("role"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	sess := currentSession(c)

	_, err = s.bot.Submit(detach(c), sess.ID, role, c.FormValue("question"))
	switch {
	case err == nil, errors.Is(err, chatbot.ErrEmptyQuestion):
	case errors.Is(err, chatbot.ErrReplyPending):
		s.logger.Debug("ignored question while reply pending", "session_id", sess.ID, "role", role)
	default:
		// Kept in the role's status and shown inline.
	}
	return c.Redirect(http.StatusSeeOther, chatPath(role))
}

// BackendURLForm changes the session's backend URL.
// POST /settings/backend-url
func (s *Server) BackendURLForm(c echo.Context) error {
	sess := currentSession(c)
	if err := s.bot.SetBackendURL(c.Request().Context(), sess.ID, c.FormValue("backend_url")); err != nil {
		s.logger.Error("failed to set backend url", "session_id", sess.ID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to set backend url")
	}
	return c.Redirect(http.StatusSeeOther, chatPath(formRole(c)))
}

// RoleForm moves every view of the session to the chosen role.
// POST /settings/role
func (s *Server) RoleForm(c echo.Context) error {
	role, err := session.ParseRole(c.FormValue("role"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess := currentSession(c)
	if err := s.bot.SwitchRole(c.Request().Context(), sess.ID, role); err != nil {
		s.logger.Error("failed to switch role", "session_id", sess.ID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to switch role")
	}
	return c.Redirect(http.StatusSeeOther, chatPath(role))
}

type sessionResponse struct {
	ID         string                        `json:"id"`
	StartTime  time.Time                     `json:"start_time"`
	BackendURL string                        `json:"backend_url"`
	Roles      map[session.Role]roleResponse `json:"roles"`
}

type roleResponse struct {
	State    chatbot.State `json:"state"`
	Error    string        `json:"error,omitempty"`
	Messages int           `json:"messages"`
}

// GetSession describes the caller's session.
// GET /api/session
func (s *Server) GetSession(c echo.Context) error {
	sess := currentSession(c)
	resp := sessionResponse{
		ID:         sess.ID,
		StartTime:  sess.StartTime,
		BackendURL: sess.BackendURL,
		Roles:      make(map[session.Role]roleResponse, len(session.Roles)),
	}
	for _, role := range session.Roles {
		status := s.bot.Status(sess.ID, role)
		resp.Roles[role] = roleResponse{
			State:    status.State,
			Error:    errorText(status.Err),
			Messages: len(sess.Log(role)),
		}
	}
	return c.JSON(http.StatusOK, resp)
}

type messagesResponse struct {
	Role     session.Role      `json:"role"`
	Messages []session.Message `json:"messages"`
	State    chatbot.State     `json:"state"`
	Error    string            `json:"error,omitempty"`
}

// GetMessages returns one role's log.
// GET /api/chat/:role/messages
func (s *Server) GetMessages(c echo.Context) error {
	role, err := session.ParseRole(c.Param("role"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return s.messages(c, http.StatusOK, role)
}

type questionRequest struct {
	Question string `json:"question"`
}

// PostMessage submits a question and waits for the answer.
// POST /api/chat/:role/messages
func (s *Server) PostMessage(c echo.Context) error {
	role, err := session.ParseRole(c.Param("role"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}

	var req questionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	sess := currentSession(c)
	_, err = s.bot.Submit(detach(c), sess.ID, role, req.Question)
	switch {
	case err == nil, errors.Is(err, chatbot.ErrEmptyQuestion):
		return s.messages(c, http.StatusOK, role)
	case errors.Is(err, chatbot.ErrReplyPending):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case backend.Kind(err) != "other":
		return s.messages(c, http.StatusBadGateway, role)
	default:
		s.logger.Error("failed to submit question", "session_id", sess.ID, "role", role, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to submit question"})
	}
}

func (s *Server) messages(c echo.Context, code int, role session.Role) error {
	sess := currentSession(c)
	log, err := s.bot.Log(c.Request().Context(), sess.ID, role)
	if err != nil {
		s.logger.Error("failed to get messages", "session_id", sess.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get messages"})
	}
	status := s.bot.Status(sess.ID, role)
	return c.JSON(code, messagesResponse{
		Role:     role,
		Messages: log,
		State:    status.State,
		Error:    errorText(status.Err),
	})
}

type backendURLRequest struct {
	BackendURL string `json:"backend_url"`
}

// PutBackendURL changes the session's backend URL.
// PUT /api/settings/backend-url
func (s *Server) PutBackendURL(c echo.Context) error {
	var req backendURLRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	sess := currentSession(c)
	if err := s.bot.SetBackendURL(c.Request().Context(), sess.ID, req.BackendURL); err != nil {
		s.logger.Error("failed to set backend url", "session_id", sess.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to set backend url"})
	}

	sess, _, err := s.bot.Session(c.Request().Context(), sess.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load session"})
	}
	return c.JSON(http.StatusOK, map[string]string{"backend_url": sess.BackendURL})
}

// WebSocket subscribes the caller to re-render events of its session.
// GET /ws
func (s *Server) WebSocket(c echo.Context) error {
	if s.sockets == nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	err := s.sockets.ServeWS(c.Response(), c.Request(), currentSession(c).ID)
	if err != nil && !c.Response().Committed {
		return err
	}
	return nil
}

func chatPath(role session.Role) string {
	return "/chat/" + string(role)
}

func formRole(c echo.Context) session.Role {
	role, err := session.ParseRole(c.FormValue("role"))
	if err != nil {
		return session.RoleStudent
	}
	return role
}

// detach keeps an exchange running when the client goes away, so the answer
// still lands in the log.
func detach(c echo.Context) context.Context {
	return context.WithoutCancel(c.Request().Context())
}
