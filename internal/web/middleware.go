package web

import (
	"net/http"

	"TeachMe/internal/session"

	"github.com/labstack/echo/v4"
)

const sessionKey = "session"

// sessionMiddleware resolves the caller's session from the cookie, starting a
// new one when the cookie is missing or names a session that no longer
// exists.
func (s *Server) sessionMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		var id string
		if cookie, err := c.Cookie(s.cookieName); err == nil {
			id = cookie.Value
		}

		sess, _, err := s.bot.Session(c.Request().Context(), id)
		if err != nil {
			s.logger.Error("failed to resolve session", "error", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load session"})
		}

		if sess.ID != id {
			c.SetCookie(&http.Cookie{
				Name:     s.cookieName,
				Value:    sess.ID,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		c.Set(sessionKey, sess)
		return next(c)
	}
}

func currentSession(c echo.Context) *session.Session {
	sess, _ := c.Get(sessionKey).(*session.Session)
	return sess
}
