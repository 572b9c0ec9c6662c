package web

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"

	"TeachMe/internal/backend"
	"TeachMe/internal/chatbot"
	"TeachMe/internal/session"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	appTitle      = "TeachMe ChatBot 📚"
	waitingText   = "🤔 Đợi tui xíu..."
	inputHint     = "Nhập câu hỏi của bạn"
	avatarBot     = "🤖"
	avatarStudent = "👨‍🎓"
	avatarTutor   = "👨‍🏫"
)

var chatTitles = map[session.Role]string{
	session.RoleStudent: "Chat với Trợ lý Tìm Gia sư 🤖",
	session.RoleTutor:   "Chat với Trợ lý Tìm Lớp Dạy 🤖",
}

var roleLabels = map[session.Role]string{
	session.RoleStudent: "Student",
	session.RoleTutor:   "Tutor",
}

type templateRenderer struct {
	templates *template.Template
}

func newRenderer() (*templateRenderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &templateRenderer{templates: tmpl}, nil
}

func (r *templateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

type messageView struct {
	Author  session.Author
	Avatar  string
	Content string
}

type roleOption struct {
	Role     session.Role
	Label    string
	Selected bool
}

type chatPage struct {
	AppTitle    string
	Title       string
	Role        session.Role
	Roles       []roleOption
	BackendURL  string
	Messages    []messageView
	Pending     bool
	Error       string
	WaitingText string
	InputHint   string
}

func newChatPage(sess *session.Session, role session.Role, status chatbot.Status) chatPage {
	page := chatPage{
		AppTitle:    appTitle,
		Title:       chatTitles[role],
		Role:        role,
		BackendURL:  sess.BackendURL,
		Pending:     status.State == chatbot.StateAwaitingReply,
		WaitingText: waitingText,
		InputHint:   inputHint,
	}
	if status.State == chatbot.StateError {
		page.Error = errorText(status.Err)
	}
	for _, r := range session.Roles {
		page.Roles = append(page.Roles, roleOption{Role: r, Label: roleLabels[r], Selected: r == role})
	}
	for _, msg := range sess.Log(role) {
		page.Messages = append(page.Messages, messageView{
			Author:  msg.Role,
			Avatar:  avatar(role, msg.Role),
			Content: msg.Content,
		})
	}
	return page
}

func avatar(role session.Role, author session.Author) string {
	if author == session.AuthorAssistant {
		return avatarBot
	}
	if role == session.RoleTutor {
		return avatarTutor
	}
	return avatarStudent
}

// errorText is the message shown inline for a failed exchange.
func errorText(err error) string {
	var (
		backendErr   *backend.BackendError
		transportErr *backend.TransportError
		parseErr     *backend.ParseError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &backendErr):
		return fmt.Sprintf("Lỗi: %d - %s", backendErr.Status, backendErr.Body)
	case errors.As(err, &transportErr):
		return "Lỗi kết nối: " + transportErr.Message
	case errors.As(err, &parseErr):
		return fmt.Sprintf("Lỗi: phản hồi không hợp lệ (%s)", parseErr.Reason)
	default:
		return "Lỗi: " + err.Error()
	}
}
