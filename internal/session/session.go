package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role selects which conversation log and which backend endpoint an
// interaction targets.
type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
)

// Roles lists every role in display order.
var Roles = []Role{RoleStudent, RoleTutor}

// ErrUnknownRole is returned when a role name is neither student nor tutor.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole converts a role name such as "student" or "Tutor" into a Role.
func ParseRole(name string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(name)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
	return role, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTutor
}

// Author is who wrote a message within a log.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

// Message represents a single chat message
type Message struct {
	Role      Author    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session represents one user's ephemeral chat state
type Session struct {
	ID         string    `json:"id"`
	StartTime  time.Time `json:"start_time"`
	LastSeen   time.Time `json:"last_seen"`
	BackendURL string    `json:"backend_url"`
	Student    []Message `json:"student"`
	Tutor      []Message `json:"tutor"`
}

// New creates a session with a fresh random identity and two empty logs.
func New(backendURL string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:         uuid.NewString(),
		StartTime:  now,
		LastSeen:   now,
		BackendURL: backendURL,
		Student:    []Message{},
		Tutor:      []Message{},
	}
}

// Log returns a copy of the role's messages in insertion order.
func (s *Session) Log(role Role) []Message {
	var src []Message
	switch role {
	case RoleStudent:
		src = s.Student
	case RoleTutor:
		src = s.Tutor
	}
	out := make([]Message, len(src))
	copy(out, src)
	return out
}

func (s *Session) append(role Role, msg Message) error {
	switch role {
	case RoleStudent:
		s.Student = append(s.Student, msg)
	case RoleTutor:
		s.Tutor = append(s.Tutor, msg)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	return nil
}

func (s *Session) clone() *Session {
	c := *s
	c.Student = s.Log(RoleStudent)
	c.Tutor = s.Log(RoleTutor)
	return &c
}
