package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"TeachMe/internal/backend"
	"TeachMe/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrEmptyQuestion is returned for empty or whitespace-only input.
	// Nothing is recorded.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrReplyPending is returned when the role already waits for a reply.
	ErrReplyPending = errors.New("a reply is still pending for this role")
)

// Asker is the answering service as seen by the chat bot.
type Asker interface {
	Ask(ctx context.Context, role session.Role, baseURL, question, identity string) (string, error)
}

// Notifier tells the presentation layer to re-render a session.
type Notifier interface {
	Notify(sessionID string, ev Event)
}

const (
	EventRender = "render"
	EventSwitch = "switch"
)

// Event is a re-render request. Reset asks for a full refresh of every view.
type Event struct {
	Type  string       `json:"type"`
	Role  session.Role `json:"role,omitempty"`
	Reset bool         `json:"reset,omitempty"`
}

// Options holds ChatBot dependencies
type Options struct {
	Store    session.Store
	Client   Asker
	Notifier Notifier
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Meter    metric.Meter
}

// ChatBot drives both role conversations of every session.
type ChatBot struct {
	store    session.Store
	client   Asker
	notifier Notifier
	logger   *slog.Logger
	tracer   trace.Tracer

	exchanges metric.Int64Counter

	mu     sync.Mutex
	states map[stateKey]Status
}

type stateKey struct {
	sessionID string
	role      session.Role
}

// New creates a new ChatBot instance
func New(opts Options) (*ChatBot, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("backend client is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("teachme/chatbot")
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter("teachme/chatbot")
	}

	cb := &ChatBot{
		store:    opts.Store,
		client:   opts.Client,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		states:   make(map[stateKey]Status),
	}

	var err error
	cb.exchanges, err = opts.Meter.Int64Counter(
		"teachme.exchanges",
		metric.WithDescription("Completed question/answer exchanges by outcome"),
	)
	if err != nil {
		cb.logger.Warn("failed to create counter", "error", err)
	}
	return cb, nil
}

// Session returns the session for id, creating one when id is empty or
// unknown.
func (cb *ChatBot) Session(ctx context.Context, id string) (*session.Session, bool, error) {
	sess, created, err := cb.store.GetOrCreate(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session: %w", err)
	}
	if created {
		cb.logger.Info("created new session", "session_id", sess.ID)
	}
	return sess, created, nil
}

// Submit records question in the role's log, forwards it to the backend and
// records the answer. On failure the question stays in the log without a
// reply and the returned error is also kept as the role's Status until the
// next submission.
func (cb *ChatBot) Submit(ctx context.Context, sessionID string, role session.Role, question string) (session.Message, error) {
	if !role.Valid() {
		return session.Message{}, fmt.Errorf("%w: %q", session.ErrUnknownRole, role)
	}
	if strings.TrimSpace(question) == "" {
		return session.Message{}, ErrEmptyQuestion
	}

	sess, err := cb.store.Get(ctx, sessionID)
	if err != nil {
		return session.Message{}, err
	}

	key := stateKey{sessionID: sessionID, role: role}
	if !cb.begin(key) {
		return session.Message{}, ErrReplyPending
	}

	ctx, span := cb.tracer.Start(ctx, "chatbot.submit", trace.WithAttributes(
		attribute.String("teachme.role", string(role)),
		attribute.String("teachme.session_id", sessionID),
	))
	defer span.End()

	reply, err := cb.exchange(ctx, sess, role, question)
	cb.finish(key, err)
	cb.notify(sessionID, Event{Type: EventRender, Role: role})
	cb.record(ctx, role, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, backend.Kind(err))
		cb.logger.Error("failed to send message", "session_id", sessionID, "role", role, "error", err)
		return session.Message{}, err
	}
	return reply, nil
}

func (cb *ChatBot) exchange(ctx context.Context, sess *session.Session, role session.Role, question string) (session.Message, error) {
	err := cb.store.Append(ctx, sess.ID, role, session.Message{
		Role:      session.AuthorUser,
		Content:   question,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return session.Message{}, fmt.Errorf("failed to record question: %w", err)
	}
	cb.notify(sess.ID, Event{Type: EventRender, Role: role})

	answer, err := cb.client.Ask(ctx, role, sess.BackendURL, question, sess.ID)
	if err != nil {
		return session.Message{}, err
	}

	reply := session.Message{
		Role:      session.AuthorAssistant,
		Content:   answer,
		Timestamp: time.Now().UTC(),
	}
	if err := cb.store.Append(ctx, sess.ID, role, reply); err != nil {
		return session.Message{}, fmt.Errorf("failed to record answer: %w", err)
	}
	return reply, nil
}

// Log returns the role's messages in insertion order.
func (cb *ChatBot) Log(ctx context.Context, sessionID string, role session.Role) ([]session.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", session.ErrUnknownRole, role)
	}
	sess, err := cb.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Log(role), nil
}

// SetBackendURL changes where the session's questions are sent. Logs are
// kept; every view of the session is reset.
func (cb *ChatBot) SetBackendURL(ctx context.Context, sessionID, url string) error {
	url = strings.TrimSpace(url)
	if err := cb.store.SetBackendURL(ctx, sessionID, url); err != nil {
		return fmt.Errorf("failed to set backend url: %w", err)
	}
	cb.logger.Info("backend url changed", "session_id", sessionID, "backend_url", url)
	cb.notify(sessionID, Event{Type: EventRender, Reset: true})
	return nil
}

// SwitchRole moves the session's views to role.
func (cb *ChatBot) SwitchRole(ctx context.Context, sessionID string, role session.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", session.ErrUnknownRole, role)
	}
	if _, err := cb.store.Get(ctx, sessionID); err != nil {
		return err
	}
	cb.notify(sessionID, Event{Type: EventSwitch, Role: role})
	return nil
}

// Sweep destroys sessions idle for longer than ttl.
func (cb *ChatBot) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	expired, err := cb.store.Expire(ctx, time.Now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	gone := make(map[string]bool, len(expired))
	for _, id := range expired {
		gone[id] = true
	}

	cb.mu.Lock()
	for key := range cb.states {
		if gone[key.sessionID] {
			delete(cb.states, key)
		}
	}
	cb.mu.Unlock()

	cb.logger.Info("expired idle sessions", "count", len(expired))
	return len(expired), nil
}

func (cb *ChatBot) notify(sessionID string, ev Event) {
	if cb.notifier != nil {
		cb.notifier.Notify(sessionID, ev)
	}
}

func (cb *ChatBot) record(ctx context.Context, role session.Role, err error) {
	if cb.exchanges == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = backend.Kind(err)
	}
	cb.exchanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("teachme.role", string(role)),
		attribute.String("outcome", outcome),
	))
}
