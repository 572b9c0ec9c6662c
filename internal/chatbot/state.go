package chatbot

import "TeachMe/internal/session"

// State is where one role's conversation stands.
type State int

const (
	StateIdle State = iota
	StateAwaitingReply
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText lets State appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a role's State plus the error that put it there, if any.
type Status struct {
	State State
	Err   error
}

// Status reports the current state of a session's role.
func (cb *ChatBot) Status(sessionID string, role session.Role) Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.states[stateKey{sessionID: sessionID, role: role}]
}

// begin moves the role to AwaitingReply. It fails while a reply is pending.
// A previous Error is cleared.
func (cb *ChatBot) begin(key stateKey) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.states[key].State == StateAwaitingReply {
		return false
	}
	cb.states[key] = Status{State: StateAwaitingReply}
	return true
}

func (cb *ChatBot) finish(key stateKey, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if _, ok := cb.states[key]; !ok {
		return
	}
	if err != nil {
		cb.states[key] = Status{State: StateError, Err: err}
		return
	}
	cb.states[key] = Status{State: StateIdle}
}
