package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"TeachMe/internal/chatbot"
	"TeachMe/internal/session"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, h *Hub, sessionID string) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, sessionID)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
	})
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestNotifyReachesSessionConnections(t *testing.T) {
	h := New(Options{PingInterval: time.Second})
	mine := dial(t, h, "s1")
	other := dial(t, h, "s2")

	waitFor(t, func() bool { return h.ConnectionCount() == 2 })
	assert.Equal(t, 2, h.SessionCount())

	h.Notify("s1", chatbot.Event{Type: chatbot.EventRender, Role: session.RoleTutor})

	mine.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev chatbot.Event
	require.NoError(t, mine.ReadJSON(&ev))
	assert.Equal(t, chatbot.Event{Type: chatbot.EventRender, Role: session.RoleTutor}, ev)

	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "other session must not receive the event")
}

func TestClosedConnectionIsUnregistered(t *testing.T) {
	h := New(Options{PingInterval: time.Second})
	conn := dial(t, h, "s1")
	waitFor(t, func() bool { return h.ConnectionCount() == 1 })

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitFor(t, func() bool { return h.ConnectionCount() == 0 })
	assert.Zero(t, h.SessionCount())

	// Notifying a session without connections is a no-op.
	h.Notify("s1", chatbot.Event{Type: chatbot.EventRender, Reset: true})
}

func TestNotifyDropsConnectionWithFullBuffer(t *testing.T) {
	h := New(Options{PingInterval: time.Second})
	conn := &Connection{ID: "c", SessionID: "s1", send: make(chan []byte, sendBuffer)}
	h.register(conn)
	require.Equal(t, 1, h.ConnectionCount())

	for i := 0; i < sendBuffer+1; i++ {
		h.Notify("s1", chatbot.Event{Type: chatbot.EventRender, Role: session.RoleStudent})
	}

	assert.Zero(t, h.ConnectionCount())
	assert.Zero(t, h.SessionCount())

	// Buffered events are still delivered before the channel reports closed.
	received := 0
	for range conn.send {
		received++
	}
	assert.Equal(t, sendBuffer, received)

	// A second unregister from the pumps must not close the channel again.
	assert.NotPanics(t, func() { h.unregister(conn) })
	assert.Zero(t, h.ConnectionCount())
}
