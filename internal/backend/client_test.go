package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"TeachMe/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoint(t *testing.T) {
	assert.Equal(t,
		"http://api.example.com/chat-service/student/chat/answer",
		Endpoint("http://api.example.com", session.RoleStudent))
	assert.Equal(t,
		"http://api.example.com/chat-service/tutor/chat/answer",
		Endpoint("http://api.example.com/", session.RoleTutor))
}

func TestAskSendsQuestionAndParsesAnswer(t *testing.T) {
	var (
		gotPath   string
		gotMethod string
		gotBody   map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"answer":"Đây là 3 gia sư toán...","sources":[]}`)
	}))
	defer server.Close()

	client := NewClient(Options{HTTPClient: server.Client()})
	answer, err := client.Ask(context.Background(), session.RoleStudent, server.URL, "Tìm gia sư toán", "user-1")
	require.NoError(t, err)

	assert.Equal(t, "Đây là 3 gia sư toán...", answer)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/chat-service/student/chat/answer", gotPath)
	assert.Equal(t, map[string]any{
		"question": "Tìm gia sư toán",
		"user_id":  "user-1",
		"code":     "test123",
	}, gotBody)
}

func TestAskUsesConfiguredCode(t *testing.T) {
	var gotReq AnswerRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		io.WriteString(w, `{"answer":"ok"}`)
	}))
	defer server.Close()

	client := NewClient(Options{HTTPClient: server.Client(), Code: "other"})
	_, err := client.Ask(context.Background(), session.RoleTutor, server.URL, "q", "u")
	require.NoError(t, err)
	assert.Equal(t, "other", gotReq.Code)
}

func TestAskNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "Internal error")
	}))
	defer server.Close()

	client := NewClient(Options{HTTPClient: server.Client()})
	answer, err := client.Ask(context.Background(), session.RoleStudent, server.URL, "q", "u")
	assert.Empty(t, answer)

	var backendErr *BackendError
	require.True(t, errors.As(err, &backendErr), "got %v", err)
	assert.Equal(t, http.StatusInternalServerError, backendErr.Status)
	assert.Equal(t, "Internal error", backendErr.Body)
	assert.Equal(t, "backend", Kind(err))
}

func TestAskMalformedResponses(t *testing.T) {
	bodies := map[string]string{
		"missing answer": `{"foo":"bar"}`,
		"null answer":    `{"answer":null}`,
		"empty answer":   `{"answer":""}`,
		"wrong type":     `{"answer":42}`,
		"not json":       `<html>oops</html>`,
		"not an object":  `"just text"`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, body)
			}))
			defer server.Close()

			client := NewClient(Options{HTTPClient: server.Client()})
			answer, err := client.Ask(context.Background(), session.RoleStudent, server.URL, "q", "u")
			assert.Empty(t, answer)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr), "got %v", err)
			assert.Equal(t, body, parseErr.Body)
			assert.Equal(t, "parse", Kind(err))
		})
	}
}

func TestAskTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := NewClient(Options{})
	_, err := client.Ask(context.Background(), session.RoleStudent, baseURL, "q", "u")

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr), "got %v", err)
	assert.NotEmpty(t, transportErr.Message)
	assert.Equal(t, "transport", Kind(err))
}

func TestAskWithoutBaseURL(t *testing.T) {
	client := NewClient(Options{})
	_, err := client.Ask(context.Background(), session.RoleTutor, "", "q", "u")

	var transportErr *TransportError
	assert.True(t, errors.As(err, &transportErr), "got %v", err)
}

func TestEndpointTrimsTrailingSlashes(t *testing.T) {
	want := "http://api.example.com/chat-service/student/chat/answer"
	assert.Equal(t, want, Endpoint("http://api.example.com", session.RoleStudent))
	assert.Equal(t, want, Endpoint("http://api.example.com//", session.RoleStudent))
}
