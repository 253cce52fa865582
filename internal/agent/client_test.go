package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddiedev/tenext-app/internal/model"
)

func TestChatStream(t *testing.T) {
	t.Run("posts the message with the bearer token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, ChatStreamPath, r.URL.Path)
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

			var req model.ChatRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, model.ChatRequest{Message: "hello", SessionID: "s-1", SpeakingUser: "Sam"}, req)

			w.Header().Set("Content-Type", "application/x-ndjson")
			io.WriteString(w, "{\"content\":\"hi\"}\n")
		}))
		defer srv.Close()

		c := NewClient(srv.URL + "/")
		body, err := c.ChatStream(context.Background(), "tok-1", model.ChatRequest{
			Message: "hello", SessionID: "s-1", SpeakingUser: "Sam",
		})
		require.NoError(t, err)
		defer body.Close()

		raw, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Equal(t, "{\"content\":\"hi\"}\n", string(raw))
	})

	t.Run("non-2xx status is a StatusError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"error":"agent crashed"}`)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL).ChatStream(context.Background(), "tok", model.ChatRequest{Message: "x"})
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
		assert.Equal(t, "agent crashed", statusErr.Body)
	})

	t.Run("missing token never issues the request", func(t *testing.T) {
		called := false
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL).ChatStream(context.Background(), "", model.ChatRequest{Message: "x"})
		assert.ErrorIs(t, err, ErrMissingToken)
		assert.False(t, called)
	})

	t.Run("transport failure is wrapped", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := srv.URL
		srv.Close()

		_, err := NewClient(url).ChatStream(context.Background(), "tok", model.ChatRequest{Message: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "request failed")
	})
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "nope", errorMessage([]byte(`{"detail":"nope"}`)))
	assert.Equal(t, "plain text", errorMessage([]byte("plain text\n")))
}
