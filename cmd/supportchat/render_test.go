package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddiedev/tenext-app/internal/conversation"
	"github.com/reddiedev/tenext-app/internal/model"
)

func TestRendererStreamedReply(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	r.observe(conversation.Event{Kind: conversation.EventLoading, Loading: true})
	r.observe(conversation.Event{Kind: conversation.EventLoading, Loading: false})
	r.observe(conversation.Event{Kind: conversation.EventDelta, Delta: "Hello", Content: "Hello"})
	r.observe(conversation.Event{Kind: conversation.EventDelta, Source: "rate", Delta: "5", Content: "5"})
	r.observe(conversation.Event{Kind: conversation.EventDelta, Delta: " world", Content: "Hello world"})
	r.observe(conversation.Event{Kind: conversation.EventMessage, Message: &model.ChatMessage{ID: 2, Content: "Hello world"}})
	r.observe(conversation.Event{Kind: conversation.EventAnnotation, Source: "rate", Content: "5"})

	out := buf.String()
	assert.Contains(t, out, "typing")
	assert.Contains(t, out, clearLine)
	assert.Contains(t, out, "Hello world")
	assert.Equal(t, 1, strings.Count(out, "agent>"))
	assert.Contains(t, out, "rate")
	assert.Less(t, strings.Index(out, "Hello world"), strings.Index(out, "rate"))
}

func TestRendererFailure(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	r.observe(conversation.Event{Kind: conversation.EventLoading, Loading: true})
	r.observe(conversation.Event{Kind: conversation.EventLoading, Loading: false})
	r.observe(conversation.Event{Kind: conversation.EventFailed, Err: errors.New("boom")})

	assert.Contains(t, buf.String(), "boom")
	assert.NotContains(t, buf.String(), "agent>")
}

func TestRunSession(t *testing.T) {
	var gotAuth string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/x-ndjson")
		io.WriteString(w, "{\"content\":\"Hi \"}\n{\"content\":\"there\"}\n{\"source\":\"route\",\"content\":\"billing\"}\n")
	}))
	defer backend.Close()

	cmder := &chatCommander{
		backend:  backend.URL,
		token:    "tok",
		name:     "alice",
		role:     string(model.RoleCustomer),
		readSize: 3,
	}

	var out bytes.Buffer
	err := cmder.run(context.Background(), strings.NewReader("hello\n/exit\n"), &out)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Contains(t, out.String(), "Hi there")
	assert.Contains(t, out.String(), "billing")
	assert.NotEmpty(t, cmder.threadID)
}

func TestRunMissingToken(t *testing.T) {
	cmder := &chatCommander{
		backend:  "http://127.0.0.1:0",
		name:     "alice",
		role:     string(model.RoleCustomer),
		readSize: 16,
	}

	var out bytes.Buffer
	err := cmder.run(context.Background(), strings.NewReader("hello\n"), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "no token")
}

func TestRunRejectsUnknownRole(t *testing.T) {
	cmder := &chatCommander{role: "admin"}
	err := cmder.run(context.Background(), strings.NewReader(""), io.Discard)
	assert.Error(t, err)
}
