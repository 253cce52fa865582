package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddiedev/tenext-app/internal/agent"
	"github.com/reddiedev/tenext-app/internal/conversation"
	"github.com/reddiedev/tenext-app/internal/model"
)

// chunkedBody delivers one chunk per Read, then err (or io.EOF).
type chunkedBody struct {
	chunks [][]byte
	err    error
	closes atomic.Int32
}

func newBody(chunks ...string) *chunkedBody {
	b := &chunkedBody{}
	for _, c := range chunks {
		b.chunks = append(b.chunks, []byte(c))
	}
	return b
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	if n < len(b.chunks[0]) {
		b.chunks[0] = b.chunks[0][n:]
	} else {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkedBody) Close() error {
	b.closes.Add(1)
	return nil
}

type fakeBackend struct {
	body  io.ReadCloser
	err   error
	calls int
	token string
	req   model.ChatRequest
}

func (f *fakeBackend) ChatStream(ctx context.Context, token string, req model.ChatRequest) (io.ReadCloser, error) {
	f.calls++
	f.token = token
	f.req = req
	return f.body, f.err
}

type fakeRecorder struct {
	mu       sync.Mutex
	messages []model.ChatMessage
	failures []error
}

func (r *fakeRecorder) RecordMessage(ctx context.Context, threadID string, msg model.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *fakeRecorder) RecordFailure(ctx context.Context, threadID string, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, cause)
}

const token = StaticCredentials("tok-123")

func customerRequest(text string) Request {
	return Request{Text: text, Sender: "Alice", SenderID: "u-1", Role: model.RoleCustomer}
}

func TestSendScenarioA(t *testing.T) {
	body := newBody(`{"content":"Hel`, "lo\"}\n{\"content\":\" world\"}\n")
	backend := &fakeBackend{body: body}
	rec := &fakeRecorder{}
	state := conversation.New("thread-9", nil)

	res, err := NewController(backend, WithRecorder(rec)).Send(context.Background(), state, token, customerRequest("hi"), nil)
	require.NoError(t, err)
	require.NotNil(t, res.Message)
	assert.Equal(t, "Hello world", res.Message.Content)

	msgs := state.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "Hello world", msgs[1].Content)
	assert.Equal(t, 2, msgs[1].ID)

	assert.Equal(t, "tok-123", backend.token)
	assert.Equal(t, model.ChatRequest{Message: "hi", SessionID: "thread-9"}, backend.req)
	assert.Equal(t, int32(1), body.closes.Load())
	assert.Len(t, rec.messages, 2)
	assert.Empty(t, rec.failures)
}

func TestSendScenarioB(t *testing.T) {
	body := newBody("{not json}\n{\"content\":\"ok\"}\n")
	state := conversation.New("t", nil)

	res, err := NewController(&fakeBackend{body: body}).Send(context.Background(), state, token, customerRequest("hi"), nil)
	require.NoError(t, err)
	require.NotNil(t, res.Message)
	assert.Equal(t, "ok", res.Message.Content)
}

func TestSendScenarioC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	state := conversation.New("t", nil)
	var loading []bool
	observer := func(e conversation.Event) {
		if e.Kind == conversation.EventLoading {
			loading = append(loading, e.Loading)
		}
	}

	_, err := NewController(agent.NewClient(srv.URL), WithRecorder(rec)).
		Send(context.Background(), state, token, customerRequest("hi"), observer)

	var statusErr *agent.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)

	snap := state.Snapshot()
	assert.Equal(t, conversation.PhaseError, snap.Phase)
	assert.False(t, snap.Loading)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "hi", snap.Messages[0].Content)
	assert.Equal(t, []bool{true, false}, loading)
	assert.Len(t, rec.failures, 1)
}

func TestSendScenarioD(t *testing.T) {
	body := newBody(`{"content":"A","source":"x"}` + "\n" + `{"content":"B","source":"y"}` + "\n" + `{"content":"C","source":"x"}` + "\n")
	state := conversation.New("t", nil)

	res, err := NewController(&fakeBackend{body: body}).Send(context.Background(), state, token, customerRequest("hi"), nil)
	require.NoError(t, err)
	assert.Nil(t, res.Message)
	assert.Equal(t, map[string]string{"x": "AC", "y": "B"}, res.Annotations)
	assert.Len(t, state.Messages(), 1)
}

func TestSendChunkBoundaryInvariance(t *testing.T) {
	stream := "{\"content\":\"Ça \"}\n{\"content\":\"va, \",\"source\":\"rate\"}\n{\"content\":\"très bien ☕\"}\n{\"content\":\"!\",\"source\":\"rate\"}\n"

	for i := 0; i <= len(stream); i++ {
		state := conversation.New("t", nil)
		var annotations map[string]string

		res, err := NewController(&fakeBackend{body: newBody(stream[:i], stream[i:])}).
			Send(context.Background(), state, token, customerRequest("hi"), nil)
		require.NoError(t, err, "split at %d", i)
		require.NotNil(t, res.Message, "split at %d", i)
		annotations = res.Annotations

		assert.Equal(t, "Ça très bien ☕", res.Message.Content, "split at %d", i)
		assert.Equal(t, map[string]string{"rate": "va, !"}, annotations, "split at %d", i)
	}

	t.Run("one byte per read", func(t *testing.T) {
		state := conversation.New("t", nil)
		res, err := NewController(&fakeBackend{body: newBody(stream)}, WithReadSize(1)).
			Send(context.Background(), state, token, customerRequest("hi"), nil)
		require.NoError(t, err)
		require.NotNil(t, res.Message)
		assert.Equal(t, "Ça très bien ☕", res.Message.Content)
	})
}

func TestSendLoadingInvariant(t *testing.T) {
	body := newBody("{\"content\":\"\"}\n{\"source\":\"suggest\",\"content\":\"s\"}\n", "{\"content\":\"a\"}\n{\"content\":\"b\"}\n")
	state := conversation.New("t", nil)

	var seen []bool
	observer := func(e conversation.Event) {
		if e.Kind == conversation.EventDelta {
			seen = append(seen, state.Loading())
		}
	}

	_, err := NewController(&fakeBackend{body: body}).Send(context.Background(), state, token, customerRequest("hi"), observer)
	require.NoError(t, err)
	// suggest delta arrives while still loading, primary deltas after
	assert.Equal(t, []bool{true, false, false}, seen)
	assert.False(t, state.Loading())
}

func TestSendEmptyReply(t *testing.T) {
	body := newBody("{\"content\":\"\"}\n")
	rec := &fakeRecorder{}
	state := conversation.New("t", nil)

	res, err := NewController(&fakeBackend{body: body}, WithRecorder(rec)).
		Send(context.Background(), state, token, customerRequest("hi"), nil)
	require.NoError(t, err)
	assert.Nil(t, res.Message)
	assert.Len(t, state.Messages(), 1)
	assert.Len(t, rec.messages, 1, "only the outgoing message is recorded")
	assert.Equal(t, int32(1), body.closes.Load())
}

func TestSendTrailingFrameWithoutNewline(t *testing.T) {
	body := newBody("{\"content\":\"a\"}\n{\"content\":\"b\"}")
	state := conversation.New("t", nil)

	res, err := NewController(&fakeBackend{body: body}).Send(context.Background(), state, token, customerRequest("hi"), nil)
	require.NoError(t, err)
	require.NotNil(t, res.Message)
	assert.Equal(t, "ab", res.Message.Content)
}

func TestSendFailures(t *testing.T) {
	t.Run("missing credential sends nothing and leaves state alone", func(t *testing.T) {
		backend := &fakeBackend{body: newBody()}
		state := conversation.New("t", nil)

		for _, creds := range []CredentialProvider{nil, StaticCredentials(""), CredentialFunc(func(context.Context) (string, error) {
			return "", errors.New("no session cookie")
		})} {
			_, err := NewController(backend).Send(context.Background(), state, creds, customerRequest("hi"), nil)
			assert.ErrorIs(t, err, ErrMissingCredential)
		}
		assert.Zero(t, backend.calls)
		assert.Empty(t, state.Messages())
		assert.False(t, state.Loading())
		assert.Equal(t, conversation.PhaseIdle, state.Phase())
	})

	t.Run("transport failure", func(t *testing.T) {
		state := conversation.New("t", nil)
		_, err := NewController(&fakeBackend{err: errors.New("connection refused")}).
			Send(context.Background(), state, token, customerRequest("hi"), nil)
		assert.EqualError(t, err, "connection refused")
		assert.Equal(t, conversation.PhaseError, state.Phase())
		assert.False(t, state.Loading())
	})

	t.Run("missing reader", func(t *testing.T) {
		state := conversation.New("t", nil)
		_, err := NewController(&fakeBackend{}).Send(context.Background(), state, token, customerRequest("hi"), nil)
		assert.ErrorIs(t, err, ErrNoReader)
		assert.Equal(t, conversation.PhaseError, state.Phase())
	})

	t.Run("read error mid-stream discards the partial reply", func(t *testing.T) {
		body := newBody("{\"content\":\"partial\"}\n")
		body.err = errors.New("connection reset")
		state := conversation.New("t", nil)

		_, err := NewController(&fakeBackend{body: body}).Send(context.Background(), state, token, customerRequest("hi"), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")

		snap := state.Snapshot()
		assert.Len(t, snap.Messages, 1)
		assert.Empty(t, snap.Buffers)
		assert.False(t, snap.Loading)
		assert.Equal(t, int32(1), body.closes.Load())
	})

	t.Run("panicking observer fails the session and releases once", func(t *testing.T) {
		body := newBody("{\"content\":\"boom\"}\n")
		state := conversation.New("t", nil)
		observer := func(e conversation.Event) {
			if e.Kind == conversation.EventDelta {
				panic("render failed")
			}
		}

		_, err := NewController(&fakeBackend{body: body}).Send(context.Background(), state, token, customerRequest("hi"), observer)
		assert.ErrorIs(t, err, ErrPanic)
		assert.Equal(t, conversation.PhaseError, state.Phase())
		assert.False(t, state.Loading())
		assert.Equal(t, int32(1), body.closes.Load())
	})

	t.Run("observer that keeps panicking is dropped", func(t *testing.T) {
		body := newBody("{\"content\":\"boom\"}\n")
		state := conversation.New("t", nil)
		var afterPanic []conversation.EventKind
		panicked := false
		observer := func(e conversation.Event) {
			if panicked {
				afterPanic = append(afterPanic, e.Kind)
			}
			if e.Kind == conversation.EventDelta || e.Kind == conversation.EventFailed {
				panicked = true
				panic("render failed")
			}
		}

		rec := &fakeRecorder{}
		c := NewController(&fakeBackend{body: body}, WithRecorder(rec))
		var err error
		require.NotPanics(t, func() {
			_, err = c.Send(context.Background(), state, token, customerRequest("hi"), observer)
		})
		assert.ErrorIs(t, err, ErrPanic)
		assert.Empty(t, afterPanic)
		assert.Equal(t, conversation.PhaseError, state.Phase())
		require.Len(t, rec.failures, 1)
		assert.ErrorIs(t, rec.failures[0], ErrPanic)
	})

	t.Run("concurrent send is rejected", func(t *testing.T) {
		backend := &fakeBackend{body: newBody()}
		state := conversation.New("t", nil)
		_, err := state.Begin(conversation.Outgoing{Text: "first"}, nil)
		require.NoError(t, err)

		_, err = NewController(backend).Send(context.Background(), state, token, customerRequest("second"), nil)
		assert.ErrorIs(t, err, conversation.ErrBusy)
		assert.Zero(t, backend.calls)
		assert.Len(t, state.Messages(), 1)
	})
}

type pipeBody struct {
	*io.PipeReader
	closes atomic.Int32
}

func (p *pipeBody) Close() error {
	p.closes.Add(1)
	return p.PipeReader.Close()
}

func TestSendTeardown(t *testing.T) {
	pr, pw := io.Pipe()
	body := &pipeBody{PipeReader: pr}
	state := conversation.New("t", nil)

	firstDelta := make(chan struct{})
	var deltas atomic.Int32
	observer := func(e conversation.Event) {
		if e.Kind == conversation.EventDelta && deltas.Add(1) == 1 {
			close(firstDelta)
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := NewController(&fakeBackend{body: body}).Send(context.Background(), state, token, customerRequest("hi"), observer)
		done <- err
	}()

	_, err := io.WriteString(pw, "{\"content\":\"first\"}\n")
	require.NoError(t, err)
	<-firstDelta

	state.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, conversation.ErrStale)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after teardown")
	}

	_, err = io.WriteString(pw, "{\"content\":\"late\"}\n")
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.Equal(t, int32(1), body.closes.Load())
	assert.Equal(t, int32(1), deltas.Load())
	assert.Len(t, state.Messages(), 1)
}

func TestSendCallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		io.WriteString(w, "{\"content\":\"thinking\"}\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	state := conversation.New("t", nil)
	observer := func(e conversation.Event) {
		if e.Kind == conversation.EventDelta {
			cancel()
		}
	}

	_, err := NewController(agent.NewClient(srv.URL)).Send(ctx, state, token, customerRequest("hi"), observer)
	require.Error(t, err)
	assert.Equal(t, conversation.PhaseError, state.Phase())
	assert.False(t, state.Loading())
	assert.Len(t, state.Messages(), 1)
}

func TestOutcomeOf(t *testing.T) {
	msg := &model.ChatMessage{}
	assert.Equal(t, "completed", outcomeOf(conversation.Result{Message: msg}, nil))
	assert.Equal(t, "empty", outcomeOf(conversation.Result{}, nil))
	assert.Equal(t, "rejected", outcomeOf(conversation.Result{}, conversation.ErrBusy))
	assert.Equal(t, "torn_down", outcomeOf(conversation.Result{}, conversation.ErrStale))
	assert.Equal(t, "missing_credential", outcomeOf(conversation.Result{}, ErrMissingCredential))
	assert.Equal(t, "failed", outcomeOf(conversation.Result{}, errors.New("x")))
}

func TestContextCredentials(t *testing.T) {
	token, err := bearerToken(WithToken(context.Background(), " jwt "), ContextCredentials{})
	require.NoError(t, err)
	assert.Equal(t, "jwt", token)

	_, err = bearerToken(context.Background(), ContextCredentials{})
	assert.ErrorIs(t, err, ErrMissingCredential)
}
