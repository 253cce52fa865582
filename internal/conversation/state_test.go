package conversation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reddiedev/tenext-app/internal/model"
)

var fixedNow = func() time.Time { return time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC) }

func newTestState(seed ...model.ChatMessage) *State {
	return New("thread-1", seed, WithClock(fixedNow), WithAgentName("Tenext Agent"))
}

func customer(text string) Outgoing {
	return Outgoing{Text: text, Sender: "Alice", SenderID: "u-1", Role: model.RoleCustomer}
}

type recorder struct {
	events []Event
}

func (r *recorder) observe(e Event) { r.events = append(r.events, e) }

func (r *recorder) kinds() []EventKind {
	out := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func TestStateBegin(t *testing.T) {
	t.Run("appends the outgoing message and starts loading", func(t *testing.T) {
		s := newTestState(model.ChatMessage{ID: 7, Content: "earlier"})
		rec := &recorder{}

		sess, err := s.Begin(customer("where is my order?"), rec.observe)
		require.NoError(t, err)

		user := sess.UserMessage()
		assert.Equal(t, 8, user.ID)
		assert.Equal(t, model.RoleCustomer, user.Role)
		assert.True(t, user.IsCurrentUser)
		assert.Equal(t, "2025-03-01T10:30:00Z", user.Timestamp)

		assert.True(t, s.Loading())
		assert.Equal(t, PhaseAwaitingFirstByte, s.Phase())
		assert.Len(t, s.Messages(), 2)
		assert.Equal(t, []EventKind{EventUserMessage, EventLoading}, rec.kinds())
		assert.Equal(t, sess.Generation(), rec.events[0].Generation)
	})

	t.Run("rejects a second send while streaming", func(t *testing.T) {
		s := newTestState()
		_, err := s.Begin(customer("first"), nil)
		require.NoError(t, err)

		_, err = s.Begin(customer("second"), nil)
		assert.ErrorIs(t, err, ErrBusy)
		_, err = s.Post(customer("third"))
		assert.ErrorIs(t, err, ErrBusy)
		assert.Len(t, s.Messages(), 1)
	})

	t.Run("rejects blank text", func(t *testing.T) {
		s := newTestState()
		_, err := s.Begin(customer("   "), nil)
		assert.ErrorIs(t, err, ErrEmptyMessage)
		assert.False(t, s.Loading())
	})
}

func TestStateStreaming(t *testing.T) {
	t.Run("first non-empty primary fragment clears loading", func(t *testing.T) {
		s := newTestState()
		rec := &recorder{}
		sess, err := s.Begin(customer("hi"), rec.observe)
		require.NoError(t, err)

		require.NoError(t, s.Apply(sess, model.StreamFragment{Content: ""}))
		assert.True(t, s.Loading())

		require.NoError(t, s.Apply(sess, model.StreamFragment{Content: "note", Source: "suggest"}))
		assert.True(t, s.Loading(), "side-channel output does not end loading")

		require.NoError(t, s.Apply(sess, model.StreamFragment{Content: "Hel"}))
		assert.False(t, s.Loading())
		assert.Equal(t, PhaseStreaming, s.Phase())

		require.NoError(t, s.Apply(sess, model.StreamFragment{Content: "lo"}))
		assert.False(t, s.Loading())
		assert.Equal(t, "Hello", s.Snapshot().Buffers[model.PrimarySource])

		last := rec.events[len(rec.events)-1]
		assert.Equal(t, EventDelta, last.Kind)
		assert.Equal(t, "lo", last.Delta)
		assert.Equal(t, "Hello", last.Content)
	})

	t.Run("complete appends exactly one finalized message", func(t *testing.T) {
		s := newTestState()
		rec := &recorder{}
		sess, err := s.Begin(customer("hi"), rec.observe)
		require.NoError(t, err)
		require.NoError(t, s.Apply(sess, model.StreamFragment{Content: "Hello"}))
		require.NoError(t, s.Apply(sess, model.StreamFragment{Content: " world"}))

		res, err := s.Complete(sess)
		require.NoError(t, err)
		require.NotNil(t, res.Message)
		assert.Equal(t, "Hello world", res.Message.Content)
		assert.Equal(t, 2, res.Message.ID)
		assert.Equal(t, "Tenext Agent", res.Message.Sender)
		assert.Equal(t, model.RoleAssistant, res.Message.Role)
		assert.False(t, res.Message.IsCurrentUser)

		snap := s.Snapshot()
		assert.Len(t, snap.Messages, 2)
		assert.Empty(t, snap.Buffers)
		assert.False(t, snap.Loading)
		assert.Equal(t, PhaseIdle, snap.Phase)

		select {
		case <-sess.Done():
		default:
			t.Fatal("session should be done")
		}
		assert.Equal(t, EventMessage, rec.events[len(rec.events)-1].Kind)
	})

	t.Run("empty reply appends nothing", func(t *testing.T) {
		s := newTestState()
		rec := &recorder{}
		sess, err := s.Begin(customer("hi"), rec.observe)
		require.NoError(t, err)
		require.NoError(t, s.Apply(sess, model.StreamFragment{}))

		res, err := s.Complete(sess)
		require.NoError(t, err)
		assert.Nil(t, res.Message)
		assert.Len(t, s.Messages(), 1)
		assert.False(t, s.Loading())
		assert.Equal(t, []EventKind{EventUserMessage, EventLoading, EventLoading}, rec.kinds())
		assert.False(t, rec.events[2].Loading)
	})

	t.Run("side channels come back as annotations", func(t *testing.T) {
		s := newTestState()
		sess, err := s.Begin(customer("hi"), nil)
		require.NoError(t, err)
		for _, f := range []model.StreamFragment{
			{Content: "A", Source: "x"},
			{Content: "B", Source: "y"},
			{Content: "C", Source: "x"},
			{Content: "", Source: "z"},
		} {
			require.NoError(t, s.Apply(sess, f))
		}

		res, err := s.Complete(sess)
		require.NoError(t, err)
		assert.Nil(t, res.Message)
		assert.Equal(t, map[string]string{"x": "AC", "y": "B"}, res.Annotations)
	})

	t.Run("ids keep increasing across sessions", func(t *testing.T) {
		s := newTestState()
		for i := 0; i < 3; i++ {
			sess, err := s.Begin(customer("q"), nil)
			require.NoError(t, err)
			require.NoError(t, s.Apply(sess, model.StreamFragment{Content: "a"}))
			_, err = s.Complete(sess)
			require.NoError(t, err)
		}
		for i, m := range s.Messages() {
			assert.Equal(t, i+1, m.ID)
		}
	})
}

func TestStateFail(t *testing.T) {
	s := newTestState()
	rec := &recorder{}
	sess, err := s.Begin(customer("hi"), rec.observe)
	require.NoError(t, err)
	require.NoError(t, s.Apply(sess, model.StreamFragment{Content: "partial"}))

	cause := errors.New("status 500")
	require.NoError(t, s.Fail(sess, cause))

	snap := s.Snapshot()
	assert.False(t, snap.Loading)
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Equal(t, cause, snap.Err)
	assert.Empty(t, snap.Buffers)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "hi", snap.Messages[0].Content)

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, EventFailed, last.Kind)
	assert.Equal(t, cause, last.Err)

	assert.ErrorIs(t, s.Apply(sess, model.StreamFragment{Content: "late"}), ErrStale)
	_, err = s.Complete(sess)
	assert.ErrorIs(t, err, ErrStale)

	// an errored view accepts the next send
	_, err = s.Begin(customer("retry"), nil)
	assert.NoError(t, err)
}

func TestStateClose(t *testing.T) {
	s := newTestState()
	rec := &recorder{}
	sess, err := s.Begin(customer("hi"), rec.observe)
	require.NoError(t, err)
	before := len(rec.events)

	s.Close()
	s.Close()

	select {
	case <-sess.Done():
	default:
		t.Fatal("teardown should end the session")
	}

	assert.ErrorIs(t, s.Apply(sess, model.StreamFragment{Content: "x"}), ErrStale)
	assert.ErrorIs(t, s.Fail(sess, errors.New("boom")), ErrStale)
	_, err = s.Complete(sess)
	assert.ErrorIs(t, err, ErrStale)
	assert.Len(t, rec.events, before, "no events after teardown")

	assert.True(t, s.Closed())
	assert.False(t, s.Loading())
	_, err = s.Begin(customer("again"), nil)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Post(customer("again"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStateCloseDuringApply(t *testing.T) {
	s := newTestState()
	rec := &recorder{}
	sess, err := s.Begin(customer("hi"), func(e Event) {
		rec.observe(e)
		// Teardown lands between the state update and the delta.
		if e.Kind == EventLoading && !e.Loading {
			s.Close()
		}
	})
	require.NoError(t, err)

	require.NoError(t, s.Apply(sess, model.StreamFragment{Content: "Hello"}))
	assert.Equal(t, []EventKind{EventUserMessage, EventLoading, EventLoading}, rec.kinds())
	assert.ErrorIs(t, s.Apply(sess, model.StreamFragment{Content: " there"}), ErrStale)
	assert.Len(t, rec.events, 3)
}

func TestSessionDropObserver(t *testing.T) {
	s := newTestState()
	rec := &recorder{}
	sess, err := s.Begin(customer("hi"), rec.observe)
	require.NoError(t, err)

	sess.DropObserver()
	require.NoError(t, s.Apply(sess, model.StreamFragment{Content: "Hello"}))
	require.NoError(t, s.Fail(sess, errors.New("boom")))

	assert.Equal(t, []EventKind{EventUserMessage, EventLoading}, rec.kinds())
	assert.Equal(t, PhaseError, s.Phase())
}

func TestStatePost(t *testing.T) {
	s := newTestState()
	msg, err := s.Post(Outgoing{Text: "I'll take it from here", Sender: "Sam", SenderID: "csr-1", Role: model.RoleStaff})
	require.NoError(t, err)
	assert.Equal(t, 1, msg.ID)
	assert.Equal(t, model.RoleStaff, msg.Role)
	assert.False(t, s.Loading())
	assert.Equal(t, PhaseIdle, s.Phase())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "awaiting-first-byte", PhaseAwaitingFirstByte.String())
	assert.Equal(t, "unknown", Phase(42).String())
	assert.True(t, PhaseStreaming.Open())
	assert.False(t, PhaseError.Open())
}
