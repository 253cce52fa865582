package conversation

import (
	"sync"
	"sync/atomic"

	"github.com/reddiedev/tenext-app/internal/model"
)

// EventKind names a state change reported to a session observer.
type EventKind string

const (
	EventUserMessage EventKind = "user_message"
	EventLoading     EventKind = "loading"
	EventDelta       EventKind = "delta"
	EventMessage     EventKind = "message_complete"
	EventAnnotation  EventKind = "annotation"
	EventFailed      EventKind = "error"
)

// Event is one state change of a session, delivered in order.
type Event struct {
	Kind       EventKind
	Generation uint64
	Message    *model.ChatMessage
	Source     string
	Delta      string
	Content    string
	Loading    bool
	Err        error
}

// Observer receives the events of one session. It runs on the goroutine that
// drives the session, outside the state lock.
type Observer func(Event)

// Session is the handle of one send/stream cycle. It is only valid for the
// State that issued it.
type Session struct {
	gen      uint64
	user     model.ChatMessage
	observer Observer

	done     chan struct{}
	doneOnce sync.Once
	muted    atomic.Bool
}

func newSession(gen uint64, user model.ChatMessage, observer Observer) *Session {
	return &Session{
		gen:      gen,
		user:     user,
		observer: observer,
		done:     make(chan struct{}),
	}
}

// Generation is the state generation the session was started in.
func (s *Session) Generation() uint64 {
	return s.gen
}

// UserMessage is the outgoing message appended when the session began.
func (s *Session) UserMessage() model.ChatMessage {
	return s.user
}

// Done is closed when the session completes, fails, or its view is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// DropObserver stops event delivery for the rest of the session.
func (s *Session) DropObserver() {
	s.muted.Store(true)
}

// emit delivers e unless the observer was dropped or the session has ended.
// Complete and Fail emit their final events before ending the session.
func (s *Session) emit(e Event) {
	if s.observer == nil || s.muted.Load() {
		return
	}
	select {
	case <-s.done:
		return
	default:
	}
	e.Generation = s.gen
	s.observer(e)
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}
