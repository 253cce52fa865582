// Package conversation owns the state of an open thread view: the finalized
// messages, the streaming buffers and the loading flag.
package conversation

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/reddiedev/tenext-app/internal/accumulator"
	"github.com/reddiedev/tenext-app/internal/model"
)

var (
	// ErrBusy is returned when a send is attempted while a response is streaming.
	ErrBusy = errors.New("conversation: a response is still streaming")
	// ErrClosed is returned once the thread view has been torn down.
	ErrClosed = errors.New("conversation: thread view closed")
	// ErrStale is returned to a session whose view was torn down or superseded.
	ErrStale = errors.New("conversation: session is no longer current")
	// ErrEmptyMessage is returned for blank outgoing text.
	ErrEmptyMessage = errors.New("conversation: message is empty")
)

// Phase is the lifecycle phase of the thread view.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingFirstByte
	PhaseStreaming
	PhaseFinalizing
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingFirstByte:
		return "awaiting-first-byte"
	case PhaseStreaming:
		return "streaming"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Open reports whether a session is in flight.
func (p Phase) Open() bool {
	return p == PhaseAwaitingFirstByte || p == PhaseStreaming || p == PhaseFinalizing
}

// Outgoing is the text a participant sends to the thread.
type Outgoing struct {
	Text     string
	Sender   string
	SenderID string
	Role     model.Role
}

// Result is what a completed session produced.
type Result struct {
	// Message is the finalized assistant reply, nil when the reply was empty.
	Message *model.ChatMessage
	// Annotations holds non-empty side-channel buckets keyed by source.
	Annotations map[string]string
}

// Snapshot is a copy of the state taken under its lock.
type Snapshot struct {
	ThreadID string
	Messages []model.ChatMessage
	Buffers  map[string]string
	Loading  bool
	Phase    Phase
	Err      error
}

// Option configures a State.
type Option func(*State)

// WithAgentName sets the display name of finalized assistant messages.
func WithAgentName(name string) Option {
	return func(s *State) {
		if name != "" {
			s.agentName = name
		}
	}
}

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// State is the conversation state of one thread view. All transitions go
// through its methods; callers never mutate the messages directly.
type State struct {
	mu sync.Mutex

	threadID  string
	agentName string
	now       func() time.Time

	messages []model.ChatMessage
	acc      *accumulator.Accumulator
	loading  bool
	phase    Phase
	lastErr  error

	gen    uint64
	nextID int
	active *Session
	closed bool
}

// New creates the state for a thread seeded with its persisted messages.
func New(threadID string, seed []model.ChatMessage, opts ...Option) *State {
	s := &State{
		threadID:  threadID,
		agentName: "Agent",
		now:       time.Now,
		messages:  append([]model.ChatMessage(nil), seed...),
		acc:       accumulator.New(),
		nextID:    1,
	}
	for _, m := range seed {
		if m.ID >= s.nextID {
			s.nextID = m.ID + 1
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ThreadID returns the thread this state belongs to.
func (s *State) ThreadID() string {
	return s.threadID
}

// Begin starts a session: the outgoing text is appended as a finalized message
// right away and the view starts waiting for the first byte of the reply.
func (s *State) Begin(out Outgoing, observer Observer) (*Session, error) {
	if strings.TrimSpace(out.Text) == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.phase.Open() {
		s.mu.Unlock()
		return nil, ErrBusy
	}

	msg := s.appendLocked(out)
	s.acc.Reset()
	s.loading = true
	s.phase = PhaseAwaitingFirstByte
	s.lastErr = nil
	s.gen++

	sess := newSession(s.gen, msg, observer)
	s.active = sess
	s.mu.Unlock()

	sess.emit(Event{Kind: EventUserMessage, Message: &msg})
	sess.emit(Event{Kind: EventLoading, Loading: true})
	return sess, nil
}

// Post appends an outgoing message without starting a session.
func (s *State) Post(out Outgoing) (model.ChatMessage, error) {
	if strings.TrimSpace(out.Text) == "" {
		return model.ChatMessage{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return model.ChatMessage{}, ErrClosed
	}
	if s.phase.Open() {
		return model.ChatMessage{}, ErrBusy
	}

	msg := s.appendLocked(out)
	s.phase = PhaseIdle
	s.lastErr = nil
	return msg, nil
}

// Apply feeds one fragment of the session's reply into the buffers. The first
// non-empty primary fragment ends the loading phase.
func (s *State) Apply(sess *Session, f model.StreamFragment) error {
	s.mu.Lock()
	if err := s.checkLocked(sess); err != nil {
		s.mu.Unlock()
		return err
	}

	s.acc.Append(f)
	content := s.acc.Get(f.Source)

	firstByte := false
	if f.Primary() && f.Content != "" && s.loading {
		s.loading = false
		s.phase = PhaseStreaming
		firstByte = true
	}
	s.mu.Unlock()

	if firstByte {
		sess.emit(Event{Kind: EventLoading, Loading: false})
	}
	if f.Content != "" {
		sess.emit(Event{Kind: EventDelta, Source: f.Source, Delta: f.Content, Content: content})
	}
	return nil
}

// Complete finalizes the session. A non-empty primary buffer becomes a new
// assistant message; an empty one appends nothing.
func (s *State) Complete(sess *Session) (Result, error) {
	s.mu.Lock()
	if err := s.checkLocked(sess); err != nil {
		s.mu.Unlock()
		return Result{}, err
	}

	s.phase = PhaseFinalizing

	var res Result
	if primary := s.acc.Primary(); primary != "" {
		msg := model.ChatMessage{
			ID:        s.nextID,
			Sender:    s.agentName,
			Role:      model.RoleAssistant,
			Content:   primary,
			Timestamp: model.Timestamp(s.now()),
		}
		s.nextID++
		s.messages = append(s.messages, msg)
		res.Message = &msg
	}

	var sources []string
	for _, source := range s.acc.Sources() {
		if source == model.PrimarySource {
			continue
		}
		if content := s.acc.Get(source); content != "" {
			if res.Annotations == nil {
				res.Annotations = make(map[string]string)
			}
			res.Annotations[source] = content
			sources = append(sources, source)
		}
	}

	wasLoading := s.loading
	s.acc.Reset()
	s.loading = false
	s.phase = PhaseIdle
	s.active = nil
	s.mu.Unlock()

	if wasLoading {
		sess.emit(Event{Kind: EventLoading, Loading: false})
	}
	if res.Message != nil {
		sess.emit(Event{Kind: EventMessage, Message: res.Message})
	}
	for _, source := range sources {
		sess.emit(Event{Kind: EventAnnotation, Source: source, Content: res.Annotations[source]})
	}
	sess.finish()
	return res, nil
}

// Fail aborts the session. Buffers are discarded and no reply is appended;
// the optimistic outgoing message stays.
func (s *State) Fail(sess *Session, cause error) error {
	s.mu.Lock()
	if err := s.checkLocked(sess); err != nil {
		s.mu.Unlock()
		return err
	}

	wasLoading := s.loading
	s.acc.Reset()
	s.loading = false
	s.phase = PhaseError
	s.lastErr = cause
	s.active = nil
	s.mu.Unlock()

	if wasLoading {
		sess.emit(Event{Kind: EventLoading, Loading: false})
	}
	sess.emit(Event{Kind: EventFailed, Err: cause})
	sess.finish()
	return nil
}

// Close tears the view down. Any session still running becomes stale and its
// Done channel is closed.
func (s *State) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	active := s.active
	s.active = nil
	s.loading = false
	s.acc.Reset()
	if s.phase.Open() {
		s.phase = PhaseIdle
	}
	s.mu.Unlock()

	if active != nil {
		active.finish()
	}
}

// Closed reports whether Close has been called.
func (s *State) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Loading reports whether the view is waiting for the first byte of a reply.
func (s *State) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Phase returns the current lifecycle phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Messages returns a copy of the finalized messages.
func (s *State) Messages() []model.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ChatMessage(nil), s.messages...)
}

// Snapshot copies the whole state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ThreadID: s.threadID,
		Messages: append([]model.ChatMessage(nil), s.messages...),
		Buffers:  s.acc.Snapshot(),
		Loading:  s.loading,
		Phase:    s.phase,
		Err:      s.lastErr,
	}
}

func (s *State) appendLocked(out Outgoing) model.ChatMessage {
	role := out.Role
	if role == "" {
		role = model.RoleCustomer
	}
	msg := model.ChatMessage{
		ID:            s.nextID,
		Sender:        out.Sender,
		SenderID:      out.SenderID,
		Role:          role,
		Content:       out.Text,
		Timestamp:     model.Timestamp(s.now()),
		IsCurrentUser: true,
	}
	s.nextID++
	s.messages = append(s.messages, msg)
	return msg
}

func (s *State) checkLocked(sess *Session) error {
	if sess == nil || s.closed || s.active != sess || sess.gen != s.gen {
		return ErrStale
	}
	return nil
}
