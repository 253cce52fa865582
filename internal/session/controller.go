// Package session drives one send/stream cycle against the agent backend and
// feeds the reply into a thread's conversation state.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/reddiedev/tenext-app/internal/conversation"
	"github.com/reddiedev/tenext-app/internal/model"
	"github.com/reddiedev/tenext-app/internal/ndjson"
	"github.com/reddiedev/tenext-app/pkg/logger"
	"github.com/reddiedev/tenext-app/pkg/metrics"
)

// DefaultReadSize is the size of each read from the response body.
const DefaultReadSize = 4 << 10

var (
	// ErrMissingCredential is returned when no bearer token is available. The
	// request is never sent and the conversation state is left untouched.
	ErrMissingCredential = errors.New("session: missing bearer credential")
	// ErrNoReader is returned when the backend answers without a readable body.
	ErrNoReader = errors.New("session: response has no readable body")
	// ErrPanic wraps a panic recovered from the read loop.
	ErrPanic = errors.New("session: read loop panicked")
)

// Backend is the outgoing-message API.
type Backend interface {
	ChatStream(ctx context.Context, token string, req model.ChatRequest) (io.ReadCloser, error)
}

// Recorder is told about finalized messages and failed sessions. Calls happen
// on the session goroutine and must not block on I/O.
type Recorder interface {
	RecordMessage(ctx context.Context, threadID string, msg model.ChatMessage)
	RecordFailure(ctx context.Context, threadID string, cause error)
}

// Request is one outgoing message.
type Request struct {
	Text         string
	Sender       string
	SenderID     string
	Role         model.Role
	SpeakingUser string
}

// Controller runs sessions. It keeps no per-session state of its own; every
// change goes through the conversation.State passed to Send.
type Controller struct {
	backend  Backend
	recorder Recorder
	logger   *logger.Logger
	readSize int
	tracer   trace.Tracer
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder sets the sink for finalized messages.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithReadSize sets the read buffer size.
func WithReadSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.readSize = n
		}
	}
}

// NewController creates a controller that streams replies from backend.
func NewController(backend Backend, opts ...Option) *Controller {
	c := &Controller{
		backend:  backend,
		logger:   logger.NewNop(),
		readSize: DefaultReadSize,
		tracer:   otel.Tracer("github.com/reddiedev/tenext-app/internal/session"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send runs one session: the outgoing message is appended to state, the reply
// is streamed into it and finalized. Concurrent sends on the same state get
// conversation.ErrBusy. If the view is torn down mid-stream the reader is
// released and conversation.ErrStale is returned.
func (c *Controller) Send(
	ctx context.Context,
	state *conversation.State,
	creds CredentialProvider,
	req Request,
	observer conversation.Observer,
) (conversation.Result, error) {
	start := time.Now()
	threadID := state.ThreadID()

	ctx, span := c.tracer.Start(ctx, "session.Send", trace.WithAttributes(
		attribute.String("thread.id", threadID),
		attribute.String("sender.role", string(req.Role)),
	))
	defer span.End()

	res, err := c.send(ctx, state, creds, req, observer)

	outcome := outcomeOf(res, err)
	metrics.RecordSession(outcome, time.Since(start).Seconds())
	span.SetAttributes(attribute.String("session.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	return res, err
}

func (c *Controller) send(
	ctx context.Context,
	state *conversation.State,
	creds CredentialProvider,
	req Request,
	observer conversation.Observer,
) (conversation.Result, error) {
	token, err := bearerToken(ctx, creds)
	if err != nil {
		return conversation.Result{}, err
	}

	sess, err := state.Begin(conversation.Outgoing{
		Text:     req.Text,
		Sender:   req.Sender,
		SenderID: req.SenderID,
		Role:     req.Role,
	}, observer)
	if err != nil {
		return conversation.Result{}, err
	}
	c.recordMessage(ctx, state.ThreadID(), sess.UserMessage())

	return c.stream(ctx, state, sess, token, req)
}

func (c *Controller) stream(
	ctx context.Context,
	state *conversation.State,
	sess *conversation.Session,
	token string,
	req Request,
) (res conversation.Result, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := c.logger.ForThread(state.ThreadID(), req.SenderID).With(zap.Uint64("generation", sess.Generation()))

	body, err := c.backend.ChatStream(ctx, token, model.ChatRequest{
		Message:      req.Text,
		SessionID:    state.ThreadID(),
		SpeakingUser: req.SpeakingUser,
	})
	if err != nil {
		log.Warn("agent request failed", zap.Error(err))
		return c.fail(ctx, state, sess, err)
	}
	if body == nil {
		return c.fail(ctx, state, sess, ErrNoReader)
	}

	reader := newStreamReader(body)
	defer reader.Release()

	defer func() {
		if r := recover(); r != nil {
			reader.Release()
			sess.DropObserver()
			log.Error("stream read loop panicked", zap.Any("panic", r))
			res, err = c.fail(ctx, state, sess, fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()

	// Tearing the view down unblocks a pending read.
	go func() {
		select {
		case <-sess.Done():
			cancel()
			reader.Release()
		case <-ctx.Done():
		}
	}()

	dec := ndjson.NewDecoder()
	var framer ndjson.Framer
	buf := make([]byte, c.readSize)

	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if err := c.consume(log, state, sess, framer.Push(dec.Decode(buf[:n]))); err != nil {
				return conversation.Result{}, err
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			log.Warn("stream read failed", zap.Error(readErr))
			reader.Release()
			return c.fail(ctx, state, sess, fmt.Errorf("read stream: %w", readErr))
		}
	}

	tail := append(framer.Push(dec.Flush()), framer.Flush()...)
	if err := c.consume(log, state, sess, tail); err != nil {
		return conversation.Result{}, err
	}
	reader.Release()

	res, err = state.Complete(sess)
	if err != nil {
		return conversation.Result{}, err
	}
	if res.Message != nil {
		metrics.MessagesTotal.WithLabelValues(string(res.Message.Role)).Inc()
		c.recordMessage(ctx, state.ThreadID(), *res.Message)
	}
	log.Debug("stream session complete",
		zap.Bool("has_reply", res.Message != nil),
		zap.Int("annotations", len(res.Annotations)),
	)
	return res, nil
}

// consume parses complete frames and applies them in order. Malformed frames
// are skipped; only a stale session stops the loop.
func (c *Controller) consume(log *logger.Logger, state *conversation.State, sess *conversation.Session, lines []string) error {
	for _, line := range lines {
		frag, err := ndjson.ParseFragment(line)
		if err != nil {
			metrics.MalformedFramesTotal.Inc()
			log.Debug("skipping malformed frame", zap.Error(err), zap.Int("length", len(line)))
			continue
		}

		metrics.StreamFragmentsTotal.WithLabelValues(frag.Channel()).Inc()

		if err := state.Apply(sess, frag); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) fail(ctx context.Context, state *conversation.State, sess *conversation.Session, cause error) (conversation.Result, error) {
	if err := state.Fail(sess, cause); err != nil {
		return conversation.Result{}, err
	}
	if c.recorder != nil {
		c.recorder.RecordFailure(ctx, state.ThreadID(), cause)
	}
	return conversation.Result{}, cause
}

func (c *Controller) recordMessage(ctx context.Context, threadID string, msg model.ChatMessage) {
	if c.recorder != nil {
		c.recorder.RecordMessage(ctx, threadID, msg)
	}
}

func outcomeOf(res conversation.Result, err error) string {
	switch {
	case err == nil && res.Message != nil:
		return "completed"
	case err == nil:
		return "empty"
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, conversation.ErrBusy), errors.Is(err, conversation.ErrClosed), errors.Is(err, conversation.ErrEmptyMessage):
		return "rejected"
	case errors.Is(err, conversation.ErrStale):
		return "torn_down"
	default:
		return "failed"
	}
}
