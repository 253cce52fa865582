package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reddiedev/tenext-app/internal/conversation"
	"github.com/reddiedev/tenext-app/internal/lock"
	"github.com/reddiedev/tenext-app/internal/model"
	"github.com/reddiedev/tenext-app/internal/session"
	"github.com/reddiedev/tenext-app/pkg/logger"
)

// ChatConfig wires a ChatService.
type ChatConfig struct {
	Threads       *ThreadService
	Messages      MessageStore
	Publisher     EventPublisher
	Backend       session.Backend
	Locker        lock.Locker
	AgentName     string
	ReadSize      int
	StreamTimeout time.Duration
	RecordTimeout time.Duration
	Logger        *logger.Logger
}

// SendResult describes a completed send.
type SendResult struct {
	// Manual is set when the thread is under manual intervention and the
	// message was recorded without asking the agent.
	Manual      bool
	Message     *model.ChatMessage
	Annotations map[string]string
}

// ChatService sends messages into threads and streams agent replies.
type ChatService struct {
	threads       *ThreadService
	registry      *conversation.Registry
	controller    *session.Controller
	recorder      *Recorder
	locker        lock.Locker
	streamTimeout time.Duration
	logger        *logger.Logger
}

// NewChatService creates a chat service.
func NewChatService(cfg ChatConfig) *ChatService {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	locker := cfg.Locker
	if locker == nil {
		locker = lock.NewLocal()
	}

	recorder := NewRecorder(cfg.Messages, cfg.Publisher, cfg.RecordTimeout, log)

	seed := func(ctx context.Context, threadID string) ([]model.ChatMessage, error) {
		if err := recorder.Flush(ctx, threadID); err != nil {
			return nil, err
		}
		return cfg.Messages.ListMessages(ctx, threadID)
	}

	var stateOpts []conversation.Option
	if cfg.AgentName != "" {
		stateOpts = append(stateOpts, conversation.WithAgentName(cfg.AgentName))
	}

	return &ChatService{
		threads:  cfg.Threads,
		registry: conversation.NewRegistry(seed, stateOpts...),
		controller: session.NewController(cfg.Backend,
			session.WithRecorder(recorder),
			session.WithLogger(log),
			session.WithReadSize(cfg.ReadSize),
		),
		recorder:      recorder,
		locker:        locker,
		streamTimeout: cfg.StreamTimeout,
		logger:        log,
	}
}

// Messages returns the finalized messages of a thread as seen by user.
func (s *ChatService) Messages(ctx context.Context, user model.User, threadID string) (*model.ListMessagesResponse, error) {
	if _, err := s.threads.Get(ctx, user, threadID); err != nil {
		return nil, err
	}

	state, release, err := s.registry.Open(ctx, threadID)
	if err != nil {
		return nil, err
	}
	defer release()

	snap := state.Snapshot()
	msgs := make([]model.ChatMessage, len(snap.Messages))
	for i, m := range snap.Messages {
		msgs[i] = m.ViewedBy(user.ID)
	}

	return &model.ListMessagesResponse{
		Messages:     msgs,
		StreamActive: snap.Phase.Open(),
	}, nil
}

// Send posts content into a thread. On threads under manual intervention the
// message is only recorded; otherwise the agent's reply is streamed to
// observer. The agent request carries the bearer token found on ctx (see
// session.WithToken) and keeps running if ctx is cancelled, bounded by the
// configured stream timeout.
func (s *ChatService) Send(ctx context.Context, user model.User, threadID, content string, observer conversation.Observer) (*SendResult, error) {
	thread, err := s.threads.Get(ctx, user, threadID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, conversation.ErrEmptyMessage
	}

	unlock, err := s.locker.Acquire(ctx, threadID)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return nil, conversation.ErrBusy
		}
		return nil, err
	}
	defer unlock()

	state, release, err := s.registry.Open(ctx, threadID)
	if err != nil {
		return nil, err
	}
	defer release()

	log := s.logger.ForThread(threadID, user.ID)
	// The lock is held until the session's messages are stored, so the next
	// holder on any replica numbers its messages after them.
	defer s.awaitRecorded(ctx, threadID, log)

	if thread.ManualIntervention {
		msg, err := state.Post(conversation.Outgoing{
			Text:     content,
			Sender:   user.Name,
			SenderID: user.ID,
			Role:     user.MessageRole(),
		})
		if err != nil {
			return nil, err
		}
		s.recorder.RecordMessage(ctx, threadID, msg)
		log.Debug("message posted to manual thread", zap.Int("message_id", msg.ID))
		return &SendResult{Manual: true, Message: &msg}, nil
	}

	req := session.Request{
		Text:     content,
		Sender:   user.Name,
		SenderID: user.ID,
		Role:     user.MessageRole(),
	}
	if user.IsStaff() {
		req.SpeakingUser = user.Name
	}

	streamCtx := context.WithoutCancel(ctx)
	if s.streamTimeout > 0 {
		var cancel context.CancelFunc
		streamCtx, cancel = context.WithTimeout(streamCtx, s.streamTimeout)
		defer cancel()
	}

	res, err := s.controller.Send(streamCtx, state, session.ContextCredentials{}, req, observer)
	if err != nil {
		log.Info("send did not complete", zap.Error(err))
		return nil, err
	}
	return &SendResult{Message: res.Message, Annotations: res.Annotations}, nil
}

func (s *ChatService) awaitRecorded(ctx context.Context, threadID string, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*s.recorder.timeout)
	defer cancel()
	if err := s.recorder.Flush(ctx, threadID); err != nil {
		log.Warn("releasing thread before its messages were stored", zap.Error(err))
	}
}

// Close waits for pending writes.
func (s *ChatService) Close() {
	s.recorder.Wait()
}
