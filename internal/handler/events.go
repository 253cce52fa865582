package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/reddiedev/tenext-app/internal/middleware"
	"github.com/reddiedev/tenext-app/internal/model"
	"github.com/reddiedev/tenext-app/internal/service"
	"github.com/reddiedev/tenext-app/pkg/logger"
)

// DefaultHeartbeat is the interval between heartbeat events on idle feeds.
const DefaultHeartbeat = 30 * time.Second

// EventFeed delivers live thread events.
type EventFeed interface {
	Subscribe(ctx context.Context, threadID string, fn func(model.ThreadEvent)) error
}

// EventsHandler streams a thread's activity to other viewers, e.g. staff
// watching a customer's conversation.
type EventsHandler struct {
	chat      *service.ChatService
	feed      EventFeed
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(chat *service.ChatService, feed EventFeed, log *logger.Logger) *EventsHandler {
	return &EventsHandler{
		chat:      chat,
		feed:      feed,
		logger:    log,
		heartbeat: DefaultHeartbeat,
	}
}

// ReplayCompleteEvent represents the completion of message replay.
type ReplayCompleteEvent struct {
	LastMessageID int `json:"last_message_id"`
	MessageCount  int `json:"message_count"`
}

// Stream handles GET /api/v1/threads/{id}/events
//
// The finalized messages are replayed first (those after ?after_id=N or the
// Last-Event-ID header when given), then live events follow until the client
// disconnects.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	threadID := chi.URLParam(r, "id")

	afterID := 0
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		afterID, _ = strconv.Atoi(v)
	}
	afterID = queryInt(r, "after_id", afterID, 0, 1<<30)

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	defer sse.close()

	// Subscribe before replaying so nothing published in between is lost.
	live := make(chan model.ThreadEvent, 64)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := h.feed.Subscribe(subCtx, threadID, func(e model.ThreadEvent) {
		select {
		case live <- e:
		case <-subCtx.Done():
		}
	}); err != nil {
		middleware.RequestLogger(ctx, h.logger).Error("failed to subscribe to thread events", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "live feed unavailable")
		return
	}

	history, err := h.chat.Messages(ctx, user, threadID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	sse.send("connected", map[string]string{"thread_id": threadID})

	lastID := afterID
	replayed := 0
	for _, msg := range history.Messages {
		if msg.ID <= afterID {
			continue
		}
		sse.sendWithID(strconv.Itoa(msg.ID), "message", msg)
		lastID = msg.ID
		replayed++
	}
	sse.send("replay_complete", &ReplayCompleteEvent{
		LastMessageID: lastID,
		MessageCount:  replayed,
	})

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case e := <-live:
			switch e.Type {
			case model.EventTypeMessage:
				if e.Message == nil || e.Message.ID <= lastID {
					continue
				}
				lastID = e.Message.ID
				sse.sendWithID(strconv.Itoa(lastID), "message", e.Message.ViewedBy(user.ID))
			case model.EventTypeSessionFailed:
				sse.send("error", &model.ErrorEvent{Code: "stream_error", Message: e.Reason})
			}

		case <-heartbeat.C:
			sse.send("heartbeat", &model.HeartbeatEvent{Timestamp: time.Now()})
		}
	}
}
