package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/reddiedev/tenext-app/internal/conversation"
	"github.com/reddiedev/tenext-app/internal/middleware"
	"github.com/reddiedev/tenext-app/internal/model"
	"github.com/reddiedev/tenext-app/internal/service"
	"github.com/reddiedev/tenext-app/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	chat   *service.ChatService
	logger *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(chat *service.ChatService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		chat:   chat,
		logger: log,
	}
}

// List handles GET /api/v1/threads/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	resp, err := h.chat.Messages(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /api/v1/threads/{id}/messages
//
// On a thread under manual intervention the recorded message is returned as
// JSON with 201. Otherwise the session is streamed as SSE: user_message,
// loading, delta, annotation, message_complete or error, then done.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	threadID := chi.URLParam(r, "id")

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	defer sse.close()

	log := middleware.RequestLogger(r.Context(), h.logger).With(zap.String(logger.FieldThreadID, threadID))

	res, err := h.chat.Send(r.Context(), user, threadID, req.Content, func(e conversation.Event) {
		if err := writeSessionEvent(sse, user.ID, e); err != nil {
			log.Debug("failed to write session event", zap.String("event", string(e.Kind)), zap.Error(err))
		}
	})
	if err != nil {
		if !sse.started {
			writeServiceError(w, err)
			return
		}
		sse.send("done", map[string]bool{"success": false})
		return
	}

	if res.Manual {
		writeJSON(w, http.StatusCreated, &model.SendMessageResponse{
			Message: res.Message.ViewedBy(user.ID),
		})
		return
	}

	sse.send("done", map[string]bool{"success": true})
}

func writeSessionEvent(sse *sseWriter, userID string, e conversation.Event) error {
	switch e.Kind {
	case conversation.EventUserMessage:
		return sse.send("user_message", e.Message.ViewedBy(userID))
	case conversation.EventLoading:
		return sse.send("loading", &model.LoadingEvent{Loading: e.Loading})
	case conversation.EventDelta:
		return sse.send("delta", &model.DeltaEvent{Source: e.Source, Delta: e.Delta, Content: e.Content})
	case conversation.EventMessage:
		return sse.send("message_complete", e.Message.ViewedBy(userID))
	case conversation.EventAnnotation:
		return sse.send("annotation", &model.AnnotationEvent{
			Source:  e.Source,
			Role:    model.SourceRole(e.Source),
			Content: e.Content,
		})
	case conversation.EventFailed:
		msg := "stream failed"
		if e.Err != nil {
			msg = e.Err.Error()
		}
		return sse.send("error", &model.ErrorEvent{Code: "stream_error", Message: msg})
	}
	return nil
}
