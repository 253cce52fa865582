package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/reddiedev/tenext-app/internal/agent"
	"github.com/reddiedev/tenext-app/internal/conversation"
	"github.com/reddiedev/tenext-app/internal/middleware"
	"github.com/reddiedev/tenext-app/internal/model"
	"github.com/reddiedev/tenext-app/internal/service"
	"github.com/reddiedev/tenext-app/internal/session"
	"github.com/reddiedev/tenext-app/pkg/metrics"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeServiceError maps service and session errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	var statusErr *agent.StatusError
	switch {
	case errors.Is(err, service.ErrThreadNotFound):
		writeError(w, http.StatusNotFound, "thread not found")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrInvalidRole):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrBusy):
		writeError(w, http.StatusConflict, "a reply is still streaming in this thread")
	case errors.Is(err, conversation.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "content cannot be empty")
	case errors.Is(err, session.ErrMissingCredential):
		writeError(w, http.StatusUnauthorized, "missing credentials for the agent backend")
	case errors.As(err, &statusErr):
		writeError(w, http.StatusBadGateway, statusErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func currentUser(w http.ResponseWriter, r *http.Request) (model.User, bool) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	}
	return user, ok
}

func queryInt(r *http.Request, key string, def, min, max int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return def
	}
	return n
}

// sseWriter writes Server-Sent Events. Headers are only sent with the first
// event, so a handler can still answer with a plain JSON error until then.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)

	metrics.IncrementSSEConnections()
}

func (s *sseWriter) send(event string, data interface{}) error {
	return s.sendWithID("", event, data)
}

func (s *sseWriter) sendWithID(id, event string, data interface{}) error {
	s.start()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if id != "" {
		fmt.Fprintf(s.w, "id: %s\n", id)
	}
	fmt.Fprintf(s.w, "event: %s\n", event)
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) close() {
	if s.started {
		metrics.DecrementSSEConnections()
	}
}
