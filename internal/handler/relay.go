package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/reddiedev/tenext-app/internal/llm"
	"github.com/reddiedev/tenext-app/internal/middleware"
	"github.com/reddiedev/tenext-app/internal/model"
	"github.com/reddiedev/tenext-app/pkg/logger"
	"github.com/reddiedev/tenext-app/pkg/metrics"
)

// PromptSource supplies the system prompt for each relayed request.
type PromptSource interface {
	CurrentSystemPrompt(ctx context.Context) (string, error)
}

// RelayHandler is a development stand-in for the agent backend: it answers
// chat_stream requests with NDJSON frames produced by an LLM provider.
type RelayHandler struct {
	llm     llm.Client
	prompts PromptSource
	logger  *logger.Logger
}

// NewRelayHandler creates a new relay handler.
func NewRelayHandler(client llm.Client, log *logger.Logger) *RelayHandler {
	return &RelayHandler{llm: client, logger: log}
}

// UsePrompts makes the relay read its system prompt from src.
func (h *RelayHandler) UsePrompts(src PromptSource) *RelayHandler {
	h.prompts = src
	return h
}

func (h *RelayHandler) systemPrompt(ctx context.Context, log *logger.Logger) string {
	if h.prompts == nil {
		return ""
	}
	prompt, err := h.prompts.CurrentSystemPrompt(ctx)
	if err != nil {
		log.Warn("using the default system prompt", zap.Error(err))
		return ""
	}
	return prompt
}

// ChatStream handles POST /agent/v1/chat_stream
func (h *RelayHandler) ChatStream(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	provider := h.llm.Name()
	log := middleware.RequestLogger(r.Context(), h.logger).With(
		zap.String("session_id", req.SessionID),
		zap.String("provider", provider),
	)

	// Headers wait for the first frame so a provider that fails up front
	// still gets a proper error status.
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
	}

	enc := json.NewEncoder(w)
	usage, err := h.llm.StreamReply(r.Context(), &llm.Prompt{
		SessionID:    req.SessionID,
		Message:      req.Message,
		SpeakingUser: req.SpeakingUser,
		SystemPrompt: h.systemPrompt(r.Context(), log),
	}, func(f model.StreamFragment) error {
		start()
		if err := enc.Encode(&model.RelayFrame{Content: f.Content, Source: f.Source}); err != nil {
			return err
		}
		flusher.Flush()
		metrics.RelayFragmentsTotal.WithLabelValues(provider, f.Channel()).Inc()
		return nil
	})
	if err != nil {
		log.Warn("relay stream failed", zap.Error(err))
		if !started {
			writeError(w, http.StatusBadGateway, "upstream model failed")
		}
		return
	}
	start()

	log.Debug("relay stream complete",
		zap.Int("fragments", usage.Fragments),
		zap.String("stop_reason", usage.StopReason),
		zap.Duration("latency", usage.Latency),
	)
}
