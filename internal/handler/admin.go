package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/reddiedev/tenext-app/internal/middleware"
	"github.com/reddiedev/tenext-app/internal/model"
	"github.com/reddiedev/tenext-app/internal/service"
	"github.com/reddiedev/tenext-app/pkg/logger"
)

// AdminHandler handles the staff-only admin endpoints.
type AdminHandler struct {
	service *service.AdminService
	logger  *logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(svc *service.AdminService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{service: svc, logger: log}
}

// ListUsers handles GET /api/v1/admin/users?role=
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	users, err := h.service.Users(r.Context(), user, model.Role(r.URL.Query().Get("role")))
	if err != nil {
		h.fail(w, r, "failed to list users", err)
		return
	}

	writeJSON(w, http.StatusOK, model.ListUsersResponse{Users: users})
}

// GetSystemPrompt handles GET /api/v1/admin/system-prompt
func (h *AdminHandler) GetSystemPrompt(w http.ResponseWriter, r *http.Request) {
	prompt, err := h.service.SystemPrompt(r.Context())
	if err != nil {
		h.fail(w, r, "failed to load system prompt", err)
		return
	}
	writeJSON(w, http.StatusOK, prompt)
}

// UpdateSystemPrompt handles PUT /api/v1/admin/system-prompt
func (h *AdminHandler) UpdateSystemPrompt(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req model.UpdateSystemPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateSystemPrompt(req.SystemPrompt); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	prompt, err := h.service.SetSystemPrompt(r.Context(), user, req.SystemPrompt)
	if err != nil {
		h.fail(w, r, "failed to change system prompt", err)
		return
	}
	writeJSON(w, http.StatusOK, prompt)
}

func (h *AdminHandler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if !errors.Is(err, service.ErrForbidden) && !errors.Is(err, service.ErrInvalidRole) {
		middleware.RequestLogger(r.Context(), h.logger).Error(msg, zap.Error(err))
	}
	writeServiceError(w, err)
}
