package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/reddiedev/tenext-app/internal/model"
	"github.com/reddiedev/tenext-app/internal/store"
	"github.com/reddiedev/tenext-app/pkg/logger"
)

// SystemPromptKey is the setting holding the relay's system prompt.
const SystemPromptKey = "system_prompt"

// ErrInvalidRole is returned when users are filtered by an unknown role.
var ErrInvalidRole = errors.New("unknown role")

// AdminStore is the persistence used by AdminService.
type AdminStore interface {
	ListUsers(ctx context.Context, role string) ([]model.User, error)
	GetSetting(ctx context.Context, key string) (*model.Setting, error)
	SetSetting(ctx context.Context, setting *model.Setting) error
	DeleteSetting(ctx context.Context, key string) error
}

// AdminService serves the staff-only user directory and system prompt.
type AdminService struct {
	store         AdminStore
	defaultPrompt string
	logger        *logger.Logger
}

// NewAdminService creates an admin service. defaultPrompt is reported while
// no system prompt has been set.
func NewAdminService(s AdminStore, defaultPrompt string, log *logger.Logger) *AdminService {
	return &AdminService{store: s, defaultPrompt: defaultPrompt, logger: log}
}

// Users lists the users with role, or all users for an empty role.
func (s *AdminService) Users(ctx context.Context, caller model.User, role model.Role) ([]model.User, error) {
	if !caller.IsStaff() {
		return nil, ErrForbidden
	}
	switch role {
	case "", model.RoleCustomer, model.RoleStaff, model.RoleAdmin:
	default:
		return nil, ErrInvalidRole
	}
	return s.store.ListUsers(ctx, string(role))
}

// SystemPrompt returns the current system prompt.
func (s *AdminService) SystemPrompt(ctx context.Context) (*model.SystemPrompt, error) {
	setting, err := s.store.GetSetting(ctx, SystemPromptKey)
	if err != nil {
		if errors.Is(err, store.ErrSettingNotFound) {
			return &model.SystemPrompt{Text: s.defaultPrompt, Default: true}, nil
		}
		return nil, err
	}
	return &model.SystemPrompt{
		Text:      setting.Value,
		UpdatedBy: setting.UpdatedBy,
		UpdatedAt: &setting.UpdatedAt,
	}, nil
}

// CurrentSystemPrompt returns just the prompt text.
func (s *AdminService) CurrentSystemPrompt(ctx context.Context) (string, error) {
	p, err := s.SystemPrompt(ctx)
	if err != nil {
		return "", err
	}
	return p.Text, nil
}

// SetSystemPrompt replaces the system prompt. Blank text restores the default.
func (s *AdminService) SetSystemPrompt(ctx context.Context, caller model.User, text string) (*model.SystemPrompt, error) {
	if !caller.IsStaff() {
		return nil, ErrForbidden
	}

	log := s.logger.With(zap.String(logger.FieldUserID, caller.ID))

	text = strings.TrimSpace(text)
	if text == "" {
		if err := s.store.DeleteSetting(ctx, SystemPromptKey); err != nil {
			return nil, err
		}
		log.Info("system prompt reset to default")
		return &model.SystemPrompt{Text: s.defaultPrompt, Default: true}, nil
	}

	setting := &model.Setting{Key: SystemPromptKey, Value: text, UpdatedBy: caller.ID}
	if err := s.store.SetSetting(ctx, setting); err != nil {
		return nil, err
	}
	log.Info("system prompt changed", zap.Int("length", len(text)))
	return &model.SystemPrompt{
		Text:      setting.Value,
		UpdatedBy: setting.UpdatedBy,
		UpdatedAt: &setting.UpdatedAt,
	}, nil
}
