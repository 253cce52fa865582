// Package store persists users, threads and their finalized messages with GORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/reddiedev/tenext-app/internal/model"
)

var (
	// ErrThreadNotFound is returned when a thread does not exist or was deleted.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrSettingNotFound is returned for a setting that was never set.
	ErrSettingNotFound = errors.New("setting not found")
)

// Config holds database configuration.
type Config struct {
	Driver          string // postgres, sqlite
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	Debug           bool
}

// Store is the GORM-backed repository.
type Store struct {
	db *gorm.DB
}

// Open connects to the database described by cfg.
func Open(cfg Config) (*Store, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "postgres":
		dialector = postgres.New(postgres.Config{
			DSN:                  cfg.DSN,
			PreferSimpleProtocol: true,
		})
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	logMode := gormlogger.Silent
	if cfg.Debug {
		logMode = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(logMode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &Store{db: db}, nil
}

// New wraps an existing connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&UserModel{}, &ThreadModel{}, &MessageModel{}, &SettingModel{})
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EnsureUser inserts u or refreshes its name and role.
func (s *Store) EnsureUser(ctx context.Context, u model.User) error {
	row := &UserModel{ID: u.ID, Name: u.Name, Role: string(u.Role)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "role", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// ListUsers returns the users with role, or every user when role is empty,
// ordered by name.
func (s *Store) ListUsers(ctx context.Context, role string) ([]model.User, error) {
	q := s.db.WithContext(ctx).Model(&UserModel{})
	if role != "" {
		q = q.Where("role = ?", role)
	}

	var rows []UserModel
	if err := q.Order("name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]model.User, len(rows))
	for i := range rows {
		users[i] = rows[i].toDomain()
	}
	return users, nil
}

// GetSetting returns the setting stored under key.
func (s *Store) GetSetting(ctx context.Context, key string) (*model.Setting, error) {
	var row SettingModel
	err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettingNotFound
		}
		return nil, fmt.Errorf("get setting: %w", err)
	}
	return row.toDomain(), nil
}

// SetSetting inserts or replaces a setting. UpdatedAt is set on the way in.
func (s *Store) SetSetting(ctx context.Context, setting *model.Setting) error {
	row := &SettingModel{Key: setting.Key, Value: setting.Value, UpdatedBy: setting.UpdatedBy}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	setting.UpdatedAt = row.UpdatedAt
	return nil
}

// DeleteSetting removes a setting; removing a missing one is not an error.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Delete(&SettingModel{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("delete setting: %w", err)
	}
	return nil
}

// CreateThread inserts t, assigning an id when it has none.
func (s *Store) CreateThread(ctx context.Context, t *model.Thread) error {
	if t.ID == "" {
		t.ID = uuid.Must(uuid.NewV7()).String()
	}
	row := &ThreadModel{
		ID:                 t.ID,
		OwnerID:            t.OwnerID,
		Title:              t.Title,
		ManualIntervention: t.ManualIntervention,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	t.CreatedAt = row.CreatedAt
	t.UpdatedAt = row.UpdatedAt
	return nil
}

// GetThread returns the thread with id.
func (s *Store) GetThread(ctx context.Context, id string) (*model.Thread, error) {
	var row ThreadModel
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrThreadNotFound
		}
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return row.toDomain(), nil
}

// ListThreads returns threads most recently updated first. An empty ownerID
// lists every thread.
func (s *Store) ListThreads(ctx context.Context, ownerID string, limit, offset int) ([]model.Thread, int64, error) {
	if limit < 1 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Model(&ThreadModel{})
	if ownerID != "" {
		query = query.Where("owner_id = ?", ownerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count threads: %w", err)
	}

	var rows []ThreadModel
	if err := query.Order("updated_at DESC").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list threads: %w", err)
	}

	threads := make([]model.Thread, len(rows))
	for i := range rows {
		threads[i] = *rows[i].toDomain()
	}
	return threads, total, nil
}

// UpdateThread applies the non-empty fields of req.
func (s *Store) UpdateThread(ctx context.Context, id string, req model.UpdateThreadRequest) (*model.Thread, error) {
	updates := map[string]any{}
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.ManualIntervention != nil {
		updates["manual_intervention"] = *req.ManualIntervention
	}

	if len(updates) > 0 {
		res := s.db.WithContext(ctx).Model(&ThreadModel{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("update thread: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ErrThreadNotFound
		}
	}
	return s.GetThread(ctx, id)
}

// DeleteThread soft deletes a thread. Its messages are kept.
func (s *Store) DeleteThread(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&ThreadModel{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete thread: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrThreadNotFound
	}
	return nil
}

// ListMessages returns the finalized messages of a thread in id order.
func (s *Store) ListMessages(ctx context.Context, threadID string) ([]model.ChatMessage, error) {
	var rows []MessageModel
	err := s.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	msgs := make([]model.ChatMessage, len(rows))
	for i := range rows {
		msgs[i] = rows[i].toDomain()
	}
	return msgs, nil
}

// AppendMessage stores msg and makes it the thread's last message, returning
// the message as stored. Storing the same message twice is a no-op. When its
// id is already taken by a different message, e.g. one written by another
// replica from a stale view, msg is stored under the next free id instead.
func (s *Store) AppendMessage(ctx context.Context, threadID string, msg model.ChatMessage) (model.ChatMessage, error) {
	stored := msg
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := messageToModel(threadID, msg)
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if res.Error != nil {
			return fmt.Errorf("append message: %w", res.Error)
		}

		if res.RowsAffected == 0 {
			var existing MessageModel
			err := tx.Where("thread_id = ? AND seq = ?", threadID, msg.ID).First(&existing).Error
			if err != nil {
				return fmt.Errorf("load conflicting message: %w", err)
			}
			if existing.sameMessage(row) {
				stored = existing.toDomain()
				return nil
			}

			var last int
			err = tx.Model(&MessageModel{}).
				Where("thread_id = ?", threadID).
				Select("COALESCE(MAX(seq), 0)").
				Scan(&last).Error
			if err != nil {
				return fmt.Errorf("next message id: %w", err)
			}

			row = messageToModel(threadID, msg)
			row.Seq = last + 1
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("append message: %w", err)
			}
		}
		stored = row.toDomain()

		err := tx.Model(&ThreadModel{}).Where("id = ?", threadID).Updates(map[string]any{
			"last_message": msg.Content,
			"updated_at":   time.Now(),
		}).Error
		if err != nil {
			return fmt.Errorf("touch thread: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.ChatMessage{}, err
	}
	return stored, nil
}
