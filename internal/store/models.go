package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/reddiedev/tenext-app/internal/model"
)

// UserModel is the users table.
type UserModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:255"`
	Role      string `gorm:"size:32;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName implements gorm's tabler.
func (UserModel) TableName() string { return "users" }

func (m *UserModel) toDomain() model.User {
	return model.User{ID: m.ID, Name: m.Name, Role: model.Role(m.Role)}
}

// SettingModel is the settings table.
type SettingModel struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:text"`
	UpdatedBy string `gorm:"size:64"`
	UpdatedAt time.Time
}

// TableName implements gorm's tabler.
func (SettingModel) TableName() string { return "settings" }

func (m *SettingModel) toDomain() *model.Setting {
	return &model.Setting{Key: m.Key, Value: m.Value, UpdatedBy: m.UpdatedBy, UpdatedAt: m.UpdatedAt}
}

// ThreadModel is the threads table.
type ThreadModel struct {
	ID                 string `gorm:"primaryKey;size:36"`
	OwnerID            string `gorm:"size:64;index"`
	Title              string `gorm:"size:255"`
	ManualIntervention bool   `gorm:"not null;default:false"`
	LastMessage        string `gorm:"type:text"`
	CreatedAt          time.Time
	UpdatedAt          time.Time      `gorm:"index"`
	DeletedAt          gorm.DeletedAt `gorm:"index"`
}

// TableName implements gorm's tabler.
func (ThreadModel) TableName() string { return "threads" }

func (m *ThreadModel) toDomain() *model.Thread {
	return &model.Thread{
		ID:                 m.ID,
		OwnerID:            m.OwnerID,
		Title:              m.Title,
		ManualIntervention: m.ManualIntervention,
		LastMessage:        m.LastMessage,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// MessageModel is the messages table. Seq is the message id within its thread.
type MessageModel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ThreadID  string `gorm:"size:36;not null;uniqueIndex:idx_messages_thread_seq"`
	Seq       int    `gorm:"not null;uniqueIndex:idx_messages_thread_seq"`
	Sender    string `gorm:"size:255"`
	SenderID  string `gorm:"size:64"`
	Role      string `gorm:"size:32"`
	Content   string `gorm:"type:text"`
	SentAt    string `gorm:"size:32"`
	CreatedAt time.Time
}

// TableName implements gorm's tabler.
func (MessageModel) TableName() string { return "messages" }

func messageToModel(threadID string, msg model.ChatMessage) *MessageModel {
	return &MessageModel{
		ThreadID: threadID,
		Seq:      msg.ID,
		Sender:   msg.Sender,
		SenderID: msg.SenderID,
		Role:     string(msg.Role),
		Content:  msg.Content,
		SentAt:   msg.Timestamp,
	}
}

// sameMessage reports whether o is a second write of m.
func (m *MessageModel) sameMessage(o *MessageModel) bool {
	return m.SenderID == o.SenderID &&
		m.Role == o.Role &&
		m.Content == o.Content &&
		m.SentAt == o.SentAt
}

func (m *MessageModel) toDomain() model.ChatMessage {
	return model.ChatMessage{
		ID:        m.Seq,
		Sender:    m.Sender,
		SenderID:  m.SenderID,
		Role:      model.Role(m.Role),
		Content:   m.Content,
		Timestamp: m.SentAt,
	}
}
