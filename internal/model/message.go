// Package model defines data structures shared by the chat platform.
package model

import "time"

// Role identifies who produced a chat message.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleStaff     Role = "csr"
	RoleAssistant Role = "assistant"

	// Auxiliary roles for side-channel producers.
	RoleRate     Role = "rate"
	RoleSuggest  Role = "suggest"
	RoleSolution Role = "solution"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleStaff, RoleAssistant, RoleRate, RoleSuggest, RoleSolution:
		return true
	}
	return false
}

// SourceRole maps a stream source discriminator to the role of its producer.
func SourceRole(source string) Role {
	switch source {
	case PrimarySource:
		return RoleAssistant
	case "rate":
		return RoleRate
	case "suggest":
		return RoleSuggest
	case "solution":
		return RoleSolution
	default:
		return Role(source)
	}
}

// ChatMessage is a finalized, immutable unit of conversation.
type ChatMessage struct {
	ID            int    `json:"id"`
	Sender        string `json:"sender"`
	SenderID      string `json:"sender_id,omitempty"`
	Role          Role   `json:"role"`
	Content       string `json:"content"`
	Timestamp     string `json:"timestamp"`
	IsCurrentUser bool   `json:"is_current_user"`
}

// ViewedBy returns a copy of m with IsCurrentUser computed for userID.
func (m ChatMessage) ViewedBy(userID string) ChatMessage {
	m.IsCurrentUser = userID != "" && m.SenderID == userID
	return m
}

// Timestamp formats t the way ChatMessage timestamps are stored.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// SendMessageRequest is the request to send a new message to a thread.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessageResponse is returned when a message is recorded without streaming.
type SendMessageResponse struct {
	Message ChatMessage `json:"message"`
}

// ListMessagesResponse is the response for listing thread messages.
type ListMessagesResponse struct {
	Messages     []ChatMessage `json:"messages"`
	StreamActive bool          `json:"stream_active"`
}
