package model

import "time"

// Setting is a runtime setting changed through the admin API.
type Setting struct {
	Key       string
	Value     string
	UpdatedBy string
	UpdatedAt time.Time
}

// SystemPrompt is the instruction text the agent relay sends to its model.
type SystemPrompt struct {
	Text      string     `json:"system_prompt"`
	Default   bool       `json:"is_default"`
	UpdatedBy string     `json:"updated_by,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// UpdateSystemPromptRequest changes the system prompt. Blank text restores
// the default.
type UpdateSystemPromptRequest struct {
	SystemPrompt string `json:"system_prompt"`
}

// ListUsersResponse is the response for listing users.
type ListUsersResponse struct {
	Users []User `json:"users"`
}
