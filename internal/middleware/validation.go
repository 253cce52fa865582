package middleware

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxContentLength caps a single chat message in bytes.
	MaxContentLength = 16 << 10
	// MaxTitleLength caps a thread title in bytes.
	MaxTitleLength = 256
	// MaxSystemPromptLength caps the relay system prompt in bytes.
	MaxSystemPromptLength = 8 << 10
)

// FieldError reports which request field was rejected.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// ValidateMessageContent checks the text of an outgoing message.
func ValidateMessageContent(content string) error {
	return checkText("content", content, MaxContentLength, true)
}

// ValidateTitle checks a thread title. Empty titles are allowed and replaced
// by a default.
func ValidateTitle(title string) error {
	return checkText("title", title, MaxTitleLength, false)
}

// ValidateSystemPrompt checks a new system prompt. Blank text is allowed and
// restores the default.
func ValidateSystemPrompt(prompt string) error {
	return checkText("system_prompt", prompt, MaxSystemPromptLength, false)
}

// ValidateThreadID checks that id is a UUID.
func ValidateThreadID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &FieldError{Field: "thread id", Reason: "must be a UUID"}
	}
	return nil
}

func checkText(field, s string, max int, required bool) error {
	switch {
	case required && strings.TrimSpace(s) == "":
		return &FieldError{Field: field, Reason: "cannot be empty"}
	case len(s) > max:
		return &FieldError{Field: field, Reason: fmt.Sprintf("exceeds %d bytes", max)}
	case !utf8.ValidString(s):
		return &FieldError{Field: field, Reason: "must be valid UTF-8"}
	}
	return nil
}
