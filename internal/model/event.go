package model

import (
	"time"
)

// EventType represents the type of thread event.
type EventType string

const (
	EventTypeMessage       EventType = "message.created"
	EventTypeSessionFailed EventType = "session.failed"
)

// ThreadEvent is published on the event log whenever a thread changes.
type ThreadEvent struct {
	ID        string       `json:"id"`
	ThreadID  string       `json:"thread_id"`
	Type      EventType    `json:"type"`
	Message   *ChatMessage `json:"message,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	Sequence  uint64       `json:"sequence,omitempty"`
}

// DeltaEvent carries a streamed increment for one source.
type DeltaEvent struct {
	Source  string `json:"source,omitempty"`
	Delta   string `json:"delta"`
	Content string `json:"content"`
}

// LoadingEvent reports the loading flag of the thread view.
type LoadingEvent struct {
	Loading bool `json:"loading"`
}

// AnnotationEvent carries a finalized side-channel bucket.
type AnnotationEvent struct {
	Source  string `json:"source"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
