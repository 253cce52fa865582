// Package llm provides reply sources for the development agent relay.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/reddiedev/tenext-app/internal/model"
)

// SupportPrompt frames every relayed conversation unless an administrator
// has set another system prompt.
const SupportPrompt = "You are a friendly customer support agent. Answer briefly and ask for details when a request is unclear."

// Prompt is one outgoing message the relay asks a provider to answer.
type Prompt struct {
	SessionID    string
	Message      string
	SpeakingUser string
	// SystemPrompt replaces SupportPrompt when set.
	SystemPrompt string
}

func (p *Prompt) system() string {
	if p.SystemPrompt != "" {
		return p.SystemPrompt
	}
	return SupportPrompt
}

func staffNote(speakingUser string) string {
	return "The next message is written by support staff member " + speakingUser + "."
}

// systemText is the system prompt with the staff note appended, for
// providers that take a single system text.
func systemText(p *Prompt) string {
	if p.SpeakingUser == "" {
		return p.system()
	}
	return p.system() + "\n\n" + staffNote(p.SpeakingUser)
}

// EmitFunc receives reply fragments in order. Returning an error stops the reply.
type EmitFunc func(model.StreamFragment) error

// Usage summarizes a finished reply.
type Usage struct {
	Model      string
	Fragments  int
	StopReason string
	Latency    time.Duration
}

// Client produces a streamed reply.
type Client interface {
	StreamReply(ctx context.Context, p *Prompt, emit EmitFunc) (*Usage, error)
	Name() string
}

// Provider names a Client implementation.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderEcho      Provider = "echo"
)

// Config selects and configures a provider.
type Config struct {
	Provider Provider
	APIKey   string
	BaseURL  string
	Model    string
}

// NewClient creates the client for cfg.Provider; the echo provider is the default.
func NewClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case ProviderEcho, "":
		return NewEchoClient(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
