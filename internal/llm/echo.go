package llm

import (
	"context"
	"strings"
	"time"

	"github.com/reddiedev/tenext-app/internal/model"
)

// EchoClient repeats the outgoing message one word per fragment, then emits
// any configured side-channel fragments. It lets the relay run without
// provider credentials.
type EchoClient struct {
	Delay time.Duration
	// Side is emitted after the reply, one fragment per entry.
	Side []model.StreamFragment
}

// NewEchoClient creates an echo client with a typing delay.
func NewEchoClient() *EchoClient {
	return &EchoClient{Delay: 20 * time.Millisecond}
}

// Name returns the provider name.
func (c *EchoClient) Name() string {
	return string(ProviderEcho)
}

// StreamReply streams back the outgoing message.
func (c *EchoClient) StreamReply(ctx context.Context, p *Prompt, emit EmitFunc) (*Usage, error) {
	start := time.Now()

	prefix := "You said: "
	if p.SpeakingUser != "" {
		prefix = p.SpeakingUser + " said: "
	}

	frags := make([]model.StreamFragment, 0, len(c.Side)+8)
	for _, word := range strings.SplitAfter(prefix+p.Message, " ") {
		frags = append(frags, model.StreamFragment{Content: word})
	}
	frags = append(frags, c.Side...)

	for _, f := range frags {
		if c.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.Delay):
			}
		}
		if err := emit(f); err != nil {
			return nil, err
		}
	}

	return &Usage{
		Model:      "echo",
		Fragments:  len(frags),
		StopReason: "stop",
		Latency:    time.Since(start),
	}, nil
}
