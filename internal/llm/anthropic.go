package llm

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/reddiedev/tenext-app/internal/model"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicClient answers through the Anthropic messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates an Anthropic client. baseURL is optional.
func NewAnthropicClient(apiKey, baseURL, model string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultAnthropicModel
	}

	return &AnthropicClient{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return string(ProviderAnthropic)
}

// StreamReply streams the text deltas as primary fragments.
func (c *AnthropicClient) StreamReply(ctx context.Context, p *Prompt, emit EmitFunc) (*Usage, error) {
	start := time.Now()

	stream := c.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(c.model),
		MaxTokens: anthropic.F(int64(defaultMaxTokens)),
		System: anthropic.F([]anthropic.TextBlockParam{{
			Type: anthropic.F(anthropic.TextBlockParamTypeText),
			Text: anthropic.F(systemText(p)),
		}}),
		Messages: anthropic.F([]anthropic.MessageParam{{
			Role: anthropic.F(anthropic.MessageParamRoleUser),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(p.Message),
				},
			}),
		}}),
	})
	defer stream.Close()

	usage := &Usage{Model: c.model}
	for stream.Next() {
		switch event := stream.Current().AsUnion().(type) {
		case anthropic.ContentBlockDeltaEvent:
			delta, ok := event.Delta.AsUnion().(anthropic.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			if err := emit(model.StreamFragment{Content: delta.Text}); err != nil {
				return nil, err
			}
			usage.Fragments++
		case anthropic.MessageDeltaEvent:
			usage.StopReason = string(event.Delta.StopReason)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	usage.Latency = time.Since(start)
	return usage, nil
}
