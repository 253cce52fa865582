package llm

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/reddiedev/tenext-app/internal/model"
)

const (
	// DefaultOpenAIModel is used when no model is configured.
	DefaultOpenAIModel = "gpt-4o-mini"

	defaultMaxTokens = 1024
)

// OpenAIClient answers through the chat completions API of OpenAI or any
// compatible server.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates an OpenAI client. baseURL may point at any
// OpenAI-compatible endpoint.
func NewOpenAIClient(apiKey, baseURL, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return string(ProviderOpenAI)
}

// StreamReply streams the completion deltas as primary fragments.
func (c *OpenAIClient) StreamReply(ctx context.Context, p *Prompt, emit EmitFunc) (*Usage, error) {
	start := time.Now()

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  promptMessages(p),
		MaxTokens: defaultMaxTokens,
		User:      p.SessionID,
		Stream:    true,
	})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	usage := &Usage{Model: c.model}
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		if choice.Delta.Content != "" {
			if err := emit(model.StreamFragment{Content: choice.Delta.Content}); err != nil {
				return nil, err
			}
			usage.Fragments++
		}
		if choice.FinishReason != "" {
			usage.StopReason = string(choice.FinishReason)
		}
	}

	usage.Latency = time.Since(start)
	return usage, nil
}

func promptMessages(p *Prompt) []openai.ChatCompletionMessage {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: p.system()},
	}
	if p.SpeakingUser != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: staffNote(p.SpeakingUser),
		})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: p.Message,
	})
}
