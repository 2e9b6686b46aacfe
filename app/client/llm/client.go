package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Kaggle-runa/book-agent/app/config"

	"github.com/sashabaranov/go-openai"
)

// ErrGeneration marks transport or upstream failures of the generation
// service. Callers match it with errors.Is.
var ErrGeneration = errors.New("generation failed")

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged turn sent to the generation service.
type Message struct {
	Role    string
	Content string
}

// Client is the generation service boundary: an ordered list of turns in,
// one generated text turn out.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Options tune a single model endpoint.
type Options struct {
	// Force a JSON object response (used by the planner model)
	JSONObject bool
	// Completion token cap, 0 means provider default
	MaxTokens int
	// Sampling temperature
	Temperature float32
}

type OpenAIClient struct {
	client *openai.Client
	model  string
	opts   Options
}

func NewOpenAI(cfg config.ModelConfig, opts Options) *OpenAIClient {
	clientConfig := openai.DefaultConfig(cfg.Token)

	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{
		Timeout: 30 * time.Second,
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		opts:   opts,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:               c.model,
		Messages:            toOpenAIMessages(messages),
		Temperature:         c.opts.Temperature,
		MaxCompletionTokens: c.opts.MaxTokens,
	}

	if c.opts.JSONObject {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: create chat completion: %w", ErrGeneration, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no chat completion found", ErrGeneration)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))

	for _, m := range messages {
		role := m.Role
		switch role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		default:
			role = openai.ChatMessageRoleUser
		}

		result = append(result, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	return result
}
