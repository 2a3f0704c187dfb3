package llm

import (
	"context"
	"errors"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAICompleter calls OpenAI-compatible chat completion endpoints. Clients
// are cached per endpoint and credential.
type OpenAICompleter struct {
	mu      sync.Mutex
	clients map[clientKey]*openai.Client
}

type clientKey struct {
	baseURL string
	apiKey  string
}

func NewOpenAICompleter() *OpenAICompleter {
	return &OpenAICompleter{clients: make(map[clientKey]*openai.Client)}
}

func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (string, error) {
	client := c.client(req.BaseURL, req.APIKey)

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: toParams(req.Messages),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAICompleter) client(baseURL, apiKey string) *openai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := clientKey{baseURL: baseURL, apiKey: apiKey}
	if cl, ok := c.clients[key]; ok {
		return cl
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Failover across credentials replaces SDK-level retries.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	cl := openai.NewClient(opts...)
	c.clients[key] = &cl
	return &cl
}

func toParams(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
