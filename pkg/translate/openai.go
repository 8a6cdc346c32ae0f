package translate

import (
	"context"
	"errors"
	"strings"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openAIClient binds one API key to a chat-completions backend.
type openAIClient struct {
	client osdk.Client
}

// newOpenAIClient is the default ClientFactory. SDK-level retries are
// disabled; the Translator owns the retry and rotation policy.
func newOpenAIClient(apiKey string) Client {
	return &openAIClient{
		client: osdk.NewClient(
			option.WithAPIKey(strings.TrimSpace(apiKey)),
			option.WithMaxRetries(0),
		),
	}
}

func (c *openAIClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, osdk.ChatCompletionNewParams{
		Model: osdk.ChatModel(model),
		Messages: []osdk.ChatCompletionMessageParamUnion{
			osdk.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
