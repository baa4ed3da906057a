package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ChatClient captures the subset of the official OpenAI SDK used by
// OpenAIClient.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIClient implements Client on top of the Chat Completions API.
type OpenAIClient struct {
	chat  ChatClient
	model string
}

// NewOpenAIClient builds an OpenAIClient for the given model identifier.
func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if model == "" {
		return nil, errors.New("openai model identifier is required")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{chat: client.Chat.Completions, model: model}, nil
}

// Complete issues a single-turn chat completion and returns the assistant
// message content as raw JSON.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string, schema *jsonschema.Schema) (json.RawMessage, error) {
	system := systemPrompt
	if schema != nil {
		system += "\n\nRespond with JSON only, matching the required schema."
	}
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai response contained no choices")
	}
	return json.RawMessage(resp.Choices[0].Message.Content), nil
}
