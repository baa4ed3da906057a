package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// MessagesClient captures the subset of the Anthropic SDK used by
// AnthropicClient, so tests can substitute a fake without a real API key.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicClient implements Client on top of the Anthropic Messages API.
type AnthropicClient struct {
	messages  MessagesClient
	model     string
	maxTokens int64
}

// NewAnthropicClient builds an AnthropicClient that uses the given model
// identifier for every Complete call; ROMA requests carry no model
// selection of their own (that is host/task-routing policy, out of scope
// for the core).
func NewAnthropicClient(apiKey, model string, maxTokens int64) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	if model == "" {
		return nil, errors.New("anthropic model identifier is required")
	}
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{messages: &client.Messages, model: model, maxTokens: maxTokens}, nil
}

// Complete sends systemPrompt/userPrompt as a single-turn Messages.New call
// and returns the first text block's content as raw JSON. When schema is
// non-nil the system prompt gains a "JSON only" instruction; the schema
// itself is not sent to the model. AnthropicClient does not rely
// on provider-native structured output, so the caller's Provider layer
// still validates the result.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string, schema *jsonschema.Schema) (json.RawMessage, error) {
	system := systemPrompt
	if schema != nil {
		system += "\n\nRespond with JSON only, matching the required schema."
	}
	resp, err := c.messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []sdk.TextBlockParam{{Text: system}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}
	for _, block := range resp.Content {
		if text := block.Text; text != "" {
			return json.RawMessage(text), nil
		}
	}
	return nil, errors.New("anthropic response contained no text block")
}
