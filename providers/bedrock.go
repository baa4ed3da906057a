package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// InvokeModelClient captures the subset of the Bedrock runtime SDK used by
// BedrockClient.
type InvokeModelClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient implements Client on top of the Bedrock Runtime InvokeModel
// API, grounded on the teacher's features/model/bedrock adapter. It speaks
// the Anthropic-on-Bedrock request/response envelope, the most common
// Bedrock model family in the teacher's own bedrock client.
type BedrockClient struct {
	runtime   InvokeModelClient
	modelID   string
	maxTokens int
}

type bedrockAnthropicRequest struct {
	AnthropicVersion string                 `json:"anthropic_version"`
	MaxTokens        int                    `json:"max_tokens"`
	System           string                 `json:"system,omitempty"`
	Messages         []bedrockAnthropicTurn `json:"messages"`
}

type bedrockAnthropicTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockAnthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// NewBedrockClient builds a BedrockClient for modelID (e.g. an Anthropic
// Claude model ARN/ID available in the configured AWS region).
func NewBedrockClient(runtime InvokeModelClient, modelID string, maxTokens int) (*BedrockClient, error) {
	if runtime == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	if modelID == "" {
		return nil, errors.New("bedrock model id is required")
	}
	return &BedrockClient{runtime: runtime, modelID: modelID, maxTokens: maxTokens}, nil
}

// Complete invokes the configured Bedrock model and returns the first
// content block's text as raw JSON.
func (c *BedrockClient) Complete(ctx context.Context, systemPrompt, userPrompt string, schema *jsonschema.Schema) (json.RawMessage, error) {
	system := systemPrompt
	if schema != nil {
		system += "\n\nRespond with JSON only, matching the required schema."
	}
	body, err := json.Marshal(bedrockAnthropicRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        c.maxTokens,
		System:           system,
		Messages:         []bedrockAnthropicTurn{{Role: "user", Content: userPrompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal bedrock request: %w", err)
	}

	out, err := c.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("bedrock invoke model (%s): %w", apiErr.ErrorCode(), err)
		}
		return nil, fmt.Errorf("bedrock invoke model: %w", err)
	}

	var parsed bedrockAnthropicResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal bedrock response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return nil, errors.New("bedrock response contained no content blocks")
	}
	return json.RawMessage(parsed.Content[0].Text), nil
}
