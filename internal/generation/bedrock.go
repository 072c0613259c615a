package generation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/ignite/newsletter-ai/internal/domain"
	"github.com/ignite/newsletter-ai/internal/pkg/logger"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// ModelInvoker is the subset of the Bedrock runtime client used here.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Bedrock generates text with an Anthropic model hosted on AWS Bedrock.
type Bedrock struct {
	client  ModelInvoker
	modelID string
}

// NewBedrock returns a Bedrock generator. Build the client with
// bedrockruntime.NewFromConfig.
func NewBedrock(client ModelInvoker, modelID string) *Bedrock {
	return &Bedrock{client: client, modelID: modelID}
}

// Generate implements workflow.Generator.
func (b *Bedrock) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	body := newMessagesRequest(req)
	body.AnthropicVersion = bedrockAnthropicVersion

	requestBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return "", fmt.Errorf("Bedrock InvokeModel %s: %w", b.modelID, err)
	}

	var resp messagesResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	logger.Debug("generation: bedrock",
		"model", b.modelID, "in_tokens", resp.Usage.InputTokens,
		"out_tokens", resp.Usage.OutputTokens, "stop", resp.StopReason)
	return resp.text()
}
