// Package generation turns a topic plus reference context into newsletter
// text using an Anthropic model, either through AWS Bedrock or the Messages
// HTTP API.
package generation

import (
	"errors"
	"strings"

	"github.com/ignite/newsletter-ai/internal/domain"
)

// ErrNoText is returned when the model answered without any text block.
var ErrNoText = errors.New("model returned no text")

// Message is one turn in a Messages request.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a typed piece of message content.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// messagesRequest is shared by both providers. Bedrock wants
// anthropic_version in the body; the HTTP API wants model instead.
type messagesRequest struct {
	AnthropicVersion string    `json:"anthropic_version,omitempty"`
	Model            string    `json:"model,omitempty"`
	MaxTokens        int       `json:"max_tokens"`
	System           string    `json:"system,omitempty"`
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature"`
}

type messagesResponse struct {
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func newMessagesRequest(req domain.GenerationRequest) messagesRequest {
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = domain.DefaultMaxOutputTokens
	}
	return messagesRequest{
		MaxTokens: maxTokens,
		System:    req.ReferenceContext,
		Messages: []Message{{
			Role:    "user",
			Content: []ContentBlock{{Type: "text", Text: req.Prompt}},
		}},
		Temperature: req.Temperature,
	}
}

// text joins the response's text blocks.
func (r messagesResponse) text() (string, error) {
	var b strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	if b.Len() == 0 {
		return "", ErrNoText
	}
	return b.String(), nil
}
