package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ignite/newsletter-ai/internal/config"
	"github.com/ignite/newsletter-ai/internal/domain"
	"github.com/ignite/newsletter-ai/internal/pkg/httpretry"
	"github.com/ignite/newsletter-ai/internal/pkg/logger"
)

const anthropicVersion = "2023-06-01"

// Anthropic generates text through the Anthropic Messages HTTP API.
type Anthropic struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient httpretry.HTTPDoer
}

// NewAnthropic returns a Messages API generator from config. Failed calls
// are not retried; the user re-triggers generation.
func NewAnthropic(cfg config.GenerationConfig) *Anthropic {
	return &Anthropic{
		baseURL: strings.TrimRight(cfg.Endpoint(), "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.ModelID(),
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, 0),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (a *Anthropic) SetHTTPClient(client httpretry.HTTPDoer) {
	a.httpClient = client
}

// Generate implements workflow.Generator.
func (a *Anthropic) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	body := newMessagesRequest(req)
	body.Model = a.model

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("Anthropic API request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Anthropic API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var out messagesResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	logger.Debug("generation: anthropic",
		"model", a.model, "in_tokens", out.Usage.InputTokens,
		"out_tokens", out.Usage.OutputTokens, "stop", out.StopReason)
	return out.text()
}
