package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/planforge-io/planforge/pkg/schema"
)

// maxPlanTokens is the response ceiling for a full 8-15 case plan.
const maxPlanTokens = 8000

// HostedProvider wraps an OpenAI-compatible hosted chat completion API
// (Groq by default) running in structured JSON-object output mode.
type HostedProvider struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	backoff     time.Duration
}

// HostedOption configures a HostedProvider.
type HostedOption func(*HostedProvider)

// WithHostedBaseURL sets a custom API base URL.
func WithHostedBaseURL(url string) HostedOption {
	return func(p *HostedProvider) { p.baseURL = url }
}

// WithHostedModel sets the model.
func WithHostedModel(model string) HostedOption {
	return func(p *HostedProvider) { p.model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) HostedOption {
	return func(p *HostedProvider) { p.temperature = t }
}

// WithHostedHTTPClient sets a custom HTTP client.
func WithHostedHTTPClient(c *http.Client) HostedOption {
	return func(p *HostedProvider) { p.client = c }
}

// NewHosted creates a hosted chat provider.
func NewHosted(apiKey string, opts ...HostedOption) *HostedProvider {
	p := &HostedProvider{
		// No explicit timeout: the hosted API answers within the
		// transport's own limits.
		client:      &http.Client{},
		baseURL:     "https://api.groq.com/openai/v1",
		apiKey:      apiKey,
		model:       "llama-3.3-70b-versatile",
		temperature: 0.7,
		backoff:     time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *HostedProvider) Name() string { return ProviderHosted }

// TestConnection issues a minimal completion request and reports success.
func (p *HostedProvider) TestConnection(ctx context.Context) bool {
	_, err := p.complete(ctx, []chatMessage{{Role: "user", Content: "Hi"}}, 5, false)
	return err == nil
}

// GenerateTestPlan runs one chat completion in JSON mode and normalizes the
// response, retrying transport and decode failures with backoff.
func (p *HostedProvider) GenerateTestPlan(ctx context.Context, issue *schema.Issue, templateText string) (*schema.ComprehensiveTestPlan, error) {
	messages := []chatMessage{
		{Role: "system", Content: hostedSystemPrompt},
		{Role: "user", Content: BuildUserPrompt(issue, templateText)},
	}

	return retryGenerate(ctx, p.backoff, func(ctx context.Context) (*schema.ComprehensiveTestPlan, error) {
		content, err := p.complete(ctx, messages, maxPlanTokens, true)
		if err != nil {
			return nil, err
		}
		return planFromJSON([]byte(content), issue, p.Name(), p.model)
	})
}

func (p *HostedProvider) complete(ctx context.Context, messages []chatMessage, maxTokens int, jsonMode bool) (string, error) {
	body := chatRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if p.temperature > 0 {
		body.Temperature = &p.temperature
	}
	if jsonMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("hosted: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("hosted: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("hosted: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("hosted: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("hosted: api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var cr chatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return "", fmt.Errorf("hosted: unmarshal response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("hosted: no choices in response")
	}
	return cr.Choices[0].Message.Content, nil
}

// --- OpenAI-compatible wire format types ---

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}
