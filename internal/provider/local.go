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

// LocalProvider wraps an Ollama-style local completion API. The backend is
// unauthenticated, slow, and does not guarantee well-formed JSON output, so
// its responses go through the lenient normalization path.
type LocalProvider struct {
	client  *http.Client
	baseURL string
	model   string
	backoff time.Duration
}

// LocalOption configures a LocalProvider.
type LocalOption func(*LocalProvider)

// WithLocalBaseURL sets a custom API base URL.
func WithLocalBaseURL(url string) LocalOption {
	return func(p *LocalProvider) { p.baseURL = url }
}

// WithLocalModel pins a model instead of auto-selecting the first installed one.
func WithLocalModel(model string) LocalOption {
	return func(p *LocalProvider) { p.model = model }
}

// WithLocalHTTPClient sets a custom HTTP client.
func WithLocalHTTPClient(c *http.Client) LocalOption {
	return func(p *LocalProvider) { p.client = c }
}

// NewLocal creates a local completion provider.
func NewLocal(opts ...LocalOption) *LocalProvider {
	p := &LocalProvider{
		// Local inference is slow; allow it two minutes per call.
		client:  &http.Client{Timeout: 120 * time.Second},
		baseURL: "http://localhost:11434",
		backoff: time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *LocalProvider) Name() string { return ProviderLocal }

// TestConnection succeeds iff the model-listing endpoint answers 200.
func (p *LocalProvider) TestConnection(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListModels returns the names of models installed on the local backend.
func (p *LocalProvider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("local: create request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("local: list models: status %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("local: parse models: %w", err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// GenerateTestPlan issues one non-streaming completion with the system and
// user prompts concatenated, then normalizes whatever text comes back.
// Malformed output degrades to a synthetic plan instead of failing the
// attempt; only transport and HTTP errors are retried.
func (p *LocalProvider) GenerateTestPlan(ctx context.Context, issue *schema.Issue, templateText string) (*schema.ComprehensiveTestPlan, error) {
	model, err := p.resolveModel(ctx)
	if err != nil {
		return nil, err
	}

	prompt := localSystemPrompt + "\n\n" + BuildUserPrompt(issue, templateText)

	return retryGenerate(ctx, p.backoff, func(ctx context.Context) (*schema.ComprehensiveTestPlan, error) {
		content, err := p.generate(ctx, model, prompt)
		if err != nil {
			return nil, err
		}
		return planFromLooseText(content, issue, p.Name(), model), nil
	})
}

// resolveModel returns the configured model or, when none is set, the first
// model installed on the backend. The result is not cached on the provider:
// each generation resolves independently.
func (p *LocalProvider) resolveModel(ctx context.Context) (string, error) {
	if p.model != "" {
		return p.model, nil
	}
	models, err := p.ListModels(ctx)
	if err != nil {
		return "", err
	}
	if len(models) == 0 {
		return "", ErrNoLocalModels
	}
	return models[0], nil
}

func (p *LocalProvider) generate(ctx context.Context, model, prompt string) (string, error) {
	body := generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		Format: "json",
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("local: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("local: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("local: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("local: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("local: api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var gr generateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return "", fmt.Errorf("local: unmarshal response: %w", err)
	}
	return gr.Response, nil
}

// --- Ollama wire format types ---

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}
