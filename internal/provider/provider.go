package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/planforge-io/planforge/pkg/schema"
)

var (
	// ErrUnknownProvider is returned for provider names other than
	// "hosted" and "local".
	ErrUnknownProvider = errors.New("provider: unknown provider")
	// ErrNoLocalModels is returned when the local backend has no models
	// installed and none is configured.
	ErrNoLocalModels = errors.New("provider: no local models available")
	// ErrGenerationExhausted is returned after all generation attempts fail.
	ErrGenerationExhausted = errors.New("provider: generation failed")
	// ErrInvalidConfig is returned for out-of-range configuration values.
	ErrInvalidConfig = errors.New("provider: invalid configuration")
)

// Provider is the abstraction over test-plan generation backends.
type Provider interface {
	// Name identifies the backend in plan metadata.
	Name() string
	// TestConnection reports whether the backend is reachable. Transport
	// failures are reported as false, never as an error.
	TestConnection(ctx context.Context) bool
	// GenerateTestPlan drives one generation: prompt construction, model
	// call, response normalization, and bounded retries.
	GenerateTestPlan(ctx context.Context, issue *schema.Issue, templateText string) (*schema.ComprehensiveTestPlan, error)
}

// Recognized provider names.
const (
	ProviderHosted = "hosted"
	ProviderLocal  = "local"
)

// Config is the provider configuration record.
type Config struct {
	Provider    string  `json:"provider"` // "hosted" or "local"
	APIKey      string  `json:"api_key,omitempty"`
	Model       string  `json:"model,omitempty"`
	BaseURL     string  `json:"base_url,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Validate checks the configuration record for unknown or out-of-range values.
func (c Config) Validate() error {
	if c.Provider != ProviderHosted && c.Provider != ProviderLocal {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("%w: temperature %v out of range [0, 1]", ErrInvalidConfig, c.Temperature)
	}
	return nil
}

// New constructs the provider variant selected by cfg.
func New(cfg Config) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Provider == ProviderLocal {
		var opts []LocalOption
		if cfg.BaseURL != "" {
			opts = append(opts, WithLocalBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, WithLocalModel(cfg.Model))
		}
		return NewLocal(opts...), nil
	}

	var opts []HostedOption
	if cfg.BaseURL != "" {
		opts = append(opts, WithHostedBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, WithHostedModel(cfg.Model))
	}
	if cfg.Temperature > 0 {
		opts = append(opts, WithTemperature(cfg.Temperature))
	}
	return NewHosted(cfg.APIKey, opts...), nil
}
