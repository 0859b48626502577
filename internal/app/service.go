// Package app wires the tracker client, provider configuration, template
// store, and history store into the test-plan generation pipeline.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planforge-io/planforge/internal/jira"
	"github.com/planforge-io/planforge/internal/notify"
	"github.com/planforge-io/planforge/internal/provider"
	"github.com/planforge-io/planforge/internal/recent"
	"github.com/planforge-io/planforge/internal/store"
	"github.com/planforge-io/planforge/internal/template"
	"github.com/planforge-io/planforge/pkg/schema"
)

var (
	// ErrJiraNotConfigured is returned when no tracker connection exists.
	ErrJiraNotConfigured = errors.New("app: jira not configured")
	// ErrLLMNotConfigured is returned when no provider settings exist.
	ErrLLMNotConfigured = errors.New("app: llm not configured")
)

// Settings-table keys.
const (
	settingJiraConfig = "jira_config"
	settingLLMConfig  = "llm_config"
)

// recentSize is how many recently fetched tickets are remembered.
const recentSize = 5

// historyListLimit caps the history listing.
const historyListLimit = 50

// Service is the generation orchestrator. The configured tracker client and
// provider settings are process-wide, read-mostly state replaced wholesale on
// reconfiguration; requests already in flight keep the client they started
// with.
type Service struct {
	store    store.Store
	recent   *recent.Ring
	notifier notify.Notifier // nil disables notifications
	logger   *slog.Logger

	mu   sync.RWMutex
	jira *jira.Client
	llm  *provider.Config

	// newProvider builds the provider for a generation; replaceable in tests.
	newProvider func(provider.Config) (provider.Provider, error)
}

// New creates a Service. notifier may be nil.
func New(st store.Store, notifier notify.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       st,
		recent:      recent.New(recentSize),
		notifier:    notifier,
		logger:      logger,
		newProvider: provider.New,
	}
}

// LoadSettings rehydrates persisted tracker and provider settings, typically
// at daemon start. Absent settings are not an error.
func (s *Service) LoadSettings() error {
	if raw, err := s.store.Setting(settingJiraConfig); err == nil {
		var cfg jira.Config
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return fmt.Errorf("app: parse persisted jira config: %w", err)
		}
		s.setJira(jira.NewClient(cfg))
		s.logger.Info("jira client restored", "base_url", cfg.BaseURL)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if raw, err := s.store.Setting(settingLLMConfig); err == nil {
		var cfg provider.Config
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return fmt.Errorf("app: parse persisted llm config: %w", err)
		}
		s.setLLM(&cfg)
		s.logger.Info("llm config restored", "provider", cfg.Provider, "model", cfg.Model)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	return nil
}

// --- tracker configuration ---

// SetJiraClient installs a tracker client without persisting or testing it.
// Used for config-file bootstrap.
func (s *Service) SetJiraClient(cfg jira.Config) {
	s.setJira(jira.NewClient(cfg))
}

// ConfigureJira validates the connection by fetching the current user, then
// persists the settings and swaps the active client.
func (s *Service) ConfigureJira(ctx context.Context, cfg jira.Config) (*jira.UserInfo, error) {
	client := jira.NewClient(cfg)
	user, err := client.TestConnection(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: jira connection test: %w", err)
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: marshal jira config: %w", err)
	}
	if err := s.store.SetSetting(settingJiraConfig, string(raw)); err != nil {
		return nil, err
	}

	s.setJira(client)
	s.logger.Info("jira configured", "base_url", cfg.BaseURL, "user", user.DisplayName)
	return user, nil
}

// JiraConfigured reports whether a tracker client is installed, without
// probing the connection.
func (s *Service) JiraConfigured() bool {
	return s.jiraClient() != nil
}

// JiraStatus describes the current tracker connection.
type JiraStatus struct {
	Configured bool   `json:"configured"`
	Connected  bool   `json:"connected"`
	User       string `json:"user,omitempty"`
	BaseURL    string `json:"base_url,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CheckJira reports whether a tracker is configured and reachable. Transport
// failures are reported in the status, never returned.
func (s *Service) CheckJira(ctx context.Context) JiraStatus {
	client := s.jiraClient()
	if client == nil {
		return JiraStatus{Configured: false}
	}

	user, err := client.TestConnection(ctx)
	if err != nil {
		return JiraStatus{Configured: true, Connected: false, BaseURL: client.BaseURL(), Error: err.Error()}
	}
	return JiraStatus{Configured: true, Connected: true, User: user.DisplayName, BaseURL: client.BaseURL()}
}

// --- provider configuration ---

// ConfigureLLM validates and persists provider settings.
func (s *Service) ConfigureLLM(cfg provider.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("app: marshal llm config: %w", err)
	}
	if err := s.store.SetSetting(settingLLMConfig, string(raw)); err != nil {
		return err
	}

	s.setLLM(&cfg)
	s.logger.Info("llm configured", "provider", cfg.Provider, "model", cfg.Model)
	return nil
}

// LLMStatus describes the current provider settings without secrets.
type LLMStatus struct {
	Configured  bool    `json:"configured"`
	Provider    string  `json:"provider,omitempty"`
	Model       string  `json:"model,omitempty"`
	BaseURL     string  `json:"base_url,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// CheckLLM reports the configured provider settings.
func (s *Service) CheckLLM() LLMStatus {
	cfg := s.llmConfig()
	if cfg == nil {
		return LLMStatus{Configured: false}
	}
	return LLMStatus{
		Configured:  true,
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
	}
}

// TestLLM constructs the provider described by cfg and probes it.
func (s *Service) TestLLM(ctx context.Context, cfg provider.Config) (bool, error) {
	p, err := s.newProvider(cfg)
	if err != nil {
		return false, err
	}
	return p.TestConnection(ctx), nil
}

// LocalModels lists models installed on a local backend.
func (s *Service) LocalModels(ctx context.Context, baseURL string) ([]string, error) {
	var opts []provider.LocalOption
	if baseURL != "" {
		opts = append(opts, provider.WithLocalBaseURL(baseURL))
	}
	return provider.NewLocal(opts...).ListModels(ctx)
}

// --- tickets ---

// FetchIssue retrieves a ticket and records it in the recent ring.
func (s *Service) FetchIssue(ctx context.Context, key string) (*schema.Issue, error) {
	client := s.jiraClient()
	if client == nil {
		return nil, ErrJiraNotConfigured
	}

	issue, err := client.GetIssue(ctx, key)
	if err != nil {
		return nil, err
	}

	s.recent.Touch(issue.Key, issue.Summary)
	return issue, nil
}

// RecentTickets returns recently fetched tickets, newest first.
func (s *Service) RecentTickets() []recent.Entry {
	return s.recent.List()
}

// --- templates ---

// UploadTemplate extracts text from an uploaded template file and stores it.
func (s *Service) UploadTemplate(filename string, content []byte) (*store.Template, error) {
	if len(content) > template.MaxUploadSize {
		return nil, fmt.Errorf("%w: %d bytes", template.ErrTooLarge, len(content))
	}

	text, err := template.Extract(filename, content)
	if err != nil {
		return nil, err
	}

	t := &store.Template{
		ID:         uuid.NewString(),
		Name:       filename,
		Content:    text,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.store.SaveTemplate(t); err != nil {
		return nil, err
	}

	s.logger.Info("template uploaded", "id", t.ID, "name", t.Name, "chars", len(t.Content))
	return t, nil
}

// Templates lists stored templates, newest first.
func (s *Service) Templates() ([]*store.Template, error) {
	return s.store.ListTemplates()
}

// Template retrieves one template.
func (s *Service) Template(id string) (*store.Template, error) {
	return s.store.Template(id)
}

// DeleteTemplate removes a template.
func (s *Service) DeleteTemplate(id string) error {
	return s.store.DeleteTemplate(id)
}

// --- generation ---

// GenerateRequest asks for a plan for one ticket.
type GenerateRequest struct {
	TicketID   string `json:"ticket_id"`
	TemplateID string `json:"template_id,omitempty"`
	Provider   string `json:"provider,omitempty"` // overrides the configured provider
}

// GenerateResult carries the produced plan and its history record ID.
type GenerateResult struct {
	Plan      *schema.ComprehensiveTestPlan `json:"test_plan"`
	HistoryID string                        `json:"history_id"`
}

// Generate runs the full pipeline: ticket fetch, template lookup, provider
// selection, generation, persistence, notification.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	client := s.jiraClient()
	if client == nil {
		return nil, ErrJiraNotConfigured
	}

	issue, err := client.GetIssue(ctx, req.TicketID)
	if err != nil {
		return nil, fmt.Errorf("app: fetch ticket %s: %w", req.TicketID, err)
	}

	templateText := ""
	if req.TemplateID != "" {
		t, err := s.store.Template(req.TemplateID)
		switch {
		case err == nil:
			templateText = t.Content
		case errors.Is(err, store.ErrNotFound):
			s.logger.Warn("template not found, generating without it", "template_id", req.TemplateID)
		default:
			return nil, err
		}
	}

	cfg := s.llmConfig()
	if cfg == nil {
		return nil, ErrLLMNotConfigured
	}
	if req.Provider != "" {
		cfg.Provider = req.Provider
	}

	p, err := s.newProvider(*cfg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	plan, err := p.GenerateTestPlan(ctx, issue, templateText)
	if err != nil {
		return nil, err
	}
	s.logger.Info("test plan generated",
		"ticket", issue.Key,
		"provider", p.Name(),
		"tests", len(plan.TestCases),
		"elapsed", time.Since(start).Round(time.Millisecond))

	planJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("app: marshal plan: %w", err)
	}

	entry := &store.HistoryEntry{
		ID:            uuid.NewString(),
		TicketID:      issue.Key,
		TicketSummary: issue.Summary,
		TestPlan:      string(planJSON),
		GeneratedAt:   plan.GeneratedAt,
		Provider:      p.Name(),
	}
	if err := s.store.SaveHistory(entry); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.PlanGenerated(ctx, issue.Key, plan.Title, len(plan.TestCases), p.Name())
	}

	return &GenerateResult{Plan: plan, HistoryID: entry.ID}, nil
}

// History lists recent generation records, without plan bodies.
func (s *Service) History() ([]*store.HistoryEntry, error) {
	return s.store.ListHistory(historyListLimit)
}

// HistoryItem retrieves one generation record with its decoded plan.
func (s *Service) HistoryItem(id string) (*store.HistoryEntry, *schema.ComprehensiveTestPlan, error) {
	entry, err := s.store.History(id)
	if err != nil {
		return nil, nil, err
	}
	plan, err := schema.ParsePlan([]byte(entry.TestPlan))
	if err != nil {
		return nil, nil, err
	}
	return entry, plan, nil
}

// Export renders a stored plan in the requested format.
func (s *Service) Export(id, format string) (content, filename string, err error) {
	_, plan, err := s.HistoryItem(id)
	if err != nil {
		return "", "", err
	}
	return schema.Export(plan, format)
}

// --- shared-state accessors ---

func (s *Service) jiraClient() *jira.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jira
}

func (s *Service) setJira(c *jira.Client) {
	s.mu.Lock()
	s.jira = c
	s.mu.Unlock()
}

// llmConfig returns a copy so callers can apply request-level overrides
// without touching shared state.
func (s *Service) llmConfig() *provider.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.llm == nil {
		return nil
	}
	cfg := *s.llm
	return &cfg
}

func (s *Service) setLLM(cfg *provider.Config) {
	s.mu.Lock()
	s.llm = cfg
	s.mu.Unlock()
}
