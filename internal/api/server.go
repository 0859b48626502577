// Package api exposes the planforge REST surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/planforge-io/planforge/internal/app"
	"github.com/planforge-io/planforge/internal/jira"
	"github.com/planforge-io/planforge/internal/provider"
	"github.com/planforge-io/planforge/internal/recent"
	"github.com/planforge-io/planforge/internal/store"
	"github.com/planforge-io/planforge/internal/template"
	"github.com/planforge-io/planforge/pkg/schema"
)

// templatePreviewLen bounds the content preview returned by template routes.
const templatePreviewLen = 500

// PlanService is the interface the API server needs from the orchestrator.
type PlanService interface {
	ConfigureJira(ctx context.Context, cfg jira.Config) (*jira.UserInfo, error)
	CheckJira(ctx context.Context) app.JiraStatus
	ConfigureLLM(cfg provider.Config) error
	CheckLLM() app.LLMStatus
	TestLLM(ctx context.Context, cfg provider.Config) (bool, error)
	LocalModels(ctx context.Context, baseURL string) ([]string, error)
	FetchIssue(ctx context.Context, key string) (*schema.Issue, error)
	RecentTickets() []recent.Entry
	UploadTemplate(filename string, content []byte) (*store.Template, error)
	Templates() ([]*store.Template, error)
	Template(id string) (*store.Template, error)
	DeleteTemplate(id string) error
	Generate(ctx context.Context, req app.GenerateRequest) (*app.GenerateResult, error)
	History() ([]*store.HistoryEntry, error)
	HistoryItem(id string) (*store.HistoryEntry, *schema.ComprehensiveTestPlan, error)
	Export(id, format string) (content, filename string, err error)
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
}

// Server is the planforge REST API server.
type Server struct {
	svc    PlanService
	cfg    Config
	logger *slog.Logger
	srv    *http.Server
}

// NewServer creates a new API server.
func NewServer(svc PlanService, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/settings/jira", s.handleConfigureJira)
	mux.HandleFunc("GET /api/settings/jira", s.handleJiraStatus)
	mux.HandleFunc("POST /api/settings/llm", s.handleConfigureLLM)
	mux.HandleFunc("GET /api/settings/llm", s.handleLLMStatus)
	mux.HandleFunc("POST /api/settings/llm/test", s.handleTestLLM)
	mux.HandleFunc("GET /api/settings/llm/models", s.handleLocalModels)

	mux.HandleFunc("POST /api/jira/fetch", s.handleFetchTicket)
	mux.HandleFunc("GET /api/jira/recent", s.handleRecentTickets)

	mux.HandleFunc("POST /api/templates/upload", s.handleUploadTemplate)
	mux.HandleFunc("GET /api/templates", s.handleListTemplates)
	mux.HandleFunc("GET /api/templates/{id}", s.handleGetTemplate)
	mux.HandleFunc("DELETE /api/templates/{id}", s.handleDeleteTemplate)

	mux.HandleFunc("POST /api/testplan/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/testplan/history", s.handleHistory)
	mux.HandleFunc("GET /api/testplan/history/{id}", s.handleHistoryItem)
	mux.HandleFunc("POST /api/testplan/export/{id}", s.handleExport)

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConfigureJira(w http.ResponseWriter, r *http.Request) {
	var cfg jira.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if cfg.BaseURL == "" || cfg.Username == "" || cfg.APIToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "base_url, username and api_token are required"})
		return
	}

	user, err := s.svc.ConfigureJira(r.Context(), cfg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"user":   user.DisplayName,
	})
}

func (s *Server) handleJiraStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.CheckJira(r.Context()))
}

func (s *Server) handleConfigureLLM(w http.ResponseWriter, r *http.Request) {
	var cfg provider.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if err := s.svc.ConfigureLLM(cfg); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "success",
		"provider": cfg.Provider,
	})
}

func (s *Server) handleLLMStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.CheckLLM())
}

func (s *Server) handleTestLLM(w http.ResponseWriter, r *http.Request) {
	var cfg provider.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	ok, err := s.svc.TestLLM(r.Context(), cfg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": ok})
}

func (s *Server) handleLocalModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.svc.LocalModels(r.Context(), r.URL.Query().Get("base_url"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if models == nil {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

type fetchTicketRequest struct {
	TicketID string `json:"ticketId"`
}

func (s *Server) handleFetchTicket(w http.ResponseWriter, r *http.Request) {
	var req fetchTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.TicketID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ticketId is required"})
		return
	}

	issue, err := s.svc.FetchIssue(r.Context(), req.TicketID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"issue":  issue,
	})
}

func (s *Server) handleRecentTickets(w http.ResponseWriter, _ *http.Request) {
	tickets := s.svc.RecentTickets()
	if tickets == nil {
		tickets = []recent.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

func (s *Server) handleUploadTemplate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(int64(template.MaxUploadSize)); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file field is required"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, int64(template.MaxUploadSize)+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read upload"})
		return
	}

	t, err := s.svc.UploadTemplate(header.Filename, content)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"id":              t.ID,
		"name":            t.Name,
		"content_preview": preview(t.Content),
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, _ *http.Request) {
	templates, err := s.svc.Templates()
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(templates))
	for _, t := range templates {
		out = append(out, map[string]any{
			"id":          t.ID,
			"name":        t.Name,
			"uploaded_at": t.UploadedAt,
			"preview":     preview(t.Content),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Template(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteTemplate(r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req app.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.TicketID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ticket_id is required"})
		return
	}

	result, err := s.svc.Generate(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"history_id": result.HistoryID,
		"test_plan":  result.Plan,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	entries, err := s.svc.History()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*store.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (s *Server) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	entry, plan, err := s.svc.HistoryItem(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":             entry.ID,
		"ticket_id":      entry.TicketID,
		"ticket_summary": entry.TicketSummary,
		"generated_at":   entry.GeneratedAt,
		"provider_used":  entry.Provider,
		"test_plan":      plan,
	})
}

type exportRequest struct {
	Format string `json:"format"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Format == "" {
		req.Format = schema.FormatMarkdown
	}

	content, filename, err := s.svc.Export(r.PathValue("id"), req.Format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"content":  content,
		"format":   req.Format,
		"filename": filename,
	})
}

// --- Helpers ---

// writeError maps pipeline errors onto HTTP statuses: caller mistakes get
// 400, missing records 404, everything else 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, jira.ErrInvalidKey),
		errors.Is(err, provider.ErrUnknownProvider),
		errors.Is(err, provider.ErrInvalidConfig),
		errors.Is(err, schema.ErrUnsupportedFormat),
		errors.Is(err, template.ErrUnsupportedType),
		errors.Is(err, template.ErrTooLarge),
		errors.Is(err, app.ErrJiraNotConfigured),
		errors.Is(err, app.ErrLLMNotConfigured):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, jira.ErrUpstream):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func preview(s string) string {
	runes := []rune(s)
	if len(runes) <= templatePreviewLen {
		return s
	}
	return string(runes[:templatePreviewLen]) + "..."
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
