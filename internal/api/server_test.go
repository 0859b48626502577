package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/planforge-io/planforge/internal/app"
	"github.com/planforge-io/planforge/internal/jira"
	"github.com/planforge-io/planforge/internal/provider"
	"github.com/planforge-io/planforge/internal/recent"
	"github.com/planforge-io/planforge/internal/store"
	"github.com/planforge-io/planforge/pkg/schema"
)

// stubService implements PlanService with canned responses.
type stubService struct {
	jiraStatus  app.JiraStatus
	llmStatus   app.LLMStatus
	issue       *schema.Issue
	issueErr    error
	genResult   *app.GenerateResult
	genErr      error
	templates   []*store.Template
	history     []*store.HistoryEntry
	historyErr  error
	exportErr   error
	deletedID   string
	uploadedAs  string
	generateReq app.GenerateRequest
}

func (s *stubService) ConfigureJira(_ context.Context, cfg jira.Config) (*jira.UserInfo, error) {
	return &jira.UserInfo{DisplayName: "Stub User"}, nil
}
func (s *stubService) CheckJira(context.Context) app.JiraStatus { return s.jiraStatus }
func (s *stubService) ConfigureLLM(cfg provider.Config) error   { return cfg.Validate() }
func (s *stubService) CheckLLM() app.LLMStatus                  { return s.llmStatus }
func (s *stubService) TestLLM(context.Context, provider.Config) (bool, error) {
	return true, nil
}
func (s *stubService) LocalModels(context.Context, string) ([]string, error) {
	return []string{"llama3"}, nil
}
func (s *stubService) FetchIssue(_ context.Context, key string) (*schema.Issue, error) {
	return s.issue, s.issueErr
}
func (s *stubService) RecentTickets() []recent.Entry {
	return []recent.Entry{{TicketID: "PROJ-1", Summary: "s"}}
}
func (s *stubService) UploadTemplate(filename string, content []byte) (*store.Template, error) {
	s.uploadedAs = filename
	return &store.Template{ID: "tpl-1", Name: filename, Content: string(content)}, nil
}
func (s *stubService) Templates() ([]*store.Template, error) { return s.templates, nil }
func (s *stubService) Template(id string) (*store.Template, error) {
	for _, t := range s.templates {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: template %q", store.ErrNotFound, id)
}
func (s *stubService) DeleteTemplate(id string) error { s.deletedID = id; return nil }
func (s *stubService) Generate(_ context.Context, req app.GenerateRequest) (*app.GenerateResult, error) {
	s.generateReq = req
	return s.genResult, s.genErr
}
func (s *stubService) History() ([]*store.HistoryEntry, error) { return s.history, s.historyErr }
func (s *stubService) HistoryItem(id string) (*store.HistoryEntry, *schema.ComprehensiveTestPlan, error) {
	if len(s.history) == 0 || s.history[0].ID != id {
		return nil, nil, fmt.Errorf("%w: history %q", store.ErrNotFound, id)
	}
	return s.history[0], &schema.ComprehensiveTestPlan{Title: "Plan"}, nil
}
func (s *stubService) Export(id, format string) (string, string, error) {
	if s.exportErr != nil {
		return "", "", s.exportErr
	}
	return "# Plan", "PROJ-1_test_plan.md", nil
}

func newTestServer(svc PlanService) *httptest.Server {
	srv := NewServer(svc, Config{Host: "127.0.0.1", Port: 0}, nil)
	return httptest.NewServer(srv.Handler())
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(&stubService{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestFetchTicket(t *testing.T) {
	stub := &stubService{issue: &schema.Issue{Key: "PROJ-9", Summary: "Fetch me"}}
	ts := newTestServer(stub)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/jira/fetch", "application/json",
		strings.NewReader(`{"ticketId": "PROJ-9"}`))
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	if body["status"] != "success" {
		t.Errorf("body = %v", body)
	}
	issue, ok := body["issue"].(map[string]any)
	if !ok || issue["key"] != "PROJ-9" {
		t.Errorf("issue = %v", body["issue"])
	}
}

func TestFetchTicketRequiresID(t *testing.T) {
	ts := newTestServer(&stubService{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/jira/fetch", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid key", fmt.Errorf("wrap: %w", jira.ErrInvalidKey), http.StatusBadRequest},
		{"not configured", app.ErrJiraNotConfigured, http.StatusBadRequest},
		{"upstream", fmt.Errorf("wrap: %w", jira.ErrUpstream), http.StatusBadGateway},
		{"internal", fmt.Errorf("something else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(&stubService{issueErr: tt.err})
			defer ts.Close()

			resp, err := http.Post(ts.URL+"/api/jira/fetch", "application/json",
				strings.NewReader(`{"ticketId": "PROJ-1"}`))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	stub := &stubService{
		genResult: &app.GenerateResult{
			Plan:      &schema.ComprehensiveTestPlan{Title: "Plan", SourceIssue: "PROJ-1"},
			HistoryID: "hist-1",
		},
	}
	ts := newTestServer(stub)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/testplan/generate", "application/json",
		strings.NewReader(`{"ticket_id": "PROJ-1", "template_id": "tpl-1", "provider": "local"}`))
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %v", resp.StatusCode, body)
	}
	if body["status"] != "success" || body["history_id"] != "hist-1" {
		t.Errorf("body = %v", body)
	}
	if stub.generateReq.TemplateID != "tpl-1" || stub.generateReq.Provider != "local" {
		t.Errorf("request = %+v", stub.generateReq)
	}
}

func TestGenerateRequiresTicketID(t *testing.T) {
	ts := newTestServer(&stubService{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/testplan/generate", "application/json",
		strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGenerateNotFoundHistory(t *testing.T) {
	ts := newTestServer(&stubService{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/testplan/history/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHistoryList(t *testing.T) {
	stub := &stubService{history: []*store.HistoryEntry{
		{ID: "h-1", TicketID: "PROJ-1", GeneratedAt: time.Now()},
	}}
	ts := newTestServer(stub)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/testplan/history")
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	items, ok := body["history"].([]any)
	if !ok || len(items) != 1 {
		t.Errorf("body = %v", body)
	}
}

func TestExportRoute(t *testing.T) {
	stub := &stubService{history: []*store.HistoryEntry{{ID: "h-1"}}}
	ts := newTestServer(stub)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/testplan/export/h-1", "application/json",
		strings.NewReader(`{"format": "markdown"}`))
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	if body["filename"] != "PROJ-1_test_plan.md" || body["content"] != "# Plan" {
		t.Errorf("body = %v", body)
	}
	if body["format"] != "markdown" {
		t.Errorf("format = %v", body["format"])
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	stub := &stubService{exportErr: fmt.Errorf("wrap: %w", schema.ErrUnsupportedFormat)}
	ts := newTestServer(stub)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/testplan/export/h-1", "application/json",
		strings.NewReader(`{"format": "pdf"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUploadTemplate(t *testing.T) {
	stub := &stubService{}
	ts := newTestServer(stub)
	defer ts.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "plan.txt")
	part.Write([]byte("Test Plan:\nsome structure"))
	mw.Close()

	resp, err := http.Post(ts.URL+"/api/templates/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %v", resp.StatusCode, body)
	}
	if body["id"] != "tpl-1" || stub.uploadedAs != "plan.txt" {
		t.Errorf("body = %v, uploaded as %q", body, stub.uploadedAs)
	}
}

func TestListTemplatesIncludesPreview(t *testing.T) {
	stub := &stubService{templates: []*store.Template{
		{ID: "t1", Name: "plan.md", Content: "short body"},
		{ID: "t2", Name: "big.md", Content: strings.Repeat("x", templatePreviewLen+10)},
	}}
	ts := newTestServer(stub)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/templates")
	if err != nil {
		t.Fatal(err)
	}
	body := decode(t, resp)
	items, ok := body["templates"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("templates = %v", body["templates"])
	}

	first := items[0].(map[string]any)
	if first["preview"] != "short body" {
		t.Errorf("preview = %v", first["preview"])
	}
	second := items[1].(map[string]any)
	want := strings.Repeat("x", templatePreviewLen) + "..."
	if second["preview"] != want {
		t.Errorf("long preview not truncated: %d chars", len(second["preview"].(string)))
	}
}

func TestDeleteTemplate(t *testing.T) {
	stub := &stubService{}
	ts := newTestServer(stub)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/templates/tpl-9", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || stub.deletedID != "tpl-9" {
		t.Errorf("status = %d, deleted = %q", resp.StatusCode, stub.deletedID)
	}
}

func TestConfigureJiraRequiresFields(t *testing.T) {
	ts := newTestServer(&stubService{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/settings/jira", "application/json",
		strings.NewReader(`{"base_url": "https://x"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestConfigureLLMUnknownProvider(t *testing.T) {
	ts := newTestServer(&stubService{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/settings/llm", "application/json",
		strings.NewReader(`{"provider": "openai"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(&stubService{})
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/health", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing")
	}
}
