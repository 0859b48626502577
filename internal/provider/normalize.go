package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/planforge-io/planforge/pkg/schema"
)

// maxAttempts bounds the generate-call retry loop.
const maxAttempts = 3

// fallbackDescriptionLimit caps how much raw model output the degraded
// fallback plan carries in its single test case.
const fallbackDescriptionLimit = 500

// retryGenerate runs fn up to maxAttempts times, sleeping 2^attempt times the
// base duration between attempts (base, 2*base, ...). The sleep respects
// context cancellation. On exhaustion the last cause is wrapped in
// ErrGenerationExhausted.
func retryGenerate(ctx context.Context, base time.Duration, fn func(context.Context) (*schema.ComprehensiveTestPlan, error)) (*schema.ComprehensiveTestPlan, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(base << (attempt - 1)):
			}
		}

		plan, err := fn(ctx)
		if err == nil {
			return plan, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrGenerationExhausted, maxAttempts, lastErr)
}

// --- raw wire schema, as instructed in the prompts ---

type rawPlan struct {
	Title                string        `json:"title"`
	ExecutiveSummary     string        `json:"executive_summary"`
	ScopeObjectives      string        `json:"scope_objectives"`
	TestStrategy         string        `json:"test_strategy"`
	TestEnvironment      string        `json:"test_environment"`
	EntryCriteria        []string      `json:"entry_criteria"`
	ExitCriteria         []string      `json:"exit_criteria"`
	RisksMitigations     []rawRisk     `json:"risks_mitigations"`
	TestSchedule         []rawPhase    `json:"test_schedule"`
	ResourceRequirements []rawResource `json:"resource_requirements"`
	TestCases            []rawTestCase `json:"test_cases"`
}

type rawTestCase struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Preconditions   []string `json:"preconditions"`
	Steps           []string `json:"steps"`
	ExpectedResults []string `json:"expected_results"`
	Priority        string   `json:"priority"`
	TestType        string   `json:"test_type"`
}

type rawRisk struct {
	Description string `json:"description"`
	Impact      string `json:"impact"`
	Mitigation  string `json:"mitigation"`
}

type rawPhase struct {
	Phase      string   `json:"phase"`
	Duration   string   `json:"duration"`
	Activities []string `json:"activities"`
}

type rawResource struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
}

// planFromJSON parses strict JSON model output into the canonical plan.
// Used by the hosted backend, whose structured-output mode is trusted to
// emit well-formed JSON; a parse failure here is a hard attempt failure.
func planFromJSON(data []byte, issue *schema.Issue, providerName, model string) (*schema.ComprehensiveTestPlan, error) {
	var rp rawPlan
	if err := json.Unmarshal(data, &rp); err != nil {
		return nil, fmt.Errorf("provider: decode plan: %w", err)
	}
	return buildPlan(&rp, issue, providerName, model, false), nil
}

// planFromLooseText normalizes the local backend's untrusted output. It first
// tries the substring between the first '{' and the last '}', then the whole
// text, and finally degrades to a synthetic minimal plan. It never fails.
func planFromLooseText(text string, issue *schema.Issue, providerName, model string) *schema.ComprehensiveTestPlan {
	var rp rawPlan
	if sub, ok := extractJSONObject(text); ok {
		if err := json.Unmarshal([]byte(sub), &rp); err == nil {
			return buildPlan(&rp, issue, providerName, model, false)
		}
	}
	if err := json.Unmarshal([]byte(text), &rp); err == nil {
		return buildPlan(&rp, issue, providerName, model, false)
	}
	return buildPlan(fallbackPlan(text, issue), issue, providerName, model, true)
}

// extractJSONObject returns the inclusive substring between the first '{'
// and the last '}' of s.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

// fallbackPlan synthesizes a minimal valid plan from unparseable output.
func fallbackPlan(raw string, issue *schema.Issue) *rawPlan {
	description := raw
	if runes := []rune(raw); len(runes) > fallbackDescriptionLimit {
		description = string(runes[:fallbackDescriptionLimit])
	}
	return &rawPlan{
		Title:            fmt.Sprintf("Test Plan: %s", issue.Summary),
		ExecutiveSummary: fmt.Sprintf("Test plan for %s", issue.Key),
		ScopeObjectives:  "Test the feature as described",
		TestStrategy:     "Manual and automated testing",
		TestEnvironment:  "Standard test environment",
		EntryCriteria:    []string{"Code is deployed", "Test data is prepared"},
		ExitCriteria:     []string{"All tests pass", "No critical defects"},
		RisksMitigations: []rawRisk{{Description: "Delays", Impact: "Medium", Mitigation: "Buffer time"}},
		TestSchedule:     []rawPhase{{Phase: "Execution", Duration: "1 week", Activities: []string{"Run tests"}}},
		ResourceRequirements: []rawResource{
			{Type: "Human", Description: "QA Engineer", Quantity: "1"},
		},
		TestCases: []rawTestCase{{
			ID:              "TC-001",
			Title:           fmt.Sprintf("Verify %s", issue.Summary),
			Description:     description,
			Preconditions:   []string{},
			Steps:           []string{"Execute test"},
			ExpectedResults: []string{"Feature works as expected"},
			Priority:        "High",
			TestType:        "Functional",
		}},
	}
}

// buildPlan maps the raw wire schema onto the canonical plan, applying
// per-field defaults: synthesized TC-NNN ids, Medium priority and impact,
// Functional test type, and empty lists for absent list fields. generated_at
// is set here, never taken from the model.
func buildPlan(rp *rawPlan, issue *schema.Issue, providerName, model string, degraded bool) *schema.ComprehensiveTestPlan {
	testCases := make([]schema.TestCase, 0, len(rp.TestCases))
	for i, tc := range rp.TestCases {
		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("TC-%03d", i+1)
		}
		priority := tc.Priority
		if priority == "" {
			priority = "Medium"
		}
		testType := tc.TestType
		if testType == "" {
			testType = "Functional"
		}
		testCases = append(testCases, schema.TestCase{
			ID:              id,
			Title:           tc.Title,
			Description:     tc.Description,
			Preconditions:   orEmpty(tc.Preconditions),
			Steps:           orEmpty(tc.Steps),
			ExpectedResults: orEmpty(tc.ExpectedResults),
			Priority:        priority,
			TestType:        testType,
		})
	}

	risks := make([]schema.RiskItem, 0, len(rp.RisksMitigations))
	for _, r := range rp.RisksMitigations {
		impact := r.Impact
		if impact == "" {
			impact = "Medium"
		}
		risks = append(risks, schema.RiskItem{
			Description: r.Description,
			Impact:      impact,
			Mitigation:  r.Mitigation,
		})
	}

	phases := make([]schema.SchedulePhase, 0, len(rp.TestSchedule))
	for _, ph := range rp.TestSchedule {
		phases = append(phases, schema.SchedulePhase{
			Phase:      ph.Phase,
			Duration:   ph.Duration,
			Activities: orEmpty(ph.Activities),
		})
	}

	resources := make([]schema.ResourceRequirement, 0, len(rp.ResourceRequirements))
	for _, res := range rp.ResourceRequirements {
		resources = append(resources, schema.ResourceRequirement{
			Type:        res.Type,
			Description: res.Description,
			Quantity:    res.Quantity,
		})
	}

	title := rp.Title
	if title == "" {
		title = fmt.Sprintf("Test Plan: %s", issue.Summary)
	}

	metadata := map[string]any{
		"provider":      providerName,
		"model":         model,
		"total_tests":   len(testCases),
		"comprehensive": true,
	}
	if degraded {
		metadata["degraded"] = true
	}

	return &schema.ComprehensiveTestPlan{
		Title:                title,
		SourceIssue:          issue.Key,
		GeneratedAt:          time.Now().UTC(),
		ExecutiveSummary:     rp.ExecutiveSummary,
		ScopeObjectives:      rp.ScopeObjectives,
		TestStrategy:         rp.TestStrategy,
		TestEnvironment:      rp.TestEnvironment,
		EntryCriteria:        orEmpty(rp.EntryCriteria),
		ExitCriteria:         orEmpty(rp.ExitCriteria),
		RisksMitigations:     risks,
		TestSchedule:         phases,
		ResourceRequirements: resources,
		TestCases:            testCases,
		Metadata:             metadata,
	}
}

func orEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
