package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func samplePlan() *ComprehensiveTestPlan {
	return &ComprehensiveTestPlan{
		Title:            "Test Plan: Login",
		SourceIssue:      "PROJ-1",
		GeneratedAt:      time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		ExecutiveSummary: "Covers the login flow.",
		ScopeObjectives:  "Login and lockout.",
		TestStrategy:     "Manual plus API tests.",
		TestEnvironment:  "Staging.",
		EntryCriteria:    []string{"Build deployed"},
		ExitCriteria:     []string{"All tests pass"},
		RisksMitigations: []RiskItem{
			{Description: "Flaky env", Impact: "Medium", Mitigation: "Retry"},
		},
		TestSchedule: []SchedulePhase{
			{Phase: "Execution", Duration: "3 days", Activities: []string{"Run suite"}},
		},
		ResourceRequirements: []ResourceRequirement{
			{Type: "Human", Description: "QA Engineer", Quantity: "1"},
		},
		TestCases: []TestCase{
			{
				ID:              "TC-001",
				Title:           "Valid login",
				Description:     "User logs in with good credentials.",
				Preconditions:   []string{"Account exists"},
				Steps:           []string{"Open login page", "Submit credentials"},
				ExpectedResults: []string{"Dashboard shown"},
				Priority:        "High",
				TestType:        "Functional",
			},
		},
		Metadata: map[string]any{
			"provider":      "hosted",
			"model":         "m",
			"total_tests":   1,
			"comprehensive": true,
		},
	}
}

func TestExportMarkdown(t *testing.T) {
	content, filename, err := Export(samplePlan(), FormatMarkdown)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if filename != "PROJ-1_test_plan.md" {
		t.Errorf("filename = %q", filename)
	}

	for _, want := range []string{
		"# Test Plan: Login",
		"**Source:** PROJ-1",
		"**Total Test Cases:** 1",
		"## Executive Summary",
		"## Risks & Mitigations",
		"| Flaky env | Medium | Retry |",
		"### Execution",
		"| Human | QA Engineer | 1 |",
		"## TC-001: Valid login",
		"**Type:** Functional | **Priority:** High",
		"1. Open login page",
		"2. Submit credentials",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestExportMarkdownPlaceholders(t *testing.T) {
	p := samplePlan()
	p.EntryCriteria = nil
	p.ExitCriteria = nil
	p.RisksMitigations = nil
	p.TestSchedule = nil
	p.ResourceRequirements = nil

	content, _, err := Export(p, FormatMarkdown)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	for _, want := range []string{
		"- No specific entry criteria defined",
		"- No specific exit criteria defined",
		"No risks identified",
		"No schedule defined",
		"No resources defined",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("markdown missing placeholder %q", want)
		}
	}
}

func TestExportMarkdownDegradedLayout(t *testing.T) {
	p := samplePlan()
	p.ExecutiveSummary = ""

	content, _, err := Export(p, FormatMarkdown)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if strings.Contains(content, "## Scope & Objectives") {
		t.Error("plans without an executive summary should skip the section layout")
	}
	if !strings.Contains(content, "## TC-001: Valid login") {
		t.Error("test cases should still render")
	}
}

func TestExportJSONRoundTrip(t *testing.T) {
	p := samplePlan()
	content, filename, err := Export(p, FormatJSON)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if filename != "PROJ-1_test_plan.json" {
		t.Errorf("filename = %q", filename)
	}

	parsed, err := ParsePlan([]byte(content))
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}

	// Compare re-marshaled forms: metadata numbers decode as float64, so the
	// structs differ but the documents must not.
	a, _ := json.Marshal(p)
	b, _ := json.Marshal(parsed)
	if !bytes.Equal(a, b) {
		t.Errorf("round trip changed the document:\n%s\n%s", a, b)
	}

	if parsed.TotalTests() != 1 {
		t.Errorf("TotalTests after round trip = %d", parsed.TotalTests())
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	_, _, err := Export(samplePlan(), "pdf")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestTotalTestsFallsBackToLen(t *testing.T) {
	p := samplePlan()
	p.Metadata = nil
	if got := p.TotalTests(); got != 1 {
		t.Errorf("TotalTests = %d, want 1", got)
	}
}
