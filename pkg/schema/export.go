package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupportedFormat is returned when an export format is not recognized.
var ErrUnsupportedFormat = errors.New("schema: unsupported export format")

// Export formats.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// Export renders the plan in the requested format and returns the content
// together with a suggested filename ({source}_test_plan.{ext}).
func Export(p *ComprehensiveTestPlan, format string) (content, filename string, err error) {
	switch format {
	case FormatMarkdown:
		return RenderMarkdown(p), fmt.Sprintf("%s_test_plan.md", p.SourceIssue), nil
	case FormatJSON:
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return "", "", fmt.Errorf("schema: marshal plan: %w", err)
		}
		return string(data), fmt.Sprintf("%s_test_plan.json", p.SourceIssue), nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// ParsePlan decodes a plan previously serialized with the JSON export format.
func ParsePlan(data []byte) (*ComprehensiveTestPlan, error) {
	var p ComprehensiveTestPlan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("schema: parse plan: %w", err)
	}
	return &p, nil
}

// RenderMarkdown renders the plan as a markdown document. Plans with an
// executive summary get the full nine-section layout; plans without one
// (degraded or legacy) render header and test cases only.
func RenderMarkdown(p *ComprehensiveTestPlan) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", p.Title)
	fmt.Fprintf(&b, "**Source:** %s\n\n", p.SourceIssue)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", p.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "**Total Test Cases:** %d\n\n", p.TotalTests())

	b.WriteString("---\n\n")

	if p.ExecutiveSummary != "" {
		renderSections(&b, p)
		b.WriteString("---\n\n")
		b.WriteString("# Test Cases\n\n")
	}

	for _, tc := range p.TestCases {
		renderTestCase(&b, tc)
	}

	return b.String()
}

func renderSections(b *strings.Builder, p *ComprehensiveTestPlan) {
	fmt.Fprintf(b, "## Executive Summary\n\n%s\n\n", orNA(p.ExecutiveSummary))
	fmt.Fprintf(b, "## Scope & Objectives\n\n%s\n\n", orNA(p.ScopeObjectives))
	fmt.Fprintf(b, "## Test Strategy\n\n%s\n\n", orNA(p.TestStrategy))
	fmt.Fprintf(b, "## Test Environment\n\n%s\n\n", orNA(p.TestEnvironment))

	b.WriteString("## Entry Criteria\n\n")
	renderBullets(b, p.EntryCriteria, "- No specific entry criteria defined\n")
	b.WriteString("\n")

	b.WriteString("## Exit Criteria\n\n")
	renderBullets(b, p.ExitCriteria, "- No specific exit criteria defined\n")
	b.WriteString("\n")

	b.WriteString("## Risks & Mitigations\n\n")
	if len(p.RisksMitigations) > 0 {
		b.WriteString("| Risk | Impact | Mitigation |\n")
		b.WriteString("|------|--------|------------|\n")
		for _, r := range p.RisksMitigations {
			fmt.Fprintf(b, "| %s | %s | %s |\n", orNA(r.Description), orNA(r.Impact), orNA(r.Mitigation))
		}
	} else {
		b.WriteString("No risks identified\n")
	}
	b.WriteString("\n")

	b.WriteString("## Test Schedule\n\n")
	if len(p.TestSchedule) > 0 {
		for _, phase := range p.TestSchedule {
			name := phase.Phase
			if name == "" {
				name = "Phase"
			}
			fmt.Fprintf(b, "### %s\n\n", name)
			fmt.Fprintf(b, "**Duration:** %s\n\n", orNA(phase.Duration))
			if len(phase.Activities) > 0 {
				b.WriteString("**Activities:**\n")
				for _, a := range phase.Activities {
					fmt.Fprintf(b, "- %s\n", a)
				}
			}
			b.WriteString("\n")
		}
	} else {
		b.WriteString("No schedule defined\n\n")
	}

	b.WriteString("## Resource Requirements\n\n")
	if len(p.ResourceRequirements) > 0 {
		b.WriteString("| Type | Description | Quantity |\n")
		b.WriteString("|------|-------------|----------|\n")
		for _, r := range p.ResourceRequirements {
			fmt.Fprintf(b, "| %s | %s | %s |\n", orNA(r.Type), orNA(r.Description), orNA(r.Quantity))
		}
	} else {
		b.WriteString("No resources defined\n")
	}
	b.WriteString("\n")
}

func renderTestCase(b *strings.Builder, tc TestCase) {
	fmt.Fprintf(b, "## %s: %s\n\n", tc.ID, tc.Title)
	fmt.Fprintf(b, "**Type:** %s | **Priority:** %s\n\n", tc.TestType, tc.Priority)
	fmt.Fprintf(b, "**Description:** %s\n\n", tc.Description)

	if len(tc.Preconditions) > 0 {
		b.WriteString("### Preconditions\n")
		for _, pre := range tc.Preconditions {
			fmt.Fprintf(b, "- %s\n", pre)
		}
		b.WriteString("\n")
	}

	if len(tc.Steps) > 0 {
		b.WriteString("### Steps\n")
		for i, step := range tc.Steps {
			fmt.Fprintf(b, "%d. %s\n", i+1, step)
		}
		b.WriteString("\n")
	}

	if len(tc.ExpectedResults) > 0 {
		b.WriteString("### Expected Results\n")
		for _, er := range tc.ExpectedResults {
			fmt.Fprintf(b, "- %s\n", er)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n")
}

func renderBullets(b *strings.Builder, items []string, placeholder string) {
	if len(items) == 0 {
		b.WriteString(placeholder)
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
