package provider

import (
	"fmt"
	"strings"

	"github.com/planforge-io/planforge/pkg/schema"
)

// hostedSystemPrompt is the instruction block for the hosted chat backend,
// which runs in structured JSON-object output mode.
const hostedSystemPrompt = `You are an expert QA Engineer with years of experience in software testing.
Generate a comprehensive, professional test plan document based on the provided JIRA ticket.

Your response must be valid JSON with the following comprehensive structure:

{
  "title": "Test Plan: [Feature Name]",
  "executive_summary": "Brief overview of the testing approach and objectives (2-3 paragraphs)",
  "scope_objectives": "Detailed description of what is in scope, out of scope, and test objectives",
  "test_strategy": "Overall testing approach, methodologies, and testing levels (unit, integration, system, UAT)",
  "test_environment": "Hardware, software, network, and tool requirements for testing",
  "entry_criteria": ["Condition 1", "Condition 2", "Condition 3"],
  "exit_criteria": ["Condition 1", "Condition 2", "Condition 3"],
  "risks_mitigations": [
    {
      "description": "Risk description",
      "impact": "High/Medium/Low",
      "mitigation": "How to mitigate this risk"
    }
  ],
  "test_schedule": [
    {
      "phase": "Phase name (e.g., Test Planning, Test Execution)",
      "duration": "Estimated duration (e.g., 3 days, 1 week)",
      "activities": ["Activity 1", "Activity 2"]
    }
  ],
  "resource_requirements": [
    {
      "type": "Human/Tool/Infrastructure",
      "description": "Detailed description",
      "quantity": "Number or description of quantity needed"
    }
  ],
  "test_cases": [
    {
      "id": "TC-001",
      "title": "Test case title",
      "description": "Detailed description of what this test validates",
      "preconditions": ["Precondition 1", "Precondition 2"],
      "steps": ["Step 1", "Step 2", "Step 3"],
      "expected_results": ["Expected result 1", "Expected result 2"],
      "priority": "High/Medium/Low",
      "test_type": "Functional/Integration/UI/Performance/Security/Regression"
    }
  ]
}

Guidelines:
1. Create a PROFESSIONAL test plan document suitable for enterprise use
2. Include at least 8-15 detailed test cases covering:
   - Positive scenarios (happy path)
   - Negative scenarios (error handling)
   - Edge cases and boundary conditions
   - Security considerations
   - UI/UX validations (if applicable)
3. Each test case should have 3-8 clear steps
4. Risks should be realistic and relevant to the feature
5. Schedule should reflect realistic testing phases
6. Resources should include both human and tool requirements`

// localSystemPrompt is the compact instruction block for the local
// completion backend, which cannot be trusted to honor JSON mode.
const localSystemPrompt = `You are an expert QA Engineer. Generate a comprehensive test plan based on the provided JIRA ticket.
Your response must be valid JSON with the following structure:

{
  "title": "Test Plan: ...",
  "executive_summary": "Brief overview",
  "scope_objectives": "Scope and objectives",
  "test_strategy": "Testing approach",
  "test_environment": "Environment requirements",
  "entry_criteria": ["Condition 1"],
  "exit_criteria": ["Condition 1"],
  "risks_mitigations": [{"description": "...", "impact": "High", "mitigation": "..."}],
  "test_schedule": [{"phase": "...", "duration": "...", "activities": ["..."]}],
  "resource_requirements": [{"type": "...", "description": "...", "quantity": "..."}],
  "test_cases": [{"id": "TC-001", "title": "...", "description": "...", "preconditions": [], "steps": [], "expected_results": [], "priority": "High", "test_type": "Functional"}]
}`

// BuildUserPrompt renders the ticket (and optional template text) into the
// user prompt shared by both backends. It is deterministic: identical inputs
// produce byte-identical output.
func BuildUserPrompt(issue *schema.Issue, templateText string) string {
	var b strings.Builder

	b.WriteString("\nJIRA Ticket Details:\n")
	b.WriteString("===================\n")
	fmt.Fprintf(&b, "Ticket Key: %s\n", issue.Key)
	fmt.Fprintf(&b, "Summary: %s\n", issue.Summary)
	fmt.Fprintf(&b, "Description: %s\n", issue.Description)
	fmt.Fprintf(&b, "Priority: %s\n", issue.Priority)
	fmt.Fprintf(&b, "Issue Type: %s\n", issue.IssueType)
	fmt.Fprintf(&b, "Status: %s\n", issue.Status)
	fmt.Fprintf(&b, "Labels: %s\n", joinOr(issue.Labels, "None"))
	fmt.Fprintf(&b, "Components: %s\n", joinOr(issue.Components, "None"))
	fmt.Fprintf(&b, "Assignee: %s\n", stringOr(issue.Assignee, "Unassigned"))

	if issue.AcceptanceCriteria != "" {
		b.WriteString("\nAcceptance Criteria:\n")
		b.WriteString("===================\n")
		b.WriteString(issue.AcceptanceCriteria)
		b.WriteString("\n")
	}

	if templateText != "" {
		b.WriteString("\nTemplate Structure:\n")
		b.WriteString("===================\n")
		b.WriteString(templateText)
		b.WriteString("\n")
	}

	b.WriteString(`
Based on the above JIRA ticket, generate a COMPREHENSIVE TEST PLAN document.

The test plan should include:
1. Executive Summary - Overview of testing approach
2. Scope & Objectives - What's being tested and goals
3. Test Strategy - Methodology and testing levels
4. Test Environment - Required setup
5. Entry & Exit Criteria - When to start/stop testing
6. Risks & Mitigations - Potential issues and solutions
7. Test Schedule - Timeline and phases
8. Resource Requirements - People and tools needed
9. Test Cases - Detailed test scenarios (8-15 test cases)

Generate a professional test plan that could be used in an enterprise environment.`)

	return b.String()
}

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}

func stringOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
