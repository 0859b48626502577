package schema

import "time"

// TestCase is a single test scenario within a plan.
type TestCase struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Preconditions   []string `json:"preconditions"`
	Steps           []string `json:"steps"`
	ExpectedResults []string `json:"expected_results"`
	Priority        string   `json:"priority"`
	TestType        string   `json:"test_type"`
}

// RiskItem describes a testing risk and how to mitigate it.
type RiskItem struct {
	Description string `json:"description"`
	Impact      string `json:"impact"`
	Mitigation  string `json:"mitigation"`
}

// SchedulePhase is one phase of the test schedule.
type SchedulePhase struct {
	Phase      string   `json:"phase"`
	Duration   string   `json:"duration"`
	Activities []string `json:"activities"`
}

// ResourceRequirement describes a person, tool, or piece of infrastructure
// the plan calls for.
type ResourceRequirement struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Quantity    string `json:"quantity,omitempty"`
}

// ComprehensiveTestPlan is the nine-section structured test-plan document
// produced by a generation run. It is created once by the orchestrator,
// persisted immutably, and re-rendered on export.
type ComprehensiveTestPlan struct {
	Title       string    `json:"title"`
	SourceIssue string    `json:"source_issue"`
	GeneratedAt time.Time `json:"generated_at"`

	ExecutiveSummary     string                `json:"executive_summary"`
	ScopeObjectives      string                `json:"scope_objectives"`
	TestStrategy         string                `json:"test_strategy"`
	TestEnvironment      string                `json:"test_environment"`
	EntryCriteria        []string              `json:"entry_criteria"`
	ExitCriteria         []string              `json:"exit_criteria"`
	RisksMitigations     []RiskItem            `json:"risks_mitigations"`
	TestSchedule         []SchedulePhase       `json:"test_schedule"`
	ResourceRequirements []ResourceRequirement `json:"resource_requirements"`

	TestCases []TestCase `json:"test_cases"`

	// Metadata carries provider, model, total_tests, and the
	// comprehensive flag alongside any provider-specific extras.
	Metadata map[string]any `json:"metadata"`
}

// TotalTests returns the test-case count recorded in metadata, falling back
// to the length of TestCases when the key is absent.
func (p *ComprehensiveTestPlan) TotalTests() int {
	if v, ok := p.Metadata["total_tests"]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return len(p.TestCases)
}
