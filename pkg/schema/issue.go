package schema

// Attachment references a file attached to a tracker issue.
type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Content  string `json:"content"`
}

// Issue is the canonical representation of an issue-tracker ticket.
// It is constructed once from the tracker response and not mutated afterward.
type Issue struct {
	Key                string       `json:"key"`
	Summary            string       `json:"summary"`
	Description        string       `json:"description"`
	IssueType          string       `json:"issue_type"`
	Priority           string       `json:"priority"`
	Status             string       `json:"status"`
	Assignee           string       `json:"assignee,omitempty"`
	Labels             []string     `json:"labels"`
	Components         []string     `json:"components"`
	AcceptanceCriteria string       `json:"acceptance_criteria,omitempty"`
	Attachments        []Attachment `json:"attachments"`
}
