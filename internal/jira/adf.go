package jira

import (
	"encoding/json"
	"regexp"
	"strings"
)

// adfNode is one node of an Atlassian Document Format tree: either a "text"
// leaf or a container with ordered children.
type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text"`
	Content []adfNode `json:"content"`
}

// FlattenADF extracts plain text from an Atlassian Document Format value by
// collecting all "text" leaves in document order and joining them with single
// spaces. Empty or absent input yields the empty string. Jira Server
// instances return descriptions as plain strings; those pass through.
func FlattenADF(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}

	var texts []string
	var node adfNode
	if err := json.Unmarshal(raw, &node); err == nil {
		collectText(node, &texts)
		return strings.Join(texts, " ")
	}

	var nodes []adfNode
	if err := json.Unmarshal(raw, &nodes); err == nil {
		for _, n := range nodes {
			collectText(n, &texts)
		}
		return strings.Join(texts, " ")
	}

	return ""
}

func collectText(n adfNode, out *[]string) {
	if n.Type == "text" {
		*out = append(*out, n.Text)
		return
	}
	for _, child := range n.Content {
		collectText(child, out)
	}
}

var (
	// Labeled block: "Acceptance Criteria:", "AC:", or "Scenario:" up to the
	// next blank line or end of input.
	acBlockPattern = regexp.MustCompile(`(?is)(?:acceptance criteria|ac|scenario):\s*(.+?)(?:\n\n|\z)`)
	// Fallback: text from the first Given/When/Then onward.
	gherkinPattern = regexp.MustCompile(`(?is)(?:given|when|then).*`)
)

// ExtractAcceptanceCriteria pulls acceptance criteria out of a flattened
// description. The labeled-block pattern wins over the Given/When/Then
// fallback; matches are joined with newlines. Returns "" when neither
// pattern matches.
func ExtractAcceptanceCriteria(description string) string {
	if matches := acBlockPattern.FindAllStringSubmatch(description, -1); len(matches) > 0 {
		blocks := make([]string, len(matches))
		for i, m := range matches {
			blocks[i] = m[1]
		}
		return strings.Join(blocks, "\n")
	}
	if matches := gherkinPattern.FindAllString(description, -1); len(matches) > 0 {
		return strings.Join(matches, "\n")
	}
	return ""
}
