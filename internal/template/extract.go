package template

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"unicode"

	readability "codeberg.org/readeck/go-readability/v2"
)

var (
	// ErrUnsupportedType is returned for template uploads that are not
	// HTML, plain text, or markdown.
	ErrUnsupportedType = errors.New("template: unsupported file type")
	// ErrTooLarge is returned for uploads over MaxUploadSize.
	ErrTooLarge = errors.New("template: file exceeds size limit")
)

// MaxUploadSize caps template uploads at 5 MiB.
const MaxUploadSize = 5 * 1024 * 1024

// Extract pulls the template text out of an uploaded file, keyed on its
// extension, and reduces it to its section structure. HTML documents are
// stripped to readable text; plain text and markdown pass through as-is.
func Extract(filename string, content []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html", ".htm":
		text, err := extractHTML(content)
		if err != nil {
			return "", fmt.Errorf("template: parse %s: %w", filename, err)
		}
		return Structure(text), nil
	case ".txt", ".md", ".markdown":
		return Structure(string(content)), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(filename))
	}
}

func extractHTML(content []byte) (string, error) {
	// readability wants a document URL; uploads don't have one.
	docURL, _ := url.Parse("http://localhost/template")

	article, err := readability.FromReader(bytes.NewReader(content), docURL)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := article.RenderText(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Known test-plan section headers, matched case-insensitively.
var knownHeaders = map[string]bool{
	"test plan":        true,
	"test cases":       true,
	"preconditions":    true,
	"test steps":       true,
	"expected results": true,
	"test scenario":    true,
}

// Structure regroups extracted text into sections: a line that looks like a
// header (all-caps, colon-terminated, or a known test-plan heading) starts a
// new section; blank lines are dropped. Text with no detectable headers is
// returned unchanged.
func Structure(text string) string {
	lines := strings.Split(text, "\n")

	var sections []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			sections = append(sections, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if looksLikeHeader(line) {
			flush()
			current = []string{line}
		} else {
			current = append(current, line)
		}
	}
	flush()

	if len(sections) == 0 {
		return text
	}
	return strings.Join(sections, "\n\n")
}

func looksLikeHeader(line string) bool {
	if knownHeaders[strings.ToLower(line)] {
		return true
	}
	if strings.HasSuffix(line, ":") {
		return true
	}
	return isUpper(line)
}

// isUpper reports whether line contains at least one cased character and no
// lowercase ones.
func isUpper(line string) bool {
	hasCased := false
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasCased = true
		}
	}
	return hasCased
}
