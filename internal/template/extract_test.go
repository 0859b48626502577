package template

import (
	"errors"
	"strings"
	"testing"
)

func TestExtractPlainText(t *testing.T) {
	content := []byte("Test Plan:\nCheck the login flow\n\nTest Cases:\nTC one\nTC two\n")

	got, err := Extract("plan.txt", content)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "Test Plan:") || !strings.Contains(got, "TC two") {
		t.Errorf("extracted = %q", got)
	}
}

func TestExtractMarkdown(t *testing.T) {
	got, err := Extract("plan.MD", []byte("Preconditions:\n- account exists"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "account exists") {
		t.Errorf("extracted = %q", got)
	}
}

func TestExtractHTML(t *testing.T) {
	html := `<html><head><title>Plan</title></head><body>
		<article>
			<h1>Test Plan</h1>
			<p>Verify the export feature works for large reports and that the
			generated file opens in standard spreadsheet software.</p>
			<h2>Test Cases</h2>
			<p>Export an empty report. Export a report with ten thousand rows.
			Export a report containing unicode characters in every column.</p>
		</article>
	</body></html>`

	got, err := Extract("plan.html", []byte(html))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "export feature") {
		t.Errorf("extracted = %q", got)
	}
	if strings.Contains(got, "<p>") {
		t.Error("markup should be stripped")
	}
}

func TestExtractUnsupportedType(t *testing.T) {
	for _, name := range []string{"plan.docx", "plan.pdf", "plan", "plan.exe"} {
		if _, err := Extract(name, []byte("x")); !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("Extract(%q) err = %v, want ErrUnsupportedType", name, err)
		}
	}
}

func TestStructure(t *testing.T) {
	in := "TEST PLAN\nsome intro text\n\n\nEntry Criteria:\nbuild deployed\n\ntest cases\nfirst case"

	got := Structure(in)
	sections := strings.Split(got, "\n\n")
	if len(sections) != 3 {
		t.Fatalf("sections = %d, want 3:\n%s", len(sections), got)
	}
	if !strings.HasPrefix(sections[0], "TEST PLAN") {
		t.Errorf("first section = %q", sections[0])
	}
	if !strings.HasPrefix(sections[1], "Entry Criteria:") {
		t.Errorf("second section = %q", sections[1])
	}
	if !strings.HasPrefix(sections[2], "test cases") {
		t.Errorf("third section = %q", sections[2])
	}
}

func TestStructureNoHeaders(t *testing.T) {
	in := "just a blob of prose\nwith no headers anywhere"
	if got := Structure(in); got != in {
		t.Errorf("text without headers should pass through, got %q", got)
	}
}

func TestLooksLikeHeader(t *testing.T) {
	headers := []string{"TEST PLAN", "Entry Criteria:", "test cases", "Preconditions"}
	notHeaders := []string{"some prose line", "TC-1 passes when x", "123 456"}

	for _, h := range headers {
		if !looksLikeHeader(h) {
			t.Errorf("looksLikeHeader(%q) = false", h)
		}
	}
	for _, h := range notHeaders {
		if looksLikeHeader(h) {
			t.Errorf("looksLikeHeader(%q) = true", h)
		}
	}
}
