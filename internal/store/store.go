package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Template is an uploaded test-plan template with its extracted text.
type Template struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// HistoryEntry records one completed generation. TestPlan holds the
// serialized plan document; it is written once and never mutated.
type HistoryEntry struct {
	ID            string    `json:"id"`
	TicketID      string    `json:"ticket_id"`
	TicketSummary string    `json:"ticket_summary"`
	TestPlan      string    `json:"-"`
	GeneratedAt   time.Time `json:"generated_at"`
	Provider      string    `json:"provider_used"`
}

// Store is the persistence interface for settings, templates, and
// generation history.
type Store interface {
	// SetSetting upserts a settings value under key.
	SetSetting(key, value string) error
	// Setting retrieves a settings value; ErrNotFound when absent.
	Setting(key string) (string, error)

	// SaveTemplate stores an uploaded template.
	SaveTemplate(t *Template) error
	// Template retrieves a template by ID; ErrNotFound when absent.
	Template(id string) (*Template, error)
	// ListTemplates returns all templates, newest first.
	ListTemplates() ([]*Template, error)
	// DeleteTemplate removes a template; ErrNotFound when absent.
	DeleteTemplate(id string) error

	// SaveHistory stores a generation record.
	SaveHistory(h *HistoryEntry) error
	// History retrieves a record including its plan document.
	History(id string) (*HistoryEntry, error)
	// ListHistory returns the newest records without plan bodies.
	ListHistory(limit int) ([]*HistoryEntry, error)
	// PruneHistory deletes all but the newest keep records and reports
	// how many were removed.
	PruneHistory(keep int) (int, error)
}
