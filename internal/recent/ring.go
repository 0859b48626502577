package recent

import (
	"sort"
	"sync"
	"time"
)

// Entry records one recently fetched ticket.
type Entry struct {
	TicketID  string    `json:"ticket_id"`
	Summary   string    `json:"summary"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Ring is a thread-safe fixed-capacity record of recently fetched tickets,
// keyed by ticket ID. Touching a known ID refreshes its timestamp instead of
// duplicating it; inserting past capacity evicts the entry with the oldest
// FetchedAt.
type Ring struct {
	mu      sync.Mutex
	size    int
	entries []Entry
	now     func() time.Time
}

// New creates a ring that remembers up to size tickets.
func New(size int) *Ring {
	return &Ring{
		size:    size,
		entries: make([]Entry, 0, size),
		now:     time.Now,
	}
}

// Touch records a fetch of the given ticket, refreshing it if present.
func (r *Ring) Touch(ticketID, summary string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for i := range r.entries {
		if r.entries[i].TicketID == ticketID {
			r.entries[i].Summary = summary
			r.entries[i].FetchedAt = now
			return
		}
	}

	if len(r.entries) >= r.size {
		oldest := 0
		for i := range r.entries {
			if r.entries[i].FetchedAt.Before(r.entries[oldest].FetchedAt) {
				oldest = i
			}
		}
		r.entries = append(r.entries[:oldest], r.entries[oldest+1:]...)
	}

	r.entries = append(r.entries, Entry{TicketID: ticketID, Summary: summary, FetchedAt: now})
}

// List returns the recorded tickets, most recently fetched first.
func (r *Ring) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	sort.Slice(out, func(i, j int) bool {
		return out[i].FetchedAt.After(out[j].FetchedAt)
	})
	return out
}
