package workflow

import "sync"

// History is a bounded FIFO store of finished executions. Snapshots go in,
// snapshots come out: readers never see a live reference, so eviction racing
// a read is harmless.
type History struct {
	mu    sync.Mutex
	limit int
	items []Snapshot // oldest first
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 50
	}
	return &History{limit: limit}
}

// Append records a finished execution, evicting the oldest entry when full.
// Finished records are never re-accessed for ordering, so plain FIFO beats LRU here.
func (h *History) Append(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items = append(h.items, s)
	if len(h.items) > h.limit {
		h.items = h.items[len(h.items)-h.limit:]
	}
}

// Find returns the snapshot for an execution id, if it is still retained.
func (h *History) Find(id string) (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := len(h.items) - 1; i >= 0; i-- {
		if h.items[i].ID == id {
			return h.items[i].clone(), true
		}
	}
	return Snapshot{}, false
}

// List returns up to limit finished executions, newest first.
func (h *History) List(limit int) []Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Snapshot, 0, n)
	for i := len(h.items) - 1; i >= len(h.items)-n; i-- {
		out = append(out, h.items[i].clone())
	}
	return out
}

// Len returns the number of retained executions.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Records = make(map[string]ExecutionRecord, len(s.Records))
	for id, rec := range s.Records {
		if rec.Error != nil {
			e := *rec.Error
			rec.Error = &e
		}
		out.Records[id] = rec
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
