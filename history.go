package main

// historyLimit bounds how many sheet snapshots the undo ring retains.
const historyLimit = 50

// History is the bounded undo stack. Entries are whole Sheet values pushed
// before each mutation; because sheet mutation is copy-on-write, a pushed
// value is immutable and can be stored without deep copying. There is no
// redo: an undone snapshot is discarded.
type History struct {
	entries []Sheet
	limit   int
}

func newHistory(limit int) *History {
	return &History{limit: limit}
}

// Push prepends a snapshot, dropping the oldest entries past the limit.
func (h *History) Push(s Sheet) {
	h.entries = append([]Sheet{s}, h.entries...)
	if len(h.entries) > h.limit {
		h.entries = h.entries[:h.limit]
	}
}

// Undo pops and returns the most recent snapshot.
func (h *History) Undo() (Sheet, bool) {
	if len(h.entries) == 0 {
		return Sheet{}, false
	}
	s := h.entries[0]
	h.entries = h.entries[1:]
	return s, true
}

func (h *History) Len() int {
	return len(h.entries)
}
