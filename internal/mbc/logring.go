package mbc

import "slices"

const DefaultLogLimit = 500

// LogRing is an immutable bounded log history. Append returns a new ring and
// never touches the backing array of the receiver, so older snapshots stay
// valid.
type LogRing struct {
	limit   int
	entries []LogEntry
}

func NewLogRing(limit int) LogRing {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	return LogRing{limit: limit}
}

func (r LogRing) Append(e LogEntry) LogRing {
	limit := r.limit
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	start := 0
	if len(r.entries) >= limit {
		start = len(r.entries) - limit + 1
	}
	kept := r.entries[start:]
	out := make([]LogEntry, 0, len(kept)+1)
	out = append(out, kept...)
	out = append(out, e)
	return LogRing{limit: limit, entries: out}
}

func (r LogRing) Len() int   { return len(r.entries) }
func (r LogRing) Limit() int { return r.limit }

func (r LogRing) Entries() []LogEntry { return slices.Clone(r.entries) }

// Tail returns at most n of the newest entries, oldest first.
func (r LogRing) Tail(n int) []LogEntry {
	if n <= 0 {
		return nil
	}
	if n > len(r.entries) {
		n = len(r.entries)
	}
	return slices.Clone(r.entries[len(r.entries)-n:])
}
