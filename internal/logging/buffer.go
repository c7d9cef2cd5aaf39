package logging

import (
	"sync"
	"time"
)

// LogEntry is one record as kept in the ring buffer and sent to log viewers.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent entries. Sequence numbers start at 1
// and never repeat, so a reader can resume with ReadSince.
type RingBuffer struct {
	mu    sync.RWMutex
	items []LogEntry
	next  int // slot the next write goes to once items is full
	seq   uint64
}

// NewRingBuffer returns a buffer holding up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{items: make([]LogEntry, 0, max(size, 1))}
}

// Write stamps entry with the next sequence number and stores it,
// evicting the oldest entry when full.
func (rb *RingBuffer) Write(entry LogEntry) uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.seq++
	entry.Seq = rb.seq
	if len(rb.items) < cap(rb.items) {
		rb.items = append(rb.items, entry)
	} else {
		rb.items[rb.next] = entry
		rb.next = (rb.next + 1) % len(rb.items)
	}
	return entry.Seq
}

// ReadAll returns every stored entry, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.ReadSince(0)
}

// ReadSince returns the stored entries newer than seq, oldest first.
func (rb *RingBuffer) ReadSince(seq uint64) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []LogEntry
	n := len(rb.items)
	for i := range n {
		if e := rb.items[(rb.next+i)%n]; e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of stored entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.items)
}
