package logger

import (
	"fmt"
	"sync"
	"time"
)

// LogEntry is one line shown in the interactive log pane.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	NodeID    string
	Message   string
}

// LogBuffer is a fixed-size ring of recent entries, safe for concurrent use.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
}

func NewLogBuffer(maxSize int) *LogBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &LogBuffer{entries: make([]LogEntry, maxSize)}
}

// Add appends an entry, overwriting the oldest one when the ring is full.
func (lb *LogBuffer) Add(entry LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.entries[lb.next] = entry
	lb.next = (lb.next + 1) % len(lb.entries)
	if lb.next == 0 {
		lb.full = true
	}
}

func (lb *LogBuffer) Len() int {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.lenLocked()
}

func (lb *LogBuffer) lenLocked() int {
	if lb.full {
		return len(lb.entries)
	}
	return lb.next
}

// GetRecent returns up to count newest entries, oldest first.
func (lb *LogBuffer) GetRecent(count int) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	n := lb.lenLocked()
	if count > n {
		count = n
	}
	if count <= 0 {
		return nil
	}
	out := make([]LogEntry, count)
	start := lb.next - count
	for i := range out {
		idx := (start + i + len(lb.entries)) % len(lb.entries)
		out[i] = lb.entries[idx]
	}
	return out
}

func (lb *LogBuffer) GetAll() []LogEntry {
	return lb.GetRecent(len(lb.entries))
}

func (lb *LogBuffer) Clear() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.entries = make([]LogEntry, len(lb.entries))
	lb.next = 0
	lb.full = false
}

// FormatLogEntry renders an entry for the TUI.
func FormatLogEntry(entry LogEntry) string {
	return fmt.Sprintf("[%s] %-5s %s: %s",
		entry.Timestamp.Format("15:04:05"),
		entry.Level,
		entry.NodeID,
		entry.Message,
	)
}
