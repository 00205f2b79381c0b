package events

import (
	"sync"
	"time"

	"github.com/ftermdev/fterm/internal/protocol"
)

// GCKind splits collections into young-generation (minor) and
// old-generation (major) work.
type GCKind int

const (
	GCMinor GCKind = iota
	GCMajor
)

// ClassifyGC maps a VM-reported collection type to its kind. Scavenges
// are young-generation; MarkSweep, MarkCompact, and anything the VM
// adds later count as major.
func ClassifyGC(gcType string) GCKind {
	if gcType == "Scavenge" {
		return GCMinor
	}

	return GCMajor
}

// GCRecord is one retained collection observation.
type GCRecord struct {
	IsolateID string
	GCType    string
	Reason    string
	Time      time.Time
}

// GCHistory keeps a bounded rolling history of major collections.
// Minor collections fire far more frequently and would evict the
// diagnostically useful major ones from a fixed-capacity buffer, so
// they are classified but not retained.
type GCHistory struct {
	mu       sync.Mutex
	capacity int
	records  []GCRecord
}

// NewGCHistory creates a history retaining at most capacity records.
func NewGCHistory(capacity int) *GCHistory {
	return &GCHistory{capacity: capacity}
}

// Observe classifies one GC event and retains it when major. Returns
// true when the event was retained.
func (h *GCHistory) Observe(ev *protocol.GCEvent) bool {
	if ClassifyGC(ev.GCType) == GCMinor {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, GCRecord{
		IsolateID: ev.IsolateID,
		GCType:    ev.GCType,
		Reason:    ev.Reason,
		Time:      time.Now(),
	})

	if len(h.records) > h.capacity {
		h.records = h.records[len(h.records)-h.capacity:]
	}

	return true
}

// Records returns a copy of the retained history, oldest first.
func (h *GCHistory) Records() []GCRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]GCRecord, len(h.records))
	copy(out, h.records)

	return out
}
