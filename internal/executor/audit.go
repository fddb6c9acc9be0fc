package executor

import (
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

const auditRingCapacity = 1000

// AuditEntry is one record of a bounded audit ring.
type AuditEntry struct {
	ID            string
	Timestamp     time.Time
	Query         string
	ExecutionTime time.Duration
	RowCount      int
	Success       bool
	ErrorMessage  string
}

// auditRing is a bounded append-only FIFO; once full, the oldest entry is
// dropped to make room for the newest.
type auditRing struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func newAuditRing() *auditRing {
	return &auditRing{entries: make([]AuditEntry, 0, auditRingCapacity)}
}

func (r *auditRing) append(e AuditEntry) {
	if len(e.Query) > 1000 {
		e.Query = e.Query[:1000]
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, e)
	if len(r.entries) > auditRingCapacity {
		r.entries = r.entries[len(r.entries)-auditRingCapacity:]
	}
}

func (r *auditRing) snapshot() []AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AuditEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// suspiciousErrorRe matches driver error text that suggests a probing
// attempt rather than an honest mistake.
var suspiciousErrorRe = regexp.MustCompile(`(?i)access denied|permission denied|table .* doesn't exist|column .* doesn't exist|syntax error`)

func isSuspiciousError(msg string) bool {
	return suspiciousErrorRe.MatchString(msg)
}
