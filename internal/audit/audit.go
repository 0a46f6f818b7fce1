package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GenesisHash anchors the first entry of a log instance. An explicit genesis
// value keeps tampering with the first entry detectable on its own.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Entry is one immutable audit record. Entries form a hash chain across the
// whole log instance, not per run: EntryHash covers PreviousHash plus a
// canonical serialization of every other field.
type Entry struct {
	RunID        uuid.UUID      `json:"runId"`
	AgentID      string         `json:"agentId"`
	Action       string         `json:"action"`
	Status       Status         `json:"status"`
	Input        map[string]any `json:"input,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	DurationMs   int64          `json:"durationMs"`
	Timestamp    time.Time      `json:"timestamp"`
	PreviousHash string         `json:"previousHash"`
	EntryHash    string         `json:"entryHash"`
}

// Log is an append-only, hash-chained record of agent actions. Appends are
// serialized so the PreviousHash linkage is well-defined under concurrency.
type Log struct {
	mu       sync.Mutex
	entries  []Entry
	lastHash string
	log      *zap.SugaredLogger
}

func NewLog() *Log {
	return &Log{
		lastHash: GenesisHash,
		log:      zap.S().Named("audit"),
	}
}

// Append computes the next entry of the chain and stores it.
func (l *Log) Append(runID uuid.UUID, agentID, action string, status Status, input, output map[string]any, duration time.Duration) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		RunID:        runID,
		AgentID:      agentID,
		Action:       action,
		Status:       status,
		Input:        input,
		Output:       output,
		DurationMs:   duration.Milliseconds(),
		Timestamp:    time.Now().UTC(),
		PreviousHash: l.lastHash,
	}
	entry.EntryHash = computeEntryHash(entry)

	l.entries = append(l.entries, entry)
	l.lastHash = entry.EntryHash

	l.log.Debugw("audit entry appended", "run_id", runID, "agent_id", agentID, "action", action, "status", status)
	return entry
}

// Trail returns the entries of one run in append order.
func (l *Log) Trail(runID uuid.UUID) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var trail []Entry
	for _, e := range l.entries {
		if e.RunID == runID {
			trail = append(trail, e)
		}
	}
	return trail
}

// All returns every entry in append order.
func (l *Log) All() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	all := make([]Entry, len(l.entries))
	copy(all, l.entries)
	return all
}

// VerifyIntegrity recomputes each entry's hash from its recorded fields and
// previous hash. Any post-hoc mutation of a field makes the recorded EntryHash
// stale and verification fails. The trail may be a per-run filter of the full
// chain, so linkage between consecutive trail entries is not required here; it
// is checked against each entry's own PreviousHash.
func VerifyIntegrity(trail []Entry) bool {
	for _, e := range trail {
		if computeEntryHash(e) != e.EntryHash {
			return false
		}
	}
	return true
}

// canonicalEntry fixes the serialization the hash covers: every field except
// the hashes themselves, in declaration order.
type canonicalEntry struct {
	RunID      uuid.UUID      `json:"runId"`
	AgentID    string         `json:"agentId"`
	Action     string         `json:"action"`
	Status     Status         `json:"status"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	DurationMs int64          `json:"durationMs"`
	Timestamp  time.Time      `json:"timestamp"`
}

func computeEntryHash(e Entry) string {
	canonical, err := json.Marshal(canonicalEntry{
		RunID:      e.RunID,
		AgentID:    e.AgentID,
		Action:     e.Action,
		Status:     e.Status,
		Input:      e.Input,
		Output:     e.Output,
		DurationMs: e.DurationMs,
		Timestamp:  e.Timestamp,
	})
	if err != nil {
		// map[string]any with marshalable values cannot fail; guard anyway
		canonical = []byte(e.Action)
	}

	h := sha256.New()
	h.Write([]byte(e.PreviousHash))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}
