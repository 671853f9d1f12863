// Package reassembly reconstructs a handshake message that spans multiple
// TCP segments, per spec.md 4.C. A Reassembler is owned by exactly one
// worker goroutine: no locks, no cross-worker sharing, matching the
// per-worker flow-table idiom the teacher uses in
// internal/engine/exactaggregator/keyed_aggregator.go generalized from a
// sharded concurrent map to a single-owner map (no sharding needed once
// there is no contention).
package reassembly

import (
	"time"

	"github.com/andrewchi/mercury/internal/core/model"
)

const (
	// DefaultBufferCap bounds each pending entry's buffer, per spec.md
	// 3 ("bounded, e.g. 8 KiB").
	DefaultBufferCap = 8192
	// DefaultReapAge is the idle bound after which a pending entry is
	// reaped, per spec.md 3 ("bounded idle (e.g. 30 s)").
	DefaultReapAge = 30 * time.Second
)

type key struct {
	flow model.FlowKey
	seq  uint32
}

type entry struct {
	buf       []byte
	fill      int
	required  int
	firstSeen time.Time
}

// Reassembler holds in-flight TCP segment fragments keyed by
// (flow, next-expected-sequence-number).
type Reassembler struct {
	bufferCap int
	reapAge   time.Duration
	entries   map[key]*entry
	// order preserves insertion order for age-based reaping without a
	// second index; reap() only needs "the oldest," so a slice of keys in
	// insertion order plus a lazy compaction on reap is enough (bucketed
	// FIFO, matching spec.md 9's "eviction is bucketed FIFO by insertion
	// time" note for flow tables generally).
	order []key
}

// New creates a Reassembler with the given per-entry buffer capacity and
// idle-reap age. Zero values fall back to the spec.md defaults.
func New(bufferCap int, reapAge time.Duration) *Reassembler {
	if bufferCap <= 0 {
		bufferCap = DefaultBufferCap
	}
	if reapAge <= 0 {
		reapAge = DefaultReapAge
	}
	return &Reassembler{
		bufferCap: bufferCap,
		reapAge:   reapAge,
		entries:   make(map[key]*entry),
	}
}

// CheckPacket looks for a pending entry matching (flow, nextExpectedSeq =
// tcpSeq) and, if found, copies the incoming segment into the buffer.
// If the entry's fill reaches its required length, the reassembled span is
// returned and the entry is left in place for the caller to remove via
// RemoveSegment. Returns (nil, false) if there is no matching pending
// entry, or if the entry is still short of its required length after this
// segment; the entry stays keyed by the sequence number it was stored under.
func (r *Reassembler) CheckPacket(flow model.FlowKey, now time.Time, seq uint32, payload []byte) ([]byte, bool) {
	k := key{flow: flow, seq: seq}
	e, ok := r.entries[k]
	if !ok {
		return nil, false
	}
	n := copy(e.buf[e.fill:e.required], payload)
	e.fill += n
	if e.fill < e.required {
		return nil, false
	}
	return e.buf[:e.fill], true
}

// CopyPacket stashes the bytes collected so far for a truncated parse,
// recording that `additionalBytesNeeded` more bytes are required before
// the message is complete. The next segment is expected to arrive with
// TCP sequence number seq+len(current). Returns false (and stores
// nothing) if the total required length would overflow the buffer
// capacity, matching spec.md 4.C's abandonment rule.
func (r *Reassembler) CopyPacket(flow model.FlowKey, now time.Time, seq uint32, current []byte, additionalBytesNeeded int) bool {
	required := len(current) + additionalBytesNeeded
	if required > r.bufferCap {
		return false
	}
	buf := make([]byte, r.bufferCap)
	n := copy(buf, current)

	nextSeq := seq + uint32(len(current))
	k := key{flow: flow, seq: nextSeq}
	r.entries[k] = &entry{
		buf:       buf,
		fill:      n,
		required:  required,
		firstSeen: now,
	}
	r.order = append(r.order, k)
	return true
}

// RemoveSegment drops the pending entry for (flow, seq), if any.
func (r *Reassembler) RemoveSegment(flow model.FlowKey, seq uint32) {
	delete(r.entries, key{flow: flow, seq: seq})
}

// ReapedEntry is a best-effort emission of whatever bytes were collected
// for an entry that aged out before completing.
type ReapedEntry struct {
	Flow    model.FlowKey
	Seq     uint32
	Partial []byte
}

// Reap pops every pending entry whose age exceeds the configured reap age
// and returns them for best-effort emission. Entries are removed from the
// reassembler as they are returned.
func (r *Reassembler) Reap(now time.Time) []ReapedEntry {
	var out []ReapedEntry
	live := r.order[:0]
	for _, k := range r.order {
		e, ok := r.entries[k]
		if !ok {
			continue
		}
		if now.Sub(e.firstSeen) > r.reapAge {
			out = append(out, ReapedEntry{Flow: k.flow, Seq: k.seq, Partial: e.buf[:e.fill]})
			delete(r.entries, k)
			continue
		}
		live = append(live, k)
	}
	r.order = live
	return out
}

// Len reports the number of pending entries, for tests and stats.
func (r *Reassembler) Len() int {
	return len(r.entries)
}
