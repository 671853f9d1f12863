package classifier

import (
	"container/list"
	"sync"
)

// DefaultPrevalenceCapacity bounds the number of distinct fingerprints the
// prevalence cache tracks before evicting the least recently seen.
const DefaultPrevalenceCapacity = 1 << 16

// Prevalence tracks how often each fingerprint has been observed since
// process start, layered on top of the archive's seeded fp_prevalence_tls
// set. Readers (the analysis hot path) must never block behind a writer;
// per spec.md 4.G the writer opportunistically updates counts using a
// try-lock and simply skips the update on contention rather than stalling
// a worker goroutine.
type Prevalence struct {
	capacity int

	mu      sync.RWMutex
	counts  map[string]uint64
	order   *list.List
	entries map[string]*list.Element
}

// NewPrevalence builds an empty prevalence cache with the given capacity.
func NewPrevalence(capacity int) *Prevalence {
	return &Prevalence{
		capacity: capacity,
		counts:   make(map[string]uint64),
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Observe records one more occurrence of fp. Called from the packet
// processing hot path; must not block. If another goroutine currently
// holds the lock (another worker's Observe, or a concurrent Count),
// this call drops the update rather than waiting.
func (p *Prevalence) Observe(fp string) {
	if p == nil || !p.mu.TryLock() {
		return
	}
	defer p.mu.Unlock()

	p.counts[fp]++
	if el, ok := p.entries[fp]; ok {
		p.order.MoveToFront(el)
		return
	}
	p.entries[fp] = p.order.PushFront(fp)
	if p.order.Len() > p.capacity {
		oldest := p.order.Back()
		if oldest != nil {
			evicted := oldest.Value.(string)
			p.order.Remove(oldest)
			delete(p.entries, evicted)
			delete(p.counts, evicted)
		}
	}
}

// Count returns how many times fp has been observed since process start
// (not counting the archive's seeded prevalence, which is a separate,
// build-time-only signal surfaced via Model.isSeeded).
func (p *Prevalence) Count(fp string) uint64 {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.counts[fp]
}

// isSeeded reports whether fp appeared in the archive's fp_prevalence_tls
// seed list at build time, independent of anything observed at runtime.
func (m *Model) isSeeded(fp string) bool {
	if m == nil {
		return false
	}
	return m.seeded[fp]
}
