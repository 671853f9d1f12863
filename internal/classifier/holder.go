package classifier

import "sync/atomic"

// Holder publishes a *Model by reference to every worker, the way
// spec.md 5 describes ("build once, then share by reference"), while
// still letting internal/archivewatch or a POST /classifier/reload call
// swap in a freshly loaded Model without coordinating with worker
// goroutines. Workers call Load() once per packet that reaches
// classification; the swap itself is lock-free.
type Holder struct {
	p atomic.Pointer[Model]
}

// NewHolder wraps an initial Model (nil is valid and means "classifier
// disabled until a reload succeeds").
func NewHolder(mdl *Model) *Holder {
	h := &Holder{}
	h.p.Store(mdl)
	return h
}

// Load returns the currently published Model, or nil if none is set.
func (h *Holder) Load() *Model {
	if h == nil {
		return nil
	}
	return h.p.Load()
}

// Store publishes a new Model, visible to the next Load from any
// goroutine.
func (h *Holder) Store(mdl *Model) {
	h.p.Store(mdl)
}
