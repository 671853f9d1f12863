// Package merge implements the output thread's tournament-tree k-way
// merge over per-worker rings, per spec.md 4.J. Exactly one goroutine
// (the output thread) owns a Writer; it is the only thing that touches
// the output file, matching spec.md 5's "output file is touched only by
// the output thread" rule.
package merge

import (
	"bufio"
	"os"
	"time"

	"github.com/andrewchi/mercury/internal/ring"
)

// MaxAge bounds how long the merge can wait for a stalled (empty) queue
// before flushing older records anyway, per spec.md 4.J ("LLQ_MAX_AGE
// (5 s)"). cmd/mercuryd overrides this from config.OutputConfig.LLQMaxAge
// once at startup, before the writer's Run loop starts.
var MaxAge = 5 * time.Second

// pollInterval is the output loop's idle sleep between drain passes,
// spec.md 5's "1 µs nanosleep between drain passes".
const pollInterval = time.Microsecond

// Sink receives every record after it is written to the primary output
// file, in emitted order — the hook the optional ClickHouse mirror (§3.5)
// attaches to.
type Sink interface {
	Write(msg ring.Message)
}

// Writer drains N rings in timestamp order via a tournament tree and
// writes each record's payload, newline-terminated, to an output file,
// rotating on size.
//
// The tree is a classic array-indexed tournament: leafBase..leafBase+size-1
// hold queue indices (-1 for padding beyond len(rings)); every other index
// 1..leafBase-1 holds the winner of its two children, with node 1 the
// overall winner. Popping a leaf only needs to re-run the O(log N) chain
// of ancestors back to the root, per spec.md 4.J step 2.
type Writer struct {
	rings []*ring.Ring
	sinks []Sink

	path           string
	rotateMaxBytes int64

	file    *os.File
	bw      *bufio.Writer
	written int64

	size     int   // leaf count, a power of two >= len(rings)
	leafBase int   // index of the first leaf in tree
	tree     []int // tree[1] is the root winner's queue index (-1 if none)

	stop chan struct{}
	done chan struct{}
}

// NewWriter opens path for append and builds a tournament tree sized to
// the next power of two ≥ len(rings), per spec.md 4.J.
func NewWriter(path string, rotateMaxBytes int64, rings []*ring.Ring, sinks ...Sink) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	size := nextPowerOfTwo(len(rings))
	w := &Writer{
		rings:          rings,
		sinks:          sinks,
		path:           path,
		rotateMaxBytes: rotateMaxBytes,
		file:           f,
		bw:             bufio.NewWriter(f),
		written:        info.Size(),
		size:           size,
		leafBase:       size,
		tree:           make([]int, 2*size),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		if i < len(rings) {
			w.tree[w.leafBase+i] = i
		} else {
			w.tree[w.leafBase+i] = -1
		}
	}
	w.rebuild()
	return w, nil
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// rebuild runs the tournament for every pair, per spec.md 4.J step 1.
func (w *Writer) rebuild() {
	if w.size == 0 {
		return
	}
	for i := w.leafBase - 1; i >= 1; i-- {
		w.tree[i] = w.winnerOf(w.tree[2*i], w.tree[2*i+1])
	}
}

// updatePath recomputes only the ancestors of leaf i, per spec.md 4.J
// step 2 ("re-run only that queue's path to root (O(log N))").
func (w *Writer) updatePath(queueIdx int) {
	i := (w.leafBase + queueIdx) / 2
	for i >= 1 {
		w.tree[i] = w.winnerOf(w.tree[2*i], w.tree[2*i+1])
		i /= 2
	}
}

// winnerOf applies queue_less to two queue indices (either may be -1 for
// tournament padding, or for "no live queue on this side"). It never
// blocks and never mutates ring state.
func (w *Writer) winnerOf(l, r int) int {
	if l < 0 {
		return r
	}
	if r < 0 {
		return l
	}
	lMsg, lOK := w.rings[l].Peek()
	rMsg, rOK := w.rings[r].Peek()
	switch {
	case !lOK && !rOK:
		return -1
	case !lOK:
		return r
	case !rOK:
		return l
	case less(lMsg, rMsg, l, r):
		return l
	default:
		return r
	}
}

// less implements queue_less's timestamp comparison with ties going to
// the lower index, for two candidate queue heads.
func less(a, b ring.Message, aIdx, bIdx int) bool {
	if a.TimestampSec != b.TimestampSec {
		return a.TimestampSec < b.TimestampSec
	}
	if a.TimestampNsec != b.TimestampNsec {
		return a.TimestampNsec < b.TimestampNsec
	}
	return aIdx < bIdx
}

// Run drives the main loop until Stop is called and every ring has
// drained, per spec.md 4.J's 4-step loop. It blocks the calling
// goroutine; callers typically `go w.Run()`.
func (w *Writer) Run() {
	defer close(w.done)
	for {
		w.drainOnce()
		select {
		case <-w.stop:
			if w.allEmpty() {
				w.bw.Flush()
				return
			}
		default:
		}
		time.Sleep(pollInterval)
	}
}

// Stop signals the output loop to drain remaining rings and terminate.
func (w *Writer) Stop() {
	close(w.stop)
	<-w.done
	w.file.Close()
}

func (w *Writer) allEmpty() bool {
	for _, r := range w.rings {
		if !r.Empty() {
			return false
		}
	}
	return true
}

// stalled reports whether any live (non-padding) queue is currently
// empty — the tournament's "used=0" condition for at least one slot.
func (w *Writer) stalled() bool {
	for _, r := range w.rings {
		if r.Empty() {
			return true
		}
	}
	return false
}

// drainOnce runs one pass of the tournament: pop winners in timestamp
// order while no queue is stalled; once stalled, flush only winners
// older than the age cutoff, still in tournament order.
func (w *Writer) drainOnce() {
	w.rebuild()
	for !w.stalled() {
		winner := w.tree[1]
		if winner < 0 {
			break
		}
		w.popAndWrite(winner)
	}

	if len(w.rings) == 0 {
		return
	}
	cutoff := nowFunc().Add(-MaxAge)
	for {
		winner := w.tree[1]
		if winner < 0 {
			break
		}
		msg, ok := w.rings[winner].Peek()
		if !ok {
			break
		}
		ts := time.Unix(msg.TimestampSec, msg.TimestampNsec)
		if !ts.Before(cutoff) {
			break
		}
		w.popAndWrite(winner)
	}
}

func (w *Writer) popAndWrite(idx int) {
	msg, ok := w.rings[idx].Pop()
	if !ok {
		return
	}
	w.updatePath(idx)
	w.writeRecord(msg)
	for _, s := range w.sinks {
		s.Write(msg)
	}
}

func (w *Writer) writeRecord(msg ring.Message) {
	n, err := w.bw.Write(msg.Buf)
	if err == nil {
		err = w.bw.WriteByte('\n')
		n++
	}
	if err != nil {
		return
	}
	w.written += int64(n)
	if w.rotateMaxBytes > 0 && w.written >= w.rotateMaxBytes {
		w.rotate()
	}
}

// rotate closes and reopens the output file atomically (from the output
// thread's perspective — no other goroutine ever touches w.file).
func (w *Writer) rotate() {
	w.bw.Flush()
	w.file.Close()
	rotatedPath := w.path + "." + nowFunc().Format("20060102T150405")
	os.Rename(w.path, rotatedPath)
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	w.file = f
	w.bw = bufio.NewWriter(f)
	w.written = 0
}

// nowFunc is a seam for tests; production always uses time.Now.
var nowFunc = time.Now
