package merge

import (
	"bufio"
	"os"
	"testing"
	"time"

	"github.com/andrewchi/mercury/internal/ring"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if sc.Text() != "" {
			lines = append(lines, sc.Text())
		}
	}
	return lines
}

// TestTwoRingsInterleaveByTimestamp checks that records already queued on
// two rings, 1 s apart, merge in strict timestamp order.
func TestTwoRingsInterleaveByTimestamp(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/out.jsonl"

	r1 := ring.New(8, ring.Blocking)
	r2 := ring.New(8, ring.Blocking)
	r1.Push(ring.Message{TimestampSec: 1, Buf: []byte(`{"id":1}`)})
	r1.Push(ring.Message{TimestampSec: 3, Buf: []byte(`{"id":3}`)})
	r2.Push(ring.Message{TimestampSec: 2, Buf: []byte(`{"id":2}`)})
	r2.Push(ring.Message{TimestampSec: 4, Buf: []byte(`{"id":4}`)})

	w, err := NewWriter(path, 0, []*ring.Ring{r1, r2})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	go w.Run()
	w.Stop()

	lines := readLines(t, path)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %v", len(lines), lines)
	}
	want := []string{`{"id":1}`, `{"id":2}`, `{"id":3}`, `{"id":4}`}
	for i, w := range want {
		if lines[i] != w {
			t.Fatalf("line %d: expected %q, got %q", i, w, lines[i])
		}
	}
}

// TestStalledQueueFlushesPastCutoff checks that when one queue never gets
// a message, the merge still flushes the other queue's records once they
// age past MaxAge, rather than blocking forever.
func TestStalledQueueFlushesPastCutoff(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/out.jsonl"

	old := nowFunc
	defer func() { nowFunc = old }()
	base := time.Unix(1000, 0)
	nowFunc = func() time.Time { return base }

	r1 := ring.New(8, ring.Blocking)
	r2 := ring.New(8, ring.Blocking) // left permanently empty
	oldTS := base.Add(-MaxAge - time.Second).Unix()
	r1.Push(ring.Message{TimestampSec: oldTS, Buf: []byte(`{"id":1}`)})

	w, err := NewWriter(path, 0, []*ring.Ring{r1, r2})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	w.drainOnce()
	w.bw.Flush()

	lines := readLines(t, path)
	if len(lines) != 1 || lines[0] != `{"id":1}` {
		t.Fatalf("expected the aged-out record to flush despite the stalled queue, got %v", lines)
	}
}

func TestFourRingsConcurrentProducersAllRecordsWritten(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/out.jsonl"

	const perRing = 200
	rings := make([]*ring.Ring, 4)
	for i := range rings {
		rings[i] = ring.New(64, ring.Blocking)
	}

	w, err := NewWriter(path, 0, rings)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	go w.Run()

	done := make(chan struct{})
	for i, r := range rings {
		go func(i int, r *ring.Ring) {
			for j := 0; j < perRing; j++ {
				r.Push(ring.Message{
					TimestampSec: int64(j),
					Buf:          []byte(`{"ring":` + itoa(i) + `,"seq":` + itoa(j) + `}`),
				})
			}
			done <- struct{}{}
		}(i, r)
	}
	for range rings {
		<-done
	}
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	lines := readLines(t, path)
	if len(lines) != len(rings)*perRing {
		t.Fatalf("expected %d lines, got %d", len(rings)*perRing, len(lines))
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
