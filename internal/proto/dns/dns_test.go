package dns

import (
	"testing"

	"github.com/andrewchi/mercury/pkg/cursor"
)

func buildQuery(name string, qtype uint16) []byte {
	buf := make([]byte, 12)
	buf[1] = 1  // id low byte
	buf[2] = 0x01 // flags: recursion desired
	buf[5] = 1    // qdcount = 1

	for _, label := range splitLabels(name) {
		buf = append(buf, byte(len(label)))
		buf = append(buf, label...)
	}
	buf = append(buf, 0)
	buf = append(buf, byte(qtype>>8), byte(qtype))
	buf = append(buf, 0, 1) // qclass = IN
	return buf
}

func splitLabels(name string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '.' {
			out = append(out, name[start:i])
			start = i + 1
		}
	}
	return out
}

func TestParseMessage(t *testing.T) {
	raw := buildQuery("example.com", 1)
	m := ParseMessage(cursor.New(raw))
	if !m.IsNotEmpty() {
		t.Fatalf("expected non-empty message")
	}
	if m.Name != "example.com" {
		t.Fatalf("unexpected name: %q", m.Name)
	}
	if !m.RecursionDesired {
		t.Fatalf("expected recursion desired flag set")
	}
	if m.QType != 1 || m.QClass != 1 {
		t.Fatalf("unexpected qtype/qclass: %d %d", m.QType, m.QClass)
	}
}

func TestParseMessageNoQuestions(t *testing.T) {
	buf := make([]byte, 12)
	m := ParseMessage(cursor.New(buf))
	if m.IsNotEmpty() {
		t.Fatalf("expected empty message when qdcount is zero")
	}
}

func TestParseMessageTruncated(t *testing.T) {
	m := ParseMessage(cursor.New(make([]byte, 4)))
	if m.IsNotEmpty() {
		t.Fatalf("expected empty message for truncated header")
	}
}
