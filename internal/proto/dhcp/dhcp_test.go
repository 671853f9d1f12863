package dhcp

import (
	"testing"

	"github.com/andrewchi/mercury/pkg/cursor"
)

func buildMessage(options []byte) []byte {
	hdr := make([]byte, 236)
	hdr[0] = 1 // op = BOOTREQUEST
	hdr[1] = 1 // htype = ethernet
	hdr[2] = 6 // hlen
	out := append(hdr, 0x63, 0x82, 0x53, 0x63)
	out = append(out, options...)
	return out
}

func TestParseMessage(t *testing.T) {
	options := []byte{
		OptionParameterRequestList, 3, 1, 3, 6,
		OptionVendorClassID, 4, 'M', 'S', 'F', 'T',
		OptionEnd,
	}
	raw := buildMessage(options)
	m := ParseMessage(cursor.New(raw))
	if !m.IsNotEmpty() {
		t.Fatalf("expected non-empty message")
	}
	if m.Op != 1 || m.HType != 1 || m.HLen != 6 {
		t.Fatalf("unexpected header fields: %+v", m)
	}
	if len(m.Options) != 2 {
		t.Fatalf("expected 2 options, got %d: %+v", len(m.Options), m.Options)
	}
	prl := m.ParameterRequestList()
	if string(prl) != "\x01\x03\x06" {
		t.Fatalf("unexpected parameter request list: %v", prl)
	}
	if string(m.VendorClassID()) != "MSFT" {
		t.Fatalf("unexpected vendor class id: %q", m.VendorClassID())
	}
}

func TestParseMessageBadCookie(t *testing.T) {
	raw := make([]byte, 240)
	m := ParseMessage(cursor.New(raw))
	if m.IsNotEmpty() {
		t.Fatalf("expected empty message for bad magic cookie")
	}
}

func TestParseMessageTruncated(t *testing.T) {
	raw := make([]byte, 100)
	m := ParseMessage(cursor.New(raw))
	if m.IsNotEmpty() {
		t.Fatalf("expected empty message for truncated input")
	}
}
