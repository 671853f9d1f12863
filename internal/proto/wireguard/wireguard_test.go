package wireguard

import (
	"testing"

	"github.com/andrewchi/mercury/pkg/cursor"
)

func buildHandshakeInitiation() []byte {
	buf := make([]byte, handshakeInitiationLen)
	buf[0] = MessageTypeHandshakeInitiation
	buf[4] = 0xAB // sender index high byte
	for i := range buf[handshakeInitiationLen-32:] {
		buf[handshakeInitiationLen-32+i] = 0xCD
	}
	return buf
}

func TestParseHandshakeInitiation(t *testing.T) {
	h := ParseHandshakeInitiation(cursor.New(buildHandshakeInitiation()))
	if !h.IsNotEmpty() {
		t.Fatalf("expected recognized handshake initiation")
	}
	if len(h.MAC1) != 16 || len(h.MAC2) != 16 {
		t.Fatalf("unexpected mac lengths: %d %d", len(h.MAC1), len(h.MAC2))
	}
}

func TestParseHandshakeInitiationWrongLength(t *testing.T) {
	h := ParseHandshakeInitiation(cursor.New(make([]byte, 32)))
	if h.IsNotEmpty() {
		t.Fatalf("expected empty result for wrong length")
	}
}

func TestParseHandshakeInitiationWrongType(t *testing.T) {
	buf := buildHandshakeInitiation()
	buf[0] = MessageTypeHandshakeResponse
	h := ParseHandshakeInitiation(cursor.New(buf))
	if h.IsNotEmpty() {
		t.Fatalf("expected empty result for wrong message type")
	}
}
