// Package wireguard recognizes a WireGuard handshake initiation message,
// per spec.md 4.D. The handshake payload is fully encrypted (Noise IK), so
// there is nothing to fingerprint beyond the fixed message layout itself;
// this package exists to identify the message type and extract the fields
// that are sent in the clear.
package wireguard

import "github.com/andrewchi/mercury/pkg/cursor"

// Message types, per the WireGuard protocol.
const (
	MessageTypeHandshakeInitiation = 1
	MessageTypeHandshakeResponse   = 2
	MessageTypeCookieReply         = 3
	MessageTypeTransportData       = 4
)

// handshakeInitiationLen is the fixed wire size of a type-1 message:
// type(1)+reserved(3)+sender_index(4)+ephemeral(32)+static(48)+timestamp(28)+mac1(16)+mac2(16).
const handshakeInitiationLen = 148

// HandshakeInitiation is the decoded subset of a type-1 message. Every
// field past the message type is opaque ciphertext or a MAC; only their
// presence and length matter for fingerprinting.
type HandshakeInitiation struct {
	SenderIndex uint32
	MAC1        []byte
	MAC2        []byte
}

// IsNotEmpty reports whether the message was recognized.
func (h HandshakeInitiation) IsNotEmpty() bool {
	return len(h.MAC1) > 0
}

// ParseHandshakeInitiation recognizes a fixed-length type-1 message and
// extracts the sender index and both MAC fields.
func ParseHandshakeInitiation(c cursor.Cursor) HandshakeInitiation {
	if c.Len() != handshakeInitiationLen {
		return HandshakeInitiation{}
	}
	msgType := c.ReadU8()
	c.Advance(3) // reserved, must be zero but not enforced
	if c.Null() || msgType != MessageTypeHandshakeInitiation {
		return HandshakeInitiation{}
	}
	var h HandshakeInitiation
	h.SenderIndex = c.ReadU32()
	c.Advance(32 + 48 + 28) // ephemeral, static, timestamp
	h.MAC1 = c.Lookahead(16)
	c.Advance(16)
	h.MAC2 = c.Lookahead(16)
	c.Advance(16)
	if c.Null() {
		return HandshakeInitiation{}
	}
	return h
}
