// Package quic parses and decrypts QUIC Initial packets, per spec.md 4.E.
// An Initial packet's CRYPTO frames carry the TLS ClientHello in the
// clear once header protection is removed and the AEAD payload is
// decrypted with the version's well-known Initial secret (RFC 9001).
package quic

import "github.com/andrewchi/mercury/pkg/cursor"

// minPDULen is the minimum size of a UDP datagram carrying a QUIC Initial
// packet; anything shorter cannot be a real client Initial (RFC 9000
// requires padding to 1200 bytes) and is rejected up front.
const minPDULen = 1200

// minPNAndPayloadLen bounds how small the declared packet-number+payload
// length may be before we give up on the packet as malformed.
const minPNAndPayloadLen = 64

// InitialPacket is the decoded, still header-protected view of a QUIC
// long-header Initial packet. Header is the full wire header (used to
// reconstruct the AEAD associated data once header protection is
// removed); Payload is the still-protected packet-number + payload span.
type InitialPacket struct {
	ConnectionInfo uint8
	Version        uint32
	DCID           []byte
	SCID           []byte
	Token          []byte
	Header         []byte
	Payload        []byte
	GQUIC          bool
}

// IsNotEmpty reports whether a well-formed Initial packet was found.
func (p InitialPacket) IsNotEmpty() bool {
	return len(p.Payload) > 0 && len(p.DCID) > 0
}

// ParseInitialPacket recognizes a QUIC long-header Initial packet at the
// start of a UDP datagram. GREASE/unknown versions and packets shorter
// than the RFC 9000 anti-amplification padding floor are rejected.
func ParseInitialPacket(data []byte) InitialPacket {
	if len(data) < minPDULen {
		return InitialPacket{}
	}
	c := cursor.New(data)

	connInfo := c.ReadU8()
	const connInfoMask = 0b10110000
	const connInfoValue = 0b10000000
	if c.Null() || connInfo&connInfoMask != connInfoValue {
		return InitialPacket{}
	}

	version := c.ReadU32()
	if c.Null() {
		return InitialPacket{}
	}
	gquic := isGoogleQUIC(version)
	if !gquic {
		if _, ok := getInitialSalt(version); !ok {
			return InitialPacket{}
		}
	}

	dcidLen := int(c.ReadU8())
	if c.Null() || dcidLen > 20 {
		return InitialPacket{}
	}
	dcid := c.Lookahead(dcidLen)
	c.Advance(dcidLen)

	scidLen := int(c.ReadU8())
	if c.Null() || scidLen > 20 {
		return InitialPacket{}
	}
	scid := c.Lookahead(scidLen)
	c.Advance(scidLen)

	tokenLen := int(c.ReadVarint())
	if c.Null() {
		return InitialPacket{}
	}
	token := c.Lookahead(tokenLen)
	c.Advance(tokenLen)

	length := int(c.ReadVarint())
	if c.Null() || c.Len() < length || length < minPNAndPayloadLen {
		return InitialPacket{}
	}

	headerLen := len(data) - c.Len()
	header := data[:headerLen]
	payload := c.Lookahead(length)
	if payload == nil {
		return InitialPacket{}
	}

	return InitialPacket{
		ConnectionInfo: connInfo,
		Version:        version,
		DCID:           dcid,
		SCID:           scid,
		Token:          token,
		Header:         header,
		Payload:        payload,
		GQUIC:          gquic,
	}
}
