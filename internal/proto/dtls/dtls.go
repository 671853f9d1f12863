// Package dtls parses just enough of DTLS to distinguish and fingerprint a
// ClientHello, per spec.md 4.D ("like TLS but with record epoch/sequence
// and fragment offset; only ClientHello is distinguished for
// fingerprinting").
package dtls

import (
	"github.com/andrewchi/mercury/internal/proto/tls"
	"github.com/andrewchi/mercury/pkg/cursor"
)

const handshakeTypeClientHello = 1

// ClientHello reuses tls.ClientHello for its field set; the version field
// carries the DTLS version (e.g. 0xfefd for DTLS 1.2) rather than a TLS
// version, which the fingerprint builder must be aware of.
type ClientHello = tls.ClientHello

// ParseClientHello parses a DTLS record layer (type, version, epoch,
// sequence number, length) followed by a fragmented handshake header
// (msg_type, length, message_seq, fragment_offset, fragment_length).
// Fragmentation reassembly beyond a single fragment is not attempted:
// a ClientHello split across DTLS fragments yields an empty result,
// matching spec.md's "infallible w.r.t. crashes; malformed input yields
// an empty result."
func ParseClientHello(c cursor.Cursor) ClientHello {
	if c.Len() < 13 {
		return ClientHello{}
	}
	c.Advance(1)  // content type
	c.Advance(2)  // version
	c.Advance(8)  // epoch(2) + sequence number(6)
	length := int(c.ReadU16())
	if c.Null() || c.Len() < length {
		return ClientHello{}
	}
	body := c.Slice(length)

	if body.Len() < 12 {
		return ClientHello{}
	}
	msgType := body.ReadU8()
	hsLen := int(body.ReadU24())
	body.Advance(2) // message_seq
	fragOffset := int(body.ReadU24())
	fragLen := int(body.ReadU24())
	if body.Null() || msgType != handshakeTypeClientHello {
		return ClientHello{}
	}
	if fragOffset != 0 || fragLen != hsLen {
		// Only a single, unfragmented ClientHello is supported.
		return ClientHello{}
	}
	if body.Len() < hsLen {
		return ClientHello{}
	}
	hs := body.Slice(hsLen)

	var ch ClientHello
	ch.Version = hs.ReadU16()
	ch.Random = hs.Lookahead(32)
	hs.Advance(32)
	sidLen := int(hs.ReadU8())
	ch.SessionID = hs.Lookahead(sidLen)
	hs.Advance(sidLen)

	cookieLen := int(hs.ReadU8())
	hs.Advance(cookieLen)

	csLen := int(hs.ReadU16())
	csBody := hs.Slice(csLen)
	for csBody.Len() >= 2 {
		ch.CipherSuites = append(ch.CipherSuites, csBody.ReadU16())
	}

	cmLen := int(hs.ReadU8())
	ch.CompressionMethods = hs.Lookahead(cmLen)
	hs.Advance(cmLen)

	if hs.Null() {
		return ClientHello{}
	}
	if hs.Len() >= 2 {
		extLen := int(hs.ReadU16())
		extBody := hs.Slice(extLen)
		for extBody.Len() >= 4 {
			id := extBody.ReadU16()
			dataLen := int(extBody.ReadU16())
			data := extBody.Lookahead(dataLen)
			extBody.Advance(dataLen)
			if extBody.Null() {
				break
			}
			ch.Extensions = append(ch.Extensions, tls.Extension{ID: id, Data: data})
		}
	}
	return ch
}
