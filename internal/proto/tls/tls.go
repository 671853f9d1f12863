// Package tls parses TLS record/handshake/ClientHello/ServerHello+Certificate
// framing over a pkg/cursor view, per spec.md 4.D. Parsing never allocates
// beyond the small structs returned; every byte slice is borrowed from the
// input. A handshake message that declares more bytes than are available
// reports AdditionalBytesNeeded so the caller can attempt TCP reassembly
// (internal/reassembly).
package tls

import "github.com/andrewchi/mercury/pkg/cursor"

// Handshake message types we recognize.
const (
	HandshakeTypeClientHello = 1
	HandshakeTypeServerHello = 2
	HandshakeTypeCertificate = 11
)

// ContentType values for the TLS record layer.
const (
	ContentTypeHandshake = 22
)

// Extension is a single TLS extension as it appeared on the wire.
type Extension struct {
	ID   uint16
	Data []byte
}

// ClientHello is the decoded subset of a TLS ClientHello mercury needs for
// fingerprinting and SNI extraction.
type ClientHello struct {
	Version            uint16
	Random             []byte
	SessionID          []byte
	CipherSuites       []uint16
	CompressionMethods []byte
	Extensions         []Extension

	AdditionalBytesNeeded int
}

// IsNotEmpty reports whether the minimum required fields were present.
func (c ClientHello) IsNotEmpty() bool {
	return c.Version != 0 && len(c.CipherSuites) > 0
}

// ServerNameExtensionID is the SNI extension's IANA number.
const ServerNameExtensionID = 0

// ServerName returns the "host_name" entry of the server_name extension,
// if present.
func (c ClientHello) ServerName() string {
	for _, ext := range c.Extensions {
		if ext.ID != ServerNameExtensionID {
			continue
		}
		ec := cursor.New(ext.Data)
		listLen := ec.ReadU16()
		list := ec.Slice(int(listLen))
		for list.Len() > 0 {
			nameType := list.ReadU8()
			nameLen := list.ReadU16()
			name := list.Slice(int(nameLen))
			if list.Null() {
				return ""
			}
			if nameType == 0 {
				return string(name.Remaining())
			}
		}
	}
	return ""
}

// stripRecordLayer consumes one TLS record header (type, version, length)
// and returns a cursor bounded to the record's declared body, the number
// of additional bytes the body is short by (0 if complete), and whether a
// well-formed header was present at all.
func stripRecordLayer(c cursor.Cursor) (body cursor.Cursor, shortfall int, headerOK bool) {
	if c.Len() < 5 {
		return cursor.Cursor{}, 0, false
	}
	contentType := c.ReadU8()
	_ = contentType
	c.Advance(2) // record version
	length := int(c.ReadU16())
	if c.Null() {
		return cursor.Cursor{}, 0, false
	}
	if c.Len() < length {
		return cursor.New(c.Remaining()), length - c.Len(), true
	}
	return c.Slice(length), 0, true
}

// ParseClientHelloRecord parses one TLS record containing a ClientHello
// handshake message (as seen on a TCP connection, record layer included).
func ParseClientHelloRecord(c cursor.Cursor) ClientHello {
	body, shortfall, headerOK := stripRecordLayer(c)
	if !headerOK {
		return ClientHello{}
	}
	if shortfall > 0 {
		return ClientHello{AdditionalBytesNeeded: shortfall}
	}
	return parseClientHelloHandshake(body)
}

// ParseClientHelloHandshake parses a bare handshake message (msg_type +
// 24-bit length + body), as produced by QUIC's CRYPTO-frame reassembly
// buffer, which carries no TLS record layer.
func ParseClientHelloHandshake(c cursor.Cursor) ClientHello {
	return parseClientHelloHandshake(c)
}

func parseClientHelloHandshake(c cursor.Cursor) ClientHello {
	if c.Len() < 4 {
		return ClientHello{}
	}
	msgType := c.ReadU8()
	length := int(c.ReadU24())
	if c.Null() || msgType != HandshakeTypeClientHello {
		return ClientHello{}
	}
	if c.Len() < length {
		return ClientHello{AdditionalBytesNeeded: length - c.Len()}
	}
	body := c.Slice(length)

	var ch ClientHello
	ch.Version = body.ReadU16()
	ch.Random = body.Lookahead(32)
	body.Advance(32)
	sidLen := int(body.ReadU8())
	ch.SessionID = body.Lookahead(sidLen)
	body.Advance(sidLen)

	csLen := int(body.ReadU16())
	csBody := body.Slice(csLen)
	for csBody.Len() >= 2 {
		ch.CipherSuites = append(ch.CipherSuites, csBody.ReadU16())
	}

	cmLen := int(body.ReadU8())
	ch.CompressionMethods = body.Lookahead(cmLen)
	body.Advance(cmLen)

	if body.Null() {
		return ClientHello{}
	}
	if body.Len() >= 2 {
		extLen := int(body.ReadU16())
		extBody := body.Slice(extLen)
		for extBody.Len() >= 4 {
			id := extBody.ReadU16()
			dataLen := int(extBody.ReadU16())
			data := extBody.Lookahead(dataLen)
			extBody.Advance(dataLen)
			if extBody.Null() {
				break
			}
			ch.Extensions = append(ch.Extensions, Extension{ID: id, Data: data})
		}
	}
	return ch
}

// ServerHello is the decoded subset of a TLS ServerHello.
type ServerHello struct {
	Version           uint16
	Random            []byte
	SessionID         []byte
	CipherSuite       uint16
	CompressionMethod uint8
	Extensions        []Extension
}

// IsNotEmpty reports whether the minimum required fields were present.
func (s ServerHello) IsNotEmpty() bool {
	return s.Version != 0 && s.CipherSuite != 0
}

// Certificate holds a chain of raw DER certificate bytes. Further X.509
// parsing is out of scope (spec.md 4.D: "further X.509 parsing optional,
// behind a flag") and not implemented here.
type Certificate struct {
	Chain [][]byte
}

// ParseServerHelloRecord parses one TLS record containing a ServerHello.
func ParseServerHelloRecord(c cursor.Cursor) ServerHello {
	body, shortfall, headerOK := stripRecordLayer(c)
	if !headerOK || shortfall > 0 || body.Null() {
		return ServerHello{}
	}
	if body.Len() < 4 {
		return ServerHello{}
	}
	msgType := body.ReadU8()
	length := int(body.ReadU24())
	if body.Null() || msgType != HandshakeTypeServerHello || body.Len() < length {
		return ServerHello{}
	}
	hs := body.Slice(length)

	var sh ServerHello
	sh.Version = hs.ReadU16()
	sh.Random = hs.Lookahead(32)
	hs.Advance(32)
	sidLen := int(hs.ReadU8())
	hs.Advance(sidLen)
	sh.CipherSuite = hs.ReadU16()
	sh.CompressionMethod = hs.ReadU8()
	if hs.Null() {
		return ServerHello{}
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
			sh.Extensions = append(sh.Extensions, Extension{ID: id, Data: data})
		}
	}
	return sh
}

// ParseCertificateRecord parses one TLS record containing a Certificate
// handshake message, emitting each certificate as a raw byte slice.
func ParseCertificateRecord(c cursor.Cursor) Certificate {
	body, shortfall, headerOK := stripRecordLayer(c)
	if !headerOK || shortfall > 0 || body.Null() {
		return Certificate{}
	}
	if body.Len() < 4 {
		return Certificate{}
	}
	msgType := body.ReadU8()
	length := int(body.ReadU24())
	if body.Null() || msgType != HandshakeTypeCertificate || body.Len() < length {
		return Certificate{}
	}
	hs := body.Slice(length)

	listLen := int(hs.ReadU24())
	list := hs.Slice(listLen)
	var cert Certificate
	for list.Len() >= 3 {
		certLen := int(list.ReadU24())
		der := list.Lookahead(certLen)
		list.Advance(certLen)
		if list.Null() {
			break
		}
		cert.Chain = append(cert.Chain, der)
	}
	return cert
}
