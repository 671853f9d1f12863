// Package fingerprint builds the canonical, GREASE-normalized
// "protocol/version/(tok)(tok)..." byte string mercury derives from a
// parsed handshake, per spec.md 4.F. Every Build* function writes into a
// fixed-capacity buffer and reports false (an invalid fingerprint) rather
// than growing the buffer, matching the bounded-stream requirement.
package fingerprint

import (
	"fmt"

	"github.com/andrewchi/mercury/internal/proto/dhcp"
	appHTTP "github.com/andrewchi/mercury/internal/proto/http"
	"github.com/andrewchi/mercury/internal/proto/ssh"
	"github.com/andrewchi/mercury/internal/proto/tls"
)

// MaxLength bounds a fingerprint string. A handshake that would need more
// than this to describe is truncated to invalid rather than emitted
// partially, per spec.md 4.F ("truncation marks the fingerprint invalid").
const MaxLength = 4096

// stream is a fixed-capacity byte buffer that stops accepting writes once
// full, instead of growing.
type stream struct {
	buf       []byte
	truncated bool
}

func newStream() *stream {
	return &stream{buf: make([]byte, 0, MaxLength)}
}

func (s *stream) writeByte(b byte) {
	if len(s.buf) >= MaxLength {
		s.truncated = true
		return
	}
	s.buf = append(s.buf, b)
}

func (s *stream) writeString(str string) {
	for i := 0; i < len(str); i++ {
		s.writeByte(str[i])
	}
}

func (s *stream) writeHex(b []byte) {
	const hexDigits = "0123456789abcdef"
	for _, x := range b {
		s.writeByte(hexDigits[x>>4])
		s.writeByte(hexDigits[x&0x0f])
	}
}

// finish returns the accumulated string, or ("", false) if the stream
// overflowed at any point.
func (s *stream) finish() (string, bool) {
	if s.truncated {
		return "", false
	}
	return string(s.buf), true
}

// isTLSGrease reports whether a 16-bit value is one of RFC 8701's 16
// reserved GREASE code points (0x0a0a, 0x1a1a, ..., 0xfafa).
func isTLSGrease(v uint16) bool {
	return v&0x0f0f == 0x0a0a && (v>>12)&0x0f == (v>>4)&0x0f
}

func greaseNormalizeU16(v uint16) uint16 {
	if isTLSGrease(v) {
		return 0x0a0a
	}
	return v
}

func writeU16Hex(s *stream, v uint16) {
	s.writeHex([]byte{byte(v >> 8), byte(v)})
}

func writeU32Hex(s *stream, v uint32) {
	s.writeHex([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

// tlsExtensionDataAllowList names the extensions whose data is included in
// the fingerprint body verbatim (beyond just their id); this mirrors the
// header allow-list decision for HTTP but is a fixed, well-known set of
// TLS extensions that materially affect a client's negotiation behavior.
var tlsExtensionDataAllowList = map[uint16]bool{
	10: true, // supported_groups
	11: true, // ec_point_formats
	13: true, // signature_algorithms
	16: true, // application_layer_protocol_negotiation
	43: true, // supported_versions
	51: true, // key_share
}

// buildTLSBody writes "(version)(cipher_suites)(extensions)" for a
// ClientHello, per spec.md 4.F.
func buildTLSBody(s *stream, ch tls.ClientHello) {
	s.writeByte('(')
	writeU16Hex(s, ch.Version)
	s.writeByte(')')

	s.writeByte('(')
	for _, cs := range ch.CipherSuites {
		writeU16Hex(s, greaseNormalizeU16(cs))
	}
	s.writeByte(')')

	s.writeByte('(')
	for _, ext := range ch.Extensions {
		s.writeByte('(')
		id := greaseNormalizeU16(ext.ID)
		writeU16Hex(s, id)
		if tlsExtensionDataAllowList[ext.ID] && !isTLSGrease(ext.ID) {
			s.writeByte('[')
			s.writeHex(ext.Data)
			s.writeByte(']')
		}
		s.writeByte(')')
	}
	s.writeByte(')')
}

// BuildTLS builds a "tls/1/(...)" fingerprint from a ClientHello.
func BuildTLS(ch tls.ClientHello) (string, bool) {
	if !ch.IsNotEmpty() {
		return "", false
	}
	s := newStream()
	s.writeString("tls/1/")
	buildTLSBody(s, ch)
	return s.finish()
}

// TransportParameter is a single QUIC transport parameter's id, prior to
// GREASE normalization.
type TransportParameter struct {
	ID   uint64
	Data []byte
}

// isQUICTransportParamGrease reports whether id is one of QUIC's reserved
// GREASE transport parameter ids (any id such that id mod 31 == 27).
func isQUICTransportParamGrease(id uint64) bool {
	return id%31 == 27
}

// BuildQUIC builds a "quic/1/(version)(tls_body)(transport_params)"
// fingerprint from the decrypted Initial packet's version, inner
// ClientHello, and transport parameters.
func BuildQUIC(version uint32, ch tls.ClientHello, params []TransportParameter) (string, bool) {
	if !ch.IsNotEmpty() {
		return "", false
	}
	s := newStream()
	s.writeString("quic/1/")
	s.writeByte('(')
	writeU32Hex(s, version)
	s.writeByte(')')
	buildTLSBody(s, ch)

	s.writeByte('(')
	for _, p := range params {
		s.writeByte('(')
		id := p.ID
		if isQUICTransportParamGrease(id) {
			id = 0x1B
		}
		s.writeString(fmt.Sprintf("%x", id))
		s.writeByte(')')
	}
	s.writeByte(')')
	return s.finish()
}

// BuildHTTPRequest builds an "http/1/(method)(version)(header)..."
// fingerprint from a parsed request.
func BuildHTTPRequest(req appHTTP.Request) (string, bool) {
	if !req.IsNotEmpty() {
		return "", false
	}
	s := newStream()
	s.writeString("http/1/")
	s.writeByte('(')
	s.writeString(req.Method)
	s.writeByte(')')
	s.writeByte('(')
	s.writeString(req.Version)
	s.writeByte(')')
	writeHTTPHeaders(s, req.Headers)
	return s.finish()
}

// BuildHTTPResponse builds an "http/1/(status)(version)(header)..."
// fingerprint from a parsed response.
func BuildHTTPResponse(resp appHTTP.Response) (string, bool) {
	if !resp.IsNotEmpty() {
		return "", false
	}
	s := newStream()
	s.writeString("http/1/")
	s.writeByte('(')
	s.writeString(fmt.Sprintf("%d", resp.StatusCode))
	s.writeByte(')')
	s.writeByte('(')
	s.writeString(resp.Version)
	s.writeByte(')')
	writeHTTPHeaders(s, resp.Headers)
	return s.finish()
}

func writeHTTPHeaders(s *stream, headers []appHTTP.Header) {
	for _, h := range headers {
		s.writeByte('(')
		s.writeString(h.Name)
		if h.Value != "" {
			s.writeString(": ")
			s.writeString(h.Value)
		}
		s.writeByte(')')
	}
}

// BuildSSH builds an "ssh/1/(banner)(kex_algs)...(compression_s->c)"
// fingerprint from a banner and KEXINIT.
func BuildSSH(banner ssh.Banner, kex ssh.KexInit) (string, bool) {
	if !banner.IsNotEmpty() || !kex.IsNotEmpty() {
		return "", false
	}
	s := newStream()
	s.writeString("ssh/1/")
	writeSSHToken(s, banner.Raw)
	lists := [][]string{
		kex.KexAlgorithms,
		kex.ServerHostKeyAlgorithms,
		kex.EncryptionAlgorithmsClientServer,
		kex.EncryptionAlgorithmsServerClient,
		kex.MACAlgorithmsClientServer,
		kex.MACAlgorithmsServerClient,
		kex.CompressionAlgorithmsClientServer,
		kex.CompressionAlgorithmsServerClient,
	}
	for _, l := range lists {
		writeSSHToken(s, joinComma(l))
	}
	return s.finish()
}

func writeSSHToken(s *stream, v string) {
	s.writeByte('(')
	s.writeString(v)
	s.writeByte(')')
}

func joinComma(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += it
	}
	return out
}

// BuildDHCP builds a "dhcp/1/(option_codes)[(vendor_class)]" fingerprint.
func BuildDHCP(msg dhcp.Message) (string, bool) {
	if !msg.IsNotEmpty() || len(msg.Options) == 0 {
		return "", false
	}
	s := newStream()
	s.writeString("dhcp/1/")
	s.writeByte('(')
	for _, o := range msg.Options {
		s.writeHex([]byte{o.Code})
	}
	s.writeByte(')')
	if vc := msg.VendorClassID(); len(vc) > 0 {
		s.writeByte('(')
		s.writeString(string(vc))
		s.writeByte(')')
	}
	return s.finish()
}
