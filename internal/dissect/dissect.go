// Package dissect decodes Ethernet/IPv4/IPv6/TCP/UDP headers over a
// pkg/cursor view, producing a FlowKey and a borrowed payload slice. The
// payload is never copied; only the source and destination addresses are
// copied out into their own slices. Malformed input simply yields a null
// cursor / zero-value result rather than an error, per mercury's
// null-propagation convention (see pkg/cursor).
package dissect

import (
	"net"

	"github.com/google/gopacket/layers"

	"github.com/andrewchi/mercury/internal/core/model"
	"github.com/andrewchi/mercury/pkg/cursor"
)

const (
	etherHeaderLen = 14
	ipv4MinLen     = 20
	ipv6HeaderLen  = 40
	tcpMinLen      = 20
	udpLen         = 8
)

// EtherType values we recognize; everything else is dropped per spec.
const (
	etherTypeIPv4 = uint16(layers.EthernetTypeIPv4)
	etherTypeIPv6 = uint16(layers.EthernetTypeIPv6)
)

// IP next-header / protocol numbers we follow through a single IPv6
// extension header, per spec.md 4.B ("following one set of extension
// headers at most").
const (
	ipProtoHopByHop = 0
	ipProtoTCP      = 6
	ipProtoUDP      = 17
	ipProtoRouting  = 43
	ipProtoFragment = 44
	ipProtoDstOpts  = 60
)

// Ethernet strips the 14-byte Ethernet header and returns the EtherType
// plus a cursor over the payload. ok is false if the frame is too short.
func Ethernet(data []byte) (etherType uint16, payload cursor.Cursor, ok bool) {
	c := cursor.New(data)
	if c.Len() < etherHeaderLen {
		return 0, cursor.Cursor{}, false
	}
	c.Advance(12) // dst MAC + src MAC
	etherType = c.ReadU16()
	if c.Null() {
		return 0, cursor.Cursor{}, false
	}
	return etherType, c, true
}

// IPv4 parses an IPv4 header (skipping options) and returns the protocol,
// addresses, and a cursor over the IP payload.
func IPv4(c cursor.Cursor) (proto uint8, src, dst net.IP, payload cursor.Cursor, ok bool) {
	if c.Len() < ipv4MinLen {
		return 0, nil, nil, cursor.Cursor{}, false
	}
	verIHL := c.ReadU8()
	version := verIHL >> 4
	ihl := int(verIHL&0x0f) * 4
	if version != 4 || ihl < ipv4MinLen {
		return 0, nil, nil, cursor.Cursor{}, false
	}
	c.Advance(1) // DSCP/ECN
	totalLen := int(c.ReadU16())
	c.Advance(5) // identification, flags/frag offset, TTL
	proto = c.ReadU8()
	c.Advance(2) // header checksum
	srcB := c.Lookahead(4)
	c.Advance(4)
	dstB := c.Lookahead(4)
	c.Advance(4)
	if c.Null() || srcB == nil || dstB == nil {
		return 0, nil, nil, cursor.Cursor{}, false
	}
	src = net.IP(append([]byte(nil), srcB...))
	dst = net.IP(append([]byte(nil), dstB...))

	optLen := ihl - ipv4MinLen
	if optLen > 0 {
		c.Advance(optLen)
	}
	if c.Null() {
		return 0, nil, nil, cursor.Cursor{}, false
	}

	// Bound the remaining view by the header's declared total length when
	// it is consistent with what we actually have (captures can be
	// truncated relative to wire length).
	remainingWant := totalLen - ihl
	if remainingWant >= 0 && remainingWant <= c.Len() {
		payload = cursor.New(c.Lookahead(remainingWant))
	} else {
		payload = c
	}
	return proto, src, dst, payload, true
}

// IPv6 parses a fixed IPv6 header and, if present, a single extension
// header, returning the upper-layer protocol and addresses.
func IPv6(c cursor.Cursor) (proto uint8, src, dst net.IP, payload cursor.Cursor, ok bool) {
	if c.Len() < ipv6HeaderLen {
		return 0, nil, nil, cursor.Cursor{}, false
	}
	verClassFlow := c.ReadU32()
	version := byte(verClassFlow >> 28)
	if version != 6 {
		return 0, nil, nil, cursor.Cursor{}, false
	}
	payloadLen := int(c.ReadU16())
	nextHeader := c.ReadU8()
	c.Advance(1) // hop limit
	srcB := c.Lookahead(16)
	c.Advance(16)
	dstB := c.Lookahead(16)
	c.Advance(16)
	if c.Null() || srcB == nil || dstB == nil {
		return 0, nil, nil, cursor.Cursor{}, false
	}
	src = net.IP(append([]byte(nil), srcB...))
	dst = net.IP(append([]byte(nil), dstB...))

	switch nextHeader {
	case ipProtoHopByHop, ipProtoRouting, ipProtoFragment, ipProtoDstOpts:
		if c.Len() < 2 {
			return 0, nil, nil, cursor.Cursor{}, false
		}
		next := c.ReadU8()
		extLenWords := c.ReadU8()
		extLen := (int(extLenWords) + 1) * 8
		if extLen < 2 {
			return 0, nil, nil, cursor.Cursor{}, false
		}
		c.Advance(extLen - 2)
		nextHeader = next
	}
	if c.Null() {
		return 0, nil, nil, cursor.Cursor{}, false
	}

	_ = payloadLen
	return nextHeader, src, dst, c, true
}

// TCP parses the 20-byte base TCP header (options, if any, are skipped)
// and returns the header plus the payload cursor.
func TCP(c cursor.Cursor) (hdr model.TCPHeader, payload cursor.Cursor, ok bool) {
	if c.Len() < tcpMinLen {
		return model.TCPHeader{}, cursor.Cursor{}, false
	}
	hdr.SrcPort = c.ReadU16()
	hdr.DstPort = c.ReadU16()
	hdr.Seq = c.ReadU32()
	hdr.Ack = c.ReadU32()
	offsetFlags := c.ReadU16()
	hdr.DataOffset = uint8(offsetFlags >> 12)
	hdr.Flags = model.TCPFlags{
		FIN: offsetFlags&0x0001 != 0,
		SYN: offsetFlags&0x0002 != 0,
		RST: offsetFlags&0x0004 != 0,
		ACK: offsetFlags&0x0010 != 0,
	}
	c.Advance(6) // window(2) + checksum(2) + urgent pointer(2)
	if c.Null() {
		return model.TCPHeader{}, cursor.Cursor{}, false
	}

	headerLen := int(hdr.DataOffset) * 4
	if headerLen < tcpMinLen {
		return model.TCPHeader{}, cursor.Cursor{}, false
	}
	optLen := headerLen - tcpMinLen
	if optLen > 0 {
		c.Advance(optLen)
	}
	if c.Null() {
		return model.TCPHeader{}, cursor.Cursor{}, false
	}
	return hdr, c, true
}

// UDP parses the 8-byte UDP header and returns the payload cursor.
func UDP(c cursor.Cursor) (hdr model.UDPHeader, payload cursor.Cursor, ok bool) {
	if c.Len() < udpLen {
		return model.UDPHeader{}, cursor.Cursor{}, false
	}
	hdr.SrcPort = c.ReadU16()
	hdr.DstPort = c.ReadU16()
	hdr.Length = c.ReadU16()
	c.Advance(2) // checksum
	if c.Null() {
		return model.UDPHeader{}, cursor.Cursor{}, false
	}
	return hdr, c, true
}

// Packet runs the full Ethernet->IP->{TCP,UDP} chain over data and returns
// the decoded L4 view. ok is false for anything we don't recognize
// (non-IP EtherTypes, non-TCP/UDP IP payloads, or truncated headers).
func Packet(data []byte) (l4 model.L4, ok bool) {
	etherType, ipCursor, ok := Ethernet(data)
	if !ok {
		return model.L4{}, false
	}

	var proto uint8
	var src, dst net.IP
	var payload cursor.Cursor
	var ipVersion uint8

	switch etherType {
	case etherTypeIPv4:
		proto, src, dst, payload, ok = IPv4(ipCursor)
		ipVersion = 4
	case etherTypeIPv6:
		proto, src, dst, payload, ok = IPv6(ipCursor)
		ipVersion = 6
	default:
		return model.L4{}, false
	}
	if !ok {
		return model.L4{}, false
	}

	switch proto {
	case model.ProtoTCP:
		hdr, body, tok := TCP(payload)
		if !tok {
			return model.L4{}, false
		}
		key := flowKey(ipVersion, src, dst, proto, hdr.SrcPort, hdr.DstPort)
		return model.L4{Key: key, IsTCP: true, TCP: hdr, Payload: body.Remaining()}, true
	case model.ProtoUDP:
		hdr, body, uok := UDP(payload)
		if !uok {
			return model.L4{}, false
		}
		key := flowKey(ipVersion, src, dst, proto, hdr.SrcPort, hdr.DstPort)
		return model.L4{Key: key, IsUDP: true, UDP: hdr, Payload: body.Remaining()}, true
	default:
		return model.L4{}, false
	}
}

func flowKey(ipVersion uint8, src, dst net.IP, proto uint8, srcPort, dstPort uint16) model.FlowKey {
	if ipVersion == 4 {
		return model.NewFlowKeyV4(src, dst, proto, srcPort, dstPort)
	}
	return model.NewFlowKeyV6(src, dst, proto, srcPort, dstPort)
}
