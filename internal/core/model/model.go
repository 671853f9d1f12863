// Package model holds the data types shared across mercury's dissection,
// fingerprinting, classification, and output stages.
package model

import (
	"net"

	"github.com/google/gopacket/layers"
)

// Transport protocol numbers, as carried in the IPv4/IPv6 protocol field.
const (
	ProtoTCP uint8 = 6
	ProtoUDP uint8 = 17
)

// FlowKey is the 5-tuple identifying a directional transport stream.
// Equality and hashing are over every field; once constructed a FlowKey is
// never mutated.
type FlowKey struct {
	IPVersion uint8 // 4 or 6
	SrcAddr   [16]byte
	DstAddr   [16]byte
	Transport uint8
	SrcPort   uint16
	DstPort   uint16
}

// NewFlowKeyV4 builds a FlowKey from IPv4 addresses.
func NewFlowKeyV4(src, dst net.IP, transport uint8, srcPort, dstPort uint16) FlowKey {
	var k FlowKey
	k.IPVersion = 4
	copy(k.SrcAddr[:4], src.To4())
	copy(k.DstAddr[:4], dst.To4())
	k.Transport = transport
	k.SrcPort = srcPort
	k.DstPort = dstPort
	return k
}

// NewFlowKeyV6 builds a FlowKey from IPv6 addresses.
func NewFlowKeyV6(src, dst net.IP, transport uint8, srcPort, dstPort uint16) FlowKey {
	var k FlowKey
	k.IPVersion = 6
	copy(k.SrcAddr[:16], src.To16())
	copy(k.DstAddr[:16], dst.To16())
	k.Transport = transport
	k.SrcPort = srcPort
	k.DstPort = dstPort
	return k
}

// SrcIP returns the source address as a net.IP.
func (k FlowKey) SrcIP() net.IP {
	if k.IPVersion == 4 {
		return net.IP(k.SrcAddr[:4])
	}
	return net.IP(k.SrcAddr[:16])
}

// DstIP returns the destination address as a net.IP.
func (k FlowKey) DstIP() net.IP {
	if k.IPVersion == 4 {
		return net.IP(k.DstAddr[:4])
	}
	return net.IP(k.DstAddr[:16])
}

// Reversed returns the FlowKey for the opposite direction of the same
// connection (the server->client view of a client->server key).
func (k FlowKey) Reversed() FlowKey {
	r := k
	r.SrcAddr, r.DstAddr = k.DstAddr, k.SrcAddr
	r.SrcPort, r.DstPort = k.DstPort, k.SrcPort
	return r
}

// PacketRecord is the immutable view of one captured packet handed to the
// worker pipeline. Data is borrowed from the capture layer and must not be
// retained past the call that produced it.
type PacketRecord struct {
	TimestampSec  int64
	TimestampNsec int64
	CapturedLen   int
	WireLen       int
	LinkType      layers.LinkType
	Data          []byte
}

// TCPFlags captures the subset of TCP control bits mercury cares about.
type TCPFlags struct {
	SYN bool
	ACK bool
	FIN bool
	RST bool
}

// TCPHeader is the decoded subset of a TCP segment header mercury needs.
type TCPHeader struct {
	SrcPort    uint16
	DstPort    uint16
	Seq        uint32
	Ack        uint32
	DataOffset uint8 // in 32-bit words
	Flags      TCPFlags
}

// UDPHeader is the decoded UDP header.
type UDPHeader struct {
	SrcPort uint16
	DstPort uint16
	Length  uint16
}

// L4 describes which transport header was found, and carries the decoded
// header plus the payload cursor-friendly byte slice.
type L4 struct {
	Key     FlowKey
	IsTCP   bool
	IsUDP   bool
	TCP     TCPHeader
	UDP     UDPHeader
	Payload []byte
}

// FlowTableEntry answers "is this the first data packet of the flow?" for
// initial-data dumping. Bounded capacity, simple bucketed LRU eviction.
type FlowTableEntry struct {
	FirstSeen  int64 // unix nanos
	InitialSeq uint32
	SeenData   bool
}
