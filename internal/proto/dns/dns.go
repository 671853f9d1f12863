// Package dns parses a DNS message's header and first question, per
// spec.md 4.D. Answer/authority/additional records are not decoded;
// mercury only needs the query name and type for fingerprinting and
// domain-derived classifier features.
package dns

import "github.com/andrewchi/mercury/pkg/cursor"

// Message is the decoded subset of a DNS message.
type Message struct {
	ID               uint16
	QR               bool
	Opcode           uint8
	RecursionDesired bool
	QuestionCount    uint16
	Name             string
	QType            uint16
	QClass           uint16
}

// IsNotEmpty reports whether a question was successfully decoded.
func (m Message) IsNotEmpty() bool {
	return m.Name != ""
}

// ParseMessage parses the 12-byte header and, if present, the first
// question's QNAME/QTYPE/QCLASS. A compression pointer encountered while
// reading the name ends the name at that point without following it,
// since a pointer in the first question of a query is not something
// mercury expects to see.
func ParseMessage(c cursor.Cursor) Message {
	if c.Len() < 12 {
		return Message{}
	}
	var m Message
	m.ID = c.ReadU16()
	flags := c.ReadU16()
	m.QR = flags&0x8000 != 0
	m.Opcode = uint8(flags >> 11 & 0x0f)
	m.RecursionDesired = flags&0x0100 != 0
	m.QuestionCount = c.ReadU16()
	c.Advance(2 + 2 + 2) // ancount, nscount, arcount
	if c.Null() || m.QuestionCount == 0 {
		return m
	}

	name, ok := readName(&c)
	if !ok {
		return m
	}
	m.Name = name
	m.QType = c.ReadU16()
	m.QClass = c.ReadU16()
	if c.Null() {
		m.Name = ""
	}
	return m
}

func readName(c *cursor.Cursor) (string, bool) {
	var out []byte
	for {
		length := int(c.ReadU8())
		if c.Null() {
			return "", false
		}
		if length == 0 {
			break
		}
		if length&0xc0 == 0xc0 {
			// Compression pointer: consume the second byte and stop.
			c.Advance(1)
			break
		}
		label := c.Lookahead(length)
		c.Advance(length)
		if c.Null() {
			return "", false
		}
		if len(out) > 0 {
			out = append(out, '.')
		}
		out = append(out, label...)
	}
	if len(out) == 0 {
		return "", false
	}
	return string(out), true
}
