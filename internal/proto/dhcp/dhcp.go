// Package dhcp parses a DHCPv4 message's fixed header and options, per
// spec.md 4.D. Only the option codes (in wire order) and a few option
// values useful for fingerprinting (parameter request list, vendor class
// identifier) are retained; client/server addresses are not.
package dhcp

import "github.com/andrewchi/mercury/pkg/cursor"

const magicCookie = 0x63825363

// Option codes retained with their value, beyond presence-in-order.
const (
	OptionParameterRequestList = 55
	OptionVendorClassID        = 60
	OptionEnd                  = 255
)

// Option is one DHCP option as it appeared on the wire.
type Option struct {
	Code  uint8
	Value []byte
}

// Message is the decoded subset of a DHCPv4 message.
type Message struct {
	Op      uint8
	HType   uint8
	HLen    uint8
	Xid     uint32
	Options []Option
}

// IsNotEmpty reports whether the minimum required fields were present.
func (m Message) IsNotEmpty() bool {
	return m.Op != 0
}

// ParameterRequestList returns the raw bytes of option 55, if present.
func (m Message) ParameterRequestList() []byte {
	return m.option(OptionParameterRequestList)
}

// VendorClassID returns the raw bytes of option 60, if present.
func (m Message) VendorClassID() []byte {
	return m.option(OptionVendorClassID)
}

func (m Message) option(code uint8) []byte {
	for _, o := range m.Options {
		if o.Code == code {
			return o.Value
		}
	}
	return nil
}

// ParseMessage parses a DHCPv4 message's fixed 236-byte BOOTP header, the
// 4-byte magic cookie, and the options that follow.
func ParseMessage(c cursor.Cursor) Message {
	if c.Len() < 240 {
		return Message{}
	}
	var m Message
	m.Op = c.ReadU8()
	m.HType = c.ReadU8()
	m.HLen = c.ReadU8()
	c.Advance(1) // hops
	m.Xid = c.ReadU32()
	c.Advance(2 + 2)   // secs, flags
	c.Advance(4 * 4)   // ciaddr, yiaddr, siaddr, giaddr
	c.Advance(16)      // chaddr
	c.Advance(64 + 128) // sname, file

	if c.Null() {
		return Message{}
	}
	cookie := c.ReadU32()
	if c.Null() || cookie != magicCookie {
		return Message{}
	}

	for c.Len() > 0 {
		code := c.ReadU8()
		if c.Null() {
			break
		}
		if code == 0 {
			continue // pad
		}
		if code == OptionEnd {
			break
		}
		length := int(c.ReadU8())
		value := c.Lookahead(length)
		c.Advance(length)
		if c.Null() {
			break
		}
		m.Options = append(m.Options, Option{Code: code, Value: value})
	}
	return m
}
