// Package ssh parses an SSH version banner and KEXINIT message, per
// spec.md 4.D. Only the fields needed for fingerprinting (the banner
// string and the KEXINIT algorithm name-lists) are retained.
package ssh

import "github.com/andrewchi/mercury/pkg/cursor"

const msgKexInit = 20

// Banner is the decoded "SSH-protoversion-softwareversion comments" line.
type Banner struct {
	Raw string
}

// IsNotEmpty reports whether a banner was found.
func (b Banner) IsNotEmpty() bool {
	return b.Raw != ""
}

// ParseBanner reads up to the first CRLF- or LF-terminated line and
// requires it start with "SSH-".
func ParseBanner(c cursor.Cursor) Banner {
	line := c.SkipUntil('\n')
	if line == nil {
		return Banner{}
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	if len(line) < 4 || string(line[:4]) != "SSH-" {
		return Banner{}
	}
	return Banner{Raw: string(line)}
}

// KexInit is the decoded subset of an SSH_MSG_KEXINIT payload: the ten
// name-lists plus the first_kex_packet_follows flag, in wire order.
type KexInit struct {
	Cookie                            []byte
	KexAlgorithms                     []string
	ServerHostKeyAlgorithms           []string
	EncryptionAlgorithmsClientServer  []string
	EncryptionAlgorithmsServerClient  []string
	MACAlgorithmsClientServer         []string
	MACAlgorithmsServerClient         []string
	CompressionAlgorithmsClientServer []string
	CompressionAlgorithmsServerClient []string
	LanguagesClientServer             []string
	LanguagesServerClient             []string
	FirstKexPacketFollows             bool
}

// IsNotEmpty reports whether the minimum required fields were present.
func (k KexInit) IsNotEmpty() bool {
	return len(k.KexAlgorithms) > 0
}

// ParsePacket parses one SSH binary packet (packet_length + padding_length
// + payload + padding) and, if its payload is SSH_MSG_KEXINIT, decodes it.
// Any other message type yields an empty KexInit.
func ParsePacket(c cursor.Cursor) KexInit {
	if c.Len() < 5 {
		return KexInit{}
	}
	packetLen := int(c.ReadU32())
	paddingLen := int(c.ReadU8())
	if c.Null() || packetLen < 1+paddingLen {
		return KexInit{}
	}
	if c.Len() < packetLen-1 {
		return KexInit{}
	}
	payloadLen := packetLen - 1 - paddingLen
	payload := c.Slice(payloadLen)

	msgType := payload.ReadU8()
	if payload.Null() || msgType != msgKexInit {
		return KexInit{}
	}
	var k KexInit
	k.Cookie = payload.Lookahead(16)
	payload.Advance(16)

	lists := []*[]string{
		&k.KexAlgorithms,
		&k.ServerHostKeyAlgorithms,
		&k.EncryptionAlgorithmsClientServer,
		&k.EncryptionAlgorithmsServerClient,
		&k.MACAlgorithmsClientServer,
		&k.MACAlgorithmsServerClient,
		&k.CompressionAlgorithmsClientServer,
		&k.CompressionAlgorithmsServerClient,
		&k.LanguagesClientServer,
		&k.LanguagesServerClient,
	}
	for _, dst := range lists {
		*dst = readNameList(&payload)
	}
	followsByte := payload.ReadU8()
	if payload.Null() {
		return KexInit{}
	}
	k.FirstKexPacketFollows = followsByte != 0
	return k
}

// readNameList reads a uint32-length-prefixed comma-separated name-list.
func readNameList(c *cursor.Cursor) []string {
	n := int(c.ReadU32())
	body := c.Slice(n)
	if body.Null() {
		return nil
	}
	raw := body.Remaining()
	if len(raw) == 0 {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			out = append(out, string(raw[start:i]))
			start = i + 1
		}
	}
	return out
}
