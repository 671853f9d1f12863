package quic

import "github.com/andrewchi/mercury/pkg/cursor"

// Frame type codes mercury distinguishes while scanning a decrypted
// Initial packet's payload for its CRYPTO frame(s).
const (
	frameTypePadding         = 0x00
	frameTypePing            = 0x01
	frameTypeAckMin          = 0x02
	frameTypeAckMax          = 0x03
	frameTypeCrypto          = 0x06
	frameTypeConnCloseMin    = 0x1c
	frameTypeConnCloseMax    = 0x1d
)

// cryptoChunk is one CRYPTO frame's offset and data, prior to reassembly.
type cryptoChunk struct {
	offset int
	data   []byte
}

// ExtractCryptoData walks a decrypted Initial packet's frame stream and
// reassembles the CRYPTO frame(s) it contains into one contiguous byte
// slice, starting at stream offset 0. A ClientHello that a single Initial
// packet splits across multiple CRYPTO frames (to interleave with PADDING)
// is handled; one that spans multiple Initial packets is not, and
// internal/worker reports nothing for such a packet (the ClientHello's
// AdditionalBytesNeeded is not fed to a reassembler).
func ExtractCryptoData(plaintext []byte) []byte {
	c := cursor.New(plaintext)
	var chunks []cryptoChunk

	for c.Len() > 0 {
		frameType := c.ReadVarint()
		if c.Null() {
			break
		}
		switch {
		case frameType == frameTypePadding:
			continue
		case frameType == frameTypePing:
			continue
		case frameType >= frameTypeAckMin && frameType <= frameTypeAckMax:
			skipAck(&c, frameType == 0x03)
		case frameType == frameTypeCrypto:
			offset := int(c.ReadVarint())
			length := int(c.ReadVarint())
			data := c.Lookahead(length)
			c.Advance(length)
			if c.Null() {
				return joinChunks(chunks)
			}
			chunks = append(chunks, cryptoChunk{offset: offset, data: data})
		case frameType >= frameTypeConnCloseMin && frameType <= frameTypeConnCloseMax:
			c.ReadVarint() // error code
			if frameType == 0x1c {
				c.ReadVarint() // frame type
			}
			reasonLen := int(c.ReadVarint())
			c.Advance(reasonLen)
			if c.Null() {
				return joinChunks(chunks)
			}
		default:
			// Unrecognized frame type: nothing more can be safely parsed
			// without knowing its length.
			return joinChunks(chunks)
		}
	}
	return joinChunks(chunks)
}

func skipAck(c *cursor.Cursor, withECN bool) {
	c.ReadVarint() // largest acked
	c.ReadVarint() // ack delay
	rangeCount := c.ReadVarint()
	c.ReadVarint() // first ack range
	for i := uint64(0); i < rangeCount; i++ {
		c.ReadVarint() // gap
		c.ReadVarint() // ack range length
	}
	if withECN {
		c.ReadVarint() // ect0
		c.ReadVarint() // ect1
		c.ReadVarint() // ecn-ce
	}
}

// joinChunks reassembles CRYPTO frame fragments into a contiguous byte
// stream starting at offset 0, stopping at the first gap.
func joinChunks(chunks []cryptoChunk) []byte {
	if len(chunks) == 0 {
		return nil
	}
	max := 0
	for _, ch := range chunks {
		if end := ch.offset + len(ch.data); end > max {
			max = end
		}
	}
	buf := make([]byte, max)
	filled := make([]bool, max)
	for _, ch := range chunks {
		copy(buf[ch.offset:], ch.data)
		for i := ch.offset; i < ch.offset+len(ch.data); i++ {
			filled[i] = true
		}
	}
	end := 0
	for end < max && filled[end] {
		end++
	}
	return buf[:end]
}
