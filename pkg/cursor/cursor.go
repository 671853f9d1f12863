// Package cursor implements a non-owning, zero-copy view over packet bytes.
//
// A Cursor never allocates and never copies the underlying bytes; every
// parser in mercury borrows a Cursor (or a sub-slice of one) rather than
// holding its own buffer. Reads that would run past the end of the view put
// the cursor into a null state instead of returning an error: callers check
// Null() once per logical record rather than handling an error per field.
package cursor

// Cursor is a bounded, non-owning reader over a byte slice.
type Cursor struct {
	data []byte
	pos  int
}

// New returns a Cursor over data, positioned at the start.
func New(data []byte) Cursor {
	return Cursor{data: data}
}

// Null reports whether the cursor has been exhausted by a prior
// out-of-bounds operation. A null cursor never becomes non-null again.
func (c Cursor) Null() bool {
	return c.data == nil
}

// Len returns the number of unread bytes. A null cursor has length 0.
func (c Cursor) Len() int {
	if c.Null() {
		return 0
	}
	return len(c.data) - c.pos
}

func (c *Cursor) fail() {
	c.data = nil
	c.pos = 0
}

// Advance skips n bytes without returning them. Advancing past the end
// nulls the cursor.
func (c *Cursor) Advance(n int) {
	if c.Null() || n < 0 || n > c.Len() {
		c.fail()
		return
	}
	c.pos += n
}

// Lookahead returns the next n bytes without advancing the cursor. Returns
// nil if n bytes are not available; the cursor itself is left untouched so
// the caller can choose to treat that as a truncation rather than a fatal
// error (see the "additional_bytes_needed" reassembly path).
func (c Cursor) Lookahead(n int) []byte {
	if c.Null() || n < 0 || n > c.Len() {
		return nil
	}
	return c.data[c.pos : c.pos+n]
}

// Remaining returns every unread byte without advancing.
func (c Cursor) Remaining() []byte {
	if c.Null() {
		return nil
	}
	return c.data[c.pos:]
}

// Slice returns a new Cursor over the next n bytes and advances past them.
// On shortage, both the receiver and the returned cursor become null.
func (c *Cursor) Slice(n int) Cursor {
	b := c.Lookahead(n)
	if b == nil {
		c.fail()
		return Cursor{}
	}
	c.Advance(n)
	return New(b)
}

// ReadU8 reads one byte and advances.
func (c *Cursor) ReadU8() uint8 {
	b := c.Lookahead(1)
	if b == nil {
		c.fail()
		return 0
	}
	c.pos++
	return b[0]
}

// ReadU16 reads a big-endian uint16 and advances.
func (c *Cursor) ReadU16() uint16 {
	b := c.Lookahead(2)
	if b == nil {
		c.fail()
		return 0
	}
	c.pos += 2
	return uint16(b[0])<<8 | uint16(b[1])
}

// ReadU24 reads a big-endian 24-bit unsigned integer (used by TLS handshake
// lengths) and advances.
func (c *Cursor) ReadU24() uint32 {
	b := c.Lookahead(3)
	if b == nil {
		c.fail()
		return 0
	}
	c.pos += 3
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// ReadU32 reads a big-endian uint32 and advances.
func (c *Cursor) ReadU32() uint32 {
	b := c.Lookahead(4)
	if b == nil {
		c.fail()
		return 0
	}
	c.pos += 4
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// ReadU64 reads a big-endian uint64 and advances.
func (c *Cursor) ReadU64() uint64 {
	b := c.Lookahead(8)
	if b == nil {
		c.fail()
		return 0
	}
	c.pos += 8
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// ReadVarint reads a QUIC variable-length integer (RFC 9000 §16) and
// advances. Nulls the cursor on shortage.
func (c *Cursor) ReadVarint() uint64 {
	first := c.Lookahead(1)
	if first == nil {
		c.fail()
		return 0
	}
	length := 1 << (first[0] >> 6)
	b := c.Lookahead(length)
	if b == nil {
		c.fail()
		return 0
	}
	c.pos += length
	v := uint64(b[0] & 0x3f)
	for _, x := range b[1:] {
		v = v<<8 | uint64(x)
	}
	return v
}

// SkipUntil advances past the first occurrence of delim (inclusive) and
// returns the bytes before it (exclusive of delim). Nulls the cursor if
// delim is not found.
func (c *Cursor) SkipUntil(delim byte) []byte {
	if c.Null() {
		return nil
	}
	rest := c.data[c.pos:]
	for i, b := range rest {
		if b == delim {
			out := rest[:i]
			c.pos += i + 1
			return out
		}
	}
	c.fail()
	return nil
}

// Equal reports whether the next len(want) bytes equal want, without
// advancing. Returns false (not null-propagating) on shortage, since
// callers typically want to try an alternative parse.
func (c Cursor) Equal(want []byte) bool {
	got := c.Lookahead(len(want))
	if got == nil {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
