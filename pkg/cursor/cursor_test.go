package cursor

import "testing"

func TestReadFields(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x00, 0x00, 0x00, 0x04, 0xAA, 0xBB}
	c := New(data)
	if got := c.ReadU8(); got != 0x01 {
		t.Fatalf("ReadU8 = %x, want 0x01", got)
	}
	if got := c.ReadU16(); got != 0x0203 {
		t.Fatalf("ReadU16 = %x, want 0x0203", got)
	}
	if got := c.ReadU32(); got != 0x00000004 {
		t.Fatalf("ReadU32 = %x, want 0x4", got)
	}
	if got := c.Lookahead(2); len(got) != 2 || got[0] != 0xAA {
		t.Fatalf("Lookahead = %v", got)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
}

func TestNullPropagation(t *testing.T) {
	c := New([]byte{0x01, 0x02})
	_ = c.ReadU32() // short read: nulls the cursor
	if !c.Null() {
		t.Fatalf("expected cursor to be null after short read")
	}
	if got := c.ReadU8(); got != 0 {
		t.Fatalf("ReadU8 on null cursor = %d, want 0", got)
	}
	if got := c.ReadU16(); got != 0 {
		t.Fatalf("ReadU16 on null cursor = %d, want 0", got)
	}
	if c.Len() != 0 {
		t.Fatalf("Len on null cursor = %d, want 0", c.Len())
	}
}

func TestSliceAndAdvance(t *testing.T) {
	c := New([]byte{1, 2, 3, 4, 5})
	sub := c.Slice(3)
	if sub.Len() != 3 {
		t.Fatalf("sub.Len() = %d, want 3", sub.Len())
	}
	if c.Len() != 2 {
		t.Fatalf("remaining Len() = %d, want 2", c.Len())
	}
	c.Advance(2)
	if c.Len() != 0 {
		t.Fatalf("Len after advance = %d, want 0", c.Len())
	}

	c2 := New([]byte{1, 2})
	sub2 := c2.Slice(5)
	if !sub2.Null() || !c2.Null() {
		t.Fatalf("oversized Slice should null both cursors")
	}
}

func TestSkipUntil(t *testing.T) {
	c := New([]byte("GET / HTTP/1.1\r\n"))
	method := c.SkipUntil(' ')
	if string(method) != "GET" {
		t.Fatalf("SkipUntil = %q, want GET", method)
	}
}

func TestVarint(t *testing.T) {
	// RFC 9000 appendix A examples.
	cases := []struct {
		in   []byte
		want uint64
	}{
		{[]byte{0x25}, 37},
		{[]byte{0x7b, 0xbd}, 15293},
		{[]byte{0x9d, 0x7f, 0x3e, 0x7d}, 494878333},
		{[]byte{0xc2, 0x19, 0x7c, 0x5e, 0xff, 0x14, 0xe8, 0x8c}, 151288809941952652},
	}
	for _, tc := range cases {
		c := New(tc.in)
		if got := c.ReadVarint(); got != tc.want {
			t.Fatalf("ReadVarint(%x) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestEqual(t *testing.T) {
	c := New([]byte("SSH-2.0-OpenSSH_8.1\r\n"))
	if !c.Equal([]byte("SSH-")) {
		t.Fatalf("expected prefix match")
	}
	if c.Equal([]byte("nope")) {
		t.Fatalf("unexpected prefix match")
	}
}
