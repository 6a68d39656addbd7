// Package cql decodes CQL native protocol message bodies: the primitive
// readers defined by the spec ([int], [short], [string], [bytes], ...) and
// the opcode-specific request/response shapes built out of them.
//
// Every reader operates on a *Cursor positioned over a frame's body bytes.
// A read that would run past the end of the body returns an error instead
// of panicking, mirroring the offset-bounds checks in a hand-rolled binary
// codec.
package cql

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Cursor reads CQL primitives off a byte slice left to right, tracking how
// far it has advanced. It never copies more than once per read.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor wraps buf for sequential primitive reads.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Remaining reports how many bytes are left unread.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.off
}

// Exhausted reports whether every byte has been consumed.
func (c *Cursor) Exhausted() bool {
	return c.off >= len(c.buf)
}

func (c *Cursor) need(n int) error {
	if c.Remaining() < n {
		return fmt.Errorf("cql: need %d bytes, have %d", n, c.Remaining())
	}
	return nil
}

func (c *Cursor) take(n int) []byte {
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b
}

// Byte reads a single raw byte.
func (c *Cursor) Byte() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	return c.take(1)[0], nil
}

// Int reads a big-endian signed 32-bit integer ([int]).
func (c *Cursor) Int() (int32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(c.take(4))), nil
}

// Long reads a big-endian signed 64-bit integer ([long]).
func (c *Cursor) Long() (int64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(c.take(8))), nil
}

// Short reads a big-endian unsigned 16-bit integer ([short]).
func (c *Cursor) Short() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(c.take(2)), nil
}

// RawBytes reads exactly n raw bytes, copied out of the cursor's buffer so
// the returned slice outlives later reads.
func (c *Cursor) RawBytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, c.take(n))
	return b, nil
}

// String reads a [string]: a [short] length n followed by n bytes of UTF-8.
func (c *Cursor) String() (string, error) {
	n, err := c.Short()
	if err != nil {
		return "", err
	}
	b, err := c.RawBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// LongString reads a [long string]: an [int] length n followed by n bytes of
// UTF-8.
func (c *Cursor) LongString() (string, error) {
	n, err := c.Int()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("cql: long string length %d is negative", n)
	}
	b, err := c.RawBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Bytes reads a [bytes]: an [int] length n; n<0 means null (reported as a
// nil slice with ok=false), n==0 means empty, else n raw bytes.
func (c *Cursor) Bytes() (b []byte, ok bool, err error) {
	n, err := c.Int()
	if err != nil {
		return nil, false, err
	}
	if n < 0 {
		return nil, false, nil
	}
	b, err = c.RawBytes(int(n))
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// ValuePresence distinguishes the three states a [value] can be in.
type ValuePresence int

const (
	ValuePresent ValuePresence = iota
	ValueNull
	ValueNotSet
)

// Value reads a [value]: an [int] length n; n==-1 is null, n==-2 is "not
// set" (protocol v4+, used for unbound EXECUTE parameters), else n raw
// bytes.
func (c *Cursor) Value() ([]byte, ValuePresence, error) {
	n, err := c.Int()
	if err != nil {
		return nil, ValuePresent, err
	}
	switch {
	case n == -1:
		return nil, ValueNull, nil
	case n == -2:
		return nil, ValueNotSet, nil
	case n < 0:
		return nil, ValuePresent, fmt.Errorf("cql: value length %d invalid", n)
	}
	b, err := c.RawBytes(int(n))
	if err != nil {
		return nil, ValuePresent, err
	}
	return b, ValuePresent, nil
}

// ShortBytes reads a [short bytes]: a [short] length n followed by n raw
// bytes. Used for prepared-statement ids.
func (c *Cursor) ShortBytes() ([]byte, error) {
	n, err := c.Short()
	if err != nil {
		return nil, err
	}
	return c.RawBytes(int(n))
}

// StringList reads a [string list]: a [short] count followed by that many
// [string]s.
func (c *Cursor) StringList() ([]string, error) {
	n, err := c.Short()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		s, err := c.String()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// StringMap reads a [string map]: a [short] count followed by that many
// ([string], [string]) pairs, preserving insertion order.
func (c *Cursor) StringMap() ([][2]string, error) {
	n, err := c.Short()
	if err != nil {
		return nil, err
	}
	out := make([][2]string, 0, n)
	for i := 0; i < int(n); i++ {
		k, err := c.String()
		if err != nil {
			return nil, err
		}
		v, err := c.String()
		if err != nil {
			return nil, err
		}
		out = append(out, [2]string{k, v})
	}
	return out, nil
}

// StringMultimapEntry is one key/value-list pair of a [string multimap].
type StringMultimapEntry struct {
	Key    string
	Values []string
}

// StringMultimap reads a [string multimap]: a [short] count followed by that
// many ([string], [string list]) pairs.
func (c *Cursor) StringMultimap() ([]StringMultimapEntry, error) {
	n, err := c.Short()
	if err != nil {
		return nil, err
	}
	out := make([]StringMultimapEntry, 0, n)
	for i := 0; i < int(n); i++ {
		k, err := c.String()
		if err != nil {
			return nil, err
		}
		vs, err := c.StringList()
		if err != nil {
			return nil, err
		}
		out = append(out, StringMultimapEntry{Key: k, Values: vs})
	}
	return out, nil
}

// Inet reads a [inet]: a 1-byte address length (4 or 16), the address
// itself, and an [int] port.
func (c *Cursor) Inet() (net.IP, int32, error) {
	n, err := c.Byte()
	if err != nil {
		return nil, 0, err
	}
	if n != 4 && n != 16 {
		return nil, 0, fmt.Errorf("cql: inet address length %d not 4 or 16", n)
	}
	addr, err := c.RawBytes(int(n))
	if err != nil {
		return nil, 0, err
	}
	port, err := c.Int()
	if err != nil {
		return nil, 0, err
	}
	return net.IP(addr), port, nil
}

// UUID reads a [uuid]: 16 raw bytes.
func (c *Cursor) UUID() ([16]byte, error) {
	var u [16]byte
	b, err := c.RawBytes(16)
	if err != nil {
		return u, err
	}
	copy(u[:], b)
	return u, nil
}
