// SPDX-License-Identifier: Unlicense OR MIT

// Package cursor reads fixed-width values from a byte slice in a
// caller-supplied byte order.
package cursor

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrUnexpectedEnd is returned by reads that would run past the end
// of the slice. A failed read does not advance the cursor.
var ErrUnexpectedEnd = errors.New("cursor: unexpected end")

// Cursor is a read position in a byte slice.
type Cursor struct {
	buf []byte
	pos int
}

// Uint128 is an unsigned 128-bit value.
type Uint128 struct {
	Hi, Lo uint64
}

// New returns a cursor positioned at the start of buf.
func New(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Position returns the offset of the next read.
func (c *Cursor) Position() int {
	return c.pos
}

// SetPosition moves the cursor. Positions past the end are allowed;
// the next read fails with ErrUnexpectedEnd.
func (c *Cursor) SetPosition(pos int) {
	if pos < 0 {
		pos = 0
	}
	c.pos = pos
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	if c.pos >= len(c.buf) {
		return 0
	}
	return len(c.buf) - c.pos
}

func (c *Cursor) take(n int) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, ErrUnexpectedEnd
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// Bytes returns the next n bytes. The result aliases the underlying
// slice.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	return c.take(n)
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) error {
	_, err := c.take(n)
	return err
}

func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) Uint16(order binary.ByteOrder) (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(b), nil
}

func (c *Cursor) Uint32(order binary.ByteOrder) (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

func (c *Cursor) Uint64(order binary.ByteOrder) (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(b), nil
}

func (c *Cursor) Uint128(order binary.ByteOrder) (Uint128, error) {
	b, err := c.take(16)
	if err != nil {
		return Uint128{}, err
	}
	first, second := order.Uint64(b[:8]), order.Uint64(b[8:])
	if isBigEndian(order) {
		return Uint128{Hi: first, Lo: second}, nil
	}
	return Uint128{Hi: second, Lo: first}, nil
}

func (c *Cursor) Int8() (int8, error) {
	v, err := c.Uint8()
	return int8(v), err
}

func (c *Cursor) Int16(order binary.ByteOrder) (int16, error) {
	v, err := c.Uint16(order)
	return int16(v), err
}

func (c *Cursor) Int32(order binary.ByteOrder) (int32, error) {
	v, err := c.Uint32(order)
	return int32(v), err
}

func (c *Cursor) Int64(order binary.ByteOrder) (int64, error) {
	v, err := c.Uint64(order)
	return int64(v), err
}

func (c *Cursor) Float32(order binary.ByteOrder) (float32, error) {
	v, err := c.Uint32(order)
	return math.Float32frombits(v), err
}

func (c *Cursor) Float64(order binary.ByteOrder) (float64, error) {
	v, err := c.Uint64(order)
	return math.Float64frombits(v), err
}

func isBigEndian(order binary.ByteOrder) bool {
	return order.Uint16([]byte{0, 1}) == 1
}
