// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package affytest builds synthetic Affymetrix container bytes for tests.
package affytest

import (
	"encoding/binary"
	"math"
	"unicode/utf16"
)

// Builder appends fixed-width values to an in-memory buffer.
type Builder struct {
	buf   []byte
	order binary.ByteOrder
}

// New returns a big-endian Builder.
func New() *Builder { return &Builder{order: binary.BigEndian} }

// NewLittleEndian returns a little-endian Builder, as used by XDA files.
func NewLittleEndian() *Builder { return &Builder{order: binary.LittleEndian} }

// Bytes returns the accumulated bytes.
func (b *Builder) Bytes() []byte { return b.buf }

// Len returns the number of bytes written so far.
func (b *Builder) Len() int { return len(b.buf) }

// Raw appends p as is.
func (b *Builder) Raw(p []byte) *Builder {
	b.buf = append(b.buf, p...)
	return b
}

// U8 appends one byte.
func (b *Builder) U8(v uint8) *Builder {
	b.buf = append(b.buf, v)
	return b
}

// I8 appends one signed byte.
func (b *Builder) I8(v int8) *Builder { return b.U8(uint8(v)) }

// I16 appends a 16-bit integer.
func (b *Builder) I16(v int16) *Builder {
	var tmp [2]byte
	b.order.PutUint16(tmp[:], uint16(v))
	return b.Raw(tmp[:])
}

// U32 appends a 32-bit unsigned integer.
func (b *Builder) U32(v uint32) *Builder {
	var tmp [4]byte
	b.order.PutUint32(tmp[:], v)
	return b.Raw(tmp[:])
}

// I32 appends a 32-bit signed integer.
func (b *Builder) I32(v int32) *Builder { return b.U32(uint32(v)) }

// F32 appends a float32.
func (b *Builder) F32(v float32) *Builder { return b.U32(math.Float32bits(v)) }

// Str8 appends a length-prefixed byte string.
func (b *Builder) Str8(s string) *Builder {
	b.I32(int32(len(s)))
	return b.Raw([]byte(s))
}

// Str16 appends a length-prefixed big-endian UTF-16 string.
func (b *Builder) Str16(s string) *Builder {
	units := utf16.Encode([]rune(s))
	b.I32(int32(len(units)))
	return b.Raw(Wide(s))
}

// PutU32 overwrites the 32-bit value at off. It is used to back-patch
// offsets once the position they refer to is known.
func (b *Builder) PutU32(off int, v uint32) {
	b.order.PutUint32(b.buf[off:], v)
}

// Wide encodes s as big-endian UTF-16 bytes without a length prefix.
func Wide(s string) []byte {
	units := utf16.Encode([]rune(s))
	p := make([]byte, 2*len(units))
	for i, u := range units {
		binary.BigEndian.PutUint16(p[2*i:], u)
	}
	return p
}

// Scalar encodes v in the 4-byte big-endian slot Calvin uses for numeric
// parameter values.
func Scalar(v uint32) []byte {
	p := make([]byte, 4)
	binary.BigEndian.PutUint32(p, v)
	return p
}
