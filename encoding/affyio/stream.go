// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package affyio provides the primitive decoder shared by the Affymetrix
// container readers. A Stream reads fixed-width integers, floats and
// length-prefixed strings from a seekable source. Calvin containers store
// every multi-byte scalar in network (big-endian) order; XDA containers use
// little-endian order, selected with SetOrder.
package affyio

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"unicode/utf16"

	"github.com/pkg/errors"
)

var (
	// ErrTruncated is returned when the stream holds fewer bytes than a read
	// requested.
	ErrTruncated = errors.New("truncated stream")
	// ErrTrailingData is returned when a container has bytes left over after
	// its last structure was decoded.
	ErrTrailingData = errors.New("trailing data after end of container")
	// ErrBadMagic is returned when a container starts with the wrong magic
	// number.
	ErrBadMagic = errors.New("bad magic number")
	// ErrUnsupportedVersion is returned for a container version this package
	// cannot decode.
	ErrUnsupportedVersion = errors.New("unsupported container version")
)

const bufSize = 64 << 10

// Stream is a positioned, buffered reader over a seekable source. A Stream
// is owned by exactly one container and is not safe for concurrent use.
type Stream struct {
	rs    io.ReadSeeker
	r     *bufio.Reader
	off   int64
	order binary.ByteOrder
	buf   [8]byte
	// size is the stream length, or -1 until it is first needed.
	size int64
}

// NewStream creates a big-endian Stream positioned at the current offset of
// rs, which is assumed to be zero.
func NewStream(rs io.ReadSeeker) *Stream {
	return &Stream{rs: rs, r: bufio.NewReaderSize(rs, bufSize), order: binary.BigEndian, size: -1}
}

// SetOrder sets the byte order used by the scalar readers. String16 code
// units are always big-endian.
func (s *Stream) SetOrder(order binary.ByteOrder) { s.order = order }

// Order returns the byte order used by the scalar readers.
func (s *Stream) Order() binary.ByteOrder { return s.order }

// Offset returns the current position in bytes from the start of the stream.
func (s *Stream) Offset() int64 { return s.off }

// SeekTo repositions the stream at the absolute byte offset off.
func (s *Stream) SeekTo(off int64) error {
	if off == s.off {
		return nil
	}
	// Short forward hops stay inside the buffer.
	if d := off - s.off; d > 0 && d <= int64(s.r.Buffered()) {
		_, err := s.r.Discard(int(d))
		s.off = off
		return err
	}
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seek to offset %d", off)
	}
	s.r.Reset(s.rs)
	s.off = off
	return nil
}

// Size seeks to the end of the stream and returns its length. The stream is
// left positioned at the end.
func (s *Stream) Size() (int64, error) {
	n, err := s.rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, errors.Wrap(err, "seek to end of stream")
	}
	s.r.Reset(s.rs)
	s.off, s.size = n, n
	return n, nil
}

// Remaining returns the number of bytes between the current offset and the
// end of the stream, without moving the stream.
func (s *Stream) Remaining() (int64, error) {
	if s.size < 0 {
		n, err := s.rs.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, errors.Wrap(err, "seek to end of stream")
		}
		// The source sits past the bytes already buffered.
		if _, err := s.rs.Seek(s.off+int64(s.r.Buffered()), io.SeekStart); err != nil {
			return 0, errors.Wrap(err, "restore stream offset")
		}
		s.size = n
	}
	if s.off > s.size {
		return 0, nil
	}
	return s.size - s.off, nil
}

// CheckCount verifies that n elements of at least minSize bytes each fit in
// the rest of the stream. Counts read from a container are checked before
// anything is allocated for them.
func (s *Stream) CheckCount(what string, n, minSize int64) error {
	rem, err := s.Remaining()
	if err != nil {
		return err
	}
	if n > 0 && n > rem/minSize {
		return errors.Wrapf(ErrTruncated, "%d %s need at least %d bytes at offset %d, %d remain", n, what, n*minSize, s.off, rem)
	}
	return nil
}

// AtEnd reports whether the stream has no more bytes to read.
func (s *Stream) AtEnd() bool {
	_, err := s.r.Peek(1)
	return err != nil
}

// Peek returns the next n bytes without advancing the stream. The returned
// slice is only valid until the next read.
func (s *Stream) Peek(n int) ([]byte, error) {
	b, err := s.r.Peek(n)
	if len(b) < n {
		return nil, errors.Wrapf(ErrTruncated, "peek %d bytes at offset %d (%v)", n, s.off, err)
	}
	return b, nil
}

// ReadFull fills buf from the stream.
func (s *Stream) ReadFull(buf []byte) error {
	n, err := io.ReadFull(s.r, buf)
	s.off += int64(n)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return errors.Wrapf(ErrTruncated, "read %d bytes at offset %d, got %d", len(buf), s.off-int64(n), n)
		}
		return errors.Wrapf(err, "read %d bytes at offset %d", len(buf), s.off-int64(n))
	}
	return nil
}

// Skip discards n bytes.
func (s *Stream) Skip(n int64) error {
	m, err := s.r.Discard(int(n))
	s.off += int64(m)
	if int64(m) < n {
		return errors.Wrapf(ErrTruncated, "skip %d bytes at offset %d (%v)", n, s.off-int64(m), err)
	}
	return nil
}

func (s *Stream) fill(n int) ([]byte, error) {
	b := s.buf[:n]
	if err := s.ReadFull(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadUint8 reads one byte.
func (s *Stream) ReadUint8() (uint8, error) {
	b, err := s.fill(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadInt8 reads one signed byte.
func (s *Stream) ReadInt8() (int8, error) {
	v, err := s.ReadUint8()
	return int8(v), err
}

// ReadInt16 reads a 16-bit signed integer.
func (s *Stream) ReadInt16() (int16, error) {
	b, err := s.fill(2)
	if err != nil {
		return 0, err
	}
	return int16(s.order.Uint16(b)), nil
}

// ReadUint32 reads a 32-bit unsigned integer.
func (s *Stream) ReadUint32() (uint32, error) {
	b, err := s.fill(4)
	if err != nil {
		return 0, err
	}
	return s.order.Uint32(b), nil
}

// ReadInt32 reads a 32-bit signed integer.
func (s *Stream) ReadInt32() (int32, error) {
	v, err := s.ReadUint32()
	return int32(v), err
}

// ReadFloat32 reads an IEEE-754 single precision float.
func (s *Stream) ReadFloat32() (float32, error) {
	v, err := s.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadString8 reads a 32-bit length followed by that many bytes. It returns
// nil when the length is zero.
func (s *Stream) ReadString8() ([]byte, error) {
	n, err := s.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if n < 0 {
		return nil, errors.Errorf("negative string length %d at offset %d", n, s.off-4)
	}
	b := make([]byte, n)
	if err := s.ReadFull(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadString16 reads a 32-bit length followed by that many big-endian UTF-16
// code units.
func (s *Stream) ReadString16() (string, error) {
	n, err := s.ReadInt32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if n < 0 {
		return "", errors.Errorf("negative string length %d at offset %d", n, s.off-4)
	}
	b := make([]byte, 2*int(n))
	if err := s.ReadFull(b); err != nil {
		return "", err
	}
	return DecodeString16(b), nil
}

// Uint32 decodes a big-endian uint32 from b.
func Uint32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

// Int16 decodes a big-endian int16 from b.
func Int16(b []byte) int16 { return int16(binary.BigEndian.Uint16(b)) }

// Float32 decodes a big-endian float32 from b.
func Float32(b []byte) float32 { return math.Float32frombits(binary.BigEndian.Uint32(b)) }

// DecodeString16 converts big-endian UTF-16 code units to a string. A
// trailing odd byte is ignored, as are trailing NUL code units.
func DecodeString16(raw []byte) string {
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(raw[2*i:])
	}
	for len(units) > 0 && units[len(units)-1] == 0 {
		units = units[:len(units)-1]
	}
	return string(utf16.Decode(units))
}
