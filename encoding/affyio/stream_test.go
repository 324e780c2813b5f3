package affyio_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/grailbio/microarray/encoding/affyio"
	"github.com/grailbio/microarray/encoding/affyio/affytest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalars(t *testing.T) {
	b := affytest.New().U8(59).I8(-2).I16(-300).U32(0xdeadbeef).I32(-7).F32(1.5)
	s := affyio.NewStream(bytes.NewReader(b.Bytes()))

	u8, err := s.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(59), u8)
	i8, err := s.ReadInt8()
	require.NoError(t, err)
	assert.Equal(t, int8(-2), i8)
	i16, err := s.ReadInt16()
	require.NoError(t, err)
	assert.Equal(t, int16(-300), i16)
	u32, err := s.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), u32)
	i32, err := s.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(-7), i32)
	f, err := s.ReadFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f)
	assert.True(t, s.AtEnd())
	assert.Equal(t, int64(b.Len()), s.Offset())
}

func TestLittleEndian(t *testing.T) {
	b := affytest.NewLittleEndian().I32(64).I16(5)
	s := affyio.NewStream(bytes.NewReader(b.Bytes()))
	s.SetOrder(binary.LittleEndian)
	v, err := s.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(64), v)
	w, err := s.ReadInt16()
	require.NoError(t, err)
	assert.Equal(t, int16(5), w)
}

func TestStrings(t *testing.T) {
	b := affytest.New().Str8("abc").I32(0).Str16("Genotype").Str16("")
	s := affyio.NewStream(bytes.NewReader(b.Bytes()))

	s8, err := s.ReadString8()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(s8))
	s8, err = s.ReadString8()
	require.NoError(t, err)
	assert.Nil(t, s8)
	s16, err := s.ReadString16()
	require.NoError(t, err)
	assert.Equal(t, "Genotype", s16)
	s16, err = s.ReadString16()
	require.NoError(t, err)
	assert.Equal(t, "", s16)
	assert.True(t, s.AtEnd())
}

func TestTruncated(t *testing.T) {
	s := affyio.NewStream(bytes.NewReader([]byte{0, 0, 1}))
	_, err := s.ReadUint32()
	assert.Equal(t, affyio.ErrTruncated, errors.Cause(err))

	// A string whose length prefix promises more than is available.
	b := affytest.New().I32(10).Raw([]byte("short"))
	s = affyio.NewStream(bytes.NewReader(b.Bytes()))
	_, err = s.ReadString8()
	assert.Equal(t, affyio.ErrTruncated, errors.Cause(err))

	s = affyio.NewStream(bytes.NewReader([]byte{1, 2}))
	assert.Equal(t, affyio.ErrTruncated, errors.Cause(s.Skip(3)))
	_, err = s.Peek(1)
	assert.Equal(t, affyio.ErrTruncated, errors.Cause(err))
}

func TestSeekAndSize(t *testing.T) {
	b := affytest.New().U32(1).U32(2).U32(3).U32(4)
	s := affyio.NewStream(bytes.NewReader(b.Bytes()))
	require.NoError(t, s.SeekTo(8))
	v, err := s.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), v)

	// Backwards seek re-reads from the source.
	require.NoError(t, s.SeekTo(4))
	v, err = s.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), v)

	p, err := s.Peek(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), affyio.Uint32(p))
	assert.Equal(t, int64(8), s.Offset())

	n, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(16), n)
	assert.True(t, s.AtEnd())
}

func TestCheckCount(t *testing.T) {
	b := affytest.New().U32(1).U32(2).U32(3).U32(4)
	s := affyio.NewStream(bytes.NewReader(b.Bytes()))
	_, err := s.ReadUint32()
	require.NoError(t, err)
	rem, err := s.Remaining()
	require.NoError(t, err)
	assert.Equal(t, int64(12), rem)
	assert.NoError(t, s.CheckCount("words", 3, 4))
	assert.NoError(t, s.CheckCount("words", 0, 4))
	assert.Equal(t, affyio.ErrTruncated, errors.Cause(s.CheckCount("words", 4, 4)))
	assert.Equal(t, affyio.ErrTruncated, errors.Cause(s.CheckCount("words", 0x7FFFFFFF, 9)))

	// Checking does not move the stream.
	assert.Equal(t, int64(4), s.Offset())
	v, err := s.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), v)
}

func TestDecodeString16(t *testing.T) {
	raw := append(affytest.Wide("AX-1"), 0, 0, 0, 0)
	assert.Equal(t, "AX-1", affyio.DecodeString16(raw))
	assert.Equal(t, float32(2), affyio.Float32(affytest.Scalar(0x40000000)))
	assert.Equal(t, int16(-1), affyio.Int16([]byte{0xff, 0xff}))
}
