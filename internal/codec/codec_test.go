package codec

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetBigEndian(t *testing.T) {
	buf := make([]byte, 11)
	PutShort(buf, 0, 0x0102)
	PutInt(buf, 2, 0x03040506)
	PutFloat(buf, 6, 1.5)
	PutBoolean(buf, 10, true)

	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, buf[:6])

	s, err := GetShort(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), s)

	i, err := GetInt(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x03040506), i)

	f, err := GetFloat(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f)

	b, err := GetBoolean(buf, 10)
	require.NoError(t, err)
	assert.True(t, b)
}

func TestGetOutOfRange(t *testing.T) {
	buf := []byte{1, 2, 3}

	_, err := GetShort(buf, 2)
	assert.ErrorIs(t, err, ErrTruncatedMessage)
	_, err = GetInt(buf, 0)
	assert.ErrorIs(t, err, ErrTruncatedMessage)
	_, err = GetFloat(buf, -1)
	assert.ErrorIs(t, err, ErrTruncatedMessage)
	_, err = GetBoolean(buf, 3)
	assert.ErrorIs(t, err, ErrTruncatedMessage)
	_, err = ReadFully(buf, 1, 5)
	assert.ErrorIs(t, err, ErrTruncatedMessage)
}

func TestReadFullyCopies(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	out, err := ReadFully(buf, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3}, out)

	out[0] = 99
	assert.Equal(t, byte(2), buf[1])
}

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter(4)
	w.WriteUint8(7)
	w.WriteShort(65535)
	w.WriteInt(-42)
	w.WriteUint32(math.MaxUint32)
	w.WriteFloat(float32(math.Inf(-1)))
	w.WriteBoolean(false)
	require.NoError(t, w.WriteShortString("игрок"))
	require.NoError(t, w.WriteString("hello, world"))
	w.WriteBytes([]byte{9, 8})

	r := NewReader(w.Bytes())

	u8, err := r.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(7), u8)

	s, err := r.ReadShort()
	require.NoError(t, err)
	assert.Equal(t, uint16(65535), s)

	i, err := r.ReadInt()
	require.NoError(t, err)
	assert.Equal(t, int32(-42), i)

	u32, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), u32)

	f, err := r.ReadFloat()
	require.NoError(t, err)
	assert.True(t, math.IsInf(float64(f), -1))

	b, err := r.ReadBoolean()
	require.NoError(t, err)
	assert.False(t, b)

	name, err := r.ReadShortString()
	require.NoError(t, err)
	assert.Equal(t, "игрок", name)

	text, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "hello, world", text)

	tail, err := r.ReadFully(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8}, tail)
	assert.Zero(t, r.Remaining())
}

func TestReaderTruncation(t *testing.T) {
	r := NewReader([]byte{0x00})
	_, err := r.ReadShort()
	assert.ErrorIs(t, err, ErrTruncatedMessage)
	// курсор не сдвинулся
	assert.Equal(t, 0, r.Offset())

	// длина строки больше, чем осталось байт
	r = NewReader([]byte{5, 'a', 'b'})
	_, err = r.ReadShortString()
	assert.ErrorIs(t, err, ErrTruncatedMessage)

	r = NewReader(nil)
	_, err = r.ReadUint8()
	assert.ErrorIs(t, err, ErrTruncatedMessage)
	_, err = r.Slice(-1)
	assert.ErrorIs(t, err, ErrTruncatedMessage)
}

func TestStringLimits(t *testing.T) {
	w := NewWriter(0)
	assert.ErrorIs(t, w.WriteShortString(strings.Repeat("x", 256)), ErrStringTooLong)
	assert.NoError(t, w.WriteShortString(strings.Repeat("x", 255)))
	assert.Equal(t, 256, w.Len())
}

func TestReserveAndPatch(t *testing.T) {
	w := NewWriter(0)
	off := w.Reserve(IntSize)
	w.WriteShort(1)
	PutInt(w.Bytes(), off, 2)

	assert.Equal(t, []byte{0, 0, 0, 2, 0, 1}, w.Bytes())
}
