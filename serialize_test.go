package sketchy

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBloomSerializeRoundtripEmpty(t *testing.T) {
	f, err := NewBloomFilter(1000, 0.01)
	require.NoError(t, err)

	data, err := f.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, bloomHeaderSize+int((f.Cap()+63)/64)*8)

	f2, err := UnmarshalBloomFilter(data)
	require.NoError(t, err)
	assert.True(t, f.Equal(f2))
	assert.True(t, f2.IsZero())
}

func TestBloomSerializeRoundtripWithData(t *testing.T) {
	f, err := NewBloomFilter(10000, 0.01)
	require.NoError(t, err)
	for i := range 5000 {
		f.AddString(fmt.Sprintf("key-%d", i))
	}

	data, err := f.MarshalBinary()
	require.NoError(t, err)
	f2, err := UnmarshalBloomFilter(data)
	require.NoError(t, err)

	assert.True(t, f.Equal(f2))
	assert.Equal(t, f.Count(), f2.Count())
	assert.Equal(t, f.Capacity(), f2.Capacity())
	assert.Equal(t, f.ErrorRate(), f2.ErrorRate())
	for i := range 5000 {
		require.True(t, f2.ContainsString(fmt.Sprintf("key-%d", i)))
	}

	// The decoded filter stays writable.
	f2.AddString("after")
	assert.True(t, f2.ContainsString("after"))
}

func TestBloomSerializeDataTooShort(t *testing.T) {
	_, err := UnmarshalBloomFilter(make([]byte, bloomHeaderSize-1))
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestBloomSerializeUnsupportedVersion(t *testing.T) {
	f, err := NewBloomFilter(100, 0.01)
	require.NoError(t, err)
	data, err := f.MarshalBinary()
	require.NoError(t, err)

	data[0] = 99
	_, err = UnmarshalBloomFilter(data)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestBloomSerializeInvalidHeader(t *testing.T) {
	f, err := NewBloomFilter(100, 0.01)
	require.NoError(t, err)
	data, err := f.MarshalBinary()
	require.NoError(t, err)

	zeroK := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(zeroK[1:5], 0)
	_, err = UnmarshalBloomFilter(zeroK)
	assert.ErrorIs(t, err, ErrInvalidData)

	zeroM := append([]byte(nil), data...)
	binary.LittleEndian.PutUint64(zeroM[5:13], 0)
	_, err = UnmarshalBloomFilter(zeroM)
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = UnmarshalBloomFilter(data[:len(data)-8])
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestHyperLogLogWireFormat(t *testing.T) {
	h, err := NewHyperLogLog(4)
	require.NoError(t, err)
	h.AddString("x")

	data, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, 1+16)
	assert.Equal(t, byte(4), data[0])
	assert.Equal(t, h.Registers(), data[1:])
}

func TestHyperLogLogRoundtrip(t *testing.T) {
	h, err := NewHyperLogLog(10)
	require.NoError(t, err)
	for i := range 1000 {
		h.AddString(fmt.Sprint(i))
	}

	data, err := h.MarshalBinary()
	require.NoError(t, err)
	h2, err := UnmarshalHyperLogLog(data)
	require.NoError(t, err)
	assert.True(t, h.Equal(h2))

	var h3 HyperLogLog
	require.NoError(t, h3.UnmarshalBinary(data))
	assert.True(t, h.Equal(&h3))
	assert.Equal(t, h.Cardinality(), h3.Cardinality())
}

func TestHyperLogLogUnmarshalInvalid(t *testing.T) {
	_, err := UnmarshalHyperLogLog(nil)
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = UnmarshalHyperLogLog([]byte{3, 0, 0, 0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidData, "precision below range")

	_, err = UnmarshalHyperLogLog(make([]byte, 1+15))
	assert.ErrorIs(t, err, ErrInvalidData, "precision 0 rejected")

	short := make([]byte, 1+15)
	short[0] = 4
	_, err = UnmarshalHyperLogLog(short)
	assert.ErrorIs(t, err, ErrInvalidData, "one register missing")

	long := make([]byte, 1+17)
	long[0] = 4
	_, err = UnmarshalHyperLogLog(long)
	assert.ErrorIs(t, err, ErrInvalidData, "trailing byte")
}

func TestHyperLogLogMagicString(t *testing.T) {
	h, err := NewHyperLogLog(8)
	require.NoError(t, err)
	h.AddString("alpha")
	h.AddString("beta")

	s := h.ToMagicString()
	require.True(t, strings.HasPrefix(s, MagicPrefix))

	decoded, err := FromMagicString(s)
	require.NoError(t, err)
	assert.True(t, h.Equal(decoded))

	// The unprefixed form must not decode on the magic path.
	_, err = FromMagicString(h.ToBase64())
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = FromMagicString(MagicPrefix + "not base64!")
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestHyperLogLogBase64(t *testing.T) {
	h, err := NewHyperLogLog(6)
	require.NoError(t, err)
	h.AddString("gamma")

	raw, err := h.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), h.ToBase64())

	decoded, err := FromBase64(h.ToBase64())
	require.NoError(t, err)
	assert.True(t, h.Equal(decoded))
}

func TestDecodeHyperLogLogString(t *testing.T) {
	h, err := NewHyperLogLog(5)
	require.NoError(t, err)
	h.AddString("delta")

	for _, s := range []string{h.ToMagicString(), h.ToBase64()} {
		decoded, err := DecodeHyperLogLogString(s)
		require.NoError(t, err)
		assert.True(t, h.Equal(decoded))
	}
}

func TestHyperLogLogText(t *testing.T) {
	h, err := NewHyperLogLog(4)
	require.NoError(t, err)
	h.AddString("epsilon")

	text, err := h.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, h.ToMagicString(), string(text))

	var h2 HyperLogLog
	require.NoError(t, h2.UnmarshalText(text))
	assert.True(t, h.Equal(&h2))
}
