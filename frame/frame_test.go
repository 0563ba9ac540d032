package frame

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Frame{
		{Type: StreamHeader, StreamID: 0, Payload: nil},
		{Type: StreamData, StreamID: 1, Payload: []byte("hello")},
		{Type: ManifestEntry, StreamID: 1000, Payload: []byte(`{"type":"stream.config"}`)},
		{Type: StreamTrailer, StreamID: 16384, Payload: []byte{}},
	}
	for _, f := range cases {
		enc, err := Encode(f)
		require.NoError(t, err)
		got, consumed, err := Decode(enc)
		require.NoError(t, err)
		assert.Equal(t, len(enc), consumed)
		assert.Equal(t, f.Type, got.Type)
		assert.Equal(t, f.StreamID, got.StreamID)
		assert.Equal(t, f.Payload, got.Payload)
	}
}

func TestMinimumFrameHeaderIsThreeBytes(t *testing.T) {
	enc, err := Encode(Frame{Type: StreamHeader, StreamID: 0})
	require.NoError(t, err)
	assert.Len(t, enc, 3)
}

func TestDecodeTruncatedPayload(t *testing.T) {
	enc, err := Encode(Frame{Type: StreamData, StreamID: 1, Payload: []byte("0123456789")})
	require.NoError(t, err)
	_, _, err = Decode(enc[:len(enc)-5])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Truncated")
}

func TestUnknownTypeIsNotFatal(t *testing.T) {
	enc, err := Encode(Frame{Type: Type(0x7f), StreamID: 3, Payload: []byte("x")})
	require.NoError(t, err)
	f, _, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, Type(0x7f), f.Type)
}

func TestIterFramesEmptyBuffer(t *testing.T) {
	it := IterFrames(nil)
	_, _, ok, err := it.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIterFramesMultiple(t *testing.T) {
	var buf []byte
	for i := 0; i < 3; i++ {
		enc, _ := Encode(Frame{Type: StreamData, StreamID: uint64(i), Payload: []byte{byte(i)}})
		buf = append(buf, enc...)
	}
	it := IterFrames(buf)
	count := 0
	for {
		f, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.Equal(t, uint64(count), f.StreamID)
		count++
	}
	assert.Equal(t, 3, count)
}

func TestDecodeFromMatchesDecode(t *testing.T) {
	f := Frame{Type: ManifestEntry, StreamID: 7, Payload: []byte(`{"type":"stream.result"}`)}
	enc, err := Encode(f)
	require.NoError(t, err)
	got, err := DecodeFrom(bytes.NewReader(enc))
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestDecodeFromOneByteAtATime(t *testing.T) {
	f := Frame{Type: StreamData, StreamID: 500, Payload: []byte("streamed one byte at a time")}
	enc, err := Encode(f)
	require.NoError(t, err)
	got, err := DecodeFrom(iotest.OneByteReader(bytes.NewReader(enc)))
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestDecodeFromCleanEOF(t *testing.T) {
	_, err := DecodeFrom(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeFromTruncatedMidHeaderIsFatal(t *testing.T) {
	enc, err := Encode(Frame{Type: StreamData, StreamID: 16384, Payload: []byte("x")})
	require.NoError(t, err)
	_, err = DecodeFrom(bytes.NewReader(enc[:2]))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Truncated")
}

func TestDecodeFromTruncatedPayloadIsFatal(t *testing.T) {
	enc, err := Encode(Frame{Type: StreamData, StreamID: 1, Payload: []byte("0123456789")})
	require.NoError(t, err)
	_, err = DecodeFrom(bytes.NewReader(enc[:len(enc)-5]))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Truncated")
}

func TestDecodeFromMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 3; i++ {
		enc, _ := Encode(Frame{Type: StreamData, StreamID: uint64(i), Payload: []byte{byte(i)}})
		buf.Write(enc)
	}
	for i := 0; i < 3; i++ {
		f, err := DecodeFrom(&buf)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), f.StreamID)
	}
	_, err := DecodeFrom(&buf)
	assert.ErrorIs(t, err, io.EOF)
}
