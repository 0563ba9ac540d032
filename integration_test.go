package qsf

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsfio/qsf/filter"
	"github.com/qsfio/qsf/filter/aesgcm"
	"github.com/qsfio/qsf/filter/cidfilter"
	"github.com/qsfio/qsf/filter/zstr"
	"github.com/qsfio/qsf/reader"
)

// oneByteReader forces every Read call to return at most one byte, exercising
// the reassembly path for frames delivered in arbitrarily small pieces.
type oneByteReader struct{ r io.Reader }

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

func drainBegin(t *testing.T, begin *StreamFileBegin) []byte {
	t.Helper()
	decoded, err := begin.Decode()
	require.NoError(t, err)
	var out []byte
	for chunk := range decoded {
		require.NoError(t, chunk.Err)
		out = append(out, chunk.Data...)
	}
	return out
}

func nextBegin(t *testing.T, r *Reader) *StreamFileBegin {
	t.Helper()
	evt := <-r.Events()
	require.NotNil(t, evt)
	b, ok := evt.(*StreamFileBegin)
	require.True(t, ok)
	return b
}

func nextEnd(t *testing.T, r *Reader) *StreamFileEnd {
	t.Helper()
	evt := <-r.Events()
	require.NotNil(t, evt)
	e, ok := evt.(*StreamFileEnd)
	require.True(t, ok)
	return e
}

// Scenario 1: a stream with no filters at all round trips byte for byte.
func TestScenarioRawPassthrough(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("plain bytes, no filters attached")
	require.NoError(t, Write(&buf, []Entry{{Source: bytes.NewReader(payload)}}))

	r := Read(context.Background(), &buf)
	begin := nextBegin(t, r)
	assert.Empty(t, begin.Filters)
	got := drainBegin(t, begin)
	assert.Equal(t, payload, got)
	end := nextEnd(t, r)
	assert.Equal(t, uint64(len(payload)), end.Length)
	require.NoError(t, r.Err())
}

// Scenario 2: a CID-only stream verifies content address on read.
func TestScenarioCidOnly(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("content to be addressed")
	enc := cidfilter.NewEncoder("")
	require.NoError(t, Write(&buf, []Entry{
		{Source: bytes.NewReader(payload), Encoders: []filter.EncoderFilter{enc}},
	}))
	expectedCID, err := cidfilter.Sum(payload)
	require.NoError(t, err)
	assert.Equal(t, expectedCID, enc.Resolved())

	r := Read(context.Background(), &buf)
	begin := nextBegin(t, r)
	require.Len(t, begin.Filters, 1)
	assert.Equal(t, cidfilter.ConfigType, begin.Filters[0].Type())
	got := drainBegin(t, begin)
	assert.Equal(t, payload, got)
	end := nextEnd(t, r)
	require.Len(t, end.FilterResult, 1)
	assert.Equal(t, expectedCID, end.FilterResult[0]["cid"])
}

// Scenario 3: compression measurably reduces the on-wire stream length for
// compressible input.
func TestScenarioCompressionReducesSize(t *testing.T) {
	var plainBuf, compressedBuf bytes.Buffer
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 400)

	require.NoError(t, Write(&plainBuf, []Entry{{Source: bytes.NewReader(payload)}}))

	zEnc, err := zstr.NewEncoder(zstr.CodecGzip)
	require.NoError(t, err)
	require.NoError(t, Write(&compressedBuf, []Entry{
		{Source: bytes.NewReader(payload), Encoders: []filter.EncoderFilter{zEnc}},
	}))

	assert.Less(t, compressedBuf.Len(), plainBuf.Len())

	r := Read(context.Background(), bytes.NewReader(compressedBuf.Bytes()))
	begin := nextBegin(t, r)
	got := drainBegin(t, begin)
	assert.Equal(t, payload, got)
}

// Scenario 4: an encrypted stream round trips through AES-GCM with the
// correct key. The wrong-key DecryptFailure case is covered by
// filter/aesgcm's TestWrongKeyFailsWithDecryptFailure.
func TestScenarioEncryptRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	payload := []byte("secret stream contents")

	var buf bytes.Buffer
	enc, err := aesgcm.NewEncoder(key)
	require.NoError(t, err)
	require.NoError(t, Write(&buf, []Entry{
		{Source: bytes.NewReader(payload), Encoders: []filter.EncoderFilter{enc}},
	}))

	keyID := aesgcm.KeyFingerprint(key)
	resolver := mapResolver{keyID: key}
	r := Read(context.Background(), bytes.NewReader(buf.Bytes()), reader.WithDecoderFactory(aesgcm.NewFactory(resolver)))
	begin := nextBegin(t, r)
	got := drainBegin(t, begin)
	assert.Equal(t, payload, got)
}

type mapResolver map[string][]byte

func (m mapResolver) ResolveKey(keyID string) ([]byte, error) {
	k, ok := m[keyID]
	if !ok {
		return nil, assert.AnError
	}
	return k, nil
}

// Scenario 5: a three-filter pipeline (CID, then ZStr, then AES-GCM)
// composes correctly in both directions.
func TestScenarioCidZstrEncryptPipeline(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(31 - i)
	}
	payload := bytes.Repeat([]byte("layered filter content "), 100)

	cidEnc := cidfilter.NewEncoder("")
	zEnc, err := zstr.NewEncoder(zstr.CodecDeflateRaw)
	require.NoError(t, err)
	aesEnc, err := aesgcm.NewEncoder(key)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []Entry{
		{Source: bytes.NewReader(payload), Encoders: []filter.EncoderFilter{cidEnc, zEnc, aesEnc}},
	}))

	keyID := aesgcm.KeyFingerprint(key)
	resolver := mapResolver{keyID: key}
	r := Read(context.Background(), &buf, reader.WithDecoderFactory(aesgcm.NewFactory(resolver)))
	begin := nextBegin(t, r)
	require.Len(t, begin.Filters, 3)
	got := drainBegin(t, begin)
	assert.Equal(t, payload, got)
	end := nextEnd(t, r)
	require.Len(t, end.FilterResult, 3)
	assert.Equal(t, cidEnc.Resolved(), end.FilterResult[0]["cid"])
}

// Scenario 6: two streams sharing a combineId each carry their own CID, and
// a separately computed group CID combines them in entry order.
func TestScenarioSharedCombineID(t *testing.T) {
	const groupID = "doc-group-1"
	first := []byte("first member content")
	second := []byte("second member content")

	encA := cidfilter.NewEncoder(groupID)
	encB := cidfilter.NewEncoder(groupID)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []Entry{
		{Source: bytes.NewReader(first), Encoders: []filter.EncoderFilter{encA}, CombineID: groupID},
		{Source: bytes.NewReader(second), Encoders: []filter.EncoderFilter{encB}, CombineID: groupID},
	}))

	r := Read(context.Background(), &buf)
	beginA := nextBegin(t, r)
	assert.Equal(t, groupID, beginA.CombineID)
	_ = drainBegin(t, beginA)
	endA := nextEnd(t, r)

	beginB := nextBegin(t, r)
	assert.Equal(t, groupID, beginB.CombineID)
	_ = drainBegin(t, beginB)
	endB := nextEnd(t, r)

	assert.Equal(t, encA.Resolved(), endA.FilterResult[0]["cid"])
	assert.Equal(t, encB.Resolved(), endB.FilterResult[0]["cid"])
	assert.NotEqual(t, encA.Resolved(), encB.Resolved())

	combined, err := cidfilter.CombinedCID([]string{encA.Resolved(), encB.Resolved()})
	require.NoError(t, err)
	assert.NotEqual(t, encA.Resolved(), combined)
}

// Scenario 7: feeding the reader one byte at a time must not change the
// decoded result, proving the frame/varint layers need no whole-frame
// reassembly buffering above io.ReadFull.
func TestScenarioPartialReadsOneByteAtATime(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("this container will be read one byte at a time")
	enc := cidfilter.NewEncoder("")
	require.NoError(t, Write(&buf, []Entry{
		{Source: bytes.NewReader(payload), Encoders: []filter.EncoderFilter{enc}},
	}))

	r := Read(context.Background(), oneByteReader{r: bytes.NewReader(buf.Bytes())})
	begin := nextBegin(t, r)
	got := drainBegin(t, begin)
	assert.Equal(t, payload, got)
	end := nextEnd(t, r)
	assert.Equal(t, enc.Resolved(), end.FilterResult[0]["cid"])
	require.NoError(t, r.Err())
}
