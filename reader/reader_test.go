package reader

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsfio/qsf/filter"
	"github.com/qsfio/qsf/filter/cidfilter"
	"github.com/qsfio/qsf/filter/zstr"
	"github.com/qsfio/qsf/manifest"
	"github.com/qsfio/qsf/varint"
	"github.com/qsfio/qsf/writer"
)

func collectEvents(t *testing.T, r *Reader) []Event {
	t.Helper()
	var events []Event
	for evt := range r.Events() {
		events = append(events, evt)
	}
	return events
}

func TestReadRoundTripsPlainEntry(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writer.New(&buf).Write([]writer.Entry{
		{Source: bytes.NewReader([]byte("hello from the writer"))},
	}))

	r := Open(context.Background(), &buf)
	events := collectEvents(t, r)
	require.NoError(t, r.Err())
	require.Len(t, events, 2)

	begin, ok := events[0].(*StreamFileBegin)
	require.True(t, ok)
	var collected []byte
	for chunk := range begin.Stream() {
		collected = append(collected, chunk...)
	}
	assert.Equal(t, []byte("hello from the writer"), collected)

	end, ok := events[1].(*StreamFileEnd)
	require.True(t, ok)
	assert.Equal(t, uint64(len(collected)), end.Length)
}

func TestReadDecodesCidAndZstrPipeline(t *testing.T) {
	var buf bytes.Buffer
	cidEnc := cidfilter.NewEncoder("")
	zEnc, err := zstr.NewEncoder(zstr.CodecGzip)
	require.NoError(t, err)
	data := bytes.Repeat([]byte("decode this please "), 80)

	require.NoError(t, writer.New(&buf).Write([]writer.Entry{
		{Source: bytes.NewReader(data), Encoders: []filter.EncoderFilter{cidEnc, zEnc}},
	}))

	r := Open(context.Background(), &buf)
	events := collectEvents(t, r)
	require.NoError(t, r.Err())

	begin := events[0].(*StreamFileBegin)
	decoded, err := begin.Decode()
	require.NoError(t, err)
	var got []byte
	for chunk := range decoded {
		require.NoError(t, chunk.Err)
		got = append(got, chunk.Data...)
	}
	assert.Equal(t, data, got)
}

func TestReadTwoEntriesPreserveOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writer.New(&buf).Write([]writer.Entry{
		{Source: bytes.NewReader([]byte("first stream"))},
		{Source: bytes.NewReader([]byte("second stream"))},
	}))

	r := Open(context.Background(), &buf)
	events := collectEvents(t, r)
	require.NoError(t, r.Err())
	require.Len(t, events, 4)

	first := events[0].(*StreamFileBegin)
	id, err := StreamIDOf(first.StreamID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)
}

func TestCancelStopsDeliveryWithoutDeadlock(t *testing.T) {
	var buf bytes.Buffer
	big := bytes.Repeat([]byte("x"), chunkBudget())
	require.NoError(t, writer.New(&buf).Write([]writer.Entry{
		{Source: bytes.NewReader(big)},
	}))

	// A high water mark of 1 guarantees the pump blocks on the data channel
	// well before the whole stream is delivered, so Cancel must be able to
	// unstick it without this test reading a single byte of the payload.
	r := Open(context.Background(), &buf, WithHighWaterMark(1))

	var begin *StreamFileBegin
	select {
	case evt := <-r.Events():
		begin = evt.(*StreamFileBegin)
	case <-time.After(time.Second):
		t.Fatal("stream-begin event never arrived")
	}

	begin.Cancel()
	begin.Cancel() // idempotent, must not panic on double close

	select {
	case <-r.Events():
	case <-time.After(time.Second):
		t.Fatal("no further event arrived after cancel")
	}
	require.NoError(t, r.Err())
}

// chunkBudget returns a payload size comfortably larger than the writer's
// internal chunk size, forcing multiple STREAM_DATA frames.
func chunkBudget() int { return 80 * 1024 }

func TestResolveLeavesUnknownFilterUnclaimed(t *testing.T) {
	cfg := manifest.StreamConfigRecord{
		Type:     manifest.RecordStreamConfig,
		StreamID: varint.ToObject(0),
		Filters:  []manifest.FilterConfig{{"type": "Unknown.config"}},
	}
	entries, err := resolve(cfg, []filter.DecoderFactory{cidfilter.Factory, zstr.Factory})
	require.NoError(t, err)
	assert.Nil(t, entries[0].Instance)
}

func TestDecodeFailsWithUnresolvedFilter(t *testing.T) {
	begin := &StreamFileBegin{
		entries: []filter.Entry{{Input: manifest.FilterConfig{"type": "Unknown.config"}}},
	}
	_, err := begin.Decode()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UnresolvedFilter")
}

func TestEventsChannelClosesOnContextCancel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writer.New(&buf).Write([]writer.Entry{
		{Source: bytes.NewReader([]byte("data"))},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Open(ctx, &buf)

	select {
	case _, ok := <-r.Events():
		_ = ok
	case <-time.After(time.Second):
		t.Fatal("events channel never closed after context cancellation")
	}
}
