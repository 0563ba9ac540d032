// Package qsf is the public facade over the QSF (QUIC Stream File)
// container format: a streaming multiplexer of independent byte streams,
// each passing through a composable filter pipeline of content-addressing,
// compression, and encryption.
//
// Write builds a container from a sequence of writer.Entry values; Read
// opens one and streams back StreamFileBegin/StreamFileEnd event pairs as
// soon as each stream's framing header arrives, with no whole-file
// buffering.
package qsf

import (
	"context"
	"io"

	"github.com/qsfio/qsf/filter"
	"github.com/qsfio/qsf/reader"
	"github.com/qsfio/qsf/varint"
	"github.com/qsfio/qsf/writer"
)

// Entry is one logical stream to write: a plaintext source plus the encode
// pipeline to run over it.
type Entry = writer.Entry

// WriteOption configures a Write call.
type WriteOption = writer.Option

// ReadOption configures a Read call.
type ReadOption = reader.Option

// Event is the sum type a Read stream emits.
type Event = reader.Event

// StreamFileBegin fires once a stream's header and resolved filter
// pipeline are known.
type StreamFileBegin = reader.StreamFileBegin

// StreamFileEnd carries a stream's terminal offset, length, and filter
// results.
type StreamFileEnd = reader.StreamFileEnd

// Chunk is one item on a StreamFileBegin's decoded channel.
type Chunk = reader.Chunk

// Write multiplexes entries into a single QSF container written to sink,
// in array order, and closes sink (when it implements io.Closer) once every
// entry has been emitted.
func Write(sink io.Writer, entries []Entry, opts ...WriteOption) error {
	return writer.New(sink, opts...).Write(entries)
}

// Read opens src as a QSF container and returns a Reader whose Events
// channel yields a StreamFileBegin/StreamFileEnd pair per logical stream,
// in the order their framing arrives. Cancelling ctx stops the reader
// before its next frame: it ceases reading src and closes the channels of
// any streams still in flight, so their remaining frames are never read.
func Read(ctx context.Context, src io.Reader, opts ...ReadOption) *Reader {
	return reader.Open(ctx, src, opts...)
}

// Reader drives the read-side pipeline; see reader.Reader.
type Reader = reader.Reader

// WithDecoderFactory appends a DecoderFactory for Read to consult after the
// built-in CID and ZStr factories, the facade-level entry point for plugging
// in a stream's encryption key resolver (e.g. aesgcm.NewFactory).
func WithDecoderFactory(f filter.DecoderFactory) ReadOption {
	return reader.WithDecoderFactory(f)
}

// StreamIDOf decodes a VarintObject stream id into the numeric id used to
// correlate a StreamFileBegin with its StreamFileEnd.
func StreamIDOf(streamID varint.Object) (uint64, error) {
	return varint.FromObject(streamID)
}
