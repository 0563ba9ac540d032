package reader

import (
	"github.com/qsfio/qsf/filter"
	"github.com/qsfio/qsf/manifest"
	"github.com/qsfio/qsf/qsferr"
	"github.com/qsfio/qsf/varint"
)

// Event is the sum type a Reader emits: either a StreamFileBegin or a
// StreamFileEnd.
type Event interface {
	isEvent()
}

// Chunk is one item on a StreamFileBegin's decoded channel: either decoded
// plaintext bytes, or a terminal Err after which the channel is closed.
// This is how a fatal decode failure (CidMismatch, DecryptFailure) surfaces
// as an error on the consumer's read.
type Chunk struct {
	Data []byte
	Err  error
}

// StreamFileBegin fires as soon as a stream's STREAM_HEADER frame is seen
// and its stream.config has been resolved against the reader's decoder
// factories. It carries the raw encoded-byte channel and a Decode method
// that composes the resolved decoder transforms.
type StreamFileBegin struct {
	StreamID  varint.Object
	CombineID string
	Filters   []manifest.FilterConfig

	stream   <-chan []byte
	entries  []filter.Entry
	cancel   func()
	canceled bool
}

func (*StreamFileBegin) isEvent() {}

// Stream returns the raw (still filter-encoded) byte channel for this
// stream, closed once its STREAM_TRAILER frame arrives or the reader stops.
// Cancel does not close it.
func (b *StreamFileBegin) Stream() <-chan []byte { return b.stream }

// StreamIDOf decodes evt's VarintObject stream id into the numeric id used
// to correlate begin/end event pairs.
func StreamIDOf(streamID varint.Object) (uint64, error) {
	return varint.FromObject(streamID)
}

// Cancel marks this stream's entry in the binder's open pipe table as
// cancelled, so any further STREAM_DATA frames for it are drained rather
// than delivered (the entry stays until its STREAM_TRAILER closes it),
// and wakes any copy suspended waiting for this channel to be read. Only
// the first call has effect.
func (b *StreamFileBegin) Cancel() {
	if b.canceled {
		return
	}
	b.canceled = true
	if b.cancel != nil {
		b.cancel()
	}
}

// Decode composes the resolved decoder transforms in reverse filter order
// and returns a channel of decoded plaintext chunks. It fails synchronously
// with UnresolvedFilter if any filter entry has no claimed decoder instance
// — the consumer may choose to read the raw Stream() instead of calling
// Decode().
func (b *StreamFileBegin) Decode() (<-chan Chunk, error) {
	transforms := make([]filter.Transform, len(b.entries))
	for i := range b.entries {
		e := b.entries[len(b.entries)-1-i]
		if e.Instance == nil {
			return nil, &qsferr.Error{Kind: qsferr.UnresolvedFilter, Message: "no decoder factory claimed this filter", Filter: e.Input.Type()}
		}
		transforms[i] = e.Instance.Decoder()
	}
	pipeline := filter.Compose(transforms)
	out := make(chan Chunk, 1)
	go func() {
		defer close(out)
		for raw := range b.stream {
			decoded, err := pipeline.Step(raw)
			if err != nil {
				out <- Chunk{Err: err}
				return
			}
			if len(decoded) > 0 {
				out <- Chunk{Data: decoded}
			}
		}
		trailing, err := pipeline.Finish()
		if err != nil {
			out <- Chunk{Err: err}
			return
		}
		if len(trailing) > 0 {
			out <- Chunk{Data: trailing}
		}
	}()
	return out, nil
}

// StreamFileEnd is exactly a StreamResultRecord.
type StreamFileEnd struct {
	manifest.StreamResultRecord
}

func (*StreamFileEnd) isEvent() {}
