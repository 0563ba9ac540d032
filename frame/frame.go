// Package frame implements the QSF wire frame: a fixed three-varint header
// (type, stream id, payload length) followed by the payload itself.
package frame

import (
	"errors"
	"io"

	"github.com/qsfio/qsf/qsferr"
	"github.com/qsfio/qsf/varint"
)

// Type is the frame type discriminant.
type Type uint8

const (
	StreamHeader  Type = 0x01
	StreamData    Type = 0x02
	StreamTrailer Type = 0x03
	ManifestEntry Type = 0x04
	Index         Type = 0x05 // reserved, never emitted by this implementation
	Footer        Type = 0x06 // reserved, never emitted by this implementation
)

func (t Type) String() string {
	switch t {
	case StreamHeader:
		return "STREAM_HEADER"
	case StreamData:
		return "STREAM_DATA"
	case StreamTrailer:
		return "STREAM_TRAILER"
	case ManifestEntry:
		return "MANIFEST_ENTRY"
	case Index:
		return "INDEX"
	case Footer:
		return "FOOTER"
	default:
		return "UNKNOWN"
	}
}

// Frame is a single wire record: a type, a stream id, and a payload.
// Unknown type codes are preserved (not rejected) so a downstream consumer
// may choose to ignore or forward them.
type Frame struct {
	Type     Type
	StreamID uint64
	Payload  []byte
}

// Encode concatenates varint(type) ‖ varint(stream_id) ‖ varint(len(payload)) ‖ payload.
func Encode(f Frame) ([]byte, error) {
	typeBytes, err := varint.Encode(uint64(f.Type))
	if err != nil {
		return nil, err
	}
	idBytes, err := varint.Encode(f.StreamID)
	if err != nil {
		return nil, err
	}
	lenBytes, err := varint.Encode(uint64(len(f.Payload)))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(typeBytes)+len(idBytes)+len(lenBytes)+len(f.Payload))
	out = append(out, typeBytes...)
	out = append(out, idBytes...)
	out = append(out, lenBytes...)
	out = append(out, f.Payload...)
	return out, nil
}

// Decode parses a single frame from the start of buf, returning the frame
// and the total number of bytes consumed (header + payload).
func Decode(buf []byte) (Frame, int, error) {
	typeVal, n1, err := varint.Decode(buf)
	if err != nil {
		return Frame{}, 0, err
	}
	offset := n1
	streamID, n2, err := varint.Decode(buf[offset:])
	if err != nil {
		return Frame{}, 0, err
	}
	offset += n2
	length, n3, err := varint.Decode(buf[offset:])
	if err != nil {
		return Frame{}, 0, err
	}
	offset += n3
	if uint64(len(buf)-offset) < length {
		return Frame{}, 0, qsferr.New(qsferr.Truncated, "frame: payload needs %d bytes, have %d", length, len(buf)-offset)
	}
	payload := make([]byte, length)
	copy(payload, buf[offset:offset+int(length)])
	offset += int(length)
	return Frame{Type: Type(typeVal), StreamID: streamID, Payload: payload}, offset, nil
}

// DecodeFrom reads one frame directly from r, the streaming counterpart to
// Decode that backs the byte-to-frame reader stage. A clean io.EOF before
// the type varint signals end-of-stream; an io.EOF partway through a
// varint or the payload is a fatal Truncated error. Because io.ReadFull
// already loops until it has every requested byte, r may deliver its bytes
// in arbitrarily small chunks without any extra reassembly buffering here.
func DecodeFrom(r io.Reader) (Frame, error) {
	typeVal, err := varint.ReadFrom(r)
	if err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, truncateEOF(err, "type")
	}
	streamID, err := varint.ReadFrom(r)
	if err != nil {
		return Frame{}, truncateEOF(err, "stream id")
	}
	length, err := varint.ReadFrom(r)
	if err != nil {
		return Frame{}, truncateEOF(err, "length")
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, qsferr.Wrap(qsferr.Truncated, err, "frame: payload needs %d bytes", length)
	}
	return Frame{Type: Type(typeVal), StreamID: streamID, Payload: payload}, nil
}

// truncateEOF turns a clean io.EOF encountered mid-header into a fatal
// Truncated error: only the very first varint of a frame may end the
// stream cleanly.
func truncateEOF(err error, field string) error {
	if errors.Is(err, io.EOF) {
		return qsferr.New(qsferr.Truncated, "frame: stream ended while reading %s", field)
	}
	return err
}

// Iterator walks a lazily-decoded, finite sequence of frames within buf.
type Iterator struct {
	buf    []byte
	offset int
}

// IterFrames returns an Iterator over buf. An empty buffer yields no items.
func IterFrames(buf []byte) *Iterator {
	return &Iterator{buf: buf}
}

// Next returns the next frame and its starting offset within buf, or
// ok == false once the buffer is exhausted.
func (it *Iterator) Next() (f Frame, offsetInBuf int, ok bool, err error) {
	if it.offset >= len(it.buf) {
		return Frame{}, 0, false, nil
	}
	start := it.offset
	f, consumed, err := Decode(it.buf[it.offset:])
	if err != nil {
		return Frame{}, 0, false, err
	}
	it.offset += consumed
	return f, start, true, nil
}
