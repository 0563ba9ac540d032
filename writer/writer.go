// Package writer implements the QSF container writer: it multiplexes
// entries into STREAM_HEADER/STREAM_DATA/STREAM_TRAILER frames, runs each
// entry's per-stream encode pipeline, and emits the surrounding
// stream.config/stream.result manifest frames.
package writer

import (
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/qsfio/qsf/filter"
	"github.com/qsfio/qsf/frame"
	"github.com/qsfio/qsf/manifest"
)

// chunkSize is the buffer size used to pull bytes from each entry's source
// reader before handing them to the encode pipeline.
const chunkSize = 32 * 1024

// Entry is one logical stream to be written: a plaintext source, the
// encoder pipeline to run over it (in encode order — a CID filter, if
// present, must come first so it sees plaintext bytes before any
// compression or encryption), and an optional combineId grouping it
// with other entries.
type Entry struct {
	Source    io.Reader
	Encoders  []filter.EncoderFilter
	CombineID string
}

// Option configures a Writer.
type Option func(*Writer)

// WithSerializer overrides the manifest body serializer (default JSON).
func WithSerializer(s manifest.Serializer) Option {
	return func(w *Writer) { w.serializer = s }
}

// WithLogger attaches a logrus entry for frame-level tracing. Never
// required for correctness: only for observability.
func WithLogger(log *logrus.Entry) Option {
	return func(w *Writer) { w.log = log }
}

// Writer multiplexes a sequence of Entry values into a single QSF
// container written to sink.
type Writer struct {
	sink       io.Writer
	serializer manifest.Serializer
	log        *logrus.Entry
	nextID     uint64
}

// New creates a Writer over sink.
func New(sink io.Writer, opts ...Option) *Writer {
	w := &Writer{
		sink:       sink,
		serializer: manifest.JSONSerializer{},
		log:        logrus.NewEntry(logrus.StandardLogger()).WithField("component", "writer"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// countingWriter tracks the total number of bytes written through it, so
// the writer can record each stream's STREAM_DATA frame offset: the byte
// position of the first STREAM_DATA frame's header, not its payload start.
type countingWriter struct {
	w     io.Writer
	count uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.count += uint64(n)
	return n, err
}

func (c *countingWriter) writeFrame(f frame.Frame) error {
	b, err := frame.Encode(f)
	if err != nil {
		return err
	}
	_, err = c.Write(b)
	return err
}

// Write processes entries strictly sequentially, assigning stream ids in
// array order, and closes the sink, when it implements io.Closer, once every
// entry has been fully emitted.
func (w *Writer) Write(entries []Entry) error {
	sessionID := uuid.New().String()
	cw := &countingWriter{w: w.sink}
	for _, entry := range entries {
		streamID := w.nextID
		w.nextID++
		log := w.log.WithFields(logrus.Fields{"session": sessionID, "streamId": streamID})
		if err := w.writeEntry(cw, streamID, entry, log); err != nil {
			log.WithError(err).Error("qsf writer: entry failed")
			return err
		}
	}
	if closer, ok := w.sink.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (w *Writer) writeEntry(cw *countingWriter, streamID uint64, entry Entry, log *logrus.Entry) error {
	// Instantiate encode transforms first — some filters need per-stream
	// state (e.g. key generation) before their config is stable.
	transforms := make([]filter.Transform, len(entry.Encoders))
	for i, enc := range entry.Encoders {
		transforms[i] = enc.Encoder()
	}

	// Await Config() on each encoder, emit stream.config.
	configs := make([]manifest.FilterConfig, len(entry.Encoders))
	for i, enc := range entry.Encoders {
		cfg, err := enc.Config()
		if err != nil {
			return err
		}
		configs[i] = cfg
	}
	configRecord := manifest.NewStreamConfigRecord(streamID, entry.CombineID, configs)
	if err := w.emitManifest(cw, streamID, configRecord); err != nil {
		return err
	}
	log.Debug("qsf writer: emitted stream.config")

	// Emit STREAM_HEADER.
	if err := cw.writeFrame(frame.Frame{Type: frame.StreamHeader, StreamID: streamID}); err != nil {
		return err
	}

	// Compose transforms left to right and pipe source bytes through them,
	// emitting a STREAM_DATA frame per output chunk.
	pipeline := filter.Compose(transforms)
	var offset uint64
	var length uint64
	var haveOffset bool

	buf := make([]byte, chunkSize)
	for {
		n, readErr := entry.Source.Read(buf)
		if n > 0 {
			out, err := pipeline.Step(buf[:n])
			if err != nil {
				return err
			}
			if len(out) > 0 {
				if !haveOffset {
					offset = cw.count
					haveOffset = true
				}
				length += uint64(len(out))
				if err := cw.writeFrame(frame.Frame{Type: frame.StreamData, StreamID: streamID, Payload: out}); err != nil {
					return err
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	trailingOut, err := pipeline.Finish()
	if err != nil {
		return err
	}
	if len(trailingOut) > 0 {
		if !haveOffset {
			offset = cw.count
			haveOffset = true
		}
		length += uint64(len(trailingOut))
		if err := cw.writeFrame(frame.Frame{Type: frame.StreamData, StreamID: streamID, Payload: trailingOut}); err != nil {
			return err
		}
	}
	if !haveOffset {
		// No data frames were ever emitted (empty source): offset defaults
		// to the position immediately following the header, the point
		// where a first STREAM_DATA frame would have started.
		offset = cw.count
	}

	// Emit STREAM_TRAILER with an empty serialized record.
	trailerBody, err := w.serializer.Encode(map[string]interface{}{})
	if err != nil {
		return err
	}
	if err := cw.writeFrame(frame.Frame{Type: frame.StreamTrailer, StreamID: streamID, Payload: trailerBody}); err != nil {
		return err
	}

	// Await Result() from each encoder, dropping entries with no result,
	// and emit stream.result.
	var results []manifest.FilterResult
	for _, enc := range entry.Encoders {
		res, ok, err := enc.Result()
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		results = append(results, res)
	}
	resultRecord := manifest.NewStreamResultRecord(streamID, offset, length, results)
	if err := w.emitManifest(cw, streamID, resultRecord); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"offset": offset, "length": length}).Debug("qsf writer: emitted stream.result")
	return nil
}

func (w *Writer) emitManifest(cw *countingWriter, streamID uint64, record interface{}) error {
	body, err := w.serializer.Encode(record)
	if err != nil {
		return err
	}
	return cw.writeFrame(frame.Frame{Type: frame.ManifestEntry, StreamID: streamID, Payload: body})
}
