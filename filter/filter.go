// Package filter declares the three role-specific contracts built-in and
// user-supplied filters implement: an encoder half that runs during
// writing, a decoder half that runs during reading, and a decoder factory
// that resolves a manifest-declared config into a live decoder instance.
package filter

import "github.com/qsfio/qsf/manifest"

// Transform is a chunk-in/chunk-out byte pipeline with a flush hook. Step
// processes one input chunk and returns zero or more bytes to emit
// immediately (compression may buffer internally and return less than it
// was given; encryption returns exactly one output chunk per input chunk).
// Finish flushes any buffered state and returns trailing bytes, if any.
type Transform interface {
	Step(chunk []byte) ([]byte, error)
	Finish() ([]byte, error)
}

// EncoderFilter is the write-side half of a filter. One instance is used
// for exactly one logical stream; filter state (hash accumulators, cipher
// state) is never shared across streams.
type EncoderFilter interface {
	// Config returns this filter's manifest configuration. Called after
	// the encoder transform has been instantiated, since some filters
	// (encryption) need per-stream state — e.g. key generation — before
	// their config is stable.
	Config() (manifest.FilterConfig, error)
	// Encoder returns the chunk transform to run over the source bytes.
	Encoder() Transform
	// Result returns this filter's terminal result after Finish has been
	// called on the encoder transform, or ok == false if this filter
	// contributes no result record.
	Result() (result manifest.FilterResult, ok bool, err error)
}

// DecoderFilter is the read-side half of a filter, resolved for a specific
// stream by a DecoderFactory.
type DecoderFilter interface {
	// Decoder returns the chunk transform that reverses the corresponding
	// EncoderFilter's Encoder transform.
	Decoder() Transform
}

// Entry is one slot in a stream's resolved filter pipeline: the filter
// config as declared in the manifest, and the decoder instance claimed for
// it (nil until a factory resolves it).
type Entry struct {
	Input    manifest.FilterConfig
	Instance DecoderFilter
}

// DecoderFactory inspects a stream's declared filter entries and claims the
// ones it recognizes by setting their Instance field. By convention a
// factory claims an entry only where Input.Type() matches what it knows how
// to build AND Instance is still nil — first claim wins.
type DecoderFactory interface {
	Detect(cfg manifest.StreamConfigRecord, entries []Entry) ([]Entry, error)
}

// DecoderFactoryFunc adapts a plain function to DecoderFactory.
type DecoderFactoryFunc func(cfg manifest.StreamConfigRecord, entries []Entry) ([]Entry, error)

func (f DecoderFactoryFunc) Detect(cfg manifest.StreamConfigRecord, entries []Entry) ([]Entry, error) {
	return f(cfg, entries)
}

// Compose chains stages into a single Transform, left to right: a chunk
// handed to the composed Step passes through stages[0], then stages[1], and
// so on, with each stage's output feeding the next stage's input. The
// writer composes EncoderFilter.Encoder() transforms in filter order; the
// reader's decode() composes DecoderFilter.Decoder() transforms in reverse
// filter order.
func Compose(stages []Transform) Transform {
	return &composed{stages: stages}
}

type composed struct {
	stages []Transform
}

func (c *composed) Step(chunk []byte) ([]byte, error) {
	data := chunk
	for _, s := range c.stages {
		out, err := s.Step(data)
		if err != nil {
			return nil, err
		}
		data = out
	}
	return data, nil
}

// Finish flushes every stage in order. A stage's trailing bytes are fed
// through every later stage's Step before that stage itself is flushed, so
// buffered state downstream of an upstream flush (e.g. a compressor
// draining into an encryptor) still gets a chance to process it.
func (c *composed) Finish() ([]byte, error) {
	var data []byte
	for i, s := range c.stages {
		if i > 0 && len(data) > 0 {
			out, err := s.Step(data)
			if err != nil {
				return nil, err
			}
			data = out
		} else if i > 0 {
			data = nil
		}
		trailing, err := s.Finish()
		if err != nil {
			return nil, err
		}
		data = append(data, trailing...)
	}
	return data, nil
}
