// Package zstr implements the ZStr built-in compression filter, wrapping
// the standard library's deflate, raw deflate, and gzip streams.
package zstr

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/qsfio/qsf/filter"
	"github.com/qsfio/qsf/manifest"
	"github.com/qsfio/qsf/qsferr"
)

const (
	ConfigType = "ZStr.config"
	ResultType = "ZStr.result"

	CodecDeflate    = "deflate"     // zlib-wrapped deflate (RFC 1950)
	CodecDeflateRaw = "deflate-raw" // raw deflate, no header (RFC 1951)
	CodecGzip       = "gzip"        // gzip container (RFC 1952)
)

func validCodec(codec string) bool {
	switch codec {
	case CodecDeflate, CodecDeflateRaw, CodecGzip:
		return true
	default:
		return false
	}
}

type flushWriteCloser interface {
	io.WriteCloser
	Flush() error
}

func newCompressor(codec string, dst io.Writer) (flushWriteCloser, error) {
	switch codec {
	case CodecDeflate:
		return zlib.NewWriter(dst), nil
	case CodecDeflateRaw:
		return flate.NewWriter(dst, flate.DefaultCompression)
	case CodecGzip:
		return gzip.NewWriter(dst), nil
	default:
		return nil, fmt.Errorf("zstr: unknown codec %q", codec)
	}
}

// Encoder is the write-side ZStr filter.
type Encoder struct {
	codec string
}

// NewEncoder creates an encoder for the given codec ("deflate",
// "deflate-raw", or "gzip").
func NewEncoder(codec string) (*Encoder, error) {
	if !validCodec(codec) {
		return nil, fmt.Errorf("zstr: unknown codec %q", codec)
	}
	return &Encoder{codec: codec}, nil
}

func (e *Encoder) Config() (manifest.FilterConfig, error) {
	return manifest.FilterConfig{"type": ConfigType, "codec": e.codec}, nil
}

func (e *Encoder) Encoder() filter.Transform {
	buf := &bytes.Buffer{}
	w, err := newCompressor(e.codec, buf)
	return &encodeTransform{codec: e.codec, buf: buf, w: w, err: err}
}

func (e *Encoder) Result() (manifest.FilterResult, bool, error) {
	return manifest.FilterResult{"type": ResultType, "codec": e.codec}, true, nil
}

type encodeTransform struct {
	codec string
	buf   *bytes.Buffer
	w     flushWriteCloser
	err   error
}

func (t *encodeTransform) Step(chunk []byte) ([]byte, error) {
	if t.err != nil {
		return nil, t.err
	}
	if len(chunk) > 0 {
		if _, err := t.w.Write(chunk); err != nil {
			return nil, err
		}
	}
	if err := t.w.Flush(); err != nil {
		return nil, err
	}
	return t.drain(), nil
}

func (t *encodeTransform) Finish() ([]byte, error) {
	if t.err != nil {
		return nil, t.err
	}
	if err := t.w.Close(); err != nil {
		return nil, err
	}
	return t.drain(), nil
}

func (t *encodeTransform) drain() []byte {
	if t.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, t.buf.Len())
	copy(out, t.buf.Bytes())
	t.buf.Reset()
	return out
}

// Decoder is the read-side ZStr filter. It buffers compressed bytes as they
// arrive and decompresses the whole stream on Finish: unlike AES-GCM,
// compression doesn't guarantee a 1:1 chunk mapping, so there is no way to
// produce correct output before the final byte of the compressed stream has
// been seen.
type Decoder struct {
	codec string
	buf   bytes.Buffer
}

// NewDecoder creates a decoder for codec, rebuilt from the stream's stored
// ZStr.config so the decoder factory reconstructs the correct inflate
// stream from that field.
func NewDecoder(codec string) (*Decoder, error) {
	if !validCodec(codec) {
		return nil, fmt.Errorf("zstr: unknown codec %q", codec)
	}
	return &Decoder{codec: codec}, nil
}

func (d *Decoder) Decoder() filter.Transform { return &decodeTransform{d: d} }

type decodeTransform struct {
	d *Decoder
}

func (t *decodeTransform) Step(chunk []byte) ([]byte, error) {
	t.d.buf.Write(chunk)
	return nil, nil
}

func (t *decodeTransform) Finish() ([]byte, error) {
	var r io.Reader
	var err error
	switch t.d.codec {
	case CodecDeflate:
		r, err = zlib.NewReader(bytes.NewReader(t.d.buf.Bytes()))
	case CodecDeflateRaw:
		r = flate.NewReader(bytes.NewReader(t.d.buf.Bytes()))
	case CodecGzip:
		r, err = gzip.NewReader(bytes.NewReader(t.d.buf.Bytes()))
	default:
		return nil, fmt.Errorf("zstr: unknown codec %q", t.d.codec)
	}
	if err != nil {
		return nil, qsferr.Wrap(qsferr.ManifestDecode, err, "zstr: open %s stream", t.d.codec)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, qsferr.Wrap(qsferr.ManifestDecode, err, "zstr: decompress %s stream", t.d.codec)
	}
	return out, nil
}

// Factory is the built-in DecoderFactory for ZStr configs; the reader
// always prepends it so ZStr filters resolve with no configuration
// required.
var Factory = filter.DecoderFactoryFunc(func(cfgRec manifest.StreamConfigRecord, entries []filter.Entry) ([]filter.Entry, error) {
	for i, e := range entries {
		if e.Instance != nil || e.Input.Type() != ConfigType {
			continue
		}
		codec, _ := e.Input["codec"].(string)
		dec, err := NewDecoder(codec)
		if err != nil {
			return nil, err
		}
		entries[i].Instance = dec
	}
	return entries, nil
})
