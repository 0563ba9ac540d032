package reader

import (
	"github.com/sirupsen/logrus"

	"github.com/qsfio/qsf/filter"
	"github.com/qsfio/qsf/manifest"
)

// defaultHighWaterMark is the binder's per-stream channel capacity when no
// WithHighWaterMark option is given.
const defaultHighWaterMark = 16

type config struct {
	highWaterMark int
	factories     []filter.DecoderFactory
	serializer    manifest.Serializer
	log           *logrus.Entry
}

// Option configures a Reader.
type Option func(*config)

// WithHighWaterMark overrides the binder's per-stream channel capacity.
func WithHighWaterMark(n int) Option {
	return func(c *config) { c.highWaterMark = n }
}

// WithDecoderFactory appends a DecoderFactory, applied after the built-in
// CID and ZStr factories the reader always prepends. May be given
// more than once; factories run in the order supplied.
func WithDecoderFactory(f filter.DecoderFactory) Option {
	return func(c *config) { c.factories = append(c.factories, f) }
}

// WithSerializer overrides the manifest body serializer (default JSON).
func WithSerializer(s manifest.Serializer) Option {
	return func(c *config) { c.serializer = s }
}

// WithLogger attaches a logrus entry for frame-level tracing.
func WithLogger(log *logrus.Entry) Option {
	return func(c *config) { c.log = log }
}
