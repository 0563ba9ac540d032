// Package reader implements the QSF container reader pipeline:
// demultiplexing frames, typing manifest records, binding them to live
// per-stream byte channels, and emitting the public
// StreamFileBegin/StreamFileEnd event pair.
package reader

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/qsfio/qsf/filter"
	"github.com/qsfio/qsf/filter/cidfilter"
	"github.com/qsfio/qsf/filter/zstr"
	"github.com/qsfio/qsf/frame"
	"github.com/qsfio/qsf/manifest"
	"github.com/qsfio/qsf/varint"
)

// pipe is a binder-owned per-stream channel: ch carries STREAM_DATA
// payloads, done is closed exactly once (by Cancel) to wake a send that is
// blocked waiting for a slow or absent consumer.
type pipe struct {
	ch        chan []byte
	done      chan struct{}
	cancelled bool
}

type pendingEntry struct {
	record  manifest.StreamConfigRecord
	entries []filter.Entry
}

// Reader drives the bytes→frames→manifest→binder pipeline over src and
// exposes the resulting events on a channel.
type Reader struct {
	cfg       config
	src       io.Reader
	ctx       context.Context
	events    chan Event
	sessionID string
	log       *logrus.Entry

	mu             sync.Mutex
	openPipes      map[uint64]*pipe
	pendingConfigs map[uint64]pendingEntry

	errMu sync.Mutex
	err   error
}

// Open begins reading a QSF container from src. The returned Reader's
// Events channel is closed once src is exhausted, a fatal error occurs, or
// ctx is cancelled; call Err afterward to check for a fatal cause.
//
// The reader always prepends the built-in CID and ZStr decoder factories
// ahead of any supplied via WithDecoderFactory.
func Open(ctx context.Context, src io.Reader, opts ...Option) *Reader {
	cfg := config{
		highWaterMark: defaultHighWaterMark,
		serializer:    manifest.JSONSerializer{},
		log:           logrus.NewEntry(logrus.StandardLogger()).WithField("component", "reader"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	factories := append([]filter.DecoderFactory{cidfilter.Factory, zstr.Factory}, cfg.factories...)
	cfg.factories = factories

	r := &Reader{
		cfg:            cfg,
		src:            src,
		ctx:            ctx,
		events:         make(chan Event, 1),
		sessionID:      uuid.New().String(),
		log:            cfg.log,
		openPipes:      make(map[uint64]*pipe),
		pendingConfigs: make(map[uint64]pendingEntry),
	}
	go r.pump()
	return r
}

// Events returns the channel of StreamFileBegin/StreamFileEnd events.
func (r *Reader) Events() <-chan Event { return r.events }

// Err returns the fatal error, if any, that ended the Events channel. Only
// meaningful after Events has been drained to closure.
func (r *Reader) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

func (r *Reader) setErr(err error) {
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.errMu.Unlock()
}

func (r *Reader) pump() {
	defer close(r.events)
	defer r.closeAllPipes()

	log := r.log.WithField("session", r.sessionID)
	for {
		if r.ctx != nil && r.ctx.Err() != nil {
			log.Debug("qsf reader: context cancelled, stopping")
			return
		}
		f, err := frame.DecodeFrom(r.src)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.WithError(err).Error("qsf reader: fatal frame error")
			r.setErr(err)
			return
		}
		if err := r.handleFrame(f, log); err != nil {
			log.WithError(err).Error("qsf reader: fatal frame handling error")
			r.setErr(err)
			return
		}
	}
}

func (r *Reader) closeAllPipes() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.openPipes {
		close(p.ch)
		delete(r.openPipes, id)
	}
}

func (r *Reader) handleFrame(f frame.Frame, log *logrus.Entry) error {
	switch f.Type {
	case frame.ManifestEntry:
		return r.handleManifest(f, log)
	case frame.StreamHeader:
		r.handleHeader(f, log)
	case frame.StreamData:
		r.handleData(f)
	case frame.StreamTrailer:
		r.handleTrailer(f)
	default:
		// Index, Footer (reserved), and any unrecognized type code are
		// tolerated and silently dropped.
	}
	return nil
}

func (r *Reader) handleManifest(f frame.Frame, log *logrus.Entry) error {
	raw, err := r.cfg.serializer.Decode(f.Payload)
	if err != nil {
		// ManifestDecode is non-fatal: the malformed body is dropped
		// rather than aborting the reader.
		log.WithError(err).Debug("qsf reader: manifest decode failed, dropping")
		return nil
	}
	parsed, err := manifest.Parse(raw)
	if err != nil {
		// UnknownManifestShape is likewise non-fatal.
		log.WithError(err).Debug("qsf reader: manifest shape unrecognized, dropping")
		return nil
	}
	switch rec := parsed.(type) {
	case manifest.StreamConfigRecord:
		return r.handleConfig(rec, log)
	case manifest.StreamResultRecord:
		r.events <- &StreamFileEnd{StreamResultRecord: rec}
	}
	return nil
}

func (r *Reader) handleConfig(rec manifest.StreamConfigRecord, log *logrus.Entry) error {
	entries, err := resolve(rec, r.cfg.factories)
	if err != nil {
		// Resolver fold errors are fatal for the whole reader: no consumer
		// has subscribed to this stream yet, so there is no narrower scope
		// to confine the failure to, and it surfaces as a terminal reader
		// error.
		return err
	}
	id, err := varint.FromObject(rec.StreamID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.pendingConfigs[id] = pendingEntry{record: rec, entries: entries}
	r.mu.Unlock()
	log.WithField("streamId", id).Debug("qsf reader: stream.config resolved")
	return nil
}

func (r *Reader) handleHeader(f frame.Frame, log *logrus.Entry) {
	r.mu.Lock()
	pending, ok := r.pendingConfigs[f.StreamID]
	if ok {
		delete(r.pendingConfigs, f.StreamID)
	}
	r.mu.Unlock()
	if !ok {
		// Tolerant: no matching stream.config was seen, so there's no
		// consumer to deliver this stream's data to.
		return
	}

	p := &pipe{ch: make(chan []byte, r.cfg.highWaterMark), done: make(chan struct{})}
	r.mu.Lock()
	r.openPipes[f.StreamID] = p
	r.mu.Unlock()

	streamID := f.StreamID
	begin := &StreamFileBegin{
		StreamID:  pending.record.StreamID,
		CombineID: pending.record.CombineID,
		Filters:   pending.record.Filters,
		stream:    p.ch,
		entries:   pending.entries,
		cancel:    func() { r.cancelStream(streamID) },
	}
	log.WithField("streamId", f.StreamID).Debug("qsf reader: stream-begin")
	r.events <- begin
}

func (r *Reader) cancelStream(id uint64) {
	r.mu.Lock()
	p, ok := r.openPipes[id]
	already := ok && p.cancelled
	if ok {
		p.cancelled = true
	}
	r.mu.Unlock()
	if ok && !already {
		close(p.done)
	}
}

func (r *Reader) handleData(f frame.Frame) {
	r.mu.Lock()
	p, ok := r.openPipes[f.StreamID]
	r.mu.Unlock()
	if !ok {
		// No pipe: either never opened, or already closed by a trailer —
		// discard.
		return
	}
	r.mu.Lock()
	cancelled := p.cancelled
	r.mu.Unlock()
	if cancelled {
		return
	}
	select {
	case p.ch <- f.Payload:
	case <-p.done:
		// Consumer cancelled while this send was suspended; drop the
		// payload and let subsequent STREAM_DATA frames for this id see
		// cancelled and drain immediately.
	}
}

func (r *Reader) handleTrailer(f frame.Frame) {
	r.mu.Lock()
	p, ok := r.openPipes[f.StreamID]
	if ok {
		delete(r.openPipes, f.StreamID)
	}
	r.mu.Unlock()
	if ok {
		close(p.ch)
	}
}
