// Package cidfilter implements the CID built-in filter: a pass-through
// transform that accumulates a SHA-256 digest over every byte it sees and,
// on flush, publishes a CIDv1 raw+sha2-256 content identifier.
//
// CID identifies pre-filter (plaintext) content regardless of downstream
// compression or encryption, so a CID filter must always be placed first in
// a stream's encode order when present.
package cidfilter

import (
	"crypto/sha256"
	"encoding/json"
	"hash"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/qsfio/qsf/filter"
	"github.com/qsfio/qsf/manifest"
	"github.com/qsfio/qsf/qsferr"
)

const (
	ConfigType = "CID.config"
	ResultType = "CID.result"
)

// Sum computes the CIDv1-raw-sha2-256 string for data in one call.
func Sum(data []byte) (string, error) {
	digest := sha256.Sum256(data)
	return cidFromDigest(digest[:])
}

func cidFromDigest(digest []byte) (string, error) {
	encoded, err := mh.Encode(digest, mh.SHA2_256)
	if err != nil {
		return "", qsferr.Wrap(qsferr.CidMismatch, err, "cid: multihash encode")
	}
	c := cid.NewCidV1(cid.Raw, mh.Multihash(encoded))
	return c.String(), nil
}

// Encoder is the write-side CID filter: a pass-through transform that
// accumulates a SHA-256 digest and resolves a CID on Finish.
type Encoder struct {
	combineID string
	hasher    hash.Hash
	resolved  string
	done      bool
}

// NewEncoder creates a fresh, single-use CID encoder. combineID is optional
// (empty string omits the field from the emitted config).
func NewEncoder(combineID string) *Encoder {
	return &Encoder{combineID: combineID, hasher: sha256.New()}
}

func (e *Encoder) Config() (manifest.FilterConfig, error) {
	cfg := manifest.FilterConfig{"type": ConfigType}
	if e.combineID != "" {
		cfg["combineId"] = e.combineID
	}
	return cfg, nil
}

func (e *Encoder) Encoder() filter.Transform { return &transform{hasher: e.hasher, owner: e} }

func (e *Encoder) Result() (manifest.FilterResult, bool, error) {
	if !e.done {
		return nil, false, qsferr.New(qsferr.CidMismatch, "cid: result requested before flush")
	}
	return manifest.FilterResult{"type": ResultType, "cid": e.resolved}, true, nil
}

// Resolved returns the CID string once Finish has run, or "" beforehand.
func (e *Encoder) Resolved() string { return e.resolved }

type transform struct {
	hasher hash.Hash
	owner  *Encoder
}

func (t *transform) Step(chunk []byte) ([]byte, error) {
	t.hasher.Write(chunk)
	return chunk, nil
}

func (t *transform) Finish() ([]byte, error) {
	digest := t.hasher.Sum(nil)
	s, err := cidFromDigest(digest)
	if err != nil {
		return nil, err
	}
	t.owner.resolved = s
	t.owner.done = true
	return nil, nil
}

// Decoder is the read-side CID filter: pass-through accumulation, verifying
// an expected CID on flush if one was supplied.
type Decoder struct {
	hasher   hash.Hash
	expected string
}

// NewDecoder creates a decoder. If expected is "", Finish only verifies
// chunking integrity (it still computes the CID but does not compare it).
func NewDecoder(expected string) *Decoder {
	return &Decoder{hasher: sha256.New(), expected: expected}
}

func (d *Decoder) Decoder() filter.Transform { return &decodeTransform{d: d} }

type decodeTransform struct {
	d *Decoder
}

func (t *decodeTransform) Step(chunk []byte) ([]byte, error) {
	t.d.hasher.Write(chunk)
	return chunk, nil
}

func (t *decodeTransform) Finish() ([]byte, error) {
	digest := t.d.hasher.Sum(nil)
	got, err := cidFromDigest(digest)
	if err != nil {
		return nil, err
	}
	if t.d.expected != "" && got != t.d.expected {
		return nil, qsferr.New(qsferr.CidMismatch, "cid mismatch: expected %s, computed %s", t.d.expected, got)
	}
	return nil, nil
}

// CombinedCID computes the group CID over an ordered list of member CID
// strings: CIDv1 raw over SHA-256 of the canonical JSON encoding of the
// array of member CIDs.
func CombinedCID(members []string) (string, error) {
	if len(members) == 0 {
		return "", qsferr.New(qsferr.EmptyCollector, "cid collector: no slots registered")
	}
	canonical, err := json.Marshal(members)
	if err != nil {
		return "", qsferr.Wrap(qsferr.EmptyCollector, err, "cid collector: canonicalize members")
	}
	return Sum(canonical)
}

// Factory is the built-in DecoderFactory for CID configs; the reader always
// prepends it so CID filters resolve with no configuration required.
var Factory = filter.DecoderFactoryFunc(func(cfgRec manifest.StreamConfigRecord, entries []filter.Entry) ([]filter.Entry, error) {
	for i, e := range entries {
		if e.Instance != nil || e.Input.Type() != ConfigType {
			continue
		}
		entries[i].Instance = NewDecoder("")
	}
	return entries, nil
})
