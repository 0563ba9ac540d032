// Package aesgcm implements the per-chunk AES-GCM encryption filter. Every
// input chunk becomes exactly one output chunk (IV ‖ ciphertext ‖ tag),
// which preserves chunk boundaries so a streaming decrypt needs no buffering
// ahead of the current chunk.
package aesgcm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/qsfio/qsf/filter"
	"github.com/qsfio/qsf/manifest"
	"github.com/qsfio/qsf/qsferr"
)

const (
	ConfigType = "AESGCM.config"
	ResultType = "AESGCM.result"

	nonceSize = 12
	tagSize   = 16
)

// KeyFingerprint derives the 16-hex-char keyId a reader-side key store looks
// streams up by: the first 8 bytes of SHA-256(key), lowercase hex.
func KeyFingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}

// Encoder is the write-side AES-GCM filter. Key material is held only in
// memory for the lifetime of the encoder; it is never placed in the emitted
// config, only its fingerprint.
type Encoder struct {
	key   []byte
	gcm   cipher.AEAD
	keyID string
}

// NewEncoder creates a fresh, single-use AES-GCM encoder for key (16, 24, or
// 32 bytes selecting AES-128/192/256).
func NewEncoder(key []byte) (*Encoder, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, qsferr.Wrap(qsferr.DecryptFailure, err, "aesgcm: new cipher")
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, qsferr.Wrap(qsferr.DecryptFailure, err, "aesgcm: new gcm")
	}
	return &Encoder{key: key, gcm: gcm, keyID: KeyFingerprint(key)}, nil
}

func (e *Encoder) Config() (manifest.FilterConfig, error) {
	return manifest.FilterConfig{"type": ConfigType, "keyId": e.keyID}, nil
}

func (e *Encoder) Encoder() filter.Transform { return &encodeTransform{e: e} }

func (e *Encoder) Result() (manifest.FilterResult, bool, error) {
	return manifest.FilterResult{"type": ResultType, "keyId": e.keyID}, true, nil
}

type encodeTransform struct {
	e *Encoder
}

func (t *encodeTransform) Step(chunk []byte) ([]byte, error) {
	if len(chunk) == 0 {
		return nil, nil
	}
	iv := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, qsferr.Wrap(qsferr.DecryptFailure, err, "aesgcm: draw iv")
	}
	sealed := t.e.gcm.Seal(nil, iv, chunk, nil)
	out := make([]byte, 0, len(iv)+len(sealed))
	out = append(out, iv...)
	out = append(out, sealed...)
	return out, nil
}

func (t *encodeTransform) Finish() ([]byte, error) { return nil, nil }

// Decoder is the read-side AES-GCM filter, rebuilt from a stream's stored
// keyId by a reader-side key store that resolves fingerprint to key bytes.
type Decoder struct {
	gcm cipher.AEAD
}

// NewDecoder creates a decoder for key, the raw key bytes a key store
// resolved for the stream's declared keyId.
func NewDecoder(key []byte) (*Decoder, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, qsferr.Wrap(qsferr.DecryptFailure, err, "aesgcm: new cipher")
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, qsferr.Wrap(qsferr.DecryptFailure, err, "aesgcm: new gcm")
	}
	return &Decoder{gcm: gcm}, nil
}

func (d *Decoder) Decoder() filter.Transform { return &decodeTransform{d: d} }

type decodeTransform struct {
	d *Decoder
}

func (t *decodeTransform) Step(chunk []byte) ([]byte, error) {
	if len(chunk) == 0 {
		return nil, nil
	}
	if len(chunk) < nonceSize+tagSize {
		return nil, qsferr.New(qsferr.DecryptFailure, "aesgcm: chunk too short (%d bytes)", len(chunk))
	}
	iv, ciphertext := chunk[:nonceSize], chunk[nonceSize:]
	plain, err := t.d.gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, qsferr.Wrap(qsferr.DecryptFailure, err, "aesgcm: open")
	}
	return plain, nil
}

func (t *decodeTransform) Finish() ([]byte, error) { return nil, nil }

// KeyResolver looks up the raw key bytes for a keyId fingerprint, resolved
// by whatever key store the caller wires in; see the keystore package for
// the directory-backed implementation this project supplies.
type KeyResolver interface {
	ResolveKey(keyID string) ([]byte, error)
}

// NewFactory builds a DecoderFactory that resolves AESGCM.config entries to
// Decoder instances by looking up each entry's keyId through resolver. A
// stream whose key cannot be resolved is left unclaimed (instance stays
// nil), so decode() will fail lazily with UnresolvedFilter rather than
// aborting the whole resolver fold.
func NewFactory(resolver KeyResolver) filter.DecoderFactory {
	return filter.DecoderFactoryFunc(func(cfgRec manifest.StreamConfigRecord, entries []filter.Entry) ([]filter.Entry, error) {
		for i, e := range entries {
			if e.Instance != nil || e.Input.Type() != ConfigType {
				continue
			}
			keyID, _ := e.Input["keyId"].(string)
			key, err := resolver.ResolveKey(keyID)
			if err != nil {
				continue
			}
			dec, err := NewDecoder(key)
			if err != nil {
				return nil, err
			}
			entries[i].Instance = dec
		}
		return entries, nil
	})
}
