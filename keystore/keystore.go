// Package keystore is a directory-backed AES key store: one file per named
// key, generated on first use. It backs the CLI's --key-dir flag and its
// "missing key file triggers generation and save" behavior.
package keystore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/qsfio/qsf/filter/aesgcm"
)

// KeySize is the AES-256 key length this store generates.
const KeySize = 32

// Store resolves named keys to raw bytes within a single directory.
type Store struct {
	dir string
}

// Open returns a Store rooted at dir. dir is created if it doesn't exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("keystore: open %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".key")
}

// Load reads the raw key bytes for name, or an error if it doesn't exist.
func (s *Store) Load(name string) ([]byte, error) {
	b, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, fmt.Errorf("keystore: load %s: %w", name, err)
	}
	return b, nil
}

// Generate creates a fresh random key, saves it under name, and returns its
// bytes. Overwrites any existing key of the same name.
func (s *Store) Generate(name string) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("keystore: generate %s: %w", name, err)
	}
	if err := s.Save(name, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Save writes key under name, creating it with owner-only permissions.
func (s *Store) Save(name string, key []byte) error {
	if err := os.WriteFile(s.path(name), key, 0o600); err != nil {
		return fmt.Errorf("keystore: save %s: %w", name, err)
	}
	return nil
}

// LoadOrGenerate returns the key under name, generating and saving a fresh
// one if it doesn't already exist (the CLI's "missing key file triggers
// generation and save" contract).
func (s *Store) LoadOrGenerate(name string) ([]byte, error) {
	key, err := s.Load(name)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return s.Generate(name)
}

// ResolveKey implements aesgcm.KeyResolver: it scans every key file in the
// store directory, fingerprints each, and returns the raw bytes of the one
// matching keyID.
func (s *Store) ResolveKey(keyID string) ([]byte, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("keystore: scan %s: %w", s.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".key") {
			continue
		}
		key, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		if aesgcm.KeyFingerprint(key) == keyID {
			return key, nil
		}
	}
	return nil, fmt.Errorf("keystore: no key in %s matches keyId %s", s.dir, keyID)
}
