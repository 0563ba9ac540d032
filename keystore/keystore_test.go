package keystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsfio/qsf/filter/aesgcm"
)

func TestGenerateAndLoad(t *testing.T) {
	ks, err := Open(t.TempDir())
	require.NoError(t, err)

	key, err := ks.Generate("session")
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	loaded, err := ks.Load("session")
	require.NoError(t, err)
	assert.Equal(t, key, loaded)
}

func TestLoadOrGenerateIsStableAcrossCalls(t *testing.T) {
	ks, err := Open(t.TempDir())
	require.NoError(t, err)

	first, err := ks.LoadOrGenerate("doc")
	require.NoError(t, err)
	second, err := ks.LoadOrGenerate("doc")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveKeyByFingerprint(t *testing.T) {
	ks, err := Open(t.TempDir())
	require.NoError(t, err)

	key, err := ks.Generate("doc")
	require.NoError(t, err)
	keyID := aesgcm.KeyFingerprint(key)

	resolved, err := ks.ResolveKey(keyID)
	require.NoError(t, err)
	assert.Equal(t, key, resolved)
}

func TestResolveKeyUnknownFingerprint(t *testing.T) {
	ks, err := Open(t.TempDir())
	require.NoError(t, err)
	_, err = ks.Generate("doc")
	require.NoError(t, err)

	_, err = ks.ResolveKey("0000000000000000")
	require.Error(t, err)
}
