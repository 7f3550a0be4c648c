package device

import (
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdentity(t *testing.T) {
	id1, err := NewIdentity("My Browser")
	require.NoError(t, err)
	id2, err := NewIdentity("My Browser")
	require.NoError(t, err)

	assert.Len(t, id1.ID, 32)
	assert.Equal(t, "My Browser", id1.Label)
	assert.NotEqual(t, id1.ID, id2.ID, "identities must be distinct across seeds")
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "a b", NormalizeLabel("  a \t b  "))
	assert.Equal(t, "", NormalizeLabel("   "))
	assert.LessOrEqual(t, len(NormalizeLabel(strings.Repeat("x", 200))), maxLabelLen)

	// Truncation never splits a multi-byte rune.
	wide := NormalizeLabel(strings.Repeat("界", 30))
	assert.True(t, utf8.ValidString(wide))
	assert.LessOrEqual(t, len(wide), maxLabelLen)
}

func TestStoreCreatesIdentityOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.db")

	store, err := Open(path)
	require.NoError(t, err)

	id1, err := store.Identity("First Label")
	require.NoError(t, err)
	require.NotEmpty(t, id1.ID)
	assert.Equal(t, "First Label", id1.Label)

	// The identity is immutable once created; later labels are ignored.
	id2, err := store.Identity("Other Label")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	require.NoError(t, store.Close())

	// It survives reopening the store.
	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()
	id3, err := store.Identity("")
	require.NoError(t, err)
	assert.Equal(t, id1, id3)
}
