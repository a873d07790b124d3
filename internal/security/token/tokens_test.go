package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte(strings.Repeat("k", 32))

func TestNewHasher_WeakSecret(t *testing.T) {
	_, err := NewHasher([]byte("short"))
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestHasher_Deterministic(t *testing.T) {
	h, err := NewHasher(testSecret)
	require.NoError(t, err)

	a := h.Hash("refresh-1")
	assert.Equal(t, a, h.Hash("refresh-1"))
	assert.NotEqual(t, a, h.Hash("refresh-2"))
	assert.NotContains(t, a, "refresh-1")
}

func TestHasher_KeyedBySecret(t *testing.T) {
	h1, err := NewHasher(testSecret)
	require.NoError(t, err)
	h2, err := NewHasher([]byte(strings.Repeat("z", 32)))
	require.NoError(t, err)

	assert.NotEqual(t, h1.Hash("same"), h2.Hash("same"))
	assert.NotEqual(t, SHA256Base64URL("same"), h1.Hash("same"))
}

func TestHasher_Matches(t *testing.T) {
	h, err := NewHasher(testSecret)
	require.NoError(t, err)

	stored := h.Hash("tok")
	assert.True(t, h.Matches("tok", stored))
	assert.False(t, h.Matches("other", stored))
	assert.False(t, h.Matches("tok", ""))
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "abc", Fingerprint("abc"))
	assert.Equal(t, "0123456789ab", Fingerprint("0123456789abcdef"))
}

func TestGenerateOpaqueToken(t *testing.T) {
	a, err := GenerateOpaqueToken(32)
	require.NoError(t, err)
	b, err := GenerateOpaqueToken(32)
	require.NoError(t, err)
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}
