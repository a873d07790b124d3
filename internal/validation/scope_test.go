package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidScopeName_Valid(t *testing.T) {
	valids := []string{
		"a",
		"ab",
		"profile",
		"profile:read",
		"email:read:e2e123",
		"a_b-c.d:scope2",
		"Email",
		// 64 chars (start/end alnum)
		mkLen("a", 63) + "b",
	}
	for _, v := range valids {
		if !ValidScopeName(v) {
			t.Fatalf("expected valid: %q", v)
		}
	}
}

func TestValidScopeName_Invalid(t *testing.T) {
	invalids := []string{
		"",               // empty
		":lead",          // starts with non-alnum
		"trail:",         // ends with non-alnum
		"bad space",      // space
		"semicolon;hack", // semicolon
		mkLen("a", 65),   // > 64
	}
	for _, v := range invalids {
		if ValidScopeName(v) {
			t.Fatalf("expected invalid: %q", v)
		}
	}
}

func TestNormalizeScopeSet(t *testing.T) {
	out, err := NormalizeScopeSet([]string{" openid", "email", "EMAIL", "openid "})
	require.NoError(t, err)
	assert.Equal(t, []string{"openid", "email"}, out)

	out, err = NormalizeScopeSet(nil)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = NormalizeScopeSet([]string{"openid", "bad scope"})
	assert.ErrorContains(t, err, `"bad scope"`)

	_, err = NormalizeScopeSet(make([]string, MaxScopeSet+1))
	assert.Error(t, err)
}

// mkLen builds a string of exactly n characters, starting with prefix and padded with 'a'.
func mkLen(prefix string, total int) string {
	if total <= len(prefix) {
		return prefix[:total]
	}
	out := make([]byte, total)
	copy(out, []byte(prefix))
	for i := len(prefix); i < total; i++ {
		out[i] = 'a'
	}
	return string(out)
}
