package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// Scope name rules:
// - Start and end with [A-Za-z0-9].
// - Middle chars may include [A-Za-z0-9:_.-].
// - Length 1..64.
// - Excludes semicolon and whitespace explicitly.
//
// Mixed case is accepted because scope names are compared case-insensitively
// (consent, required-scope membership, claim checks).
//
// Examples valid: profile, profile:read, Email, a, a_b-c.d:scope2
// Examples invalid: ;hack, bad space, :leader, trailer:, "", 65+ chars.
var scopeNameRe = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9:_\.-]{0,62}[A-Za-z0-9])?$`)

// MaxScopeSet limita la cantidad de scopes en un set administrado.
const MaxScopeSet = 100

// ValidScopeName returns true if the provided scope name matches the allowed pattern.
func ValidScopeName(name string) bool {
	return scopeNameRe.MatchString(name)
}

// NormalizeScopeSet recorta espacios, valida cada nombre y colapsa duplicados
// sin distinguir mayúsculas. Conserva la primera ocurrencia y el orden.
func NormalizeScopeSet(names []string) ([]string, error) {
	if len(names) > MaxScopeSet {
		return nil, fmt.Errorf("too many scopes: %d (max %d)", len(names), MaxScopeSet)
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if !ValidScopeName(n) {
			return nil, fmt.Errorf("invalid scope name %q", n)
		}
		k := strings.ToLower(n)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}
