package scopes

import (
	"fmt"
	"strings"
)

// PolicyPrefix es el prefijo de los nombres de policy "RequireScope:<scope>".
const PolicyPrefix = "RequireScope:"

// Tipos de claim que transportan scopes. "scope" es el formato OAuth
// (separado por espacios); "scp" puede venir repetido o como array.
const (
	ClaimScope = "scope"
	ClaimScp   = "scp"
)

// Claim es un par tipo/valor de un principal. Los claims multivaluados se
// representan como varios Claim con el mismo tipo.
type Claim struct {
	Type  string
	Value string
}

// Principal es la identidad autenticada (o no) de un request.
type Principal struct {
	Authenticated bool
	Subject       string
	Claims        []Claim
}

// RequireScope exige que el principal tenga el scope entre sus claims.
type RequireScope struct {
	Scope string
}

// Name devuelve el nombre de policy ("RequireScope:email").
func (p RequireScope) Name() string { return PolicyPrefix + p.Scope }

// Satisfied es puro y re-entrante. Falla cerrado ante principal anónimo o scope vacío.
// La comparación es exacta (no prefijo) y sin distinguir mayúsculas.
func (p RequireScope) Satisfied(pr Principal) bool {
	want := strings.TrimSpace(p.Scope)
	if want == "" || !pr.Authenticated {
		return false
	}
	for _, c := range pr.Claims {
		if c.Type != ClaimScope && c.Type != ClaimScp {
			continue
		}
		for _, s := range strings.Fields(c.Value) {
			if strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}

// ParsePolicy construye la policy desde su nombre. El prefijo es case-insensitive.
func ParsePolicy(name string) (RequireScope, error) {
	if len(name) <= len(PolicyPrefix) || !strings.EqualFold(name[:len(PolicyPrefix)], PolicyPrefix) {
		return RequireScope{}, fmt.Errorf("%w: unknown policy %q", ErrInvalidScopeSet, name)
	}
	scope := strings.TrimSpace(name[len(PolicyPrefix):])
	if scope == "" || strings.ContainsAny(scope, " \t\n") {
		return RequireScope{}, fmt.Errorf("%w: invalid scope in policy %q", ErrInvalidScopeSet, name)
	}
	return RequireScope{Scope: scope}, nil
}

// GrantedScopes devuelve la unión de scopes del principal, sin duplicados.
func (pr Principal) GrantedScopes() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, c := range pr.Claims {
		if c.Type != ClaimScope && c.Type != ClaimScp {
			continue
		}
		for _, s := range strings.Fields(c.Value) {
			k := strings.ToLower(s)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// PrincipalFromClaims arma un principal autenticado a partir de claims JWT ya
// verificados. Acepta "scope" y "scp" como string o como array.
func PrincipalFromClaims(claims map[string]any) Principal {
	if claims == nil {
		return Principal{}
	}
	pr := Principal{Authenticated: true}
	if sub, ok := claims["sub"].(string); ok {
		pr.Subject = sub
	}
	for _, typ := range []string{ClaimScope, ClaimScp} {
		switch v := claims[typ].(type) {
		case string:
			pr.Claims = append(pr.Claims, Claim{Type: typ, Value: v})
		case []string:
			for _, s := range v {
				pr.Claims = append(pr.Claims, Claim{Type: typ, Value: s})
			}
		case []any:
			for _, i := range v {
				if s, ok := i.(string); ok {
					pr.Claims = append(pr.Claims, Claim{Type: typ, Value: s})
				}
			}
		}
	}
	return pr
}
