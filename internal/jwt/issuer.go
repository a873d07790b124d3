package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken    = errors.New("invalid_jwt")
	ErrInvalidIssuer   = errors.New("invalid_issuer")
	ErrInvalidAudience = errors.New("invalid_audience")
	ErrWeakSecret      = errors.New("jwt secret must be at least 32 bytes")
)

// leeway tolerado en exp/nbf.
const leeway = 30 * time.Second

// Issuer firma y valida access tokens HS256 para la superficie admin/resource.
// Los tokens de usuario final los emite el protocol engine; este Issuer solo
// verifica lo que el engine firmó con el secreto compartido.
type Issuer struct {
	Iss       string        // "iss"; vacío omite el chequeo
	Aud       string        // "aud"; vacío omite el chequeo
	AccessTTL time.Duration // TTL por defecto al firmar (ej: 15m)

	secret []byte
}

func NewIssuer(iss, aud, secret string) (*Issuer, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSecret
	}
	return &Issuer{
		Iss:       iss,
		Aud:       aud,
		AccessTTL: 15 * time.Minute,
		secret:    []byte(secret),
	}, nil
}

// Keyfunc devuelve el secreto HMAC para jwt.Parse.
func (i *Issuer) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}
}

// Sign firma un access token para sub con los scopes dados (separados por espacio en "scope").
func (i *Issuer) Sign(sub string, scope string, extra map[string]any) (string, error) {
	now := time.Now().UTC()
	claims := jwtv5.MapClaims{
		"sub": sub,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(i.AccessTTL).Unix(),
	}
	if i.Iss != "" {
		claims["iss"] = i.Iss
	}
	if i.Aud != "" {
		claims["aud"] = i.Aud
	}
	if scope != "" {
		claims["scope"] = scope
	}
	for k, v := range extra {
		claims[k] = v
	}
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(i.secret)
}

// Parse valida firma, iss, aud y ventanas temporales; devuelve las claims como mapa.
func (i *Issuer) Parse(raw string) (map[string]any, error) {
	opts := []jwtv5.ParserOption{
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithLeeway(leeway),
		jwtv5.WithExpirationRequired(),
	}
	if i.Iss != "" {
		opts = append(opts, jwtv5.WithIssuer(i.Iss))
	}
	if i.Aud != "" {
		opts = append(opts, jwtv5.WithAudience(i.Aud))
	}

	tok, err := jwtv5.Parse(raw, i.Keyfunc(), opts...)
	switch {
	case errors.Is(err, jwtv5.ErrTokenInvalidIssuer):
		return nil, ErrInvalidIssuer
	case errors.Is(err, jwtv5.ErrTokenInvalidAudience):
		return nil, ErrInvalidAudience
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case !tok.Valid:
		return nil, ErrInvalidToken
	}

	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	out := make(map[string]any, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return out, nil
}
