package tokens

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// hkdfInfo separa la clave de hashing de refresh de cualquier otro uso del mismo secreto.
const hkdfInfo = "grantkeeper/refresh-token-hash/v1"

// fingerprintLen es la cantidad de caracteres del hash que se exponen en logs y auditoría.
const fingerprintLen = 12

// ErrWeakSecret indica un secreto de hashing demasiado corto.
var ErrWeakSecret = errors.New("tokens: hash secret must be at least 32 bytes")

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SHA256Base64URL devuelve sha256(input) en base64url sin padding.
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Hasher calcula el hash con clave de los refresh tokens (HMAC-SHA256).
// La clave se deriva con HKDF a partir del secreto configurado; el token crudo
// nunca se persiste.
type Hasher struct {
	key []byte
}

// NewHasher deriva la clave HMAC desde secret.
func NewHasher(secret []byte) (*Hasher, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSecret
	}
	key := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return &Hasher{key: key}, nil
}

// Hash devuelve HMAC(key, raw) en base64url sin padding.
func (h *Hasher) Hash(raw string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Matches compara en tiempo constante el hash de raw contra storedHash.
func (h *Hasher) Matches(raw, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	return Equal(h.Hash(raw), storedHash)
}

// Equal compara dos hashes en tiempo constante.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Fingerprint recorta un hash a un prefijo corto apto para logs y eventos.
func Fingerprint(hash string) string {
	if len(hash) <= fingerprintLen {
		return hash
	}
	return hash[:fingerprintLen]
}
