package session

import (
	"time"

	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
	tokens "github.com/dropDatabas3/grantkeeper/internal/security/token"
)

// Motivos de revocación.
const (
	ReasonLogout            = "logout"
	ReasonUserRevoked       = "user_revoked"
	ReasonAdminRevoked      = "admin_revoked"
	ReasonLogoutAll         = "logout_all"
	ReasonRefreshTokenReuse = "refresh_token_reuse"
)

// Config ventanas de expiración.
type Config struct {
	// SlidingWindow se suma a now en cada refresh.
	SlidingWindow time.Duration
	// AbsoluteLifetime es el techo desde la creación; 0 = sin techo.
	AbsoluteLifetime time.Duration
	// ExtensionEventThreshold es el corrimiento mínimo del sliding deadline
	// para emitir SlidingExpirationExtended.
	ExtensionEventThreshold time.Duration
}

// Valores por defecto.
const (
	DefaultSlidingWindow           = 14 * 24 * time.Hour
	DefaultAbsoluteLifetime        = 90 * 24 * time.Hour
	DefaultExtensionEventThreshold = time.Minute
)

// BeginInput datos de la primera emisión de refresh token para una autorización.
type BeginInput struct {
	UserID          string
	AuthorizationID string
	RefreshToken    string
	SourceIP        string
	UserAgent       string
}

// RefreshInput datos de un refresh-grant aceptado por el protocol engine.
type RefreshInput struct {
	UserID          string
	AuthorizationID string

	// PresentedRefreshToken es el token que presentó el client. Si no coincide
	// ni con el hash vigente ni con el anterior, la sesión se revoca. Obligatorio.
	PresentedRefreshToken string

	// NewRefreshToken es el token recién emitido por el engine (crudo).
	NewRefreshToken string

	SourceIP  string
	UserAgent string
}

// RotationResult resultado de una rotación.
type RotationResult struct {
	Session  SessionView `json:"session"`
	Extended bool        `json:"extended"`
	// PreviousSlidingExpiresAt deadline anterior a la rotación.
	PreviousSlidingExpiresAt time.Time `json:"previous_sliding_expires_at"`
}

// RevocationResult resultado de RevokeChain.
type RevocationResult struct {
	AuthorizationID string `json:"authorization_id"`
	TokensRevoked   int    `json:"tokens_revoked"`
	AlreadyRevoked  bool   `json:"already_revoked"`
}

// SweepFailure error de una revocación individual dentro de un barrido.
type SweepFailure struct {
	AuthorizationID string `json:"authorization_id"`
	Error           string `json:"error"`
}

// SweepResult resultado de RevokeAllSessions.
type SweepResult struct {
	Attempted     int            `json:"attempted"`
	Revoked       int            `json:"revoked"`
	TokensRevoked int            `json:"tokens_revoked"`
	Failed        int            `json:"failed"`
	Failures      []SweepFailure `json:"failures,omitempty"`
}

// SessionView proyección de solo lectura de una sesión. Nunca expone hashes
// completos, solo fingerprints.
type SessionView struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	AuthorizationID      string     `json:"authorization_id"`
	Status               string     `json:"status"`
	CurrentFingerprint   string     `json:"current_fingerprint"`
	PreviousFingerprint  string     `json:"previous_fingerprint,omitempty"`
	SlidingExpiresAt     time.Time  `json:"sliding_expires_at"`
	AbsoluteExpiresAt    *time.Time `json:"absolute_expires_at,omitempty"`
	RevokedAt            *time.Time `json:"revoked_at,omitempty"`
	RevocationReason     string     `json:"revocation_reason,omitempty"`
	LastRefreshIP        string     `json:"last_refresh_ip,omitempty"`
	LastRefreshUserAgent string     `json:"last_refresh_user_agent,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func toView(s *repository.Session, now time.Time) SessionView {
	v := SessionView{
		ID:                 s.ID,
		UserID:             s.UserID,
		AuthorizationID:    s.AuthorizationID,
		Status:             s.Status(now),
		CurrentFingerprint: tokens.Fingerprint(s.CurrentRefreshTokenHash),
		SlidingExpiresAt:   s.SlidingExpiresAt,
		AbsoluteExpiresAt:  s.AbsoluteExpiresAt,
		RevokedAt:          s.RevokedAt,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
	if s.PreviousRefreshTokenHash != nil {
		v.PreviousFingerprint = tokens.Fingerprint(*s.PreviousRefreshTokenHash)
	}
	if s.RevocationReason != nil {
		v.RevocationReason = *s.RevocationReason
	}
	if s.LastRefreshIP != nil {
		v.LastRefreshIP = *s.LastRefreshIP
	}
	if s.LastRefreshUserAgent != nil {
		v.LastRefreshUserAgent = *s.LastRefreshUserAgent
	}
	return v
}
