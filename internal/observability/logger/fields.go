package logger

import (
	"time"

	"go.uber.org/zap"
)

// ─── HTTP ───

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field { return zap.String("method", v) }
func Path(v string) zap.Field { return zap.String("path", v) }
func Status(v int) zap.Field { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field { return zap.String("user_agent", v) }
func Bytes(v int) zap.Field { return zap.Int("bytes", v) }
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }

// ─── Negocio ───

// UserID identifica al dueño de la sesión.
func UserID(v string) zap.Field { return zap.String("user_id", v) }

// ClientID identifica la aplicación OAuth.
func ClientID(v string) zap.Field { return zap.String("client_id", v) }

// AuthorizationID identifica la autorización del protocol engine (1 sesión por autorización).
func AuthorizationID(v string) zap.Field { return zap.String("authorization_id", v) }

// Scope nombre de un scope OAuth.
func Scope(v string) zap.Field { return zap.String("scope", v) }

// Reason motivo de revocación.
func Reason(v string) zap.Field { return zap.String("reason", v) }

// Fingerprint prefijo del hash de un refresh token. Nunca loguear el token crudo.
func Fingerprint(key, v string) zap.Field { return zap.String(key, v) }

// EventType tipo de evento de auditoría.
func EventType(v string) zap.Field { return zap.String("event_type", v) }

// ─── Sistema ───

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field { return zap.String("op", v) }
func Layer(v string) zap.Field { return zap.String("layer", v) }
func Err(err error) zap.Field { return zap.Error(err) }

// ─── Genéricos ───

func Count(v int) zap.Field { return zap.Int("count", v) }
func String(key, v string) zap.Field { return zap.String(key, v) }
func Strings(key string, v []string) zap.Field { return zap.Strings(key, v) }
func Int(key string, v int) zap.Field { return zap.Int(key, v) }
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
func Time(key string, v time.Time) zap.Field { return zap.Time(key, v) }
func Any(key string, v any) zap.Field { return zap.Any(key, v) }
