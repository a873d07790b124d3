// Package tracing agrupa helpers de OpenTelemetry para los services.
//
// Solo se usa la API de otel: sin SDK configurado los spans son no-op. Nunca
// se agregan tokens ni hashes completos como atributos, solo fingerprints.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName es el nombre del tracer del core.
const InstrumentationName = "github.com/dropDatabas3/grantkeeper"

// Claves de atributos.
const (
	AttrUserID          = "oauth.user_id"
	AttrClientID        = "oauth.client_id"
	AttrAuthorizationID = "oauth.authorization_id"
	AttrScope           = "oauth.scope"
	AttrTokenRotated    = "oauth.token.rotated"
	AttrTokenReuse      = "oauth.token.reuse"
	AttrRevokeReason    = "session.revocation_reason"
	AttrAlreadyRevoked  = "session.already_revoked"
	AttrTokensRevoked   = "session.tokens_revoked"
	AttrAuditEventType  = "security.audit.event_type"
)

// Tracer devuelve el tracer del core desde el provider global.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Start abre un span con los atributos dados.
func Start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = Tracer()
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError registra err en el span con status Error (nil-safe).
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// End cierra el span marcando el resultado según err.
func End(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		RecordError(span, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
