// Package audit define el sink de eventos de auditoría y sus implementaciones.
//
// El core entrega valores crudos (usernames, emails, IPs) y confía en que el sink
// aplique la política de enmascarado antes de persistir. Ver NewMaskingSink.
//
// Los sinks concretos son:
//
//	RepositorySink   → tabla audit_events (vía repository.AuditRepository)
//	RedisStreamSink  → XADD sobre un stream de Redis (cola durable)
//	LogSink          → línea JSON en el logger zap
//
// Para mutaciones de estado el error del sink es fatal: quien llama debe hacer
// rollback si RecordEvent falla.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
)

// Tipos de evento emitidos por el core.
const (
	EventSessionCreated            = "SessionCreated"
	EventRefreshTokenRotated       = "RefreshTokenRotated"
	EventSlidingExpirationExtended = "SlidingExpirationExtended"
	EventRefreshTokenReuseDetected = "RefreshTokenReuseDetected"
	EventSessionRevoked            = "SessionRevoked"
	EventRequiredScopesChanged     = "RequiredScopesChanged"
	EventConsentTamperingDetected  = "ConsentTamperingDetected"
)

// ErrUnavailable indica que el sink no pudo encolar el evento de forma durable.
var ErrUnavailable = fmt.Errorf("audit sink: %w", repository.ErrUnavailable)

// Event es un evento de auditoría tal como lo produce el core.
type Event struct {
	Type      string
	SubjectID string
	Details   map[string]any
	IP        string
	UserAgent string

	// OccurredAt lo completa el sink si viene vacío.
	OccurredAt time.Time
}

// Sink persiste eventos de auditoría.
type Sink interface {
	RecordEvent(ctx context.Context, ev Event) error
}

// SinkFunc adapta una función a Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) RecordEvent(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Discard acepta y descarta todos los eventos.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// unavailable envuelve un error de backend como ErrUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrUnavailable, err))
}

// IsUnavailable verifica si err proviene de un sink caído.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// ─── Fan-out ───

type multiSink struct {
	sinks []Sink
}

// Multi envía cada evento a todos los sinks. Si alguno falla el evento se
// considera no registrado y se devuelven todos los errores juntos.
func Multi(sinks ...Sink) Sink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return &multiSink{sinks: out}
}

func (m *multiSink) RecordEvent(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func cloneDetails(d map[string]any) map[string]any {
	if d == nil {
		return nil
	}
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
