package repository

import (
	"context"
	"time"
)

// AuditEvent es una fila de audit_events. Los valores ya llegan enmascarados
// según la política del sink.
type AuditEvent struct {
	ID         string
	Type       string
	SubjectID  string
	Details    []byte // JSON
	IP         string
	UserAgent  string
	OccurredAt time.Time
}

// AuditRepository es el log append-only de eventos.
type AuditRepository interface {
	Append(ctx context.Context, ev AuditEvent) error

	// ListBySubject lista eventos de un sujeto, más recientes primero.
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]AuditEvent, error)
}
