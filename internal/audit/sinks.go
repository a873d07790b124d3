package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
	"github.com/dropDatabas3/grantkeeper/internal/observability/logger"
)

func stamp(ev Event) Event {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	return ev
}

func marshalDetails(d map[string]any) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal details: %w", err)
	}
	return b, nil
}

// ─── DB ───

// RepositorySink persiste en audit_events.
type RepositorySink struct {
	repo repository.AuditRepository
}

// NewRepositorySink crea un sink sobre el repositorio de auditoría.
func NewRepositorySink(repo repository.AuditRepository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) RecordEvent(ctx context.Context, ev Event) error {
	ev = stamp(ev)
	details, err := marshalDetails(ev.Details)
	if err != nil {
		return err
	}
	row := repository.AuditEvent{
		ID:         uuid.NewString(),
		Type:       ev.Type,
		SubjectID:  ev.SubjectID,
		Details:    details,
		IP:         ev.IP,
		UserAgent:  ev.UserAgent,
		OccurredAt: ev.OccurredAt,
	}
	if err := s.repo.Append(ctx, row); err != nil {
		return unavailable("append audit event", err)
	}
	return nil
}

// ─── Redis Stream ───

// RedisStreamSink encola eventos con XADD. El evento se considera durable
// una vez que Redis confirma el ID de la entrada.
type RedisStreamSink struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisStreamSink crea el sink. maxLen 0 = sin recorte.
func NewRedisStreamSink(client redis.Cmdable, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = "grantkeeper:audit"
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) RecordEvent(ctx context.Context, ev Event) error {
	ev = stamp(ev)
	details, err := marshalDetails(ev.Details)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":          uuid.NewString(),
			"type":        ev.Type,
			"subject_id":  ev.SubjectID,
			"details":     string(details),
			"ip":          ev.IP,
			"user_agent":  ev.UserAgent,
			"occurred_at": ev.OccurredAt.Format(time.RFC3339Nano),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return unavailable("xadd audit event", err)
	}
	return nil
}

// ─── Log ───

// LogSink escribe cada evento como una línea estructurada. Nunca falla.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink crea el sink; l nil usa el logger global.
func NewLogSink(l *zap.Logger) *LogSink {
	if l == nil {
		l = logger.L()
	}
	return &LogSink{log: l.With(logger.Component("audit"))}
}

func (s *LogSink) RecordEvent(_ context.Context, ev Event) error {
	ev = stamp(ev)
	s.log.Info("audit",
		logger.EventType(ev.Type),
		logger.String("subject_id", ev.SubjectID),
		zap.Any("details", ev.Details),
		logger.String("ip", ev.IP),
		logger.String("user_agent", ev.UserAgent),
		logger.Time("occurred_at", ev.OccurredAt),
	)
	return nil
}

// ─── Recorder ───

// Recorder guarda los eventos en memoria. Pensado para tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

// NewRecorder crea un recorder vacío.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) RecordEvent(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	ev = stamp(ev)
	ev.Details = cloneDetails(ev.Details)
	r.events = append(r.events, ev)
	return nil
}

// FailWith hace que los próximos RecordEvent fallen con err (nil restaura).
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Events devuelve una copia de los eventos registrados.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types devuelve los tipos registrados, en orden.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// Reset descarta los eventos registrados.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
