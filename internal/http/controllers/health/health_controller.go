// Package health contiene el health check.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/grantkeeper/internal/http/helpers"
	"github.com/dropDatabas3/grantkeeper/internal/observability/logger"
)

// Pinger es cualquier dependencia que puede verificar su conexión.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthController reporta el estado de las dependencias.
type HealthController struct {
	checks  map[string]Pinger
	timeout time.Duration
}

// NewHealthController crea el controller. checks: nombre -> dependencia.
func NewHealthController(checks map[string]Pinger) *HealthController {
	return &HealthController{checks: checks, timeout: 2 * time.Second}
}

// Healthz GET /healthz. 503 si alguna dependencia falla.
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(c.checks))
	for name, p := range c.checks {
		if err := p.Ping(ctx); err != nil {
			logger.From(ctx).Warn("health check failed",
				logger.Layer("http"),
				logger.Component(name),
				logger.Err(err),
			)
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	helpers.WriteJSON(w, status, map[string]any{"status": overall, "checks": deps})
}
