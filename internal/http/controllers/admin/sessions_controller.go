package admin

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/grantkeeper/internal/http/errors"
	"github.com/dropDatabas3/grantkeeper/internal/http/helpers"
	"github.com/dropDatabas3/grantkeeper/internal/observability/logger"
	"github.com/dropDatabas3/grantkeeper/internal/session"
)

// SessionsController maneja endpoints de administración de sesiones.
type SessionsController struct {
	service session.Manager
}

// NewSessionsController crea un nuevo controlador de sesiones.
func NewSessionsController(service session.Manager) *SessionsController {
	return &SessionsController{service: service}
}

// RevokeRequest body opcional de las revocaciones.
type RevokeRequest struct {
	Reason string `json:"reason"`
}

// ListSessions GET /v1/admin/users/{user_id}/sessions
func (c *SessionsController) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	views, err := c.service.ListSessions(r.Context(), userID)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	if views == nil {
		views = []session.SessionView{}
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

// RevokeSession DELETE /v1/admin/users/{user_id}/sessions/{authorization_id}
// Revocación iniciada por el usuario (reason user_revoked).
func (c *SessionsController) RevokeSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	authID := chi.URLParam(r, "authorization_id")

	res, err := c.service.RevokeSession(r.Context(), userID, authID)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// RevokeChain POST /v1/admin/users/{user_id}/sessions/{authorization_id}/revoke
// Reason por defecto admin_revoked.
func (c *SessionsController) RevokeChain(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	authID := chi.URLParam(r, "authorization_id")

	var req RevokeRequest
	if r.ContentLength > 0 && !helpers.ReadJSON(w, r, &req) {
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = session.ReasonAdminRevoked
	}

	res, err := c.service.RevokeChain(r.Context(), userID, authID, reason)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// RevokeAll POST /v1/admin/users/{user_id}/sessions/revoke-all
// Las fallas individuales viajan en el body; el status es 200 igual.
func (c *SessionsController) RevokeAll(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	var req RevokeRequest
	if r.ContentLength > 0 && !helpers.ReadJSON(w, r, &req) {
		return
	}

	res, err := c.service.RevokeAllSessions(r.Context(), userID, strings.TrimSpace(req.Reason))
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	if res.Failed > 0 {
		logger.From(r.Context()).Warn("revoke-all finished with failures",
			logger.Layer("http"),
			logger.Component("admin.sessions"),
			logger.UserID(userID),
			logger.Int("failed", res.Failed),
		)
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}
