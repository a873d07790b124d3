// Package hooks expone los callbacks que invoca el protocol engine durante el
// code exchange, el refresh grant y el consent.
package hooks

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/grantkeeper/internal/http/errors"
	"github.com/dropDatabas3/grantkeeper/internal/http/helpers"
	"github.com/dropDatabas3/grantkeeper/internal/scopes"
	"github.com/dropDatabas3/grantkeeper/internal/session"
)

// Controllers agrupa los hooks.
type Controllers struct {
	Sessions *SessionsController
	Consent  *ConsentController
}

func NewControllers(sessions session.Manager, engine scopes.Engine) *Controllers {
	return &Controllers{
		Sessions: &SessionsController{service: sessions},
		Consent:  &ConsentController{engine: engine},
	}
}

// ─── Sessions ───

type SessionsController struct {
	service session.Manager
}

// BeginRequest primera emisión de refresh token para una autorización.
type BeginRequest struct {
	UserID          string `json:"user_id"`
	AuthorizationID string `json:"authorization_id"`
	RefreshToken    string `json:"refresh_token"`
	SourceIP        string `json:"source_ip"`
	UserAgent       string `json:"user_agent"`
}

// RotateRequest refresh grant aceptado por el engine.
type RotateRequest struct {
	UserID                string `json:"user_id"`
	AuthorizationID       string `json:"authorization_id"`
	PresentedRefreshToken string `json:"presented_refresh_token"`
	NewRefreshToken       string `json:"new_refresh_token"`
	SourceIP              string `json:"source_ip"`
	UserAgent             string `json:"user_agent"`
}

// Begin POST /v1/hooks/sessions
func (c *SessionsController) Begin(w http.ResponseWriter, r *http.Request) {
	var req BeginRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.UserID == "" || req.AuthorizationID == "" || req.RefreshToken == "" {
		errors.WriteError(w, errors.ErrMissingFields.WithDetail("user_id, authorization_id and refresh_token are required"))
		return
	}

	view, err := c.service.BeginSession(r.Context(), session.BeginInput{
		UserID:          req.UserID,
		AuthorizationID: req.AuthorizationID,
		RefreshToken:    req.RefreshToken,
		SourceIP:        req.SourceIP,
		UserAgent:       req.UserAgent,
	})
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, view)
}

// Rotate POST /v1/hooks/sessions/rotate
// 409 REFRESH_TOKEN_REUSE significa que la cadena ya fue revocada.
func (c *SessionsController) Rotate(w http.ResponseWriter, r *http.Request) {
	var req RotateRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.UserID == "" || req.AuthorizationID == "" || req.PresentedRefreshToken == "" || req.NewRefreshToken == "" {
		errors.WriteError(w, errors.ErrMissingFields.WithDetail("user_id, authorization_id, presented_refresh_token and new_refresh_token are required"))
		return
	}

	res, err := c.service.Refresh(r.Context(), session.RefreshInput{
		UserID:                req.UserID,
		AuthorizationID:       req.AuthorizationID,
		PresentedRefreshToken: req.PresentedRefreshToken,
		NewRefreshToken:       req.NewRefreshToken,
		SourceIP:              req.SourceIP,
		UserAgent:             req.UserAgent,
	})
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// ─── Consent ───

type ConsentController struct {
	engine scopes.Engine
}

// VerifyConsentRequest scopes que el usuario aprobó en la pantalla de consent.
// granted_scopes acepta items con varios scopes separados por espacio.
type VerifyConsentRequest struct {
	ClientID      string   `json:"client_id"`
	SubjectID     string   `json:"subject_id"`
	GrantedScopes []string `json:"granted_scopes"`
	Scope         string   `json:"scope"`
	SourceIP      string   `json:"source_ip"`
	UserAgent     string   `json:"user_agent"`
}

// Verify POST /v1/hooks/consent/verify
func (c *ConsentController) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyConsentRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ClientID) == "" {
		errors.WriteError(w, errors.ErrMissingFields.WithDetail("client_id is required"))
		return
	}

	granted := req.GrantedScopes
	if req.Scope != "" {
		granted = append(granted, req.Scope)
	}

	err := c.engine.VerifyConsent(r.Context(), scopes.ConsentInput{
		ClientID:      req.ClientID,
		SubjectID:     req.SubjectID,
		GrantedScopes: granted,
		SourceIP:      req.SourceIP,
		UserAgent:     req.UserAgent,
	})
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}
