package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/grantkeeper/internal/http/errors"
	"github.com/dropDatabas3/grantkeeper/internal/http/helpers"
	"github.com/dropDatabas3/grantkeeper/internal/scopes"
)

// ScopesController maneja los required scopes por client.
type ScopesController struct {
	engine scopes.Engine
}

// NewScopesController crea un nuevo controlador de required scopes.
func NewScopesController(engine scopes.Engine) *ScopesController {
	return &ScopesController{engine: engine}
}

// SetRequiredScopesRequest reemplaza el set completo. Lista vacía lo limpia.
type SetRequiredScopesRequest struct {
	Scopes []string `json:"scopes"`
}

// RequiredScopesResponse respuesta de lectura.
type RequiredScopesResponse struct {
	ClientID string   `json:"client_id"`
	Scopes   []string `json:"scopes"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Get GET /v1/admin/clients/{client_id}/required-scopes
func (c *ScopesController) Get(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")

	got, err := c.engine.GetRequiredScopes(r.Context(), clientID)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, RequiredScopesResponse{ClientID: clientID, Scopes: nonNil(got)})
}

// Set PUT /v1/admin/clients/{client_id}/required-scopes
func (c *ScopesController) Set(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")

	var req SetRequiredScopesRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if err := c.engine.SetRequiredScopes(r.Context(), clientID, req.Scopes); err != nil {
		errors.WriteError(w, err)
		return
	}

	got, err := c.engine.GetRequiredScopes(r.Context(), clientID)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, RequiredScopesResponse{ClientID: clientID, Scopes: nonNil(got)})
}

// Check GET /v1/admin/clients/{client_id}/required-scopes/{scope}
func (c *ScopesController) Check(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")
	scope := chi.URLParam(r, "scope")

	ok, err := c.engine.IsScopeRequired(r.Context(), clientID, scope)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{
		"client_id": clientID,
		"scope":     scope,
		"required":  ok,
	})
}

// Orphans GET /v1/admin/clients/{client_id}/required-scopes/orphans
// Diagnóstico: no modifica el set.
func (c *ScopesController) Orphans(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "client_id")

	orphans, err := c.engine.FindOrphanedRequiredScopes(r.Context(), clientID)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{
		"client_id": clientID,
		"orphans":   nonNil(orphans),
	})
}
