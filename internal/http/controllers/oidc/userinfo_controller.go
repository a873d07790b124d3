// Package oidc contiene los endpoints de identidad protegidos por scope.
package oidc

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/grantkeeper/internal/http/errors"
	"github.com/dropDatabas3/grantkeeper/internal/http/helpers"
	mw "github.com/dropDatabas3/grantkeeper/internal/http/middlewares"
	"github.com/dropDatabas3/grantkeeper/internal/scopes"
)

// claimsByScope claims estándar que se liberan por cada scope concedido.
var claimsByScope = map[string][]string{
	"profile": {"name", "given_name", "family_name", "preferred_username", "locale", "updated_at"},
	"email":   {"email", "email_verified"},
	"phone":   {"phone_number", "phone_number_verified"},
	"address": {"address"},
}

// UserInfoController sirve /connect/userinfo a partir de las claims del access token.
type UserInfoController struct{}

func NewUserInfoController() *UserInfoController { return &UserInfoController{} }

// UserInfo GET|POST /connect/userinfo. La ruta se monta detrás de RequireScope:openid.
func (c *UserInfoController) UserInfo(w http.ResponseWriter, r *http.Request) {
	claims := mw.GetClaims(r.Context())
	pr := scopes.PrincipalFromClaims(claims)
	if !pr.Authenticated || pr.Subject == "" {
		errors.WriteError(w, errors.ErrUnauthorized)
		return
	}

	out := map[string]any{"sub": pr.Subject}
	for _, s := range pr.GrantedScopes() {
		for _, k := range claimsByScope[strings.ToLower(s)] {
			if v, ok := claims[k]; ok {
				out[k] = v
			}
		}
	}

	w.Header().Set("Cache-Control", "no-store")
	helpers.WriteJSON(w, http.StatusOK, out)
}
