// Package admin contiene controladores de administración.
package admin

import (
	"github.com/dropDatabas3/grantkeeper/internal/scopes"
	"github.com/dropDatabas3/grantkeeper/internal/session"
)

// Controllers agrupa todos los controllers del dominio admin.
type Controllers struct {
	Sessions *SessionsController
	Scopes   *ScopesController
}

// NewControllers crea el agregador de controllers admin.
func NewControllers(sessions session.Manager, engine scopes.Engine) *Controllers {
	return &Controllers{
		Sessions: NewSessionsController(sessions),
		Scopes:   NewScopesController(engine),
	}
}
