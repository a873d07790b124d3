package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/grantkeeper/internal/domain/repository"
	"github.com/dropDatabas3/grantkeeper/internal/scopes"
	"github.com/dropDatabas3/grantkeeper/internal/session"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// FromError convierte cualquier error en un AppError.
// Los errores de dominio se clasifican con errors.Is; lo desconocido es 500.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var se *scopes.ScopeError
	if stderrors.As(err, &se) {
		base := ErrScopeNotFound
		if stderrors.Is(err, scopes.ErrScopeNotAllowed) {
			base = ErrScopeNotAllowed
		}
		return base.WithDetail(se.Error()).WithCause(err)
	}

	var te *scopes.ConsentTamperingError
	if stderrors.As(err, &te) {
		return ErrConsentTampered.WithDetail("missing: " + strings.Join(te.Missing, " ")).WithCause(err)
	}

	switch {
	case stderrors.Is(err, session.ErrTokenReuseDetected):
		return ErrTokenReuse.WithCause(err)
	case stderrors.Is(err, session.ErrSessionRevoked):
		return ErrSessionRevoked.WithCause(err)
	case stderrors.Is(err, session.ErrSessionExpired):
		return ErrSessionExpired.WithCause(err)
	case stderrors.Is(err, session.ErrSessionNotFound),
		stderrors.Is(err, session.ErrAuthorizationNotFound):
		return ErrSessionNotFound.WithDetail(err.Error()).WithCause(err)
	case stderrors.Is(err, scopes.ErrClientNotFound):
		return ErrClientNotFound.WithCause(err)
	case stderrors.Is(err, scopes.ErrInvalidScopeSet):
		return ErrInvalidScopeSet.WithDetail(err.Error()).WithCause(err)
	}

	switch {
	case repository.IsInvalidInput(err):
		return ErrBadRequest.WithDetail(err.Error()).WithCause(err)
	case repository.IsNotFound(err):
		return ErrNotFound.WithCause(err)
	case repository.IsConflict(err):
		return ErrConflict.WithDetail(err.Error()).WithCause(err)
	case repository.IsUnavailable(err):
		return ErrServiceUnavailable.WithCause(err)
	}

	return ErrInternalServerError.WithCause(err)
}

// WriteError escribe la respuesta JSON de error con el status del AppError.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)
	if appErr == nil {
		appErr = ErrInternalServerError
	}

	resp := errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(resp)
}
