// Package logger provee un logger Zap singleton con scoping por contexto.
//
// Inicialización (una vez en main):
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
// En services (con contexto):
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Refresh"))
//	log.Info("session rotated", logger.AuthorizationID(id))
//
// Los campos de negocio (user_id, client_id, authorization_id...) viven en fields.go
// para que todos los componentes usen las mismas keys.
package logger
