// Package logger provee el logger zap del servidor con scoping por contexto.
//
// # Design Decisions
//
//   - Singleton: una sola instancia global inicializada con Init().
//   - Context Scoping: cada request HTTP y cada unit of work lleva un logger con
//     campos propios (request_id, tenant_id, client_id, auth_req_id).
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//   - Secretos: codes, tokens y code_verifiers nunca se loguean; usar Fingerprint.
//
// # Usage
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{Env: cfg.Logging.Env, Level: cfg.Logging.Level})
//	defer logger.Sync()
//
// En handlers (con contexto):
//
//	log := logger.From(ctx).With(logger.Layer("oauth"), logger.Op("AuthorizeHandler.Handle"))
//	log.Info("authorization code issued", logger.ClientID(clientID))
package logger
