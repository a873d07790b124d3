// Package repository define las interfaces de repositorio de dominio.
//
// Estas interfaces representan contratos de negocio, independientes del
// almacenamiento subyacente (PostgreSQL, MySQL, memoria).
//
// Las implementaciones concretas viven en internal/store/adapters/.
//
//	┌─────────────────────────────────────────────────────┐
//	│   session.Manager / scopes.Engine / audit sinks     │
//	└─────────────────────────────────────────────────────┘
//	                        │
//	                        ▼
//	┌─────────────────────────────────────────────────────┐
//	│        domain/repository (interfaces)               │
//	│  SessionRepository, RequiredScopeRepository,       │
//	│  AuditRepository                                    │
//	└─────────────────────────────────────────────────────┘
//	                        │
//	                        ▼
//	┌─────────────────────────────────────────────────────┐
//	│   store/adapters/{pg,mysql,memory}                  │
//	└─────────────────────────────────────────────────────┘
package repository
