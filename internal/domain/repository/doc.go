// Package repository define las entidades del ciclo de vida de grants y las
// interfaces de repositorio que las persisten.
//
// Estas interfaces representan contratos de negocio, independientes del
// almacenamiento subyacente. Las implementaciones concretas viven en
// internal/store/pg (PostgreSQL) e internal/store/memory (dev/tests).
//
// Arquitectura:
//
//	┌─────────────────────────────────────────────────────┐
//	│   oauth / ciba / token handlers (unit of work)      │
//	└─────────────────────────────────────────────────────┘
//	                        │
//	                        ▼
//	┌─────────────────────────────────────────────────────┐
//	│        domain/repository (interfaces)               │
//	│  AuthorizationRequest, CodeGrant, CibaGrant, ...    │
//	└─────────────────────────────────────────────────────┘
//	                        │
//	         ┌──────────────┴──────────────┐
//	         ▼                             ▼
//	┌─────────────────┐          ┌─────────────────┐
//	│    store/pg     │          │  store/memory   │
//	└─────────────────┘          └─────────────────┘
//
// Convenciones:
//   - TenantID se pasa explícitamente en todos los métodos
//   - Context siempre es el primer parámetro y transporta la transacción activa
//   - Get retorna ErrNotFound; Find retorna el valor cero (Exists() == false)
//   - Errores de dominio están en errors.go
package repository
