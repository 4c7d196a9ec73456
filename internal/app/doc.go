// Package app composes the domain services into a running application.
//
// The package is a composition layer, not a business logic layer:
//
//	internal/app/
//	├── application.go      # Application struct and service wiring
//	├── domain/             # Domain models (pure data structures)
//	│   ├── user/           # Users and roles
//	│   ├── parcel/         # Parcel requests and their lifecycle
//	│   └── credit/         # Credit ledger entries
//	├── storage/            # Storage interfaces and implementations
//	│   ├── interfaces.go   # Store interfaces (UserStore, ParcelStore, ...)
//	│   ├── memory/         # In-memory implementation for testing
//	│   └── postgres/       # PostgreSQL implementation for production
//	├── services/           # Business logic (auth, users, credits, parcels, admin)
//	└── httpapi/            # HTTP handlers and routing
//
// Business rules live in internal/app/services/; handlers in httpapi/ only
// translate between HTTP and service calls, and stores only persist.
package app
