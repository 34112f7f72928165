// Package domain defines the core types of the lead disposition engine:
// contacts, companies, ownership leases, the audit ledgers and TAM snapshots.
//
// Types in this package are pure value objects with no database
// dependencies and no HTTP concerns. They are the shared language between
// handlers, services, and repositories.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON tags are allowed (they're metadata, not behavior)
//   - Validation methods and small pure predicates are allowed
//   - Constants and enums belong here
package domain
