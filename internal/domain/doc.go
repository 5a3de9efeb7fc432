// Package domain defines the core types of the delivery engine: the outbox
// message, its delivery events and the suppression ledger records.
//
// Types in this package are pure value objects with no behavior beyond
// validation and classification, no database dependencies, and no HTTP
// concerns. They are the shared language between handlers, services,
// repositories and workers.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Validation methods are allowed (they're pure functions on the type)
//   - Constants and enums belong here
package domain
