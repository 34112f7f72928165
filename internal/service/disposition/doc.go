// Package disposition implements the contact state machine.
//
// Every status change goes through ApplyTransition, which validates the
// edge against Transitions, applies channel side effects, adjusts the
// company rollups and appends a history row in one store transaction.
// Concurrent writers are detected by the contact version and retried.
//
// The service layer contains pure business logic and depends on the
// store interfaces. It never imports net/http or database/sql directly.
package disposition
