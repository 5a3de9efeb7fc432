// Package messaging implements the outbox core: the idempotent enqueuer and
// the delivery status state machine.
//
// Enqueue creates at most one message per (tenant, idempotency key) and
// consults the deliverability gate before writing anything. UpdateStatus
// applies one transition under a per-message row lock, appends the delivery
// event, schedules retries with exponential backoff and asks the bounce
// recorder to append ledger records in the same transaction.
//
// The service depends on the Repository interface in repository.go and
// never imports database/sql or net/http.
package messaging
