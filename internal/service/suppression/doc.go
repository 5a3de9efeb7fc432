// Package suppression implements the append-only suppression ledger and the
// bounce recorder that feeds it.
//
// The ledger is the single source of truth for whether an address should
// receive mail. Records are never updated or deleted: unsubscribes arrive
// from opt-out flows and the complaint policy, bounce records arrive only
// through the Recorder as a side effect of a delivery status transition.
//
// Writers are expressed as the LedgerWriter interface so the same recorder
// can append inside the status machine's transaction or directly against
// the database. The package never imports net/http or database/sql.
package suppression
