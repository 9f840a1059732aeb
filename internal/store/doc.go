// Package store persists recurring delivery schedules and the token
// revocation ledger.
//
// Two backends share one contract:
//   - sqlite (embedded, single connection, single poller)
//   - postgres (pooled, claim-and-skip due query, any number of pollers)
//
// Sensitive columns are encrypted at the read/write boundary; callers only
// ever see plaintext.
package store
