// Package aggregates contains the transactional write boundaries of the
// pipeline: promoting a staging record into the production tables and
// settling valuation jobs.
//
// Implementations compose table-level repos from internal/data/repos and own
// the transaction for every invariant-critical write.
package aggregates
