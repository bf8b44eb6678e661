// Package store provides durable SQLite storage for the shop floor ledger:
// work orders, contracts, the inventory posting ledger, shipments, the audit
// log and the document sequence allocator.
//
// Consistency model:
//   - Multi-statement units run through Store.WithTx; everything inside one
//     Tx commits together or not at all.
//   - Idempotent side-effect writes (inventory postings by correlation tag,
//     shipments by linked contract) use unique nullable columns with
//     ON CONFLICT DO NOTHING, so retries are no-ops rather than duplicates.
//   - Document codes are issued from the sequences table inside the issuing
//     transaction, never by max+1 scans.
package store
