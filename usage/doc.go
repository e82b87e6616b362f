// Package usage tracks model API spend in an append-only JSONL ledger.
//
// Each request appends one record with token counts, cost, and user
// attribution. The ledger is written by the executor, never by the
// scheduler. Malformed lines are skipped on read so one bad record never
// poisons the statistics.
package usage
