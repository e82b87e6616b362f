// Package errors provides structured errors for vigil.
//
// Every failure carries a code identifying what went wrong and a category
// deciding how the caller should react:
//
//   - recoverable errors (malformed config) are repaired locally with
//     defaults and never reach the scheduling loop
//   - lenient errors (unknown user) are logged as warnings and treated
//     as no-ops
//   - transient errors (a failed heartbeat execution) are contained at
//     the tick boundary and never disable the user or the scheduler
//   - permanent errors (bad input, storage corruption) propagate to the
//     direct caller
//
// Errors wrap their cause and work with the standard errors.Is/As chain.
package errors
