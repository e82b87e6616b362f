// Package scheduler runs one independent recurring heartbeat timer per
// user.
//
// Each user's job fires on its own cadence; a slow execution for one
// user never delays another's. If a tick fires while the previous
// execution for that user is still running, the occurrence is dropped,
// not queued, so cadence never drifts and no backlog accumulates.
//
// Pausing a user flips an in-memory flag and leaves the timer alone: a
// disabled tick is a no-op, not a cancellation. Errors and panics
// inside one execution are contained at the tick boundary.
package scheduler
