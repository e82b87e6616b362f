// Package registry provides the durable catalog of known users.
//
// Users are created on first contact and never deleted; lifecycle changes
// are soft status transitions (active, inactive, banned). The registry and
// the heartbeat scheduler are independent collaborators: deactivating a
// user here does not cancel their scheduled job, that synchronization is
// the caller's explicit responsibility.
//
// Two implementations are provided: FileRegistry persists an ordered user
// list as JSON, MemoryRegistry backs tests.
package registry
