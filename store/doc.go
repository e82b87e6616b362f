// Package store provides the per-user durable store and its manager.
//
// Each user owns one directory holding a message log, a scratchpad note
// log, and a configuration record, all JSON. Every read or write against
// one user's data is a read-modify-write critical section under that
// user's own mutex; operations on different users never block each other.
//
// The Manager caches exactly one UserStore handle per user id for the
// process lifetime. First creation is serialized by the manager's cache
// mutex, which is distinct from any per-user lock, so concurrent first
// accesses cannot create two handles.
package store
