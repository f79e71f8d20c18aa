// Package academic holds the enrollment engine: the group, subject-enrollment
// and change-request state machines and the operations that combine them.
//
// The package performs no I/O. Aggregates are obtained from a Directory, which
// must hand out one shared pointer per id, and every mutation happens while the
// per-entity locks of the involved request, groups and student are held, in
// that order. Mutating operations return a ChangeSet of deep copies that the
// caller persists.
package academic
