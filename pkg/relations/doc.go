// Package relations derives the route/service/upstream edges the control
// plane does not expose directly.
//
// Rebuild builds two index maps in single passes (service id -> route ids,
// upstream id -> service ids) and assigns them in full on every call.
// Output order follows the input order of the referencing collection.
// A foreign key that names a missing entity is skipped; Dangling reports it.
package relations
