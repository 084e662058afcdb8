// Package dispatch executes control commands against backend adapters.
//
// The dispatcher validates a command against the target record's
// capability set, translates it into a partial desired state, calls the
// owning adapter, and merges only the fields the adapter attested back
// into the registry. A failed command never changes stored state.
package dispatch
