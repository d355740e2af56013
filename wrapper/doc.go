// Package wrapper manages the lifecycle of bound host instances.
//
// Every instance exposed to a target runtime is paired with exactly one
// Record. The record tracks whether the target's wrapper may still touch
// the instance and whether releasing the wrapper releases the instance.
//
// # Lifecycle
//
// A record moves through three states, forward only:
//
//	Unbound    - allocated, no host instance attached
//	Bound      - instance attached; owning flag fixed here
//	Finalized  - released; terminal
//
// Finalization runs the class cleanup hook only for owning records. A
// non-owning record wraps host state owned elsewhere; finalizing it marks
// the wrapper dead without freeing anything. Operating on an unbound or
// finalized record returns an invalid-instance error, never a crash.
//
//	rec, _ := wrapper.Bound("point", recv, true, tbl.Finalizer)
//
//	recv, err := rec.Recv()   // routes an access
//	err = rec.Finalize()      // frees (owning), marks dead
//	_, err = rec.Recv()       // invalid instance
//
// # Handle Table
//
// Adapters that cross a numeric boundary allocate handles for records:
//
//	table := wrapper.NewTable()
//	h := table.Insert(rec)
//	rec, ok := table.Get(h)
//	rec, ok = table.Remove(h) // detach; caller finalizes
//
// Handle 0 is reserved and always invalid. Close finalizes every record
// still live, which is the sweep adapters run when a VM shuts down
// before every instance was explicitly freed.
package wrapper
