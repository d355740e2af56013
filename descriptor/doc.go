// Package descriptor performs one-time structural discovery of bound
// classes.
//
// A descriptor.Class is the immutable record of everything a binding needs
// to know about one Go struct: its discoverable fields (embedded value
// structs flattened, the way Go promotes them), its exported
// pointer-receiver method set (promoted methods included), declared static
// functions and overload variants, and declared constructors. Discovery is
// memoized per declaration; two Describe calls for the same class return
// the identical descriptor.
//
// Discovery is all-or-nothing per class: a discoverable member whose type
// has no conversion category aborts that class's descriptor with a
// structure error and touches nothing else. Narrow the surface with
// mirror.WithMethods or a `mirror:"-"` field tag when a type carries
// members that should stay host-side.
//
// Each descriptor also carries a deterministic structural signature and
// its SHA-256 content hash, recomputed whenever the descriptor is built
// and consumed by the change-detection registry.
package descriptor
