// Package wasm binds mirror classes to WebAssembly guests as wazero
// host modules.
//
// Each bound class becomes one host module named "mirror:class/<name>"
// whose exports follow the component-model canonical ABI at the flat
// word level:
//
//	new<arity>  static constructor, returns a uint32 instance handle
//	get-<field> field getter, handle first
//	set-<field> field setter, handle first (absent for read-only fields)
//	<method>    method, handle first; statics take no handle
//	drop        releases the handle and runs the finalizer
//
// Member names cross in kebab-case. new0 always exists: it dispatches
// to the declared niladic constructor when present and otherwise
// produces the zero value.
//
// Binding is explicit:
//
//	rt := wazero.NewRuntime(ctx)
//	b := wasm.NewBinder(rt)
//	defer b.Close(ctx)
//
//	_, err := b.Bind(ctx, mirror.NewClass[Point]("point",
//		mirror.WithConstructor(NewPoint)))
//
// Guest modules instantiated on the same runtime after Bind resolve
// the exports as imports from "mirror:class/<name>".
//
// # Value mapping
//
// Values cross as canonical ABI flat words. Scalar widths follow the
// declared Go type, not the host word size. Strings, slices, arrays
// and maps cross as pointer and length pairs with the payload in guest
// linear memory; maps travel as a list of key-value pairs in no
// particular order. Pointers cross as a discriminant word followed by
// the payload words, with nil carrying discriminant zero. Structs
// concatenate their exported fields in declaration order.
//
// Host-to-guest payloads are placed in guest memory through the
// guest's exported cabi_realloc. Results return as multi-value flat
// words, never through a return pointer. A member whose parameters or
// results flatten to more than MaxFlatParams words fails at Bind, as
// does any shape that recurses through a pointer.
//
// # Lifecycle
//
// Constructors insert the new instance into a handle table and return
// the handle. drop finalizes and releases it; a second drop, or any
// call on a dropped handle, fails the guest call. Wrap places an
// existing host value under guest control, owning or as a view. Close
// closes every host module and finalizes leftover owned instances.
//
// # Threading
//
// A Binder serializes guest-triggered calls internally, so exports may
// be invoked from any goroutine wazero dispatches on. Memory and
// cabi_realloc are taken from the calling module on each invocation.
package wasm
