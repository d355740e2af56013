// Package js binds mirror classes into a goja JavaScript runtime.
//
// Each bound class becomes a global constructor function. Fields are
// accessor properties on the prototype, methods are prototype
// functions, and statics hang off the constructor itself. Member names
// use snake_case, matching the other targets:
//
//	vm := goja.New()
//	b := js.NewBinder(vm)
//	defer b.Close()
//
//	_, err := b.Bind(mirror.NewClass[Point]("point",
//		mirror.WithConstructor(NewPoint)))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	_, err = vm.RunString(`
//		let p = new point(3, 4);
//		let len = p.length();
//		p.dispose();
//	`)
//
// # Value mapping
//
// Scalars map to JS primitives. Assigning a fractional, NaN, infinite,
// or out-of-range number to an integer field fails with a conversion
// error rather than truncating. Slices and arrays cross as JS arrays,
// maps and nested structs as plain objects; both directions copy, so
// mutating a crossed array never touches the host value. A bound
// instance passed where the host signature takes a pointer shares the
// instance; where it takes a value, the pointee is copied.
//
// Instance objects keep their record under a private symbol, so
// Object.keys and JSON.stringify see only what scripts put there.
// Writes to unknown properties follow normal JS semantics and land on
// the instance object itself, not on the host value.
//
// # Lifecycle
//
// goja exposes no GC hook for host objects, so release is explicit:
// every instance carries a dispose() method. Disposing a constructed
// instance runs the class finalizer; disposing a view created with
// Wrap(name, ptr, false) only detaches it. Any use after dispose
// throws. Binder.Close finalizes whatever scripts left behind.
//
// # Threading
//
// A Binder is tied to one goja.Runtime and inherits its threading
// contract: one goroutine at a time.
package js
