// Package mirror exposes Go struct types to embedded dynamic runtimes.
//
// Given a class declaration naming a Go struct, the library discovers its
// fields and methods once, classifies every member type, generates a
// binding table of getters, setters, method invokers, and a constructor
// dispatcher, and registers that table with a target runtime's live object
// model. No per-member glue code is written by hand.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	mirror/              Root package with the Class declaration
//	├── descriptor/      One-time structural discovery and signatures
//	├── convert/         Type classification into conversion categories
//	├── bind/            Binding table generation, overload and
//	│                    constructor resolution
//	├── wrapper/         Instance records with ownership semantics
//	├── registry/        Structural signatures for change detection
//	├── errors/          Structured error types for debugging
//	├── lua/             Lua target adapter (gopher-lua)
//	├── js/              JavaScript target adapter (goja)
//	└── wasm/            WebAssembly target adapter (wazero) and WIT export
//
// # Quick Start
//
// Declare a class and bind it into a Lua state:
//
//	type Point struct {
//	    X float64
//	    Y float64
//	}
//
//	class := mirror.NewClass[Point]("point")
//
//	L := glua.NewState()
//	defer L.Close()
//
//	binder := lua.NewBinder(L)
//	if _, err := binder.Bind(class); err != nil {
//	    log.Fatal(err)
//	}
//
//	L.DoString(`
//	    local p = point.new()
//	    p.x = 3.0
//	    print(p.x)
//	`)
//
// # Declarations
//
// Fields and methods are discovered through reflection. Constructors,
// static functions, and overload sets have no reflective representation in
// Go, so they are declared:
//
//	class := mirror.NewClass[Rectangle]("rectangle",
//	    mirror.WithConstructor(NewRectangle),
//	    mirror.WithStatic("unit", UnitRectangle),
//	    mirror.WithOverloads("print",
//	        (*Printer).PrintInt,
//	        (*Printer).PrintFloat,
//	    ),
//	)
//
// # Ownership
//
// Every live instance is tracked by a wrapper record carrying an owning
// flag fixed at creation. Instances constructed from the target side own
// their host value and free it on finalization; instances wrapped around
// externally-owned host values never free shared state.
//
// # Thread Safety
//
// Class declarations and descriptors are immutable after construction and
// safe to share. A bound target runtime follows its own threading contract:
// Lua states, goja runtimes, and wasm instances each serialize calls on a
// single goroutine.
package mirror
