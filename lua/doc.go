// Package lua exposes bound classes to a gopher-lua state.
//
// A bound class appears as a global table named after the class. The
// table carries `new` for construction plus any declared statics;
// instances are userdata whose metatable routes field and method access
// through the generated binding table.
//
//	L := glua.NewState() // glua "github.com/yuin/gopher-lua"
//	defer L.Close()
//
//	b := lua.NewBinder(L)
//	defer b.Close()
//
//	b.Bind(mirror.NewClass[Point]("point"))
//
//	L.DoString(`
//	    local p = point.new()
//	    p.x = 3
//	    p.y = 4
//	    print(p:length())
//	    p:free()
//	`)
//
// # Value mapping
//
// Lua numbers are float64. Integer fields and parameters accept only
// integral numbers in range; fractions and overflow are conversion
// errors raised as Lua errors. Slices, arrays, and maps cross as tables
// by value; struct-typed fields cross as plain tables keyed by exported
// field name. Passing a bound instance where the host expects a pointer
// shares the instance; where the host expects a struct value, it copies.
//
// # Lifecycle
//
// gopher-lua does not run __gc metamethods, so finalization is explicit:
// every instance has a free() method, and Binder.Close sweeps instances
// never freed. Instances built by `new` own their host value and release
// it on free; wrappers created with Binder.Wrap(..., owning=false) are
// views and never release shared state. Using an instance after free
// raises an invalid-instance error.
//
// # Threading
//
// A Binder belongs to one LState and inherits its single-threaded
// contract.
package lua
