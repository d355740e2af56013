package mirror

import "reflect"

// Class declares one Go struct type for binding. Fields and methods are
// discovered through reflection; members Go reflection cannot see
// (constructors, static functions, overload variants) are declared through
// options. A Class is inert until handed to a target binder.
type Class struct {
	// Name is the exported class name in the target runtime.
	Name string

	// Type is the Go struct type being bound.
	Type reflect.Type

	// Constructors are functions producing instances, in declaration
	// order. Each must return T or *T, optionally with a trailing error.
	Constructors []any

	// Statics are named functions exported without an instance.
	Statics []Member

	// Overloads are instance method variants sharing a base name. Each
	// function takes *T as its first parameter.
	Overloads []Member

	// Methods, when non-nil, restricts discovery to the named Go methods.
	Methods []string

	// Renames maps discovered Go method names to replacement exported
	// base names.
	Renames map[string]string

	// Finalizer, when set, runs before an owned instance is released.
	// Must be func(*T).
	Finalizer any
}

// Member pairs an exported base name with a declared function.
type Member struct {
	Name string
	Fn   any
}

// Option configures a Class declaration.
type Option func(*Class)

// NewClass declares the struct type T under the given exported name.
// Validation happens at bind time, not declaration time.
func NewClass[T any](name string, opts ...Option) *Class {
	c := &Class{
		Name: name,
		Type: reflect.TypeOf((*T)(nil)).Elem(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithConstructor declares a constructor. Constructors are enumerated in
// declaration order; dispatch selects the first whose parameter count
// matches the supplied argument count.
func WithConstructor(fn any) Option {
	return func(c *Class) {
		c.Constructors = append(c.Constructors, fn)
	}
}

// WithStatic declares a static function exported under name.
// Declaring several statics under one name forms an overload group.
func WithStatic(name string, fn any) Option {
	return func(c *Class) {
		c.Statics = append(c.Statics, Member{Name: name, Fn: fn})
	}
}

// WithOverloads declares instance method variants sharing a base name.
// Each variant takes *T as its first parameter.
func WithOverloads(name string, fns ...any) Option {
	return func(c *Class) {
		for _, fn := range fns {
			c.Overloads = append(c.Overloads, Member{Name: name, Fn: fn})
		}
	}
}

// WithMethods restricts method discovery to the named Go methods.
// Without it, every exported method of *T is discovered; with no names,
// nothing is.
func WithMethods(names ...string) Option {
	return func(c *Class) {
		if c.Methods == nil {
			c.Methods = []string{}
		}
		c.Methods = append(c.Methods, names...)
	}
}

// WithRename exports the discovered Go method goName under base instead
// of its snake_case rendering. Statics and overloads carry their names
// explicitly and are not affected.
func WithRename(goName, base string) Option {
	return func(c *Class) {
		if c.Renames == nil {
			c.Renames = make(map[string]string)
		}
		c.Renames[goName] = base
	}
}

// WithFinalizer declares a cleanup function run before an owned instance
// is released.
func WithFinalizer(fn any) Option {
	return func(c *Class) {
		c.Finalizer = fn
	}
}
