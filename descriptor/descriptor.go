package descriptor

import (
	"reflect"

	"github.com/wippyai/mirror/convert"
)

// Field is one discoverable read/write field of a bound class.
type Field = convert.Field

// Method is one callable member. Instance methods and declared overload
// variants take *T as their first argument; statics take no receiver.
// Methods sharing a BaseName form an overload group.
type Method struct {
	BaseName   string
	Func       reflect.Value
	Params     []*convert.Spec
	Result     *convert.Spec
	ReturnsErr bool
	Static     bool
}

// Constructor is one declared instance producer with at least one
// parameter. Zero-argument construction is the niladic fast path.
type Constructor struct {
	Func       reflect.Value
	Params     []*convert.Spec
	RetPtr     bool
	ReturnsErr bool
}

// Class is the immutable structural description of one bound class:
// ordered fields, ordered methods, ordered constructors, and the
// deterministic signature derived from them. Built exactly once per
// declaration.
type Class struct {
	Name    string
	GoType  reflect.Type
	Fields  []Field
	Methods []Method
	Statics []Method

	// Constructors hold declared producers with >= 1 parameter, in
	// declaration order. Niladic is the zero-argument fast path; when
	// nil, zero-argument construction allocates the zero value.
	Constructors []Constructor
	Niladic      *Constructor

	// Finalizer, when valid, is func(*T) run before an owned instance
	// is released.
	Finalizer reflect.Value

	// Signature is the deterministic structural signature; Hash is the
	// hex SHA-256 of its canonical serialization.
	Signature string
	Hash      string
}

// FieldCount returns the number of discoverable fields.
func (c *Class) FieldCount() int { return len(c.Fields) }

// FieldAt returns the field at index i.
func (c *Class) FieldAt(i int) Field { return c.Fields[i] }

// MethodCount returns the number of instance methods.
func (c *Class) MethodCount() int { return len(c.Methods) }

// MethodAt returns the instance method at index i.
func (c *Class) MethodAt(i int) Method { return c.Methods[i] }

// StaticCount returns the number of static functions.
func (c *Class) StaticCount() int { return len(c.Statics) }

// StaticAt returns the static function at index i.
func (c *Class) StaticAt(i int) Method { return c.Statics[i] }

// ConstructorCount returns the number of declared constructors with
// parameters.
func (c *Class) ConstructorCount() int { return len(c.Constructors) }

// ConstructorAt returns the constructor at index i.
func (c *Class) ConstructorAt(i int) Constructor { return c.Constructors[i] }
