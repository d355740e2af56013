package bind

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/mirror/convert"
	"github.com/wippyai/mirror/descriptor"
	"github.com/wippyai/mirror/errors"
)

// Converter turns host values into one target runtime's native value type
// and back, dispatching on compiled classification specs. Implementations
// are stateless with respect to instances; any runtime state they hold
// (a VM handle, guest memory) belongs to the binder that created them.
type Converter[V any] interface {
	// ToTarget converts the host value v under spec s.
	ToTarget(s *convert.Spec, v reflect.Value) (V, error)

	// FromTarget converts val into the addressable host value dst under
	// spec s. A shape or type mismatch returns a conversion failure and
	// leaves dst untouched or fully overwritten, never partially torn.
	FromTarget(s *convert.Spec, val V, dst reflect.Value) error
}

// FieldBinding exposes one field. Get and Set are generated once with the
// field's conversion spec bound in; Set is nil for read-only fields.
type FieldBinding[V any] struct {
	Name string
	Get  func(recv reflect.Value) (V, error)
	Set  func(recv reflect.Value, val V) error
}

// MethodBinding exposes one callable under its post-disambiguation
// exported name. Invoke converts arguments positionally, calls the host
// function, and converts the result. For statics recv is ignored.
type MethodBinding[V any] struct {
	Name      string
	Static    bool
	Arity     int
	HasResult bool
	Invoke    func(recv reflect.Value, args []V) (V, error)
}

// Table is the generated binding surface for one class, parametrized over
// the target's native value type. It holds no target runtime state; the
// consuming adapter routes every property access and call through it.
type Table[V any] struct {
	Class   *descriptor.Class
	Fields  []FieldBinding[V]
	Methods []MethodBinding[V]
	Statics []MethodBinding[V]

	// Finalizer runs the declared cleanup for an owned instance.
	// Nil when the class declares none.
	Finalizer func(recv reflect.Value)

	conv      Converter[V]
	fieldIdx  map[string]int
	methodIdx map[string]int
	staticIdx map[string]int
}

// Build generates the binding table for d. Every getter, setter, and
// invoker closure is created here, once per member, with its conversion
// spec captured; calls through the table never re-derive structure.
func Build[V any](d *descriptor.Class, conv Converter[V]) (*Table[V], error) {
	t := &Table[V]{
		Class:     d,
		conv:      conv,
		fieldIdx:  make(map[string]int, len(d.Fields)),
		methodIdx: make(map[string]int, len(d.Methods)),
		staticIdx: make(map[string]int, len(d.Statics)),
	}

	for i, f := range d.Fields {
		t.Fields = append(t.Fields, t.bindField(f))
		t.fieldIdx[f.Name] = i
	}

	names, err := ExportedNames(d.Name, d.Methods)
	if err != nil {
		return nil, err
	}
	for i, m := range d.Methods {
		t.Methods = append(t.Methods, t.bindMethod(names[i], m))
		t.methodIdx[names[i]] = i
	}

	staticNames, err := ExportedNames(d.Name, d.Statics)
	if err != nil {
		return nil, err
	}
	for i, m := range d.Statics {
		t.Statics = append(t.Statics, t.bindMethod(staticNames[i], m))
		t.staticIdx[staticNames[i]] = i
	}

	if d.Finalizer.IsValid() {
		fin := d.Finalizer
		t.Finalizer = func(recv reflect.Value) {
			fin.Call([]reflect.Value{recv})
		}
	}

	Logger().Debug("built binding table",
		zap.String("class", d.Name),
		zap.Int("fields", len(t.Fields)),
		zap.Int("methods", len(t.Methods)),
		zap.Int("statics", len(t.Statics)))

	return t, nil
}

// Field returns the binding for an exported field name, or nil.
func (t *Table[V]) Field(name string) *FieldBinding[V] {
	if i, ok := t.fieldIdx[name]; ok {
		return &t.Fields[i]
	}
	return nil
}

// Method returns the binding for an exported method name, or nil.
func (t *Table[V]) Method(name string) *MethodBinding[V] {
	if i, ok := t.methodIdx[name]; ok {
		return &t.Methods[i]
	}
	return nil
}

// Static returns the binding for an exported static name, or nil.
func (t *Table[V]) Static(name string) *MethodBinding[V] {
	if i, ok := t.staticIdx[name]; ok {
		return &t.Statics[i]
	}
	return nil
}

func (t *Table[V]) bindField(f descriptor.Field) FieldBinding[V] {
	conv := t.conv
	idx := f.Index
	spec := f.Spec

	b := FieldBinding[V]{
		Name: f.Name,
		Get: func(recv reflect.Value) (V, error) {
			return conv.ToTarget(spec, recv.Elem().FieldByIndex(idx))
		},
	}
	if !f.ReadOnly {
		b.Set = func(recv reflect.Value, val V) error {
			return conv.FromTarget(spec, val, recv.Elem().FieldByIndex(idx))
		}
	}
	return b
}

func (t *Table[V]) bindMethod(name string, m descriptor.Method) MethodBinding[V] {
	conv := t.conv
	class := t.Class.Name
	fn := m.Func
	params := m.Params
	result := m.Result
	returnsErr := m.ReturnsErr
	static := m.Static

	invoke := func(recv reflect.Value, args []V) (V, error) {
		var zero V
		if len(args) != len(params) {
			return zero, errors.New(errors.PhaseInvoke, errors.KindConversion).
				Class(class).
				Path(name).
				Detail("got %d arguments, want %d", len(args), len(params)).
				Build()
		}

		in := make([]reflect.Value, 0, len(params)+1)
		if !static {
			in = append(in, recv)
		}
		for i, p := range params {
			pv := reflect.New(p.GoType).Elem()
			if err := conv.FromTarget(p, args[i], pv); err != nil {
				return zero, err
			}
			in = append(in, pv)
		}

		out := fn.Call(in)

		if returnsErr {
			if errv := out[len(out)-1]; !errv.IsNil() {
				return zero, errv.Interface().(error)
			}
		}
		if result != nil {
			return conv.ToTarget(result, out[0])
		}
		return zero, nil
	}

	return MethodBinding[V]{
		Name:      name,
		Static:    static,
		Arity:     len(params),
		HasResult: result != nil,
		Invoke:    invoke,
	}
}
