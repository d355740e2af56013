package js

import (
	"reflect"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/mirror"
	"github.com/wippyai/mirror/bind"
	"github.com/wippyai/mirror/descriptor"
	"github.com/wippyai/mirror/errors"
	"github.com/wippyai/mirror/registry"
	"github.com/wippyai/mirror/wrapper"
)

// recordSymbol keys the wrapper record on instance objects. Scripts
// cannot reach it: the symbol never leaves this package.
var recordSymbol = goja.NewSymbol("mirror.record")

// instance is what an instance object carries under recordSymbol.
type instance struct {
	rec    *wrapper.Record
	handle wrapper.Handle
}

// instanceOf returns the instance behind a wrapped object, or nil.
func instanceOf(obj *goja.Object) *instance {
	v := obj.GetSymbol(recordSymbol)
	if v == nil || goja.IsUndefined(v) {
		return nil
	}
	inst, _ := v.Export().(*instance)
	return inst
}

// TypeHandle is the opaque result of binding one class. Rebinding the
// same class returns the same handle.
type TypeHandle struct {
	Name string

	desc  *descriptor.Class
	table *bind.Table[goja.Value]
	ctor  *goja.Object
	proto *goja.Object
}

// Descriptor returns the bound class's structural descriptor.
func (h *TypeHandle) Descriptor() *descriptor.Class {
	return h.desc
}

// Constructor returns the JS constructor function object.
func (h *TypeHandle) Constructor() *goja.Object {
	return h.ctor
}

// Binder registers classes into one goja runtime. It is not safe for
// concurrent use; goja serializes everything through its Runtime and
// the binder follows that contract.
type Binder struct {
	vm       *goja.Runtime
	cache    *descriptor.Cache
	registry *registry.Registry
	handles  map[string]*TypeHandle
	records  *wrapper.Table
}

// Option configures a Binder.
type Option func(*Binder)

// WithCache shares a descriptor cache across binders.
func WithCache(c *descriptor.Cache) Option {
	return func(b *Binder) { b.cache = c }
}

// WithRegistry records structural signatures on every bind, so external
// tooling can detect classes whose shape changed between generations.
func WithRegistry(r *registry.Registry) Option {
	return func(b *Binder) { b.registry = r }
}

// NewBinder creates a binder over an existing goja runtime.
func NewBinder(vm *goja.Runtime, opts ...Option) *Binder {
	b := &Binder{
		vm:      vm,
		handles: make(map[string]*TypeHandle),
		records: wrapper.NewTable(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.cache == nil {
		b.cache = descriptor.NewCache()
	}
	return b
}

// Bind discovers the class structure, generates its binding table, and
// registers the class as a global constructor function: fields become
// accessor properties on the prototype, methods become prototype
// functions, statics hang off the constructor. Bind is idempotent for
// the same class; a different class under a taken name fails with a
// registration conflict.
func (b *Binder) Bind(class *mirror.Class) (*TypeHandle, error) {
	if class == nil {
		return nil, errors.InvalidInput(errors.PhaseRegister, "class must not be nil")
	}

	if h, ok := b.handles[class.Name]; ok {
		if h.desc.GoType == class.Type {
			return h, nil
		}
		return nil, errors.Conflict(class.Name, class.Type.String())
	}

	d, err := b.cache.Describe(class)
	if err != nil {
		return nil, err
	}

	tbl, err := bind.Build[goja.Value](d, &converter{vm: b.vm})
	if err != nil {
		return nil, err
	}

	// dispose is the explicit finalization entry on every instance.
	if tbl.Method("dispose") != nil || tbl.Field("dispose") != nil {
		return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			Class(d.Name).
			Detail("member name %q is reserved for finalization", "dispose").
			Build()
	}

	h := &TypeHandle{
		Name:  d.Name,
		desc:  d,
		table: tbl,
	}

	if err := b.installConstructor(h); err != nil {
		return nil, err
	}
	b.handles[d.Name] = h

	if b.registry != nil {
		if changed := b.registry.Update(d.Name, d.Hash); changed {
			Logger().Debug("class signature changed",
				zap.String("class", d.Name),
				zap.String("hash", d.Hash))
		}
	}

	Logger().Info("bound class",
		zap.String("class", d.Name),
		zap.Int("fields", len(tbl.Fields)),
		zap.Int("methods", len(tbl.Methods)),
		zap.Int("statics", len(tbl.Statics)))

	return h, nil
}

// Lookup returns the handle for a bound class name.
func (b *Binder) Lookup(name string) (*TypeHandle, bool) {
	h, ok := b.handles[name]
	return h, ok
}

// Wrap exposes an existing host instance under a bound class without
// constructing it from JS. When owning is false the wrapper is a view:
// disposing it never releases the host instance.
func (b *Binder) Wrap(name string, hostPtr any, owning bool) (goja.Value, error) {
	h, ok := b.handles[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseRegister, "class", name)
	}

	rv := reflect.ValueOf(hostPtr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Type().Elem() != h.desc.GoType {
		return nil, errors.InvalidInput(errors.PhaseInstance, "wrap requires a non-nil *"+h.desc.GoType.Name())
	}

	rec, err := wrapper.Bound(h.Name, rv, owning, h.table.Finalizer)
	if err != nil {
		return nil, err
	}

	obj := b.vm.CreateObject(h.proto)
	b.attach(obj, rec)
	return obj, nil
}

// Close finalizes every live instance the binder created. Instances
// disposed from JS are already gone; everything else is swept here.
func (b *Binder) Close() error {
	return b.records.Close()
}

func (b *Binder) attach(obj *goja.Object, rec *wrapper.Record) {
	_ = obj.SetSymbol(recordSymbol, b.vm.ToValue(&instance{
		rec:    rec,
		handle: b.records.Insert(rec),
	}))
}

func (b *Binder) installConstructor(h *TypeHandle) error {
	ctor := b.vm.ToValue(b.ctorFn(h)).(*goja.Object)

	protoVal := ctor.Get("prototype")
	if protoVal == nil {
		return errors.InvalidInput(errors.PhaseRegister, "constructor has no prototype")
	}
	proto := protoVal.(*goja.Object)

	h.ctor = ctor
	h.proto = proto

	for i := range h.table.Fields {
		fb := &h.table.Fields[i]
		if err := proto.DefineAccessorProperty(fb.Name,
			b.vm.ToValue(b.getterFn(h, fb)),
			b.vm.ToValue(b.setterFn(h, fb)),
			goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "defining field accessor")
		}
	}

	for i := range h.table.Methods {
		mb := &h.table.Methods[i]
		if err := proto.Set(mb.Name, b.vm.ToValue(b.methodFn(h, mb))); err != nil {
			return errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "defining method")
		}
	}
	if err := proto.Set("dispose", b.vm.ToValue(b.disposeFn(h))); err != nil {
		return errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "defining dispose")
	}

	for i := range h.table.Statics {
		sb := &h.table.Statics[i]
		if err := ctor.Set(sb.Name, b.vm.ToValue(b.staticFn(sb))); err != nil {
			return errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "defining static")
		}
	}

	return b.vm.Set(h.Name, ctor)
}

func (b *Binder) ctorFn(h *TypeHandle) func(goja.ConstructorCall) *goja.Object {
	return func(call goja.ConstructorCall) *goja.Object {
		recv, err := h.table.New(call.Arguments)
		if err != nil {
			b.throw(err)
		}

		rec, err := wrapper.Bound(h.Name, recv, true, h.table.Finalizer)
		if err != nil {
			b.throw(err)
		}

		b.attach(call.This, rec)
		return nil
	}
}

func (b *Binder) getterFn(h *TypeHandle, fb *bind.FieldBinding[goja.Value]) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		recv := b.checkRecv(call.This, h)
		v, err := fb.Get(recv)
		if err != nil {
			b.throw(err)
		}
		return v
	}
}

func (b *Binder) setterFn(h *TypeHandle, fb *bind.FieldBinding[goja.Value]) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if fb.Set == nil {
			panic(b.vm.NewTypeError("%s.%s is read-only", h.Name, fb.Name))
		}
		recv := b.checkRecv(call.This, h)
		if err := fb.Set(recv, call.Argument(0)); err != nil {
			b.throw(err)
		}
		return goja.Undefined()
	}
}

func (b *Binder) methodFn(h *TypeHandle, mb *bind.MethodBinding[goja.Value]) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		recv := b.checkRecv(call.This, h)

		result, err := mb.Invoke(recv, call.Arguments)
		if err != nil {
			b.throw(err)
		}
		if !mb.HasResult {
			return goja.Undefined()
		}
		return result
	}
}

func (b *Binder) staticFn(sb *bind.MethodBinding[goja.Value]) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		result, err := sb.Invoke(reflect.Value{}, call.Arguments)
		if err != nil {
			b.throw(err)
		}
		if !sb.HasResult {
			return goja.Undefined()
		}
		return result
	}
}

func (b *Binder) disposeFn(h *TypeHandle) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		inst := b.checkInstance(call.This, h)

		// Finalize before detaching: on a second dispose the record is
		// already finalized and the handle may have been recycled, so
		// the error must surface before the table is touched.
		if err := inst.rec.Finalize(); err != nil {
			b.throw(err)
		}
		b.records.Remove(inst.handle)
		return goja.Undefined()
	}
}

// checkInstance validates that this wraps an instance of h's class.
// Throws a TypeError otherwise; does not touch lifecycle state.
func (b *Binder) checkInstance(this goja.Value, h *TypeHandle) *instance {
	var inst *instance
	if obj, ok := this.(*goja.Object); ok {
		inst = instanceOf(obj)
	}
	if inst == nil || inst.rec.Class() != h.Name {
		panic(b.vm.NewTypeError("not a %s instance", h.Name))
	}
	return inst
}

// checkRecv validates this and that its record is still live, returning
// the host instance pointer. Throws on misuse.
func (b *Binder) checkRecv(this goja.Value, h *TypeHandle) reflect.Value {
	inst := b.checkInstance(this, h)

	recv, err := inst.rec.Recv()
	if err != nil {
		b.throw(err)
	}
	return recv
}

// throw surfaces a pipeline error as a JS exception.
func (b *Binder) throw(err error) {
	panic(b.vm.NewGoError(err))
}
