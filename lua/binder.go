package lua

import (
	"reflect"

	glua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/mirror"
	"github.com/wippyai/mirror/bind"
	"github.com/wippyai/mirror/descriptor"
	"github.com/wippyai/mirror/errors"
	"github.com/wippyai/mirror/registry"
	"github.com/wippyai/mirror/wrapper"
)

// instance is what a wrapped userdata's Value holds.
type instance struct {
	rec    *wrapper.Record
	handle wrapper.Handle
}

// TypeHandle is the opaque result of binding one class. Rebinding the
// same class returns the same handle.
type TypeHandle struct {
	Name string

	desc  *descriptor.Class
	table *bind.Table[glua.LValue]
	mt    *glua.LTable
}

// Descriptor returns the bound class's structural descriptor.
func (h *TypeHandle) Descriptor() *descriptor.Class {
	return h.desc
}

// Binder registers classes into one Lua state. It is not safe for
// concurrent use; gopher-lua serializes everything through its LState
// and the binder follows that contract.
type Binder struct {
	L        *glua.LState
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

// NewBinder creates a binder over an existing Lua state.
func NewBinder(L *glua.LState, opts ...Option) *Binder {
	b := &Binder{
		L:       L,
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
// registers the class into the Lua state: a global table named after the
// class carrying `new` plus statics, and a metatable routing instance
// field and method access. Bind is idempotent for the same class;
// binding a different class under a taken name fails with a
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

	tbl, err := bind.Build[glua.LValue](d, &converter{L: b.L})
	if err != nil {
		return nil, err
	}

	// free is the explicit finalization entry on every instance.
	if tbl.Method("free") != nil || tbl.Field("free") != nil {
		return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			Class(d.Name).
			Detail("member name %q is reserved for finalization", "free").
			Build()
	}

	h := &TypeHandle{
		Name:  d.Name,
		desc:  d,
		table: tbl,
	}

	b.installMetatable(h)
	b.installClassTable(h)
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
// constructing it from Lua. When owning is false the wrapper is a view:
// freeing it never releases the host instance.
func (b *Binder) Wrap(name string, hostPtr any, owning bool) (glua.LValue, error) {
	h, ok := b.handles[name]
	if !ok {
		return glua.LNil, errors.NotFound(errors.PhaseRegister, "class", name)
	}

	rv := reflect.ValueOf(hostPtr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Type().Elem() != h.desc.GoType {
		return glua.LNil, errors.InvalidInput(errors.PhaseInstance, "wrap requires a non-nil *"+h.desc.GoType.Name())
	}

	return b.newInstance(h, rv, owning)
}

// Close finalizes every live instance the binder created. Instances
// freed from Lua are already gone; everything else is swept here. Call
// before closing the Lua state.
func (b *Binder) Close() error {
	return b.records.Close()
}

func (b *Binder) newInstance(h *TypeHandle, recv reflect.Value, owning bool) (glua.LValue, error) {
	rec, err := wrapper.Bound(h.Name, recv, owning, h.table.Finalizer)
	if err != nil {
		return glua.LNil, err
	}

	ud := b.L.NewUserData()
	ud.Value = &instance{rec: rec, handle: b.records.Insert(rec)}
	b.L.SetMetatable(ud, h.mt)
	return ud, nil
}

// installMetatable builds the shared instance metatable: __index serves
// fields then methods, __newindex writes fields. Method functions are
// created once and served from a methods table, not per access.
func (b *Binder) installMetatable(h *TypeHandle) {
	L := b.L

	methods := L.NewTable()
	for i := range h.table.Methods {
		mb := &h.table.Methods[i]
		methods.RawSetString(mb.Name, L.NewFunction(b.methodFn(h, mb)))
	}
	methods.RawSetString("free", L.NewFunction(b.freeFn(h)))

	mt := L.NewTypeMetatable(h.Name)
	mt.RawSetString("__index", L.NewFunction(b.indexFn(h, methods)))
	mt.RawSetString("__newindex", L.NewFunction(b.newindexFn(h)))

	h.mt = mt
}

// installClassTable publishes the class global: new plus statics.
func (b *Binder) installClassTable(h *TypeHandle) {
	L := b.L

	cls := L.NewTable()
	cls.RawSetString("new", L.NewFunction(b.newFn(h)))
	for i := range h.table.Statics {
		sb := &h.table.Statics[i]
		cls.RawSetString(sb.Name, L.NewFunction(b.staticFn(sb)))
	}
	L.SetGlobal(h.Name, cls)
}

func (b *Binder) newFn(h *TypeHandle) glua.LGFunction {
	return func(L *glua.LState) int {
		args := make([]glua.LValue, L.GetTop())
		for i := range args {
			args[i] = L.Get(i + 1)
		}

		recv, err := h.table.New(args)
		if err != nil {
			L.RaiseError("%v", err)
			return 0
		}

		ud, err := b.newInstance(h, recv, true)
		if err != nil {
			L.RaiseError("%v", err)
			return 0
		}
		L.Push(ud)
		return 1
	}
}

func (b *Binder) indexFn(h *TypeHandle, methods *glua.LTable) glua.LGFunction {
	return func(L *glua.LState) int {
		ud := L.CheckUserData(1)
		key := L.CheckString(2)

		if fb := h.table.Field(key); fb != nil {
			recv := b.checkRecv(L, ud, h)
			v, err := fb.Get(recv)
			if err != nil {
				L.RaiseError("%v", err)
				return 0
			}
			L.Push(v)
			return 1
		}

		L.Push(methods.RawGetString(key))
		return 1
	}
}

func (b *Binder) newindexFn(h *TypeHandle) glua.LGFunction {
	return func(L *glua.LState) int {
		ud := L.CheckUserData(1)
		key := L.CheckString(2)

		fb := h.table.Field(key)
		if fb == nil {
			L.RaiseError("%s has no field %q", h.Name, key)
			return 0
		}
		if fb.Set == nil {
			L.RaiseError("%s.%s is read-only", h.Name, key)
			return 0
		}

		recv := b.checkRecv(L, ud, h)
		if err := fb.Set(recv, L.Get(3)); err != nil {
			L.RaiseError("%v", err)
		}
		return 0
	}
}

func (b *Binder) methodFn(h *TypeHandle, mb *bind.MethodBinding[glua.LValue]) glua.LGFunction {
	return func(L *glua.LState) int {
		ud := L.CheckUserData(1)
		recv := b.checkRecv(L, ud, h)

		args := make([]glua.LValue, L.GetTop()-1)
		for i := range args {
			args[i] = L.Get(i + 2)
		}

		result, err := mb.Invoke(recv, args)
		if err != nil {
			L.RaiseError("%v", err)
			return 0
		}
		if !mb.HasResult {
			return 0
		}
		L.Push(result)
		return 1
	}
}

func (b *Binder) staticFn(sb *bind.MethodBinding[glua.LValue]) glua.LGFunction {
	return func(L *glua.LState) int {
		args := make([]glua.LValue, L.GetTop())
		for i := range args {
			args[i] = L.Get(i + 1)
		}

		result, err := sb.Invoke(reflect.Value{}, args)
		if err != nil {
			L.RaiseError("%v", err)
			return 0
		}
		if !sb.HasResult {
			return 0
		}
		L.Push(result)
		return 1
	}
}

func (b *Binder) freeFn(h *TypeHandle) glua.LGFunction {
	return func(L *glua.LState) int {
		ud := L.CheckUserData(1)
		inst := b.checkInstance(L, ud, h)

		// Finalize before detaching: on a second free the record is
		// already finalized and the handle may have been recycled, so
		// the error must surface before the table is touched.
		if err := inst.rec.Finalize(); err != nil {
			L.RaiseError("%v", err)
		}
		b.records.Remove(inst.handle)
		return 0
	}
}

// checkInstance validates that the userdata wraps an instance of h's
// class. Raises a Lua error otherwise; does not touch lifecycle state.
func (b *Binder) checkInstance(L *glua.LState, ud *glua.LUserData, h *TypeHandle) *instance {
	inst, ok := ud.Value.(*instance)
	if !ok || inst.rec.Class() != h.Name {
		L.ArgError(1, "expected "+h.Name+" instance")
		return nil
	}
	return inst
}

// checkRecv validates the userdata and that its record is still live,
// returning the host instance pointer. Raises a Lua error on misuse.
func (b *Binder) checkRecv(L *glua.LState, ud *glua.LUserData, h *TypeHandle) reflect.Value {
	inst := b.checkInstance(L, ud, h)

	recv, err := inst.rec.Recv()
	if err != nil {
		L.RaiseError("%v", err)
		return reflect.Value{}
	}
	return recv
}
