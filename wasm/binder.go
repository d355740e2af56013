package wasm

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/mirror"
	"github.com/wippyai/mirror/bind"
	"github.com/wippyai/mirror/convert"
	"github.com/wippyai/mirror/descriptor"
	"github.com/wippyai/mirror/errors"
	"github.com/wippyai/mirror/registry"
	"github.com/wippyai/mirror/wrapper"
)

// HostModulePrefix namespaces the per-class host modules. A class named
// point is instantiated as module "mirror:class/point".
const HostModulePrefix = "mirror:class/"

// TypeHandle is the opaque result of binding one class. Rebinding the
// same class returns the same handle.
type TypeHandle struct {
	Name string

	desc  *descriptor.Class
	table *bind.Table[[]uint64]
	mod   api.Module
}

// Descriptor returns the bound class's structural descriptor.
func (h *TypeHandle) Descriptor() *descriptor.Class {
	return h.desc
}

// Module returns the instantiated host module backing the class.
func (h *TypeHandle) Module() api.Module {
	return h.mod
}

// Binder registers classes as wazero host modules. Each bound class
// becomes one module whose exports construct, read, mutate, invoke, and
// drop instances addressed by uint32 handles. Invocations are serialized
// under an internal lock, so one binder can serve one guest at a time.
type Binder struct {
	rt       wazero.Runtime
	cache    *descriptor.Cache
	registry *registry.Registry
	handles  map[string]*TypeHandle
	records  *wrapper.Table
	conv     *converter

	callMu sync.Mutex
	env    callEnv
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

// NewBinder creates a binder over an existing wazero runtime.
func NewBinder(rt wazero.Runtime, opts ...Option) *Binder {
	b := &Binder{
		rt:      rt,
		handles: make(map[string]*TypeHandle),
		records: wrapper.NewTable(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.cache == nil {
		b.cache = descriptor.NewCache()
	}
	b.conv = &converter{env: &b.env}
	return b
}

// Bind discovers the class structure, generates its binding table, and
// instantiates the class's host module. Constructors export as
// new<arity> returning a handle, fields as get-<name> and set-<name>,
// methods and statics under their kebab-case names, and drop releases a
// handle. Bind is idempotent for the same class; a different class under
// a taken name fails with a registration conflict.
func (b *Binder) Bind(ctx context.Context, class *mirror.Class) (*TypeHandle, error) {
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

	tbl, err := bind.Build[[]uint64](d, b.conv)
	if err != nil {
		return nil, err
	}

	// drop is the handle release export on every class module.
	if tbl.Method("drop") != nil || tbl.Static("drop") != nil {
		return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			Class(d.Name).
			Detail("member name %q is reserved for finalization", "drop").
			Build()
	}

	h := &TypeHandle{Name: d.Name, desc: d, table: tbl}

	builder := b.rt.NewHostModuleBuilder(HostModulePrefix + d.Name)
	seen := make(map[string]bool)
	export := func(name string, params, results []api.ValueType, fn api.GoModuleFunc) error {
		if seen[name] {
			return errors.New(errors.PhaseRegister, errors.KindInvalidInput).
				Class(d.Name).
				Detail("export name %q already taken", name).
				Build()
		}
		seen[name] = true
		if len(params) > MaxFlatParams || len(results) > MaxFlatParams {
			return errors.New(errors.PhaseRegister, errors.KindInvalidInput).
				Class(d.Name).
				Detail("export %q flattens to more than %d words", name, MaxFlatParams).
				Build()
		}
		builder.NewFunctionBuilder().
			WithGoModuleFunction(fn, params, results).
			Export(name)
		return nil
	}

	handleResult := []api.ValueType{api.ValueTypeI32}

	seenArity := make(map[int]bool)
	for i := range d.Constructors {
		ct := &d.Constructors[i]
		arity := len(ct.Params)
		if seenArity[arity] {
			// Table.New dispatches to the first declared constructor
			// per arity; later duplicates are unreachable.
			continue
		}
		seenArity[arity] = true

		params, counts, err := flatSignature(ct.Params)
		if err != nil {
			return nil, signatureErr(d.Name, fmt.Sprintf("new%d", arity), err)
		}
		if err := export(fmt.Sprintf("new%d", arity), params, handleResult, b.ctorFn(h, counts)); err != nil {
			return nil, err
		}
	}
	if !seenArity[0] {
		// Zero arguments always construct: the declared niladic
		// constructor when present, the zero value otherwise.
		if err := export("new0", nil, handleResult, b.ctorFn(h, nil)); err != nil {
			return nil, err
		}
	}

	for i := range tbl.Fields {
		fb := &tbl.Fields[i]
		ft, err := flatTypes(d.Fields[i].Spec)
		if err != nil {
			return nil, signatureErr(d.Name, fb.Name, err)
		}
		name := kebab(fb.Name)
		if err := export("get-"+name, handleResult, ft, b.getterFn(h, fb)); err != nil {
			return nil, err
		}
		if fb.Set != nil {
			params := append([]api.ValueType{api.ValueTypeI32}, ft...)
			if err := export("set-"+name, params, nil, b.setterFn(h, fb)); err != nil {
				return nil, err
			}
		}
	}

	for i := range tbl.Methods {
		mb := &tbl.Methods[i]
		params, results, counts, err := methodSignature(&d.Methods[i])
		if err != nil {
			return nil, signatureErr(d.Name, mb.Name, err)
		}
		full := append([]api.ValueType{api.ValueTypeI32}, params...)
		if err := export(kebab(mb.Name), full, results, b.methodFn(h, mb, counts)); err != nil {
			return nil, err
		}
	}

	for i := range tbl.Statics {
		sb := &tbl.Statics[i]
		params, results, counts, err := methodSignature(&d.Statics[i])
		if err != nil {
			return nil, signatureErr(d.Name, sb.Name, err)
		}
		if err := export(kebab(sb.Name), params, results, b.staticFn(sb, counts)); err != nil {
			return nil, err
		}
	}

	if err := export("drop", handleResult, nil, b.dropFn(h)); err != nil {
		return nil, err
	}

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRegister, errors.KindConflict, err, "instantiating host module")
	}
	h.mod = mod
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
		zap.String("module", HostModulePrefix+d.Name),
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

// Wrap exposes an existing host instance under a bound class and returns
// its guest-facing handle. When owning is false the handle is a view:
// dropping it never releases the host instance.
func (b *Binder) Wrap(name string, hostPtr any, owning bool) (wrapper.Handle, error) {
	h, ok := b.handles[name]
	if !ok {
		return 0, errors.NotFound(errors.PhaseRegister, "class", name)
	}

	rv := reflect.ValueOf(hostPtr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Type().Elem() != h.desc.GoType {
		return 0, errors.InvalidInput(errors.PhaseInstance, "wrap requires a non-nil *"+h.desc.GoType.Name())
	}

	rec, err := wrapper.Bound(h.Name, rv, owning, h.table.Finalizer)
	if err != nil {
		return 0, err
	}
	return b.records.Insert(rec), nil
}

// Close closes every class host module and finalizes every live
// instance. Instances dropped by the guest are already gone; everything
// else is swept here.
func (b *Binder) Close(ctx context.Context) error {
	var firstErr error
	for _, h := range b.handles {
		if h.mod == nil {
			continue
		}
		if err := h.mod.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := b.records.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// enter installs the calling guest's memory view for one invocation.
// Callers hold callMu.
func (b *Binder) enter(ctx context.Context, mod api.Module) {
	b.env.mem = nil
	b.env.alloc = nil
	if mod != nil {
		b.env.mem = wrapMemory(mod.Memory())
		b.env.alloc = wrapAllocator(ctx, mod.ExportedFunction("cabi_realloc"))
	}
	b.env.allocs.reset()
}

// abort releases guest allocations made so far in this invocation and
// panics; wazero surfaces the panic to the guest as a failed call.
func (b *Binder) abort(err error) {
	b.env.allocs.free(b.env.alloc)
	panic(err)
}

// recv resolves a handle word to the live receiver, aborting the call on
// unknown, foreign, or dropped handles.
func (b *Binder) recv(h *TypeHandle, word uint64) reflect.Value {
	rec, ok := b.records.Get(wrapper.Handle(api.DecodeU32(word)))
	if !ok || rec.Class() != h.Name {
		b.abort(errors.InvalidInstance(h.Name, "unknown instance handle"))
	}
	recv, err := rec.Recv()
	if err != nil {
		b.abort(err)
	}
	return recv
}

func (b *Binder) ctorFn(h *TypeHandle, counts []int) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		b.callMu.Lock()
		defer b.callMu.Unlock()
		b.enter(ctx, mod)

		recv, err := h.table.New(groupWords(stack, counts))
		if err != nil {
			b.abort(err)
		}
		rec, err := wrapper.Bound(h.Name, recv, true, h.table.Finalizer)
		if err != nil {
			b.abort(err)
		}
		stack[0] = api.EncodeU32(uint32(b.records.Insert(rec)))
	}
}

func (b *Binder) getterFn(h *TypeHandle, fb *bind.FieldBinding[[]uint64]) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		b.callMu.Lock()
		defer b.callMu.Unlock()
		b.enter(ctx, mod)

		flat, err := fb.Get(b.recv(h, stack[0]))
		if err != nil {
			b.abort(err)
		}
		copy(stack, flat)
	}
}

func (b *Binder) setterFn(h *TypeHandle, fb *bind.FieldBinding[[]uint64]) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		b.callMu.Lock()
		defer b.callMu.Unlock()
		b.enter(ctx, mod)

		recv := b.recv(h, stack[0])
		if err := fb.Set(recv, stack[1:]); err != nil {
			b.abort(err)
		}
	}
}

func (b *Binder) methodFn(h *TypeHandle, mb *bind.MethodBinding[[]uint64], counts []int) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		b.callMu.Lock()
		defer b.callMu.Unlock()
		b.enter(ctx, mod)

		recv := b.recv(h, stack[0])
		flat, err := mb.Invoke(recv, groupWords(stack[1:], counts))
		if err != nil {
			b.abort(err)
		}
		copy(stack, flat)
	}
}

func (b *Binder) staticFn(sb *bind.MethodBinding[[]uint64], counts []int) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		b.callMu.Lock()
		defer b.callMu.Unlock()
		b.enter(ctx, mod)

		flat, err := sb.Invoke(reflect.Value{}, groupWords(stack, counts))
		if err != nil {
			b.abort(err)
		}
		copy(stack, flat)
	}
}

func (b *Binder) dropFn(h *TypeHandle) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		b.callMu.Lock()
		defer b.callMu.Unlock()
		b.enter(ctx, mod)

		handle := wrapper.Handle(api.DecodeU32(stack[0]))
		rec, ok := b.records.Get(handle)
		if !ok || rec.Class() != h.Name {
			b.abort(errors.InvalidInstance(h.Name, "unknown instance handle"))
		}
		if err := rec.Finalize(); err != nil {
			b.abort(err)
		}
		b.records.Remove(handle)
	}
}

// kebab converts a snake_case exported name to the kebab-case form used
// in wasm export names.
func kebab(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}

// flatSignature flattens a parameter list into concatenated core value
// types plus the per-parameter word counts used to regroup call stacks.
func flatSignature(specs []*convert.Spec) ([]api.ValueType, []int, error) {
	var types []api.ValueType
	counts := make([]int, len(specs))
	for i, s := range specs {
		ft, err := flatTypes(s)
		if err != nil {
			return nil, nil, err
		}
		counts[i] = len(ft)
		types = append(types, ft...)
	}
	return types, counts, nil
}

func methodSignature(m *descriptor.Method) (params, results []api.ValueType, counts []int, err error) {
	params, counts, err = flatSignature(m.Params)
	if err != nil {
		return nil, nil, nil, err
	}
	if m.Result != nil {
		results, err = flatTypes(m.Result)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	return params, results, counts, nil
}

// groupWords slices one call stack into per-parameter word groups.
func groupWords(stack []uint64, counts []int) [][]uint64 {
	args := make([][]uint64, len(counts))
	off := 0
	for i, n := range counts {
		args[i] = stack[off : off+n]
		off += n
	}
	return args
}

func signatureErr(class, member string, err error) error {
	return errors.New(errors.PhaseRegister, errors.KindStructure).
		Class(class).
		Path(member).
		Cause(err).
		Detail("member cannot cross the wasm boundary").
		Build()
}
