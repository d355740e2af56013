package lua

import (
	stderrors "errors"
	"math"
	"strings"
	"testing"

	glua "github.com/yuin/gopher-lua"

	"github.com/wippyai/mirror"
	"github.com/wippyai/mirror/errors"
	"github.com/wippyai/mirror/registry"
)

type Point struct {
	X float64
	Y float64
}

func (p *Point) Length() float64 {
	return p.X*p.X + p.Y*p.Y
}

func (p *Point) DistanceTo(o *Point) float64 {
	dx, dy := p.X-o.X, p.Y-o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

type Calculator struct {
	Value float64
}

func (c *Calculator) Add(x float64) float64 {
	c.Value += x
	return c.Value
}

func (c *Calculator) Subtract(x float64) float64 {
	c.Value -= x
	return c.Value
}

type Printer struct {
	Last string
}

func printInt(p *Printer, v int) { p.Last = "int" }

func printFloat(p *Printer, v float64) { p.Last = "float64" }

func printString(p *Printer, v string) { p.Last = "string" }

type Sequence struct {
	Numbers []int
}

func (s *Sequence) Sum() int {
	total := 0
	for _, n := range s.Numbers {
		total += n
	}
	return total
}

type Rectangle struct {
	Width  float64
	Height float64
	Label  string
}

func emptyRectangle() *Rectangle { return &Rectangle{Label: "fresh"} }

func newRectangle(w, h float64) *Rectangle {
	return &Rectangle{Width: w, Height: h, Label: "unnamed"}
}

func newLabeledRectangle(w, h float64, label string) *Rectangle {
	return &Rectangle{Width: w, Height: h, Label: label}
}

func newTestBinder(t *testing.T) (*glua.LState, *Binder) {
	t.Helper()
	L := glua.NewState()
	b := NewBinder(L)
	t.Cleanup(func() {
		_ = b.Close()
		L.Close()
	})
	return L, b
}

func mustBind(t *testing.T, b *Binder, c *mirror.Class) *TypeHandle {
	t.Helper()
	h, err := b.Bind(c)
	if err != nil {
		t.Fatalf("Bind(%s) failed: %v", c.Name, err)
	}
	return h
}

func mustDo(t *testing.T, L *glua.LState, script string) {
	t.Helper()
	if err := L.DoString(script); err != nil {
		t.Fatalf("script failed: %v", err)
	}
}

func wantScriptError(t *testing.T, L *glua.LState, script, substr string) {
	t.Helper()
	err := L.DoString(script)
	if err == nil {
		t.Fatalf("script succeeded, want error containing %q", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		t.Fatalf("script error = %v, want substring %q", err, substr)
	}
}

func TestBind_FieldAccess(t *testing.T) {
	L, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Point]("point"))

	mustDo(t, L, `
		p = point.new()
		p.x = 3.0
		p.y = 4.0
		assert(p.x == 3.0, "x readback")
		assert(p.y == 4.0, "y readback")
	`)
}

func TestBind_Methods(t *testing.T) {
	L, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Calculator]("calculator"))

	mustDo(t, L, `
		local c = calculator.new()
		c:add(10)
		local v = c:subtract(3)
		assert(v == 7.0, "result")
		assert(c.value == 7.0, "state")
	`)
}

func TestBind_Overloads(t *testing.T) {
	L, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Printer]("printer",
		mirror.WithOverloads("print", printInt, printFloat, printString),
	))

	mustDo(t, L, `
		local p = printer.new()
		p:print_int(7)
		assert(p.last == "int", "int variant")
		p:print_float64(2.5)
		assert(p.last == "float64", "float variant")
		p:print_string("hi")
		assert(p.last == "string", "string variant")
	`)
}

func TestBind_SequenceField(t *testing.T) {
	L, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Sequence]("sequence"))

	mustDo(t, L, `
		local s = sequence.new()
		s.numbers = {1, 2, 3, 4, 5}
		assert(s:sum() == 15, "sum")
		local ns = s.numbers
		assert(#ns == 5 and ns[3] == 3, "table readback")
	`)
}

func TestBind_Constructors(t *testing.T) {
	L, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Rectangle]("rectangle",
		mirror.WithConstructor(emptyRectangle),
		mirror.WithConstructor(newRectangle),
		mirror.WithConstructor(newLabeledRectangle),
	))

	mustDo(t, L, `
		local r = rectangle.new(3.0, 4.0)
		assert(r.width == 3.0 and r.height == 4.0, "two-arg ctor")
		assert(r.label == "unnamed", "unsupplied field keeps its default")

		local e = rectangle.new()
		assert(e.label == "fresh", "niladic ctor")

		local n = rectangle.new(1.0, 2.0, "tall")
		assert(n.label == "tall", "three-arg ctor")
	`)
}

func TestBind_ConstructorNoMatch(t *testing.T) {
	L, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Rectangle]("rectangle",
		mirror.WithConstructor(newRectangle),
	))

	wantScriptError(t, L, `rectangle.new(1.0)`, "no_matching_constructor")
}

func TestBind_Idempotent(t *testing.T) {
	_, b := newTestBinder(t)
	class := mirror.NewClass[Point]("point")

	h1 := mustBind(t, b, class)
	h2 := mustBind(t, b, class)
	if h1 != h2 {
		t.Error("rebinding the same class should return the existing handle")
	}
}

func TestBind_Conflict(t *testing.T) {
	_, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Point]("point"))

	_, err := b.Bind(mirror.NewClass[Calculator]("point"))
	if err == nil {
		t.Fatal("expected registration conflict")
	}
	target := &errors.Error{Phase: errors.PhaseRegister, Kind: errors.KindConflict}
	if !stderrors.Is(err, target) {
		t.Errorf("error = %v, want registration conflict", err)
	}
}

func TestBind_FreeLifecycle(t *testing.T) {
	L, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Point]("point"))

	mustDo(t, L, `
		p = point.new()
		p.x = 1.0
		p:free()
	`)

	wantScriptError(t, L, `local v = p.x`, "invalid_instance")
	wantScriptError(t, L, `p:free()`, "invalid_instance")
	wantScriptError(t, L, `p:length()`, "invalid_instance")
}

type Resource struct {
	ID int
}

func TestBind_FinalizerRuns(t *testing.T) {
	L, b := newTestBinder(t)
	freed := 0
	mustBind(t, b, mirror.NewClass[Resource]("resource",
		mirror.WithFinalizer(func(r *Resource) { freed++ }),
	))

	mustDo(t, L, `
		local r = resource.new()
		r:free()
	`)
	if freed != 1 {
		t.Errorf("finalizer ran %d times, want 1", freed)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if freed != 1 {
		t.Errorf("Close re-finalized a freed instance: count %d", freed)
	}
}

func TestBind_CloseSweepsUnfreed(t *testing.T) {
	L := glua.NewState()
	defer L.Close()
	b := NewBinder(L)

	freed := 0
	mustBind(t, b, mirror.NewClass[Resource]("resource",
		mirror.WithFinalizer(func(r *Resource) { freed++ }),
	))

	mustDo(t, L, `
		local a = resource.new()
		local kept = resource.new()
		a:free()
	`)
	if freed != 1 {
		t.Fatalf("finalizer ran %d times before sweep, want 1", freed)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if freed != 2 {
		t.Errorf("finalizer ran %d times after sweep, want 2", freed)
	}
}

func TestBind_WrapNonOwning(t *testing.T) {
	L, b := newTestBinder(t)
	freed := 0
	mustBind(t, b, mirror.NewClass[Point]("point",
		mirror.WithFinalizer(func(p *Point) { freed++ }),
	))

	host := &Point{X: 1}
	ud, err := b.Wrap("point", host, false)
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	L.SetGlobal("view", ud)

	mustDo(t, L, `
		view.x = 42.0
		view:free()
	`)

	if host.X != 42 {
		t.Errorf("host.X = %g, want write through the view", host.X)
	}
	if freed != 0 {
		t.Error("non-owning view must not run the finalizer")
	}
}

func TestBind_WrapOwning(t *testing.T) {
	L, b := newTestBinder(t)
	freed := 0
	mustBind(t, b, mirror.NewClass[Point]("point",
		mirror.WithFinalizer(func(p *Point) { freed++ }),
	))

	ud, err := b.Wrap("point", &Point{}, true)
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	L.SetGlobal("owned", ud)

	mustDo(t, L, `owned:free()`)
	if freed != 1 {
		t.Errorf("finalizer ran %d times, want 1", freed)
	}
}

func TestBind_WrapValidation(t *testing.T) {
	_, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Point]("point"))

	if _, err := b.Wrap("ghost", &Point{}, true); err == nil {
		t.Error("expected error wrapping under an unbound name")
	}
	if _, err := b.Wrap("point", Point{}, true); err == nil {
		t.Error("expected error wrapping a non-pointer")
	}
	if _, err := b.Wrap("point", &Calculator{}, true); err == nil {
		t.Error("expected error wrapping the wrong type")
	}
}

func TestBind_Statics(t *testing.T) {
	L, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Point]("point",
		mirror.WithStatic("diagonal", func(v float64) Point { return Point{X: v, Y: v} }),
	))

	mustDo(t, L, `
		local d = point.diagonal(2.5)
		assert(d.x == 2.5 and d.y == 2.5, "static result")
	`)
}

func TestBind_InstanceArgument(t *testing.T) {
	L, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Point]("point"))

	mustDo(t, L, `
		local a = point.new()
		local c = point.new()
		c.x = 3.0
		c.y = 4.0
		assert(a:distance_to(c) == 5.0, "instance argument")
	`)
}

type Tagged struct {
	ID   int `mirror:",readonly"`
	Note string
}

func TestBind_ReadOnlyField(t *testing.T) {
	L, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Tagged]("tagged"))

	mustDo(t, L, `
		tg = tagged.new()
		tg.note = "ok"
	`)
	wantScriptError(t, L, `tg.id = 5`, "read-only")
}

func TestBind_UnknownFieldWrite(t *testing.T) {
	L, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Point]("point"))

	wantScriptError(t, L, `local p = point.new(); p.zzz = 1`, "no field")
}

func TestBind_ConversionErrorRaises(t *testing.T) {
	L, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Point]("point"))

	wantScriptError(t, L, `local p = point.new(); p.x = "nope"`, "conversion")
}

func TestBind_IntegerStrictness(t *testing.T) {
	L, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Sequence]("sequence"))

	wantScriptError(t, L, `local s = sequence.new(); s.numbers = {1.5}`, "conversion")
}

type Color int

type Paint struct {
	Hue Color
}

func TestBind_EnumField(t *testing.T) {
	L, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Paint]("paint"))

	mustDo(t, L, `
		local p = paint.new()
		p.hue = 2
		assert(p.hue == 2, "enum roundtrip")
	`)
	wantScriptError(t, L, `local p = paint.new(); p.hue = 1.5`, "conversion")
}

type Inventory struct {
	Counts map[string]int
}

func (v *Inventory) Total() int {
	total := 0
	for _, n := range v.Counts {
		total += n
	}
	return total
}

func TestBind_MapField(t *testing.T) {
	L, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Inventory]("inventory"))

	mustDo(t, L, `
		local inv = inventory.new()
		inv.counts = {apple = 3, pear = 2}
		assert(inv:total() == 5, "map into host")
		assert(inv.counts.apple == 3, "map readback")
	`)
}

type Address struct {
	City string
}

type Person struct {
	Name string
	Home Address
}

func TestBind_NestedObjectAsTable(t *testing.T) {
	L, b := newTestBinder(t)
	mustBind(t, b, mirror.NewClass[Person]("person"))

	mustDo(t, L, `
		local p = person.new()
		p.name = "Ada"
		p.home = {city = "Oslo"}
		assert(p.home.city == "Oslo", "nested readback")
		assert(type(p.home) == "table", "nested values are plain tables")
	`)
}

type Disposable struct {
	N int
}

func (d *Disposable) Free() {}

func TestBind_ReservedFreeName(t *testing.T) {
	_, b := newTestBinder(t)

	_, err := b.Bind(mirror.NewClass[Disposable]("disposable"))
	if err == nil {
		t.Fatal("expected error for a method named free")
	}
	if !strings.Contains(err.Error(), "reserved") {
		t.Errorf("error = %v, want reserved-name detail", err)
	}
}

func TestBind_RegistryUpdates(t *testing.T) {
	L := glua.NewState()
	defer L.Close()

	reg := registry.New(nil)
	b := NewBinder(L, WithRegistry(reg))
	defer b.Close()

	h := mustBind(t, b, mirror.NewClass[Point]("point"))

	sig, ok := reg.Signature("point")
	if !ok {
		t.Fatal("registry has no signature after bind")
	}
	if sig != h.Descriptor().Hash {
		t.Error("registry signature differs from descriptor hash")
	}
}

func TestBind_StructureErrorAbortsClass(t *testing.T) {
	_, b := newTestBinder(t)

	type unbindable struct {
		C chan int
	}
	_, err := b.Bind(mirror.NewClass[unbindable]("unbindable"))
	if err == nil {
		t.Fatal("expected structure error")
	}
	target := &errors.Error{Phase: errors.PhaseDiscover, Kind: errors.KindStructure}
	if !stderrors.Is(err, target) {
		t.Errorf("error = %v, want discover/structure", err)
	}

	// The failed class must not leak a partial registration.
	if _, ok := b.Lookup("unbindable"); ok {
		t.Error("failed bind left a handle behind")
	}
}
