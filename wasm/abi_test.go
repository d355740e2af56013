package wasm

import (
	"encoding/binary"
	stderrors "errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/mirror/convert"
	"github.com/wippyai/mirror/errors"
)

// mockMemory implements Memory over a flat byte slice.
type mockMemory struct {
	data []byte
}

func newMockMemory(size int) *mockMemory {
	return &mockMemory{data: make([]byte, size)}
}

func (m *mockMemory) Read(offset uint32, length uint32) ([]byte, error) {
	return m.data[offset : offset+length], nil
}

func (m *mockMemory) Write(offset uint32, data []byte) error {
	copy(m.data[offset:], data)
	return nil
}

func (m *mockMemory) ReadU8(offset uint32) (uint8, error) {
	return m.data[offset], nil
}

func (m *mockMemory) ReadU16(offset uint32) (uint16, error) {
	return binary.LittleEndian.Uint16(m.data[offset:]), nil
}

func (m *mockMemory) ReadU32(offset uint32) (uint32, error) {
	return binary.LittleEndian.Uint32(m.data[offset:]), nil
}

func (m *mockMemory) ReadU64(offset uint32) (uint64, error) {
	return binary.LittleEndian.Uint64(m.data[offset:]), nil
}

func (m *mockMemory) WriteU8(offset uint32, value uint8) error {
	m.data[offset] = value
	return nil
}

func (m *mockMemory) WriteU16(offset uint32, value uint16) error {
	binary.LittleEndian.PutUint16(m.data[offset:], value)
	return nil
}

func (m *mockMemory) WriteU32(offset uint32, value uint32) error {
	binary.LittleEndian.PutUint32(m.data[offset:], value)
	return nil
}

func (m *mockMemory) WriteU64(offset uint32, value uint64) error {
	binary.LittleEndian.PutUint64(m.data[offset:], value)
	return nil
}

// mockAllocator bumps through mock memory, starting past zero so returned
// pointers are visibly distinct from the null sentinel.
type mockAllocator struct {
	offset uint32
	freed  []allocation
}

func newMockAllocator() *mockAllocator {
	return &mockAllocator{offset: 1024}
}

func (a *mockAllocator) Alloc(size, align uint32) (uint32, error) {
	a.offset = alignTo(a.offset, align)
	ptr := a.offset
	a.offset += size
	return ptr, nil
}

func (a *mockAllocator) Free(ptr, size, align uint32) {
	a.freed = append(a.freed, allocation{ptr: ptr, size: size, align: align})
}

func newTestConverter() (*converter, *mockMemory, *mockAllocator) {
	mem := newMockMemory(64 * 1024)
	alloc := newMockAllocator()
	return &converter{env: &callEnv{mem: mem, alloc: alloc}}, mem, alloc
}

func compileSpec(t *testing.T, v any) *convert.Spec {
	t.Helper()
	s, err := convert.NewCompiler().Compile(reflect.TypeOf(v))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return s
}

func roundTrip(t *testing.T, c *converter, in any) any {
	t.Helper()
	s := compileSpec(t, in)
	flat, err := c.ToTarget(s, reflect.ValueOf(in))
	if err != nil {
		t.Fatalf("ToTarget(%v) failed: %v", in, err)
	}
	out := reflect.New(reflect.TypeOf(in)).Elem()
	if err := c.FromTarget(s, flat, out); err != nil {
		t.Fatalf("FromTarget(%v) failed: %v", in, err)
	}
	return out.Interface()
}

type testLevel int16

type testMood uint8

func TestConverterScalars(t *testing.T) {
	c, _, _ := newTestConverter()

	tests := []struct {
		value any
		name  string
	}{
		{true, "bool_true"},
		{false, "bool_false"},
		{int8(-42), "int8"},
		{int16(-1234), "int16"},
		{int32(-12345678), "int32"},
		{int64(-123456789012), "int64"},
		{int(-7), "int"},
		{uint8(200), "uint8"},
		{uint16(50000), "uint16"},
		{uint32(math.MaxUint32), "uint32"},
		{uint64(123456789012), "uint64"},
		{uint(9), "uint"},
		{float32(3.5), "float32"},
		{float64(3.14159265359), "float64"},
		{testLevel(-3), "enum_int"},
		{testMood(7), "enum_uint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, c, tt.value)
			if got != tt.value {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.value, tt.value)
			}
		})
	}
}

func TestConverterScalarWords(t *testing.T) {
	c, _, _ := newTestConverter()

	tests := []struct {
		value any
		want  uint64
		name  string
	}{
		{int8(-5), api.EncodeI32(-5), "int8_sign_extends_to_i32"},
		{int64(-1), api.EncodeI64(-1), "int64_all_ones"},
		{uint32(math.MaxUint32), uint64(math.MaxUint32), "uint32_max"},
		{uint8(255), 255, "uint8_zero_extends"},
		{float32(2.5), uint64(math.Float32bits(2.5)), "float32_bits"},
		{float64(2.5), math.Float64bits(2.5), "float64_bits"},
		{true, 1, "bool_one"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := compileSpec(t, tt.value)
			flat, err := c.ToTarget(s, reflect.ValueOf(tt.value))
			if err != nil {
				t.Fatalf("ToTarget failed: %v", err)
			}
			if len(flat) != 1 {
				t.Fatalf("got %d words, want 1", len(flat))
			}
			if flat[0] != tt.want {
				t.Errorf("got %#x, want %#x", flat[0], tt.want)
			}
		})
	}
}

func TestConverterNaNCanonicalization(t *testing.T) {
	c, _, _ := newTestConverter()

	f64 := math.Float64frombits(0x7ff0000000000001)
	s := compileSpec(t, f64)
	flat, err := c.ToTarget(s, reflect.ValueOf(f64))
	if err != nil {
		t.Fatalf("ToTarget failed: %v", err)
	}
	if flat[0] != canonicalNaN64 {
		t.Errorf("f64 NaN lowered to %#x, want %#x", flat[0], uint64(canonicalNaN64))
	}
	out := reflect.New(reflect.TypeOf(f64)).Elem()
	if err := c.FromTarget(s, flat, out); err != nil {
		t.Fatalf("FromTarget failed: %v", err)
	}
	if !math.IsNaN(out.Float()) {
		t.Errorf("lifted %v, want NaN", out.Float())
	}

	f32 := math.Float32frombits(0xffc00001)
	s32 := compileSpec(t, f32)
	flat, err = c.ToTarget(s32, reflect.ValueOf(f32))
	if err != nil {
		t.Fatalf("ToTarget failed: %v", err)
	}
	if flat[0] != canonicalNaN32 {
		t.Errorf("f32 NaN lowered to %#x, want %#x", flat[0], uint64(canonicalNaN32))
	}
}

func TestConverterString(t *testing.T) {
	c, mem, _ := newTestConverter()

	in := "hello, wasm äö"
	s := compileSpec(t, in)
	flat, err := c.ToTarget(s, reflect.ValueOf(in))
	if err != nil {
		t.Fatalf("ToTarget failed: %v", err)
	}
	if len(flat) != 2 {
		t.Fatalf("got %d words, want 2", len(flat))
	}
	ptr, n := api.DecodeU32(flat[0]), api.DecodeU32(flat[1])
	if ptr < 1024 {
		t.Errorf("ptr %d not in allocated region", ptr)
	}
	if int(n) != len(in) {
		t.Errorf("length word %d, want %d", n, len(in))
	}
	if got := string(mem.data[ptr : ptr+n]); got != in {
		t.Errorf("memory holds %q, want %q", got, in)
	}

	out := reflect.New(reflect.TypeOf(in)).Elem()
	if err := c.FromTarget(s, flat, out); err != nil {
		t.Fatalf("FromTarget failed: %v", err)
	}
	if out.String() != in {
		t.Errorf("got %q, want %q", out.String(), in)
	}
}

func TestConverterStringEmpty(t *testing.T) {
	c, _, _ := newTestConverter()

	s := compileSpec(t, "")
	flat, err := c.ToTarget(s, reflect.ValueOf(""))
	if err != nil {
		t.Fatalf("ToTarget failed: %v", err)
	}
	if flat[0] != 0 || flat[1] != 0 {
		t.Errorf("empty string lowered to [%d, %d], want [0, 0]", flat[0], flat[1])
	}
	if c.env.allocs.count() != 0 {
		t.Errorf("empty string made %d allocations", c.env.allocs.count())
	}
	if got := roundTrip(t, c, ""); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestConverterStringInvalidUTF8(t *testing.T) {
	c, _, _ := newTestConverter()

	s := compileSpec(t, "")
	_, err := c.ToTarget(s, reflect.ValueOf("\xff\xfe"))
	if err == nil {
		t.Fatal("expected error for invalid UTF-8")
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseToTarget, Kind: errors.KindConversion}) {
		t.Errorf("wrong error: %v", err)
	}
}

func TestConverterSlices(t *testing.T) {
	c, _, _ := newTestConverter()

	tests := []struct {
		value any
		name  string
	}{
		{[]int32{1, -2, 3}, "int32"},
		{[]int8{-100, 5, 127}, "int8"},
		{[]uint64{0, math.MaxUint64}, "uint64"},
		{[]float64{1.5, -2.5}, "float64"},
		{[]string{"a", "", "ßé"}, "strings"},
		{[]bool{true, false, true}, "bools"},
		{[]int32{}, "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, c, tt.value)
			if !reflect.DeepEqual(got, tt.value) {
				t.Errorf("got %v, want %v", got, tt.value)
			}
		})
	}
}

func TestConverterArray(t *testing.T) {
	c, _, _ := newTestConverter()

	in := [3]int16{-7, 0, 300}
	got := roundTrip(t, c, in)
	if !reflect.DeepEqual(got, in) {
		t.Errorf("got %v, want %v", got, in)
	}
}

func TestConverterArrayLengthMismatch(t *testing.T) {
	c, _, _ := newTestConverter()

	s := compileSpec(t, [2]uint8{})
	dst := reflect.New(reflect.TypeOf([2]uint8{})).Elem()
	err := c.FromTarget(s, []uint64{0, api.EncodeU32(3)}, dst)
	if err == nil {
		t.Fatal("expected length mismatch")
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseFromTarget, Kind: errors.KindConversion}) {
		t.Errorf("wrong error: %v", err)
	}
}

func TestConverterMaps(t *testing.T) {
	c, _, _ := newTestConverter()

	tests := []struct {
		value any
		name  string
	}{
		{map[string]int32{"a": 1, "bb": -2}, "string_to_int32"},
		{map[uint8]string{1: "one", 2: "two"}, "uint8_to_string"},
		{map[int64]float64{-5: 2.5}, "int64_to_float64"},
		{map[string]string{}, "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, c, tt.value)
			if !reflect.DeepEqual(got, tt.value) {
				t.Errorf("got %v, want %v", got, tt.value)
			}
		})
	}
}

func TestConverterPointer(t *testing.T) {
	c, _, _ := newTestConverter()

	n := int32(7)
	s := compileSpec(t, &n)
	flat, err := c.ToTarget(s, reflect.ValueOf(&n))
	if err != nil {
		t.Fatalf("ToTarget failed: %v", err)
	}
	if len(flat) != 2 || flat[0] != 1 || api.DecodeI32(flat[1]) != 7 {
		t.Fatalf("got words %v, want [1, 7]", flat)
	}

	out := reflect.New(reflect.TypeOf(&n)).Elem()
	if err := c.FromTarget(s, flat, out); err != nil {
		t.Fatalf("FromTarget failed: %v", err)
	}
	if out.IsNil() || out.Elem().Int() != 7 {
		t.Errorf("got %v, want pointer to 7", out)
	}

	flat, err = c.ToTarget(s, reflect.ValueOf((*int32)(nil)))
	if err != nil {
		t.Fatalf("ToTarget(nil) failed: %v", err)
	}
	if len(flat) != 2 || flat[0] != 0 || flat[1] != 0 {
		t.Fatalf("nil lowered to %v, want [0, 0]", flat)
	}
	if err := c.FromTarget(s, flat, out); err != nil {
		t.Fatalf("FromTarget(nil) failed: %v", err)
	}
	if !out.IsNil() {
		t.Errorf("got %v, want nil", out)
	}
}

func TestConverterPointerToString(t *testing.T) {
	c, _, _ := newTestConverter()

	str := "shared"
	in := &str
	got := roundTrip(t, c, in).(*string)
	if got == nil || *got != str {
		t.Errorf("got %v, want pointer to %q", got, str)
	}

	s := compileSpec(t, in)
	flat, err := c.ToTarget(s, reflect.ValueOf((*string)(nil)))
	if err != nil {
		t.Fatalf("ToTarget(nil) failed: %v", err)
	}
	if len(flat) != 3 || flat[0] != 0 || flat[1] != 0 || flat[2] != 0 {
		t.Fatalf("nil lowered to %v, want three zero words", flat)
	}
}

type innerPoint struct {
	X float64
	Y float64
}

type segment struct {
	Start innerPoint
	End   innerPoint
	Label string
}

func TestConverterStruct(t *testing.T) {
	c, _, _ := newTestConverter()

	in := segment{
		Start: innerPoint{X: 1, Y: 2},
		End:   innerPoint{X: -3, Y: 4.5},
		Label: "diag",
	}
	got := roundTrip(t, c, in)
	if !reflect.DeepEqual(got, in) {
		t.Errorf("got %+v, want %+v", got, in)
	}

	s := compileSpec(t, in)
	if n := flatCount(s); n != 6 {
		t.Errorf("flatCount = %d, want 6", n)
	}
}

func TestConverterSliceOfStructs(t *testing.T) {
	c, _, _ := newTestConverter()

	in := []segment{
		{Start: innerPoint{X: 1}, End: innerPoint{Y: 2}, Label: "a"},
		{Start: innerPoint{X: -1.5}, End: innerPoint{Y: 0.25}, Label: ""},
	}
	got := roundTrip(t, c, in)
	if !reflect.DeepEqual(got, in) {
		t.Errorf("got %+v, want %+v", got, in)
	}
}

func TestConverterWordCountMismatch(t *testing.T) {
	c, _, _ := newTestConverter()

	s := compileSpec(t, innerPoint{})
	dst := reflect.New(reflect.TypeOf(innerPoint{})).Elem()
	err := c.FromTarget(s, []uint64{0}, dst)
	if err == nil {
		t.Fatal("expected word count mismatch")
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseFromTarget, Kind: errors.KindConversion}) {
		t.Errorf("wrong error: %v", err)
	}
}

func TestConverterNoGuestMemory(t *testing.T) {
	c := &converter{env: &callEnv{}}

	if got := roundTrip(t, c, int32(5)); got != int32(5) {
		t.Errorf("got %v, want 5", got)
	}
	if got := roundTrip(t, c, ""); got != "" {
		t.Errorf("got %q, want empty", got)
	}

	s := compileSpec(t, "")
	_, err := c.ToTarget(s, reflect.ValueOf("abc"))
	if err == nil {
		t.Fatal("expected error lowering a string without guest memory")
	}
	if !strings.Contains(err.Error(), "memory") {
		t.Errorf("wrong error: %v", err)
	}
}

func TestConverterAllocTracking(t *testing.T) {
	c, _, alloc := newTestConverter()

	s := compileSpec(t, []string{})
	_, err := c.ToTarget(s, reflect.ValueOf([]string{"ab", "cd"}))
	if err != nil {
		t.Fatalf("ToTarget failed: %v", err)
	}
	// One block for the list, one per string payload.
	if got := c.env.allocs.count(); got != 3 {
		t.Fatalf("tracked %d allocations, want 3", got)
	}

	c.env.allocs.free(alloc)
	if len(alloc.freed) != 3 {
		t.Errorf("freed %d allocations, want 3", len(alloc.freed))
	}

	c.env.allocs.reset()
	if c.env.allocs.count() != 0 {
		t.Errorf("reset left %d allocations", c.env.allocs.count())
	}
}

func TestFlatTypes(t *testing.T) {
	tests := []struct {
		value any
		want  []api.ValueType
		name  string
	}{
		{true, []api.ValueType{api.ValueTypeI32}, "bool"},
		{int8(0), []api.ValueType{api.ValueTypeI32}, "int8"},
		{int64(0), []api.ValueType{api.ValueTypeI64}, "int64"},
		{int(0), []api.ValueType{api.ValueTypeI64}, "int"},
		{uint32(0), []api.ValueType{api.ValueTypeI32}, "uint32"},
		{float32(0), []api.ValueType{api.ValueTypeF32}, "float32"},
		{float64(0), []api.ValueType{api.ValueTypeF64}, "float64"},
		{"", []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, "string"},
		{[]int32{}, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, "slice"},
		{map[string]int32{}, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, "map"},
		{(*int32)(nil), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, "pointer"},
		{(*string)(nil), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, "pointer_to_string"},
		{innerPoint{}, []api.ValueType{api.ValueTypeF64, api.ValueTypeF64}, "struct"},
		{segment{}, []api.ValueType{
			api.ValueTypeF64, api.ValueTypeF64,
			api.ValueTypeF64, api.ValueTypeF64,
			api.ValueTypeI32, api.ValueTypeI32,
		}, "nested_struct"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := compileSpec(t, tt.value)
			got, err := flatTypes(s)
			if err != nil {
				t.Fatalf("flatTypes failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if flatCount(s) != len(tt.want) {
				t.Errorf("flatCount = %d, want %d", flatCount(s), len(tt.want))
			}
		})
	}
}

type chainNode struct {
	Value int32
	Next  *chainNode
}

type sharedLeaf struct {
	N int32
}

type diamond struct {
	A sharedLeaf
	B sharedLeaf
}

func TestFlatTypesRecursive(t *testing.T) {
	s := compileSpec(t, chainNode{})
	_, err := flatTypes(s)
	if err == nil {
		t.Fatal("expected error for recursive type")
	}
	if !strings.Contains(err.Error(), "recursive type") {
		t.Errorf("wrong error: %v", err)
	}
}

func TestFlatTypesSharedSubtree(t *testing.T) {
	// Two fields of the same struct type share one compiled spec; only
	// true cycles are rejected.
	s := compileSpec(t, diamond{})
	got, err := flatTypes(s)
	if err != nil {
		t.Fatalf("flatTypes failed: %v", err)
	}
	want := []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSizeAlign(t *testing.T) {
	tests := []struct {
		value any
		size  uint32
		align uint32
		name  string
	}{
		{true, 1, 1, "bool"},
		{int8(0), 1, 1, "int8"},
		{uint16(0), 2, 2, "uint16"},
		{int32(0), 4, 4, "int32"},
		{int64(0), 8, 8, "int64"},
		{float32(0), 4, 4, "float32"},
		{float64(0), 8, 8, "float64"},
		{"", 8, 4, "string"},
		{[]int32{}, 8, 4, "slice"},
		{map[string]int32{}, 8, 4, "map"},
		{(*bool)(nil), 2, 1, "pointer_to_bool"},
		{(*int32)(nil), 8, 4, "pointer_to_int32"},
		{struct {
			A int8
			B int32
			C int8
		}{}, 12, 4, "padded_struct"},
		{innerPoint{}, 16, 8, "struct"},
		{segment{}, 40, 8, "struct_with_string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := compileSpec(t, tt.value)
			size, align := sizeAlign(s)
			if size != tt.size || align != tt.align {
				t.Errorf("got (%d, %d), want (%d, %d)", size, align, tt.size, tt.align)
			}
		})
	}
}

func TestPairLayout(t *testing.T) {
	strSpec := compileSpec(t, "")
	i64Spec := compileSpec(t, int64(0))
	u8Spec := compileSpec(t, uint8(0))

	size, align, valOff := pairLayout(strSpec, i64Spec)
	if size != 16 || align != 8 || valOff != 8 {
		t.Errorf("string/int64: got (%d, %d, %d), want (16, 8, 8)", size, align, valOff)
	}

	size, align, valOff = pairLayout(u8Spec, strSpec)
	if size != 12 || align != 4 || valOff != 4 {
		t.Errorf("uint8/string: got (%d, %d, %d), want (12, 4, 4)", size, align, valOff)
	}
}

func TestAlignTo(t *testing.T) {
	tests := []struct {
		offset, align, want uint32
	}{
		{0, 4, 0},
		{1, 4, 4},
		{4, 4, 4},
		{5, 8, 8},
		{17, 1, 17},
		{3, 0, 3},
	}
	for _, tt := range tests {
		if got := alignTo(tt.offset, tt.align); got != tt.want {
			t.Errorf("alignTo(%d, %d) = %d, want %d", tt.offset, tt.align, got, tt.want)
		}
	}
}

func TestSafeMulU32(t *testing.T) {
	if v, ok := safeMulU32(1000, 1000); !ok || v != 1000000 {
		t.Errorf("got (%d, %v)", v, ok)
	}
	if _, ok := safeMulU32(math.MaxUint32, 2); ok {
		t.Error("expected overflow")
	}
	if v, ok := safeMulU32(math.MaxUint32, 0); !ok || v != 0 {
		t.Errorf("got (%d, %v)", v, ok)
	}
}
