package wasm

import (
	"fmt"
	"math"
	"reflect"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/mirror/convert"
	"github.com/wippyai/mirror/errors"
)

const (
	// MaxFlatParams bounds the flattened word count of one export's
	// parameter or result list. Shapes past this would spill through a
	// pointer in the canonical ABI; binding rejects them instead.
	MaxFlatParams = 16

	MaxStringSize = 1 << 30 // 1 GB max string size
	MaxListLength = 1 << 27 // 128M max elements
)

const (
	canonicalNaN32 = 0x7fc00000
	canonicalNaN64 = 0x7ff8000000000000
)

// callEnv is the per-invocation view of the calling guest. The binder
// populates it under its call lock before dispatching; the converter
// reads it for every memory-backed value.
type callEnv struct {
	mem    Memory
	alloc  Allocator
	allocs allocList
}

// converter implements bind.Converter[[]uint64]. Values cross the
// boundary as canonical-ABI flat stack words; strings, lists, and maps
// spill their payload into guest linear memory through cabi_realloc.
type converter struct {
	env *callEnv
}

func (c *converter) ToTarget(s *convert.Spec, v reflect.Value) ([]uint64, error) {
	flat := make([]uint64, 0, flatCount(s))
	if err := c.lower(s, v, &flat, nil); err != nil {
		return nil, err
	}
	return flat, nil
}

func (c *converter) FromTarget(s *convert.Spec, val []uint64, dst reflect.Value) error {
	if len(val) != flatCount(s) {
		return errors.New(errors.PhaseFromTarget, errors.KindConversion).
			GoType(s.GoType.String()).
			Detail("flat value has %d words, want %d", len(val), flatCount(s)).
			Build()
	}
	r := &wordReader{words: val}
	return c.lift(s, r, dst, nil)
}

// wordReader walks one flat value group. FromTarget checks the word
// count up front, so next never runs past the end.
type wordReader struct {
	words []uint64
	pos   int
}

func (r *wordReader) next() uint64 {
	w := r.words[r.pos]
	r.pos++
	return w
}

func (r *wordReader) skip(n int) {
	r.pos += n
}

// flatTypes returns the core value types of one spec flattened to stack
// words. Strings, slices, arrays, and maps take a pointer word and a
// length word; references take a discriminant word followed by the
// payload shape; objects concatenate their fields. Recursive types have
// no finite flat shape and fail.
func flatTypes(s *convert.Spec) ([]api.ValueType, error) {
	var out []api.ValueType
	if err := appendFlatTypes(&out, s, make(map[*convert.Spec]bool)); err != nil {
		return nil, err
	}
	return out, nil
}

func appendFlatTypes(out *[]api.ValueType, s *convert.Spec, seen map[*convert.Spec]bool) error {
	switch s.Kind {
	case convert.KindBool:
		*out = append(*out, api.ValueTypeI32)
		return nil
	case convert.KindInt, convert.KindUint, convert.KindEnum:
		*out = append(*out, intValueType(s.GoType.Kind()))
		return nil
	case convert.KindFloat:
		if s.GoType.Kind() == reflect.Float32 {
			*out = append(*out, api.ValueTypeF32)
		} else {
			*out = append(*out, api.ValueTypeF64)
		}
		return nil
	case convert.KindString, convert.KindSlice, convert.KindArray, convert.KindMap:
		*out = append(*out, api.ValueTypeI32, api.ValueTypeI32)
		return nil
	case convert.KindReference:
		if seen[s] {
			return fmt.Errorf("recursive type %s", s.GoType)
		}
		seen[s] = true
		*out = append(*out, api.ValueTypeI32)
		if err := appendFlatTypes(out, s.Elem, seen); err != nil {
			return err
		}
		delete(seen, s)
		return nil
	case convert.KindObject:
		if seen[s] {
			return fmt.Errorf("recursive type %s", s.GoType)
		}
		seen[s] = true
		for _, f := range s.Fields {
			if err := appendFlatTypes(out, f.Spec, seen); err != nil {
				return err
			}
		}
		delete(seen, s)
		return nil
	}
	return fmt.Errorf("unsupported kind %s", s.Kind)
}

// flatCount returns the number of stack words a spec occupies. Specs
// reaching here have passed flatTypes validation at bind time.
func flatCount(s *convert.Spec) int {
	switch s.Kind {
	case convert.KindString, convert.KindSlice, convert.KindArray, convert.KindMap:
		return 2
	case convert.KindReference:
		return 1 + flatCount(s.Elem)
	case convert.KindObject:
		n := 0
		for _, f := range s.Fields {
			n += flatCount(f.Spec)
		}
		return n
	}
	return 1
}

// sizeAlign returns the byte size and alignment of a spec laid out in
// guest memory, following canonical ABI layout rules.
func sizeAlign(s *convert.Spec) (uint32, uint32) {
	switch s.Kind {
	case convert.KindBool:
		return 1, 1
	case convert.KindInt, convert.KindUint, convert.KindEnum:
		n := intByteSize(s.GoType.Kind())
		return n, n
	case convert.KindFloat:
		if s.GoType.Kind() == reflect.Float32 {
			return 4, 4
		}
		return 8, 8
	case convert.KindString, convert.KindSlice, convert.KindArray, convert.KindMap:
		return 8, 4
	case convert.KindReference:
		es, ea := sizeAlign(s.Elem)
		a := ea
		if a < 1 {
			a = 1
		}
		return alignTo(alignTo(1, ea)+es, a), a
	case convert.KindObject:
		var size uint32
		var align uint32 = 1
		for _, f := range s.Fields {
			fs, fa := sizeAlign(f.Spec)
			if fa > align {
				align = fa
			}
			size = alignTo(size, fa) + fs
		}
		return alignTo(size, align), align
	}
	return 0, 1
}

func alignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

func safeMulU32(a, b uint32) (uint32, bool) {
	if b != 0 && a > math.MaxUint32/b {
		return 0, false
	}
	return a * b, true
}

// intValueType maps an integer kind to its core stack type. Widths are
// fixed by the declared Go type, not the host word size.
func intValueType(k reflect.Kind) api.ValueType {
	switch k {
	case reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return api.ValueTypeI32
	}
	return api.ValueTypeI64
}

func intByteSize(k reflect.Kind) uint32 {
	switch k {
	case reflect.Int8, reflect.Uint8:
		return 1
	case reflect.Int16, reflect.Uint16:
		return 2
	case reflect.Int32, reflect.Uint32:
		return 4
	}
	return 8
}

func isUintKind(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func encodeInt(k reflect.Kind, n int64) uint64 {
	if intValueType(k) == api.ValueTypeI32 {
		return api.EncodeI32(int32(n))
	}
	return api.EncodeI64(n)
}

func encodeUint(k reflect.Kind, n uint64) uint64 {
	if intValueType(k) == api.ValueTypeI32 {
		return api.EncodeU32(uint32(n))
	}
	return n
}

// canonicalizeF32 maps every NaN to the single canonical pattern.
func canonicalizeF32(bits uint32) uint32 {
	f := math.Float32frombits(bits)
	if f != f {
		return canonicalNaN32
	}
	return bits
}

// canonicalizeF64 maps every NaN to the single canonical pattern.
func canonicalizeF64(bits uint64) uint64 {
	f := math.Float64frombits(bits)
	if f != f {
		return canonicalNaN64
	}
	return bits
}

// lower encodes a host value as flat stack words, spilling memory-backed
// payloads into guest memory.
func (c *converter) lower(s *convert.Spec, v reflect.Value, flat *[]uint64, path []string) error {
	switch s.Kind {
	case convert.KindBool:
		if v.Bool() {
			*flat = append(*flat, 1)
		} else {
			*flat = append(*flat, 0)
		}
		return nil

	case convert.KindInt:
		*flat = append(*flat, encodeInt(s.GoType.Kind(), v.Int()))
		return nil

	case convert.KindUint:
		*flat = append(*flat, encodeUint(s.GoType.Kind(), v.Uint()))
		return nil

	case convert.KindEnum:
		if isUintKind(s.GoType.Kind()) {
			*flat = append(*flat, encodeUint(s.GoType.Kind(), v.Uint()))
		} else {
			*flat = append(*flat, encodeInt(s.GoType.Kind(), v.Int()))
		}
		return nil

	case convert.KindFloat:
		if s.GoType.Kind() == reflect.Float32 {
			bits := canonicalizeF32(math.Float32bits(float32(v.Float())))
			*flat = append(*flat, uint64(bits))
		} else {
			*flat = append(*flat, canonicalizeF64(math.Float64bits(v.Float())))
		}
		return nil

	case convert.KindString:
		ptr, n, err := c.storeString(v.String(), path)
		if err != nil {
			return err
		}
		*flat = append(*flat, api.EncodeU32(ptr), api.EncodeU32(n))
		return nil

	case convert.KindSlice, convert.KindArray:
		ptr, n, err := c.storeList(s.Elem, v, path)
		if err != nil {
			return err
		}
		*flat = append(*flat, api.EncodeU32(ptr), api.EncodeU32(n))
		return nil

	case convert.KindMap:
		ptr, n, err := c.storeMap(s, v, path)
		if err != nil {
			return err
		}
		*flat = append(*flat, api.EncodeU32(ptr), api.EncodeU32(n))
		return nil

	case convert.KindReference:
		if v.IsNil() {
			*flat = append(*flat, 0)
			for i := 0; i < flatCount(s.Elem); i++ {
				*flat = append(*flat, 0)
			}
			return nil
		}
		*flat = append(*flat, 1)
		return c.lower(s.Elem, v.Elem(), flat, path)

	case convert.KindObject:
		for _, f := range s.Fields {
			if err := c.lower(f.Spec, v.FieldByIndex(f.Index), flat, append(path, f.Name)); err != nil {
				return err
			}
		}
		return nil
	}
	return errors.New(errors.PhaseToTarget, errors.KindConversion).
		Path(path...).
		GoType(s.GoType.String()).
		Detail("unsupported kind %s", s.Kind).
		Build()
}

// lift decodes flat stack words into an addressable host value.
func (c *converter) lift(s *convert.Spec, r *wordReader, dst reflect.Value, path []string) error {
	switch s.Kind {
	case convert.KindBool:
		dst.SetBool(api.DecodeU32(r.next()) != 0)
		return nil

	case convert.KindInt:
		return c.liftInt(s, r.next(), dst, path)

	case convert.KindUint:
		return c.liftUint(s, r.next(), dst, path)

	case convert.KindEnum:
		if isUintKind(s.GoType.Kind()) {
			return c.liftUint(s, r.next(), dst, path)
		}
		return c.liftInt(s, r.next(), dst, path)

	case convert.KindFloat:
		if s.GoType.Kind() == reflect.Float32 {
			dst.SetFloat(float64(api.DecodeF32(r.next())))
		} else {
			dst.SetFloat(api.DecodeF64(r.next()))
		}
		return nil

	case convert.KindString:
		ptr := api.DecodeU32(r.next())
		n := api.DecodeU32(r.next())
		str, err := c.loadString(ptr, n, path)
		if err != nil {
			return err
		}
		dst.SetString(str)
		return nil

	case convert.KindSlice:
		ptr := api.DecodeU32(r.next())
		n := api.DecodeU32(r.next())
		return c.loadSlice(s, ptr, n, dst, path)

	case convert.KindArray:
		ptr := api.DecodeU32(r.next())
		n := api.DecodeU32(r.next())
		if int(n) != s.Len {
			return errors.LengthMismatch(errors.PhaseFromTarget, path, int(n), s.Len)
		}
		return c.loadArray(s, ptr, dst, path)

	case convert.KindMap:
		ptr := api.DecodeU32(r.next())
		n := api.DecodeU32(r.next())
		return c.loadMap(s, ptr, n, dst, path)

	case convert.KindReference:
		if api.DecodeU32(r.next()) == 0 {
			r.skip(flatCount(s.Elem))
			dst.Set(reflect.Zero(s.GoType))
			return nil
		}
		p := reflect.New(s.Elem.GoType)
		if err := c.lift(s.Elem, r, p.Elem(), path); err != nil {
			return err
		}
		dst.Set(p)
		return nil

	case convert.KindObject:
		tmp := reflect.New(s.GoType).Elem()
		for _, f := range s.Fields {
			if err := c.lift(f.Spec, r, tmp.FieldByIndex(f.Index), append(path, f.Name)); err != nil {
				return err
			}
		}
		dst.Set(tmp)
		return nil
	}
	return errors.New(errors.PhaseFromTarget, errors.KindConversion).
		Path(path...).
		GoType(s.GoType.String()).
		Detail("unsupported kind %s", s.Kind).
		Build()
}

func (c *converter) liftInt(s *convert.Spec, w uint64, dst reflect.Value, path []string) error {
	var n int64
	switch intByteSize(s.GoType.Kind()) {
	case 1:
		n = int64(int8(w))
	case 2:
		n = int64(int16(w))
	case 4:
		n = int64(api.DecodeI32(w))
	default:
		n = int64(w)
	}
	if dst.OverflowInt(n) {
		return errors.Overflow(errors.PhaseFromTarget, path, n, s.GoType.String())
	}
	dst.SetInt(n)
	return nil
}

func (c *converter) liftUint(s *convert.Spec, w uint64, dst reflect.Value, path []string) error {
	var n uint64
	switch intByteSize(s.GoType.Kind()) {
	case 1:
		n = uint64(uint8(w))
	case 2:
		n = uint64(uint16(w))
	case 4:
		n = uint64(api.DecodeU32(w))
	default:
		n = w
	}
	if dst.OverflowUint(n) {
		return errors.Overflow(errors.PhaseFromTarget, path, n, s.GoType.String())
	}
	dst.SetUint(n)
	return nil
}

// memory returns the guest memory view or fails when the caller has no
// exported memory to read from.
func (c *converter) memory(phase errors.Phase, path []string) (Memory, error) {
	if c.env.mem == nil {
		return nil, errors.New(phase, errors.KindConversion).
			Path(path...).
			Detail("guest module exports no memory").
			Build()
	}
	return c.env.mem, nil
}

func (c *converter) memErr(phase errors.Phase, err error, path []string) error {
	return errors.New(phase, errors.KindConversion).
		Path(path...).
		Cause(err).
		Detail("guest memory access failed").
		Build()
}

// guestAlloc allocates in guest memory through cabi_realloc and tracks
// the allocation so a failed call can release everything it lowered.
func (c *converter) guestAlloc(size, align uint32, path []string) (uint32, error) {
	if c.env.alloc == nil {
		return 0, errors.New(errors.PhaseToTarget, errors.KindConversion).
			Path(path...).
			Detail("guest module exports no cabi_realloc").
			Build()
	}
	ptr, err := c.env.alloc.Alloc(size, align)
	if err != nil {
		return 0, errors.New(errors.PhaseToTarget, errors.KindConversion).
			Path(path...).
			Cause(err).
			Detail("failed to allocate %d bytes in guest memory", size).
			Build()
	}
	c.env.allocs.add(ptr, size, align)
	return ptr, nil
}

func (c *converter) storeString(str string, path []string) (uint32, uint32, error) {
	if !utf8.ValidString(str) {
		return 0, 0, errors.New(errors.PhaseToTarget, errors.KindConversion).
			Path(path...).
			Detail("string is not valid UTF-8").
			Build()
	}
	n := uint32(len(str))
	if n > MaxStringSize {
		return 0, 0, errors.New(errors.PhaseToTarget, errors.KindConversion).
			Path(path...).
			Detail("string size %d exceeds maximum %d", n, MaxStringSize).
			Build()
	}
	if n == 0 {
		return 0, 0, nil
	}
	mem, err := c.memory(errors.PhaseToTarget, path)
	if err != nil {
		return 0, 0, err
	}
	ptr, err := c.guestAlloc(n, 1, path)
	if err != nil {
		return 0, 0, err
	}
	if err := mem.Write(ptr, []byte(str)); err != nil {
		return 0, 0, c.memErr(errors.PhaseToTarget, err, path)
	}
	return ptr, n, nil
}

func (c *converter) storeList(elem *convert.Spec, v reflect.Value, path []string) (uint32, uint32, error) {
	n := uint32(v.Len())
	if n > MaxListLength {
		return 0, 0, errors.New(errors.PhaseToTarget, errors.KindConversion).
			Path(path...).
			Detail("list length %d exceeds maximum %d", n, MaxListLength).
			Build()
	}
	if n == 0 {
		return 0, 0, nil
	}
	es, ea := sizeAlign(elem)
	size, ok := safeMulU32(es, n)
	if !ok {
		return 0, 0, errors.New(errors.PhaseToTarget, errors.KindConversion).
			Path(path...).
			Detail("list data size overflow: %d * %d", n, es).
			Build()
	}
	if size == 0 {
		return 0, n, nil
	}
	ptr, err := c.guestAlloc(size, ea, path)
	if err != nil {
		return 0, 0, err
	}
	for i := 0; i < v.Len(); i++ {
		addr := ptr + uint32(i)*es
		if err := c.store(elem, v.Index(i), addr, append(path, fmt.Sprintf("[%d]", i))); err != nil {
			return 0, 0, err
		}
	}
	return ptr, n, nil
}

func (c *converter) storeMap(s *convert.Spec, v reflect.Value, path []string) (uint32, uint32, error) {
	n := uint32(v.Len())
	if n > MaxListLength {
		return 0, 0, errors.New(errors.PhaseToTarget, errors.KindConversion).
			Path(path...).
			Detail("map length %d exceeds maximum %d", n, MaxListLength).
			Build()
	}
	if n == 0 {
		return 0, 0, nil
	}
	size, align, valOff := pairLayout(s.Key, s.Elem)
	total, ok := safeMulU32(size, n)
	if !ok {
		return 0, 0, errors.New(errors.PhaseToTarget, errors.KindConversion).
			Path(path...).
			Detail("map data size overflow: %d * %d", n, size).
			Build()
	}
	ptr, err := c.guestAlloc(total, align, path)
	if err != nil {
		return 0, 0, err
	}
	i := uint32(0)
	iter := v.MapRange()
	for iter.Next() {
		base := ptr + i*size
		if err := c.store(s.Key, iter.Key(), base, path); err != nil {
			return 0, 0, err
		}
		if err := c.store(s.Elem, iter.Value(), base+valOff, append(path, fmt.Sprint(iter.Key()))); err != nil {
			return 0, 0, err
		}
		i++
	}
	return ptr, n, nil
}

// pairLayout returns the guest layout of one map entry: a record of the
// key followed by the value at its aligned offset.
func pairLayout(key, elem *convert.Spec) (size, align, valOff uint32) {
	ks, ka := sizeAlign(key)
	vs, va := sizeAlign(elem)
	align = ka
	if va > align {
		align = va
	}
	valOff = alignTo(ks, va)
	size = alignTo(valOff+vs, align)
	return size, align, valOff
}

// store writes a host value into guest memory at addr using canonical
// layout. The caller aligns addr for s.
func (c *converter) store(s *convert.Spec, v reflect.Value, addr uint32, path []string) error {
	mem, err := c.memory(errors.PhaseToTarget, path)
	if err != nil {
		return err
	}
	switch s.Kind {
	case convert.KindBool:
		var b uint8
		if v.Bool() {
			b = 1
		}
		return c.storeErr(mem.WriteU8(addr, b), path)

	case convert.KindInt:
		return c.storeIntBits(s.GoType.Kind(), uint64(v.Int()), addr, path)

	case convert.KindUint:
		return c.storeIntBits(s.GoType.Kind(), v.Uint(), addr, path)

	case convert.KindEnum:
		if isUintKind(s.GoType.Kind()) {
			return c.storeIntBits(s.GoType.Kind(), v.Uint(), addr, path)
		}
		return c.storeIntBits(s.GoType.Kind(), uint64(v.Int()), addr, path)

	case convert.KindFloat:
		if s.GoType.Kind() == reflect.Float32 {
			bits := canonicalizeF32(math.Float32bits(float32(v.Float())))
			return c.storeErr(mem.WriteU32(addr, bits), path)
		}
		bits := canonicalizeF64(math.Float64bits(v.Float()))
		return c.storeErr(mem.WriteU64(addr, bits), path)

	case convert.KindString:
		ptr, n, err := c.storeString(v.String(), path)
		if err != nil {
			return err
		}
		return c.storePair(mem, addr, ptr, n, path)

	case convert.KindSlice, convert.KindArray:
		ptr, n, err := c.storeList(s.Elem, v, path)
		if err != nil {
			return err
		}
		return c.storePair(mem, addr, ptr, n, path)

	case convert.KindMap:
		ptr, n, err := c.storeMap(s, v, path)
		if err != nil {
			return err
		}
		return c.storePair(mem, addr, ptr, n, path)

	case convert.KindReference:
		_, ea := sizeAlign(s.Elem)
		if v.IsNil() {
			return c.storeErr(mem.WriteU8(addr, 0), path)
		}
		if err := mem.WriteU8(addr, 1); err != nil {
			return c.memErr(errors.PhaseToTarget, err, path)
		}
		return c.store(s.Elem, v.Elem(), alignTo(addr+1, ea), path)

	case convert.KindObject:
		off := addr
		for _, f := range s.Fields {
			fs, fa := sizeAlign(f.Spec)
			off = alignTo(off, fa)
			if err := c.store(f.Spec, v.FieldByIndex(f.Index), off, append(path, f.Name)); err != nil {
				return err
			}
			off += fs
		}
		return nil
	}
	return errors.New(errors.PhaseToTarget, errors.KindConversion).
		Path(path...).
		GoType(s.GoType.String()).
		Detail("unsupported kind %s", s.Kind).
		Build()
}

func (c *converter) storePair(mem Memory, addr, ptr, n uint32, path []string) error {
	if err := mem.WriteU32(addr, ptr); err != nil {
		return c.memErr(errors.PhaseToTarget, err, path)
	}
	return c.storeErr(mem.WriteU32(addr+4, n), path)
}

func (c *converter) storeErr(err error, path []string) error {
	if err != nil {
		return c.memErr(errors.PhaseToTarget, err, path)
	}
	return nil
}

func (c *converter) storeIntBits(k reflect.Kind, bits uint64, addr uint32, path []string) error {
	mem := c.env.mem
	var err error
	switch intByteSize(k) {
	case 1:
		err = mem.WriteU8(addr, uint8(bits))
	case 2:
		err = mem.WriteU16(addr, uint16(bits))
	case 4:
		err = mem.WriteU32(addr, uint32(bits))
	default:
		err = mem.WriteU64(addr, bits)
	}
	return c.storeErr(err, path)
}

func (c *converter) loadString(ptr, n uint32, path []string) (string, error) {
	if n == 0 {
		return "", nil
	}
	if n > MaxStringSize {
		return "", errors.New(errors.PhaseFromTarget, errors.KindConversion).
			Path(path...).
			Detail("string size %d exceeds maximum %d", n, MaxStringSize).
			Build()
	}
	mem, err := c.memory(errors.PhaseFromTarget, path)
	if err != nil {
		return "", err
	}
	data, err := mem.Read(ptr, n)
	if err != nil {
		return "", c.memErr(errors.PhaseFromTarget, err, path)
	}
	if !utf8.Valid(data) {
		return "", errors.New(errors.PhaseFromTarget, errors.KindConversion).
			Path(path...).
			Detail("string is not valid UTF-8").
			Build()
	}
	return string(data), nil
}

func (c *converter) loadSlice(s *convert.Spec, ptr, n uint32, dst reflect.Value, path []string) error {
	if n > MaxListLength {
		return errors.New(errors.PhaseFromTarget, errors.KindConversion).
			Path(path...).
			Detail("list length %d exceeds maximum %d", n, MaxListLength).
			Build()
	}
	es, _ := sizeAlign(s.Elem)
	out := reflect.MakeSlice(s.GoType, int(n), int(n))
	for i := uint32(0); i < n; i++ {
		if err := c.load(s.Elem, ptr+i*es, out.Index(int(i)), append(path, fmt.Sprintf("[%d]", i))); err != nil {
			return err
		}
	}
	dst.Set(out)
	return nil
}

func (c *converter) loadArray(s *convert.Spec, ptr uint32, dst reflect.Value, path []string) error {
	es, _ := sizeAlign(s.Elem)
	tmp := reflect.New(s.GoType).Elem()
	for i := 0; i < s.Len; i++ {
		if err := c.load(s.Elem, ptr+uint32(i)*es, tmp.Index(i), append(path, fmt.Sprintf("[%d]", i))); err != nil {
			return err
		}
	}
	dst.Set(tmp)
	return nil
}

func (c *converter) loadMap(s *convert.Spec, ptr, n uint32, dst reflect.Value, path []string) error {
	if n > MaxListLength {
		return errors.New(errors.PhaseFromTarget, errors.KindConversion).
			Path(path...).
			Detail("map length %d exceeds maximum %d", n, MaxListLength).
			Build()
	}
	size, _, valOff := pairLayout(s.Key, s.Elem)
	out := reflect.MakeMap(s.GoType)
	for i := uint32(0); i < n; i++ {
		base := ptr + i*size
		kv := reflect.New(s.Key.GoType).Elem()
		if err := c.load(s.Key, base, kv, path); err != nil {
			return err
		}
		ev := reflect.New(s.Elem.GoType).Elem()
		if err := c.load(s.Elem, base+valOff, ev, append(path, fmt.Sprint(kv.Interface()))); err != nil {
			return err
		}
		out.SetMapIndex(kv, ev)
	}
	dst.Set(out)
	return nil
}

// load reads a guest memory value at addr into an addressable host value.
func (c *converter) load(s *convert.Spec, addr uint32, dst reflect.Value, path []string) error {
	mem, err := c.memory(errors.PhaseFromTarget, path)
	if err != nil {
		return err
	}
	switch s.Kind {
	case convert.KindBool:
		b, err := mem.ReadU8(addr)
		if err != nil {
			return c.memErr(errors.PhaseFromTarget, err, path)
		}
		dst.SetBool(b != 0)
		return nil

	case convert.KindInt:
		bits, err := c.loadIntBits(s.GoType.Kind(), addr, path)
		if err != nil {
			return err
		}
		return c.liftInt(s, bits, dst, path)

	case convert.KindUint:
		bits, err := c.loadIntBits(s.GoType.Kind(), addr, path)
		if err != nil {
			return err
		}
		return c.liftUint(s, bits, dst, path)

	case convert.KindEnum:
		bits, err := c.loadIntBits(s.GoType.Kind(), addr, path)
		if err != nil {
			return err
		}
		if isUintKind(s.GoType.Kind()) {
			return c.liftUint(s, bits, dst, path)
		}
		return c.liftInt(s, bits, dst, path)

	case convert.KindFloat:
		if s.GoType.Kind() == reflect.Float32 {
			bits, err := mem.ReadU32(addr)
			if err != nil {
				return c.memErr(errors.PhaseFromTarget, err, path)
			}
			dst.SetFloat(float64(math.Float32frombits(bits)))
			return nil
		}
		bits, err := mem.ReadU64(addr)
		if err != nil {
			return c.memErr(errors.PhaseFromTarget, err, path)
		}
		dst.SetFloat(math.Float64frombits(bits))
		return nil

	case convert.KindString:
		ptr, n, err := c.loadPair(mem, addr, path)
		if err != nil {
			return err
		}
		str, err := c.loadString(ptr, n, path)
		if err != nil {
			return err
		}
		dst.SetString(str)
		return nil

	case convert.KindSlice:
		ptr, n, err := c.loadPair(mem, addr, path)
		if err != nil {
			return err
		}
		return c.loadSlice(s, ptr, n, dst, path)

	case convert.KindArray:
		ptr, n, err := c.loadPair(mem, addr, path)
		if err != nil {
			return err
		}
		if int(n) != s.Len {
			return errors.LengthMismatch(errors.PhaseFromTarget, path, int(n), s.Len)
		}
		return c.loadArray(s, ptr, dst, path)

	case convert.KindMap:
		ptr, n, err := c.loadPair(mem, addr, path)
		if err != nil {
			return err
		}
		return c.loadMap(s, ptr, n, dst, path)

	case convert.KindReference:
		disc, err := mem.ReadU8(addr)
		if err != nil {
			return c.memErr(errors.PhaseFromTarget, err, path)
		}
		if disc == 0 {
			dst.Set(reflect.Zero(s.GoType))
			return nil
		}
		_, ea := sizeAlign(s.Elem)
		p := reflect.New(s.Elem.GoType)
		if err := c.load(s.Elem, alignTo(addr+1, ea), p.Elem(), path); err != nil {
			return err
		}
		dst.Set(p)
		return nil

	case convert.KindObject:
		tmp := reflect.New(s.GoType).Elem()
		off := addr
		for _, f := range s.Fields {
			fs, fa := sizeAlign(f.Spec)
			off = alignTo(off, fa)
			if err := c.load(f.Spec, off, tmp.FieldByIndex(f.Index), append(path, f.Name)); err != nil {
				return err
			}
			off += fs
		}
		dst.Set(tmp)
		return nil
	}
	return errors.New(errors.PhaseFromTarget, errors.KindConversion).
		Path(path...).
		GoType(s.GoType.String()).
		Detail("unsupported kind %s", s.Kind).
		Build()
}

func (c *converter) loadPair(mem Memory, addr uint32, path []string) (uint32, uint32, error) {
	ptr, err := mem.ReadU32(addr)
	if err != nil {
		return 0, 0, c.memErr(errors.PhaseFromTarget, err, path)
	}
	n, err := mem.ReadU32(addr + 4)
	if err != nil {
		return 0, 0, c.memErr(errors.PhaseFromTarget, err, path)
	}
	return ptr, n, nil
}

func (c *converter) loadIntBits(k reflect.Kind, addr uint32, path []string) (uint64, error) {
	mem := c.env.mem
	switch intByteSize(k) {
	case 1:
		v, err := mem.ReadU8(addr)
		if err != nil {
			return 0, c.memErr(errors.PhaseFromTarget, err, path)
		}
		return uint64(v), nil
	case 2:
		v, err := mem.ReadU16(addr)
		if err != nil {
			return 0, c.memErr(errors.PhaseFromTarget, err, path)
		}
		return uint64(v), nil
	case 4:
		v, err := mem.ReadU32(addr)
		if err != nil {
			return 0, c.memErr(errors.PhaseFromTarget, err, path)
		}
		return uint64(v), nil
	}
	v, err := mem.ReadU64(addr)
	if err != nil {
		return 0, c.memErr(errors.PhaseFromTarget, err, path)
	}
	return v, nil
}
