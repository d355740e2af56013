package lua

import (
	"fmt"
	"math"
	"reflect"

	glua "github.com/yuin/gopher-lua"

	"github.com/wippyai/mirror/convert"
	"github.com/wippyai/mirror/errors"
)

// converter implements bind.Converter[glua.LValue]. Lua numbers are
// float64, so every numeric category crosses through LNumber; integer
// categories reject non-integral and out-of-range numbers instead of
// truncating silently.
type converter struct {
	L *glua.LState
}

func (c *converter) ToTarget(s *convert.Spec, v reflect.Value) (glua.LValue, error) {
	return c.toTarget(s, v, nil)
}

func (c *converter) FromTarget(s *convert.Spec, val glua.LValue, dst reflect.Value) error {
	return c.fromTarget(s, val, dst, nil)
}

func (c *converter) toTarget(s *convert.Spec, v reflect.Value, path []string) (glua.LValue, error) {
	switch s.Kind {
	case convert.KindBool:
		return glua.LBool(v.Bool()), nil
	case convert.KindInt:
		return glua.LNumber(v.Int()), nil
	case convert.KindUint:
		return glua.LNumber(v.Uint()), nil
	case convert.KindFloat:
		return glua.LNumber(v.Float()), nil
	case convert.KindEnum:
		if isUintKind(s.GoType.Kind()) {
			return glua.LNumber(v.Uint()), nil
		}
		return glua.LNumber(v.Int()), nil
	case convert.KindString:
		return glua.LString(v.String()), nil
	case convert.KindSlice, convert.KindArray:
		t := c.L.CreateTable(v.Len(), 0)
		for i := 0; i < v.Len(); i++ {
			ev, err := c.toTarget(s.Elem, v.Index(i), append(path, fmt.Sprintf("[%d]", i)))
			if err != nil {
				return glua.LNil, err
			}
			t.RawSetInt(i+1, ev)
		}
		return t, nil
	case convert.KindMap:
		t := c.L.CreateTable(0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			kv, err := c.toTarget(s.Key, iter.Key(), path)
			if err != nil {
				return glua.LNil, err
			}
			ev, err := c.toTarget(s.Elem, iter.Value(), append(path, fmt.Sprint(iter.Key())))
			if err != nil {
				return glua.LNil, err
			}
			t.RawSet(kv, ev)
		}
		return t, nil
	case convert.KindReference:
		if v.IsNil() {
			return glua.LNil, nil
		}
		return c.toTarget(s.Elem, v.Elem(), path)
	case convert.KindObject:
		t := c.L.CreateTable(0, len(s.Fields))
		for _, f := range s.Fields {
			fv, err := c.toTarget(f.Spec, v.FieldByIndex(f.Index), append(path, f.Name))
			if err != nil {
				return glua.LNil, err
			}
			t.RawSetString(f.Name, fv)
		}
		return t, nil
	}
	return glua.LNil, errors.New(errors.PhaseToTarget, errors.KindConversion).
		Path(path...).
		GoType(s.GoType.String()).
		Detail("unsupported kind %s", s.Kind).
		Build()
}

func (c *converter) fromTarget(s *convert.Spec, val glua.LValue, dst reflect.Value, path []string) error {
	switch s.Kind {
	case convert.KindBool:
		b, ok := val.(glua.LBool)
		if !ok {
			return c.mismatch(s, val, path)
		}
		dst.SetBool(bool(b))
		return nil

	case convert.KindInt, convert.KindEnum:
		if isUintKind(s.GoType.Kind()) {
			return c.setUint(s, val, dst, path)
		}
		n, ok := c.integral(val)
		if !ok {
			return c.mismatch(s, val, path)
		}
		if dst.OverflowInt(n) {
			return errors.Overflow(errors.PhaseFromTarget, path, n, s.GoType.String())
		}
		dst.SetInt(n)
		return nil

	case convert.KindUint:
		return c.setUint(s, val, dst, path)

	case convert.KindFloat:
		n, ok := val.(glua.LNumber)
		if !ok {
			return c.mismatch(s, val, path)
		}
		dst.SetFloat(float64(n))
		return nil

	case convert.KindString:
		str, ok := val.(glua.LString)
		if !ok {
			return c.mismatch(s, val, path)
		}
		dst.SetString(string(str))
		return nil

	case convert.KindSlice:
		t, ok := val.(*glua.LTable)
		if !ok {
			return c.mismatch(s, val, path)
		}
		n := t.Len()
		out := reflect.MakeSlice(s.GoType, 0, n)
		for i := 1; i <= n; i++ {
			ev := reflect.New(s.Elem.GoType).Elem()
			if err := c.fromTarget(s.Elem, t.RawGetInt(i), ev, append(path, fmt.Sprintf("[%d]", i))); err != nil {
				return err
			}
			out = reflect.Append(out, ev)
		}
		dst.Set(out)
		return nil

	case convert.KindArray:
		t, ok := val.(*glua.LTable)
		if !ok {
			return c.mismatch(s, val, path)
		}
		if t.Len() != s.Len {
			return errors.LengthMismatch(errors.PhaseFromTarget, path, t.Len(), s.Len)
		}
		out := reflect.New(s.GoType).Elem()
		for i := 0; i < s.Len; i++ {
			if err := c.fromTarget(s.Elem, t.RawGetInt(i+1), out.Index(i), append(path, fmt.Sprintf("[%d]", i+1))); err != nil {
				return err
			}
		}
		dst.Set(out)
		return nil

	case convert.KindMap:
		t, ok := val.(*glua.LTable)
		if !ok {
			return c.mismatch(s, val, path)
		}
		out := reflect.MakeMap(s.GoType)
		var convErr error
		t.ForEach(func(k, v glua.LValue) {
			if convErr != nil {
				return
			}
			kv := reflect.New(s.Key.GoType).Elem()
			if err := c.fromTarget(s.Key, k, kv, path); err != nil {
				convErr = err
				return
			}
			ev := reflect.New(s.Elem.GoType).Elem()
			if err := c.fromTarget(s.Elem, v, ev, append(path, fmt.Sprint(kv.Interface()))); err != nil {
				convErr = err
				return
			}
			out.SetMapIndex(kv, ev)
		})
		if convErr != nil {
			return convErr
		}
		dst.Set(out)
		return nil

	case convert.KindReference:
		if val == glua.LNil {
			dst.Set(reflect.Zero(s.GoType))
			return nil
		}
		if ud, ok := val.(*glua.LUserData); ok {
			recv, err := c.unwrap(ud, path)
			if err != nil {
				return err
			}
			if recv.Type() != s.GoType {
				return c.mismatch(s, val, path)
			}
			dst.Set(recv)
			return nil
		}
		p := reflect.New(s.Elem.GoType)
		if err := c.fromTarget(s.Elem, val, p.Elem(), path); err != nil {
			return err
		}
		dst.Set(p)
		return nil

	case convert.KindObject:
		if ud, ok := val.(*glua.LUserData); ok {
			recv, err := c.unwrap(ud, path)
			if err != nil {
				return err
			}
			if recv.Type().Elem() != s.GoType {
				return c.mismatch(s, val, path)
			}
			dst.Set(recv.Elem())
			return nil
		}
		t, ok := val.(*glua.LTable)
		if !ok {
			return c.mismatch(s, val, path)
		}
		tmp := reflect.New(s.GoType).Elem()
		tmp.Set(dst)
		for _, f := range s.Fields {
			fv := t.RawGetString(f.Name)
			if fv == glua.LNil {
				continue
			}
			if err := c.fromTarget(f.Spec, fv, tmp.FieldByIndex(f.Index), append(path, f.Name)); err != nil {
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

func (c *converter) setUint(s *convert.Spec, val glua.LValue, dst reflect.Value, path []string) error {
	n, ok := c.integral(val)
	if !ok {
		return c.mismatch(s, val, path)
	}
	if n < 0 || dst.OverflowUint(uint64(n)) {
		return errors.Overflow(errors.PhaseFromTarget, path, n, s.GoType.String())
	}
	dst.SetUint(uint64(n))
	return nil
}

// integral extracts an int64 from a Lua number, rejecting fractions,
// NaN, infinities, and values outside the int64 range.
func (c *converter) integral(val glua.LValue) (int64, bool) {
	num, ok := val.(glua.LNumber)
	if !ok {
		return 0, false
	}
	n := float64(num)
	if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
		return 0, false
	}
	// float64(MaxInt64) rounds up to 2^63, which does not fit; reject it.
	if n < math.MinInt64 || n >= math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

// unwrap extracts the bound instance pointer from a wrapped userdata.
func (c *converter) unwrap(ud *glua.LUserData, path []string) (reflect.Value, error) {
	inst, ok := ud.Value.(*instance)
	if !ok {
		return reflect.Value{}, errors.New(errors.PhaseFromTarget, errors.KindConversion).
			Path(path...).
			Detail("userdata does not hold a bound instance").
			Build()
	}
	recv, err := inst.rec.Recv()
	if err != nil {
		return reflect.Value{}, err
	}
	return recv, nil
}

func (c *converter) mismatch(s *convert.Spec, val glua.LValue, path []string) error {
	return errors.TypeMismatch(errors.PhaseFromTarget, path, s.GoType.String(), val.Type().String())
}

func isUintKind(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}
