package js

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/dop251/goja"

	"github.com/wippyai/mirror/convert"
	"github.com/wippyai/mirror/errors"
)

// converter implements bind.Converter[goja.Value]. goja exports
// integer-valued numbers as int64 and everything else as float64, so
// numeric categories accept both and apply the same integral and range
// rules as the other adapters.
type converter struct {
	vm *goja.Runtime
}

func (c *converter) ToTarget(s *convert.Spec, v reflect.Value) (goja.Value, error) {
	return c.toTarget(s, v, nil)
}

func (c *converter) FromTarget(s *convert.Spec, val goja.Value, dst reflect.Value) error {
	return c.fromTarget(s, val, dst, nil)
}

func (c *converter) toTarget(s *convert.Spec, v reflect.Value, path []string) (goja.Value, error) {
	switch s.Kind {
	case convert.KindBool:
		return c.vm.ToValue(v.Bool()), nil
	case convert.KindInt:
		return c.vm.ToValue(v.Int()), nil
	case convert.KindUint:
		return c.vm.ToValue(v.Uint()), nil
	case convert.KindFloat:
		return c.vm.ToValue(v.Float()), nil
	case convert.KindEnum:
		if isUintKind(s.GoType.Kind()) {
			return c.vm.ToValue(v.Uint()), nil
		}
		return c.vm.ToValue(v.Int()), nil
	case convert.KindString:
		return c.vm.ToValue(v.String()), nil
	case convert.KindSlice, convert.KindArray:
		items := make([]interface{}, v.Len())
		for i := 0; i < v.Len(); i++ {
			ev, err := c.toTarget(s.Elem, v.Index(i), append(path, fmt.Sprintf("[%d]", i)))
			if err != nil {
				return nil, err
			}
			items[i] = ev
		}
		return c.vm.NewArray(items...), nil
	case convert.KindMap:
		obj := c.vm.NewObject()
		iter := v.MapRange()
		for iter.Next() {
			key, err := c.mapKey(s.Key, iter.Key())
			if err != nil {
				return nil, err
			}
			ev, err := c.toTarget(s.Elem, iter.Value(), append(path, key))
			if err != nil {
				return nil, err
			}
			if err := obj.Set(key, ev); err != nil {
				return nil, errors.Wrap(errors.PhaseToTarget, errors.KindConversion, err, "setting object key")
			}
		}
		return obj, nil
	case convert.KindReference:
		if v.IsNil() {
			return goja.Null(), nil
		}
		return c.toTarget(s.Elem, v.Elem(), path)
	case convert.KindObject:
		obj := c.vm.NewObject()
		for _, f := range s.Fields {
			fv, err := c.toTarget(f.Spec, v.FieldByIndex(f.Index), append(path, f.Name))
			if err != nil {
				return nil, err
			}
			if err := obj.Set(f.Name, fv); err != nil {
				return nil, errors.Wrap(errors.PhaseToTarget, errors.KindConversion, err, "setting object field")
			}
		}
		return obj, nil
	}
	return nil, errors.New(errors.PhaseToTarget, errors.KindConversion).
		Path(path...).
		GoType(s.GoType.String()).
		Detail("unsupported kind %s", s.Kind).
		Build()
}

func (c *converter) fromTarget(s *convert.Spec, val goja.Value, dst reflect.Value, path []string) error {
	switch s.Kind {
	case convert.KindBool:
		b, ok := exported(val).(bool)
		if !ok {
			return c.mismatch(s, val, path)
		}
		dst.SetBool(b)
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
		switch n := exported(val).(type) {
		case int64:
			dst.SetFloat(float64(n))
			return nil
		case float64:
			dst.SetFloat(n)
			return nil
		}
		return c.mismatch(s, val, path)

	case convert.KindString:
		str, ok := exported(val).(string)
		if !ok {
			return c.mismatch(s, val, path)
		}
		dst.SetString(str)
		return nil

	case convert.KindSlice:
		obj, n, err := c.arrayOf(s, val, path)
		if err != nil {
			return err
		}
		out := reflect.MakeSlice(s.GoType, 0, n)
		for i := 0; i < n; i++ {
			ev := reflect.New(s.Elem.GoType).Elem()
			if err := c.fromTarget(s.Elem, obj.Get(strconv.Itoa(i)), ev, append(path, fmt.Sprintf("[%d]", i))); err != nil {
				return err
			}
			out = reflect.Append(out, ev)
		}
		dst.Set(out)
		return nil

	case convert.KindArray:
		obj, n, err := c.arrayOf(s, val, path)
		if err != nil {
			return err
		}
		if n != s.Len {
			return errors.LengthMismatch(errors.PhaseFromTarget, path, n, s.Len)
		}
		out := reflect.New(s.GoType).Elem()
		for i := 0; i < n; i++ {
			if err := c.fromTarget(s.Elem, obj.Get(strconv.Itoa(i)), out.Index(i), append(path, fmt.Sprintf("[%d]", i))); err != nil {
				return err
			}
		}
		dst.Set(out)
		return nil

	case convert.KindMap:
		obj, ok := val.(*goja.Object)
		if !ok {
			return c.mismatch(s, val, path)
		}
		out := reflect.MakeMap(s.GoType)
		for _, key := range obj.Keys() {
			kv := reflect.New(s.Key.GoType).Elem()
			if err := c.keyInto(s.Key, key, kv, path); err != nil {
				return err
			}
			ev := reflect.New(s.Elem.GoType).Elem()
			if err := c.fromTarget(s.Elem, obj.Get(key), ev, append(path, key)); err != nil {
				return err
			}
			out.SetMapIndex(kv, ev)
		}
		dst.Set(out)
		return nil

	case convert.KindReference:
		if val == nil || goja.IsNull(val) || goja.IsUndefined(val) {
			dst.Set(reflect.Zero(s.GoType))
			return nil
		}
		recv, isInstance, err := c.unwrap(val)
		if err != nil {
			return err
		}
		if isInstance {
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
		recv, isInstance, err := c.unwrap(val)
		if err != nil {
			return err
		}
		if isInstance {
			if recv.Type().Elem() != s.GoType {
				return c.mismatch(s, val, path)
			}
			dst.Set(recv.Elem())
			return nil
		}
		obj, ok := val.(*goja.Object)
		if !ok {
			return c.mismatch(s, val, path)
		}
		tmp := reflect.New(s.GoType).Elem()
		tmp.Set(dst)
		for _, f := range s.Fields {
			fv := obj.Get(f.Name)
			if fv == nil || goja.IsUndefined(fv) {
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

// arrayOf validates that val is a JS array and returns it with its length.
func (c *converter) arrayOf(s *convert.Spec, val goja.Value, path []string) (*goja.Object, int, error) {
	obj, ok := val.(*goja.Object)
	if !ok || obj.ClassName() != "Array" {
		return nil, 0, c.mismatch(s, val, path)
	}
	return obj, int(obj.Get("length").ToInteger()), nil
}

func (c *converter) mapKey(keySpec *convert.Spec, k reflect.Value) (string, error) {
	switch keySpec.Kind {
	case convert.KindString:
		return k.String(), nil
	case convert.KindInt:
		return strconv.FormatInt(k.Int(), 10), nil
	case convert.KindUint:
		return strconv.FormatUint(k.Uint(), 10), nil
	}
	return "", errors.New(errors.PhaseToTarget, errors.KindConversion).
		GoType(keySpec.GoType.String()).
		Detail("unsupported map key kind %s", keySpec.Kind).
		Build()
}

func (c *converter) keyInto(keySpec *convert.Spec, key string, dst reflect.Value, path []string) error {
	switch keySpec.Kind {
	case convert.KindString:
		dst.SetString(key)
		return nil
	case convert.KindInt:
		n, err := strconv.ParseInt(key, 10, 64)
		if err != nil || dst.OverflowInt(n) {
			return errors.TypeMismatch(errors.PhaseFromTarget, path, keySpec.GoType.String(), "key "+strconv.Quote(key))
		}
		dst.SetInt(n)
		return nil
	case convert.KindUint:
		n, err := strconv.ParseUint(key, 10, 64)
		if err != nil || dst.OverflowUint(n) {
			return errors.TypeMismatch(errors.PhaseFromTarget, path, keySpec.GoType.String(), "key "+strconv.Quote(key))
		}
		dst.SetUint(n)
		return nil
	}
	return errors.TypeMismatch(errors.PhaseFromTarget, path, keySpec.GoType.String(), "key "+strconv.Quote(key))
}

func (c *converter) setUint(s *convert.Spec, val goja.Value, dst reflect.Value, path []string) error {
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

// integral extracts an int64 from a JS number, rejecting fractions, NaN,
// infinities, and values outside the int64 range.
func (c *converter) integral(val goja.Value) (int64, bool) {
	switch n := exported(val).(type) {
	case int64:
		return n, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
			return 0, false
		}
		// float64(MaxInt64) rounds up to 2^63, which does not fit; reject it.
		if n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

// unwrap extracts the bound instance pointer when val is a wrapped
// instance object. A disposed instance is still recognized as one and
// reports the lifecycle error instead of degrading to a plain object.
func (c *converter) unwrap(val goja.Value) (reflect.Value, bool, error) {
	obj, ok := val.(*goja.Object)
	if !ok {
		return reflect.Value{}, false, nil
	}
	inst := instanceOf(obj)
	if inst == nil {
		return reflect.Value{}, false, nil
	}
	recv, err := inst.rec.Recv()
	if err != nil {
		return reflect.Value{}, true, err
	}
	return recv, true, nil
}

func (c *converter) mismatch(s *convert.Spec, val goja.Value, path []string) error {
	got := "null"
	if val != nil {
		got = typeName(val)
	}
	return errors.TypeMismatch(errors.PhaseFromTarget, path, s.GoType.String(), got)
}

// exported returns the Go value behind a JS value, nil for null and
// undefined.
func exported(val goja.Value) interface{} {
	if val == nil || goja.IsNull(val) || goja.IsUndefined(val) {
		return nil
	}
	return val.Export()
}

// typeName renders a JS-side type label for error messages.
func typeName(val goja.Value) string {
	if goja.IsNull(val) {
		return "null"
	}
	if goja.IsUndefined(val) {
		return "undefined"
	}
	if obj, ok := val.(*goja.Object); ok {
		return obj.ClassName()
	}
	return fmt.Sprintf("%T", val.Export())
}

func isUintKind(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}
