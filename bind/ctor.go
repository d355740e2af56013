package bind

import (
	"reflect"

	"github.com/wippyai/mirror/errors"
)

// New dispatches construction for the supplied target arguments and
// returns the new instance as a *T reflect value.
//
// Zero arguments take the fast path: the declared niladic constructor if
// one exists, otherwise the zero value. Otherwise constructors are
// scanned in declaration order and the first whose parameter count equals
// len(args) is selected; none matching fails with a no-constructor error.
// Arguments convert positionally; the first conversion failure aborts the
// call and no partially constructed instance escapes.
func (t *Table[V]) New(args []V) (reflect.Value, error) {
	d := t.Class

	if len(args) == 0 {
		if d.Niladic != nil {
			return t.construct(d.Niladic.Func, nil, d.Niladic.RetPtr, d.Niladic.ReturnsErr)
		}
		return reflect.New(d.GoType), nil
	}

	for i := range d.Constructors {
		ct := &d.Constructors[i]
		if len(ct.Params) != len(args) {
			continue
		}

		in := make([]reflect.Value, len(args))
		for j, p := range ct.Params {
			pv := reflect.New(p.GoType).Elem()
			if err := t.conv.FromTarget(p, args[j], pv); err != nil {
				return reflect.Value{}, err
			}
			in[j] = pv
		}
		return t.construct(ct.Func, in, ct.RetPtr, ct.ReturnsErr)
	}

	return reflect.Value{}, errors.NoConstructor(d.Name, len(args))
}

func (t *Table[V]) construct(fn reflect.Value, in []reflect.Value, retPtr, returnsErr bool) (reflect.Value, error) {
	out := fn.Call(in)

	if returnsErr {
		if errv := out[len(out)-1]; !errv.IsNil() {
			return reflect.Value{}, errv.Interface().(error)
		}
	}

	rv := out[0]
	if retPtr {
		if rv.IsNil() {
			return reflect.Value{}, errors.New(errors.PhaseConstruct, errors.KindInvalidInput).
				Class(t.Class.Name).
				Detail("constructor returned nil").
				Build()
		}
		return rv, nil
	}

	p := reflect.New(rv.Type())
	p.Elem().Set(rv)
	return p, nil
}
