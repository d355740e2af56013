package wasm

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/mirror/bind"
	"github.com/wippyai/mirror/convert"
	"github.com/wippyai/mirror/descriptor"
	"github.com/wippyai/mirror/errors"
)

// RenderWIT renders the guest-facing surface of the given classes as a
// WIT document: one interface per class declaring the records its
// signatures use and a resource with the same exports the class's host
// module carries. The document describes the boundary; it is not
// consumed by the binder.
func RenderWIT(classes ...*descriptor.Class) (string, error) {
	var sb strings.Builder
	sb.WriteString("package mirror:class;\n")
	for _, d := range classes {
		text, err := renderInterface(d)
		if err != nil {
			return "", err
		}
		sb.WriteString("\n")
		sb.WriteString(text)
	}
	return sb.String(), nil
}

func renderInterface(d *descriptor.Class) (string, error) {
	res := kebab(d.Name)
	b := newWitBuilder(res)

	methodNames, err := bind.ExportedNames(d.Name, d.Methods)
	if err != nil {
		return "", err
	}
	staticNames, err := bind.ExportedNames(d.Name, d.Statics)
	if err != nil {
		return "", err
	}

	// Function names claim their identifiers before any record is
	// named, so generated record names never shadow an export.
	b.reserve("drop")
	for _, f := range d.Fields {
		b.reserve("get-" + kebab(f.Name))
		b.reserve("set-" + kebab(f.Name))
	}
	for _, n := range methodNames {
		b.reserve(kebab(n))
	}
	for _, n := range staticNames {
		b.reserve(kebab(n))
	}

	var funcs []string

	arities := ctorArities(d)
	for _, arity := range arities {
		params, err := b.paramList(ctorParams(d, arity))
		if err != nil {
			return "", witErr(d.Name, fmt.Sprintf("new%d", arity), err)
		}
		funcs = append(funcs, fmt.Sprintf("new%d: static func(%s) -> %s;", arity, params, res))
	}

	for _, f := range d.Fields {
		ft, err := b.typeFor(f.Spec)
		if err != nil {
			return "", witErr(d.Name, f.Name, err)
		}
		name := kebab(f.Name)
		funcs = append(funcs, fmt.Sprintf("get-%s: func() -> %s;", name, b.render(ft)))
		if !f.ReadOnly {
			funcs = append(funcs, fmt.Sprintf("set-%s: func(value: %s);", name, b.render(ft)))
		}
	}

	for i := range d.Methods {
		line, err := b.funcLine(kebab(methodNames[i]), &d.Methods[i], false)
		if err != nil {
			return "", witErr(d.Name, methodNames[i], err)
		}
		funcs = append(funcs, line)
	}

	for i := range d.Statics {
		line, err := b.funcLine(kebab(staticNames[i]), &d.Statics[i], true)
		if err != nil {
			return "", witErr(d.Name, staticNames[i], err)
		}
		funcs = append(funcs, line)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "interface %s {\n", res)
	for _, td := range b.decls {
		rec := td.Kind.(*wit.Record)
		fmt.Fprintf(&sb, "  record %s {\n", b.names[td])
		for _, f := range rec.Fields {
			fmt.Fprintf(&sb, "    %s: %s,\n", f.Name, b.render(f.Type))
		}
		sb.WriteString("  }\n\n")
	}
	fmt.Fprintf(&sb, "  resource %s {\n", res)
	for _, line := range funcs {
		sb.WriteString("    ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("  }\n}\n")
	return sb.String(), nil
}

// ctorArities returns the constructor arities a class module exports, in
// ascending order. Zero is always present.
func ctorArities(d *descriptor.Class) []int {
	seen := map[int]bool{0: true}
	arities := []int{0}
	for i := range d.Constructors {
		n := len(d.Constructors[i].Params)
		if !seen[n] {
			seen[n] = true
			arities = append(arities, n)
		}
	}
	sort.Ints(arities)
	return arities
}

// ctorParams returns the parameter specs of the first constructor with
// the given arity, mirroring dispatch order.
func ctorParams(d *descriptor.Class, arity int) []*convert.Spec {
	if arity == 0 {
		if d.Niladic != nil {
			return d.Niladic.Params
		}
		return nil
	}
	for i := range d.Constructors {
		if len(d.Constructors[i].Params) == arity {
			return d.Constructors[i].Params
		}
	}
	return nil
}

func witErr(class, member string, err error) error {
	return errors.New(errors.PhaseRegister, errors.KindStructure).
		Class(class).
		Path(member).
		Cause(err).
		Detail("member has no WIT representation").
		Build()
}

// witBuilder accumulates the record declarations one interface needs and
// names them without colliding with the interface's other identifiers.
type witBuilder struct {
	resource string
	types    map[*convert.Spec]wit.Type
	names    map[*wit.TypeDef]string
	decls    []*wit.TypeDef
	used     map[string]bool
	building map[*convert.Spec]bool
}

func newWitBuilder(resource string) *witBuilder {
	b := &witBuilder{
		resource: resource,
		types:    make(map[*convert.Spec]wit.Type),
		names:    make(map[*wit.TypeDef]string),
		used:     make(map[string]bool),
		building: make(map[*convert.Spec]bool),
	}
	b.used[resource] = true
	return b
}

func (b *witBuilder) reserve(name string) {
	b.used[name] = true
}

func (b *witBuilder) paramList(specs []*convert.Spec) (string, error) {
	parts := make([]string, len(specs))
	for i, s := range specs {
		t, err := b.typeFor(s)
		if err != nil {
			return "", err
		}
		parts[i] = fmt.Sprintf("arg%d: %s", i, b.render(t))
	}
	return strings.Join(parts, ", "), nil
}

func (b *witBuilder) funcLine(name string, m *descriptor.Method, static bool) (string, error) {
	params, err := b.paramList(m.Params)
	if err != nil {
		return "", err
	}
	kind := "func"
	if static {
		kind = "static func"
	}
	if m.Result == nil {
		return fmt.Sprintf("%s: %s(%s);", name, kind, params), nil
	}
	rt, err := b.typeFor(m.Result)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: %s(%s) -> %s;", name, kind, params, b.render(rt)), nil
}

// typeFor maps a conversion spec to its WIT type, declaring records for
// objects on first sight.
func (b *witBuilder) typeFor(s *convert.Spec) (wit.Type, error) {
	if t, ok := b.types[s]; ok {
		return t, nil
	}
	switch s.Kind {
	case convert.KindBool:
		return wit.Bool{}, nil

	case convert.KindInt:
		return intWit(s.GoType.Kind()), nil

	case convert.KindUint:
		return intWit(s.GoType.Kind()), nil

	case convert.KindEnum:
		// Enums cross as their underlying integer.
		return intWit(s.GoType.Kind()), nil

	case convert.KindFloat:
		if s.GoType.Kind() == reflect.Float32 {
			return wit.F32{}, nil
		}
		return wit.F64{}, nil

	case convert.KindString:
		return wit.String{}, nil

	case convert.KindSlice, convert.KindArray:
		et, err := b.typeFor(s.Elem)
		if err != nil {
			return nil, err
		}
		t := &wit.TypeDef{Kind: &wit.List{Type: et}}
		b.types[s] = t
		return t, nil

	case convert.KindMap:
		kt, err := b.typeFor(s.Key)
		if err != nil {
			return nil, err
		}
		vt, err := b.typeFor(s.Elem)
		if err != nil {
			return nil, err
		}
		pair := &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{kt, vt}}}
		t := &wit.TypeDef{Kind: &wit.List{Type: pair}}
		b.types[s] = t
		return t, nil

	case convert.KindReference:
		et, err := b.typeFor(s.Elem)
		if err != nil {
			return nil, err
		}
		t := &wit.TypeDef{Kind: &wit.Option{Type: et}}
		b.types[s] = t
		return t, nil

	case convert.KindObject:
		if b.building[s] {
			return nil, fmt.Errorf("recursive type %s", s.GoType)
		}
		b.building[s] = true
		rec := &wit.Record{}
		for _, f := range s.Fields {
			ft, err := b.typeFor(f.Spec)
			if err != nil {
				delete(b.building, s)
				return nil, err
			}
			rec.Fields = append(rec.Fields, wit.Field{Name: kebab(f.Name), Type: ft})
		}
		delete(b.building, s)

		td := &wit.TypeDef{Kind: rec}
		b.names[td] = b.declName(s)
		b.decls = append(b.decls, td)
		b.types[s] = td
		return td, nil
	}
	return nil, fmt.Errorf("unsupported kind %s", s.Kind)
}

func (b *witBuilder) declName(s *convert.Spec) string {
	base := s.GoType.Name()
	if base == "" {
		base = fmt.Sprintf("record%d", len(b.decls))
	} else {
		base = kebab(convert.ToSnakeCase(base))
	}
	if base == b.resource {
		base += "-data"
	}
	name := base
	for i := 2; b.used[name]; i++ {
		name = fmt.Sprintf("%s%d", base, i)
	}
	b.used[name] = true
	return name
}

func intWit(k reflect.Kind) wit.Type {
	if isUintKind(k) {
		switch intByteSize(k) {
		case 1:
			return wit.U8{}
		case 2:
			return wit.U16{}
		case 4:
			return wit.U32{}
		}
		return wit.U64{}
	}
	switch intByteSize(k) {
	case 1:
		return wit.S8{}
	case 2:
		return wit.S16{}
	case 4:
		return wit.S32{}
	}
	return wit.S64{}
}

func (b *witBuilder) render(t wit.Type) string {
	switch v := t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if name, ok := b.names[v]; ok {
			return name
		}
		switch k := v.Kind.(type) {
		case *wit.List:
			return "list<" + b.render(k.Type) + ">"
		case *wit.Option:
			return "option<" + b.render(k.Type) + ">"
		case *wit.Tuple:
			parts := make([]string, len(k.Types))
			for i, tt := range k.Types {
				parts[i] = b.render(tt)
			}
			return "tuple<" + strings.Join(parts, ", ") + ">"
		}
	}
	return fmt.Sprintf("%T", t)
}
