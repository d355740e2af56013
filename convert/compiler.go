package convert

import (
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/wippyai/mirror/errors"
)

// Spec is a compiled classification of one Go type. Specs form a tree:
// sequences and references carry element specs, objects carry field specs.
// A Spec is immutable after compilation and shared across classes.
type Spec struct {
	GoType reflect.Type
	Elem   *Spec
	Key    *Spec
	Fields []Field
	Len    int
	Kind   Kind
}

// Field is one discoverable field of an object spec, with the flattened
// reflect index path into the host struct.
type Field struct {
	Name     string
	Index    []int
	Spec     *Spec
	ReadOnly bool
}

// Compiler classifies Go types into conversion categories. Compilation
// runs once per type and is cached; downstream conversion dispatches on
// the compiled Kind tags without re-deriving structure.
type Compiler struct {
	cache sync.Map // reflect.Type -> *Spec
}

func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile classifies t. Results are memoized; repeated calls for the same
// type return the identical Spec.
func (c *Compiler) Compile(t reflect.Type) (*Spec, error) {
	if t == nil {
		return nil, errors.New(errors.PhaseClassify, errors.KindInvalidInput).
			Detail("Go type cannot be nil").
			Build()
	}

	if cached, ok := c.cache.Load(t); ok {
		return cached.(*Spec), nil
	}

	s, err := c.compile(t, nil, make(map[reflect.Type]*Spec))
	if err != nil {
		return nil, err
	}

	c.cache.Store(t, s)
	return s, nil
}

func (c *Compiler) compile(t reflect.Type, path []string, seen map[reflect.Type]*Spec) (*Spec, error) {
	if s, ok := seen[t]; ok {
		return s, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return &Spec{GoType: t, Kind: KindBool}, nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if t.PkgPath() != "" {
			return &Spec{GoType: t, Kind: KindEnum}, nil
		}
		return &Spec{GoType: t, Kind: KindInt}, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if t.PkgPath() != "" {
			return &Spec{GoType: t, Kind: KindEnum}, nil
		}
		return &Spec{GoType: t, Kind: KindUint}, nil

	case reflect.Float32, reflect.Float64:
		return &Spec{GoType: t, Kind: KindFloat}, nil

	case reflect.String:
		return &Spec{GoType: t, Kind: KindString}, nil

	case reflect.Slice:
		s := &Spec{GoType: t, Kind: KindSlice}
		seen[t] = s
		elem, err := c.compile(t.Elem(), append(path, "[]"), seen)
		if err != nil {
			return nil, err
		}
		s.Elem = elem
		return s, nil

	case reflect.Array:
		s := &Spec{GoType: t, Kind: KindArray, Len: t.Len()}
		seen[t] = s
		elem, err := c.compile(t.Elem(), append(path, "[]"), seen)
		if err != nil {
			return nil, err
		}
		s.Elem = elem
		return s, nil

	case reflect.Map:
		key, err := c.compileMapKey(t.Key(), path)
		if err != nil {
			return nil, err
		}
		s := &Spec{GoType: t, Kind: KindMap, Key: key}
		seen[t] = s
		elem, err := c.compile(t.Elem(), append(path, "[]"), seen)
		if err != nil {
			return nil, err
		}
		s.Elem = elem
		return s, nil

	case reflect.Ptr:
		s := &Spec{GoType: t, Kind: KindReference}
		seen[t] = s
		elem, err := c.compile(t.Elem(), path, seen)
		if err != nil {
			return nil, err
		}
		s.Elem = elem
		return s, nil

	case reflect.Struct:
		s := &Spec{GoType: t, Kind: KindObject}
		seen[t] = s
		fields, err := c.compileFields(t, path, seen)
		if err != nil {
			return nil, err
		}
		s.Fields = fields
		return s, nil

	default:
		return nil, errors.New(errors.PhaseClassify, errors.KindStructure).
			Path(path...).
			GoType(t.String()).
			Detail("no conversion category for this type").
			Build()
	}
}

func (c *Compiler) compileMapKey(t reflect.Type, path []string) (*Spec, error) {
	switch t.Kind() {
	case reflect.String:
		return &Spec{GoType: t, Kind: KindString}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &Spec{GoType: t, Kind: KindInt}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Spec{GoType: t, Kind: KindUint}, nil
	default:
		return nil, errors.New(errors.PhaseClassify, errors.KindStructure).
			Path(path...).
			GoType(t.String()).
			Detail("map keys must be text or integer").
			Build()
	}
}

// compileFields flattens a struct's exported fields, descending into
// embedded value structs the way promoted fields are visible in Go.
// Fields promoted through embedded pointers are not discoverable.
func (c *Compiler) compileFields(t reflect.Type, path []string, seen map[reflect.Type]*Spec) ([]Field, error) {
	visible := reflect.VisibleFields(t)
	fields := make([]Field, 0, len(visible))

	for _, f := range visible {
		if f.PkgPath != "" {
			continue // unexported
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			continue // embedded struct itself; its promoted leaves follow
		}
		if f.Anonymous && f.Type.Kind() == reflect.Ptr {
			continue
		}
		if throughPointer(t, f.Index) {
			continue
		}

		name, readOnly, skip := parseFieldTag(f)
		if skip {
			continue
		}

		spec, err := c.compile(f.Type, append(path, name), seen)
		if err != nil {
			return nil, err
		}

		fields = append(fields, Field{
			Name:     name,
			Index:    f.Index,
			Spec:     spec,
			ReadOnly: readOnly,
		})
	}

	return fields, nil
}

// throughPointer reports whether an index path crosses an embedded pointer.
func throughPointer(t reflect.Type, index []int) bool {
	for _, i := range index[:len(index)-1] {
		f := t.Field(i)
		if f.Type.Kind() == reflect.Ptr {
			return true
		}
		t = f.Type
	}
	return false
}

// parseFieldTag resolves a field's exported name from its mirror tag,
// falling back to the snake_case rendering of the Go name.
//
//	Field int `mirror:"count"`          exported as "count"
//	Field int `mirror:",readonly"`      getter only
//	Field int `mirror:"-"`              not discoverable
func parseFieldTag(f reflect.StructField) (name string, readOnly, skip bool) {
	tag, ok := f.Tag.Lookup("mirror")
	if !ok {
		return ToSnakeCase(f.Name), false, false
	}
	if tag == "-" {
		return "", false, true
	}

	base, opts, _ := strings.Cut(tag, ",")
	if base == "" {
		base = ToSnakeCase(f.Name)
	}
	return base, opts == "readonly", false
}

// ToSnakeCase converts PascalCase to snake_case.
// Handles acronyms: GetHTTPUrl -> get_http_url
func ToSnakeCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if unicode.IsUpper(r) {
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			if acronymEnd > i+1 {
				// Last uppercase before lowercase starts next word, not part of acronym
				if acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
					acronymEnd--
				}
			}

			if i > 0 {
				result.WriteByte('_')
			}

			for j := i; j < acronymEnd; j++ {
				result.WriteRune(unicode.ToLower(runes[j]))
			}
			i = acronymEnd - 1 // -1 because loop will increment
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Token renders a qualifier-stripped, punctuation-free name for this
// spec's type, used for overload suffixes and signatures. Compound types
// prefix their shape so tokens never collide with element tokens.
func (s *Spec) Token() string {
	switch s.Kind {
	case KindBool:
		return "bool"
	case KindInt, KindUint, KindFloat:
		return s.GoType.Kind().String()
	case KindEnum:
		return ToSnakeCase(s.GoType.Name())
	case KindString:
		return "string"
	case KindSlice:
		return "list_" + s.Elem.Token()
	case KindArray:
		return "array_" + s.Elem.Token()
	case KindMap:
		return "map_" + s.Key.Token() + "_" + s.Elem.Token()
	case KindReference:
		return "ptr_" + s.Elem.Token()
	case KindObject:
		if s.GoType.Name() == "" {
			return "object"
		}
		return ToSnakeCase(s.GoType.Name())
	}
	return "unknown"
}
