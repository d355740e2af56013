package descriptor

import (
	"reflect"
	"sync"

	"github.com/wippyai/mirror"
	"github.com/wippyai/mirror/convert"
	"github.com/wippyai/mirror/errors"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Cache memoizes structural discovery. Descriptors are computed on first
// use and returned identically thereafter; downstream components call
// Describe freely without paying repeated enumeration cost.
type Cache struct {
	compiler *convert.Compiler
	classes  sync.Map // *mirror.Class -> *Class
}

func NewCache() *Cache {
	return &Cache{compiler: convert.NewCompiler()}
}

var defaultCache = NewCache()

// Describe resolves a declaration through the shared default cache.
func Describe(decl *mirror.Class) (*Class, error) {
	return defaultCache.Describe(decl)
}

// Describe builds the descriptor for decl, or returns the memoized one.
// Each class is described independently of every other class.
func (c *Cache) Describe(decl *mirror.Class) (*Class, error) {
	if decl == nil {
		return nil, errors.InvalidInput(errors.PhaseDiscover, "class declaration cannot be nil")
	}
	if cached, ok := c.classes.Load(decl); ok {
		return cached.(*Class), nil
	}

	d, err := c.describe(decl)
	if err != nil {
		return nil, err
	}

	actual, _ := c.classes.LoadOrStore(decl, d)
	return actual.(*Class), nil
}

func (c *Cache) describe(decl *mirror.Class) (*Class, error) {
	if decl.Name == "" {
		return nil, errors.InvalidInput(errors.PhaseDiscover, "class name cannot be empty")
	}
	if decl.Type == nil || decl.Type.Kind() != reflect.Struct {
		return nil, errors.Structure(decl.Name, nil, "bound type must be a struct")
	}

	spec, err := c.compiler.Compile(decl.Type)
	if err != nil {
		return nil, structureErr(decl.Name, err, "unsupported field type")
	}

	d := &Class{
		Name:   decl.Name,
		GoType: decl.Type,
		Fields: spec.Fields,
	}

	if err := c.collectMethods(decl, d); err != nil {
		return nil, err
	}
	if err := c.collectStatics(decl, d); err != nil {
		return nil, err
	}
	if err := c.collectConstructors(decl, d); err != nil {
		return nil, err
	}
	if err := c.resolveFinalizer(decl, d); err != nil {
		return nil, err
	}
	if err := checkMemberNames(decl.Name, d); err != nil {
		return nil, err
	}

	d.Signature = Signature(d)
	d.Hash = Hash(d)
	return d, nil
}

// collectMethods discovers the exported pointer-receiver method set,
// promoted methods included, then appends declared overload variants.
func (c *Cache) collectMethods(decl *mirror.Class, d *Class) error {
	pt := reflect.PointerTo(decl.Type)

	var restrict map[string]bool
	if decl.Methods != nil {
		restrict = make(map[string]bool, len(decl.Methods))
		for _, name := range decl.Methods {
			restrict[name] = true
		}
	}

	renamed := make(map[string]bool, len(decl.Renames))
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		if !m.IsExported() {
			continue
		}
		if restrict != nil && !restrict[m.Name] {
			continue
		}

		base := convert.ToSnakeCase(m.Name)
		if r, ok := decl.Renames[m.Name]; ok {
			if r == "" {
				return errors.New(errors.PhaseDiscover, errors.KindInvalidInput).
					Class(decl.Name).
					Path(m.Name).
					Detail("rename to an empty name").
					Build()
			}
			base = r
			renamed[m.Name] = true
		}

		meth, err := c.classifyFunc(decl.Name, base, m.Func, 1, false)
		if err != nil {
			return err
		}
		d.Methods = append(d.Methods, *meth)
	}

	for goName := range decl.Renames {
		if !renamed[goName] {
			return errors.New(errors.PhaseDiscover, errors.KindInvalidInput).
				Class(decl.Name).
				Path(goName).
				Detail("rename targets no discovered method").
				Build()
		}
	}

	for _, om := range decl.Overloads {
		fv := reflect.ValueOf(om.Fn)
		if fv.Kind() != reflect.Func {
			return errors.InvalidInput(errors.PhaseDiscover, "overload variant must be a function")
		}
		ft := fv.Type()
		if ft.NumIn() == 0 || ft.In(0) != pt {
			return errors.New(errors.PhaseDiscover, errors.KindInvalidInput).
				Class(decl.Name).
				Path(om.Name).
				Detail("overload variant must take *%s as first parameter", decl.Type.Name()).
				Build()
		}

		meth, err := c.classifyFunc(decl.Name, om.Name, fv, 1, false)
		if err != nil {
			return err
		}
		d.Methods = append(d.Methods, *meth)
	}

	return nil
}

func (c *Cache) collectStatics(decl *mirror.Class, d *Class) error {
	for _, sm := range decl.Statics {
		fv := reflect.ValueOf(sm.Fn)
		if fv.Kind() != reflect.Func {
			return errors.InvalidInput(errors.PhaseDiscover, "static must be a function")
		}

		meth, err := c.classifyFunc(decl.Name, sm.Name, fv, 0, true)
		if err != nil {
			return err
		}
		d.Statics = append(d.Statics, *meth)
	}
	return nil
}

// collectConstructors validates declared producers. Constructors return T
// or *T with an optional trailing error. The zero-argument case is kept
// apart as the niladic fast path.
func (c *Cache) collectConstructors(decl *mirror.Class, d *Class) error {
	for _, fn := range decl.Constructors {
		fv := reflect.ValueOf(fn)
		if fv.Kind() != reflect.Func {
			return errors.InvalidInput(errors.PhaseDiscover, "constructor must be a function")
		}
		ft := fv.Type()
		if ft.IsVariadic() {
			return errors.Structure(decl.Name, nil, "variadic constructors are not supported")
		}

		ctor := Constructor{Func: fv}
		switch ft.NumOut() {
		case 1:
		case 2:
			if ft.Out(1) != errorType {
				return errors.Structure(decl.Name, nil, "constructor's second result must be error")
			}
			ctor.ReturnsErr = true
		default:
			return errors.Structure(decl.Name, nil, "constructor must return the instance")
		}

		switch ft.Out(0) {
		case reflect.PointerTo(decl.Type):
			ctor.RetPtr = true
		case decl.Type:
		default:
			return errors.New(errors.PhaseDiscover, errors.KindStructure).
				Class(decl.Name).
				GoType(ft.Out(0).String()).
				Detail("constructor must return %s or *%s", decl.Type.Name(), decl.Type.Name()).
				Build()
		}

		for i := 0; i < ft.NumIn(); i++ {
			s, err := c.compiler.Compile(ft.In(i))
			if err != nil {
				return structureErr(decl.Name, err, "unsupported constructor parameter")
			}
			ctor.Params = append(ctor.Params, s)
		}

		if len(ctor.Params) == 0 {
			if d.Niladic != nil {
				return errors.InvalidInput(errors.PhaseDiscover, "duplicate zero-argument constructor")
			}
			d.Niladic = &ctor
			continue
		}
		d.Constructors = append(d.Constructors, ctor)
	}
	return nil
}

func (c *Cache) resolveFinalizer(decl *mirror.Class, d *Class) error {
	if decl.Finalizer == nil {
		return nil
	}

	fv := reflect.ValueOf(decl.Finalizer)
	ft := fv.Type()
	want := reflect.PointerTo(decl.Type)
	if fv.Kind() != reflect.Func || ft.NumIn() != 1 || ft.In(0) != want || ft.NumOut() != 0 {
		return errors.New(errors.PhaseDiscover, errors.KindInvalidInput).
			Class(decl.Name).
			Detail("finalizer must be func(*%s)", decl.Type.Name()).
			Build()
	}

	d.Finalizer = fv
	return nil
}

func (c *Cache) classifyFunc(class, base string, fv reflect.Value, skip int, static bool) (*Method, error) {
	ft := fv.Type()
	if ft.IsVariadic() {
		return nil, errors.Structure(class, []string{base}, "variadic methods are not supported")
	}

	m := &Method{
		BaseName: base,
		Func:     fv,
		Static:   static,
	}

	for i := skip; i < ft.NumIn(); i++ {
		s, err := c.compiler.Compile(ft.In(i))
		if err != nil {
			return nil, structureErr(class, err, "unsupported parameter type on "+base)
		}
		m.Params = append(m.Params, s)
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			m.ReturnsErr = true
		} else {
			s, err := c.compiler.Compile(ft.Out(0))
			if err != nil {
				return nil, structureErr(class, err, "unsupported result type on "+base)
			}
			m.Result = s
		}
	case 2:
		if ft.Out(1) != errorType {
			return nil, errors.Structure(class, []string{base}, "second result must be error")
		}
		m.ReturnsErr = true
		s, err := c.compiler.Compile(ft.Out(0))
		if err != nil {
			return nil, structureErr(class, err, "unsupported result type on "+base)
		}
		m.Result = s
	default:
		return nil, errors.Structure(class, []string{base}, "methods may return at most one value and an error")
	}

	return m, nil
}

// checkMemberNames rejects declarations whose exported surface collides:
// a base name used by both a field and a method, or by both a static and
// an instance method.
func checkMemberNames(class string, d *Class) error {
	fields := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		fields[f.Name] = true
	}

	instance := make(map[string]bool, len(d.Methods))
	for _, m := range d.Methods {
		if fields[m.BaseName] {
			return errors.New(errors.PhaseDiscover, errors.KindInvalidInput).
				Class(class).
				Path(m.BaseName).
				Detail("method name collides with field").
				Build()
		}
		instance[m.BaseName] = true
	}

	for _, s := range d.Statics {
		if instance[s.BaseName] {
			return errors.New(errors.PhaseDiscover, errors.KindInvalidInput).
				Class(class).
				Path(s.BaseName).
				Detail("static name collides with instance method").
				Build()
		}
	}
	return nil
}

func structureErr(class string, cause error, detail string) error {
	return errors.New(errors.PhaseDiscover, errors.KindStructure).
		Class(class).
		Cause(cause).
		Detail("%s", detail).
		Build()
}
