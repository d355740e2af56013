package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the binding pipeline the error occurred
type Phase string

const (
	PhaseDiscover   Phase = "discover"    // structure discovery
	PhaseClassify   Phase = "classify"    // type classification
	PhaseToTarget   Phase = "to-target"   // host value to target value
	PhaseFromTarget Phase = "from-target" // target value to host value
	PhaseConstruct  Phase = "construct"   // constructor dispatch
	PhaseInvoke     Phase = "invoke"      // method invocation
	PhaseRegister   Phase = "register"    // target runtime registration
	PhaseInstance   Phase = "instance"    // wrapper record operations
)

// Kind categorizes the error
type Kind string

const (
	// KindStructure marks a class shape unsupported for discovery.
	// Fatal for that class at generation time, never retried.
	KindStructure Kind = "structure"

	// KindConversion marks a value shape/type mismatch during conversion.
	KindConversion Kind = "conversion"

	// KindNoConstructor marks constructor dispatch with no arity match.
	KindNoConstructor Kind = "no_matching_constructor"

	// KindInvalidInstance marks an operation on a finalized or unbound
	// wrapper record.
	KindInvalidInstance Kind = "invalid_instance"

	// KindConflict marks an exported name collision in the target module.
	KindConflict Kind = "registration_conflict"

	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	GoType string
	Class  string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.Class != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.Class != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", class ")
			b.WriteString(e.Class)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("class ")
			b.WriteString(e.Class)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.Class != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the member path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Class sets the exported class name
func (b *Builder) Class(name string) *Builder {
	b.err.Class = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Structure creates a discovery-time structure error. Aborts binding
// generation for the named class only.
func Structure(class string, path []string, detail string) *Error {
	return &Error{
		Phase:  PhaseDiscover,
		Kind:   KindStructure,
		Class:  class,
		Path:   path,
		Detail: detail,
	}
}

// Unclassifiable creates a structure error for a member whose type has no
// conversion category.
func Unclassifiable(class string, path []string, goType string) *Error {
	return &Error{
		Phase:  PhaseClassify,
		Kind:   KindStructure,
		Class:  class,
		Path:   path,
		GoType: goType,
		Detail: "no conversion category for this type",
	}
}

// TypeMismatch creates a conversion failure for a target value of the
// wrong shape or type.
func TypeMismatch(phase Phase, path []string, goType, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindConversion,
		Path:   path,
		GoType: goType,
		Detail: fmt.Sprintf("got %s", got),
	}
}

// Overflow creates a conversion failure for a numeric value outside the
// host type's range.
func Overflow(phase Phase, path []string, value any, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindConversion,
		Path:   path,
		GoType: goType,
		Detail: fmt.Sprintf("value %v overflows %s", value, goType),
		Value:  value,
	}
}

// InvalidEnum creates a conversion failure for an out-of-range enumeration
// value.
func InvalidEnum(phase Phase, path []string, value any, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindConversion,
		Path:   path,
		GoType: goType,
		Detail: fmt.Sprintf("invalid enum value %v for %s", value, goType),
		Value:  value,
	}
}

// LengthMismatch creates a conversion failure for a fixed-size container
// written with the wrong element count.
func LengthMismatch(phase Phase, path []string, got, want int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindConversion,
		Path:   path,
		Detail: fmt.Sprintf("got %d elements, want %d", got, want),
		Value:  got,
	}
}

// NoConstructor creates a constructor dispatch failure for an unmatched
// argument count.
func NoConstructor(class string, argc int) *Error {
	return &Error{
		Phase:  PhaseConstruct,
		Kind:   KindNoConstructor,
		Class:  class,
		Detail: fmt.Sprintf("no constructor takes %d arguments", argc),
		Value:  argc,
	}
}

// InvalidInstance creates a caller-misuse error for operations on a
// finalized or unbound wrapper record.
func InvalidInstance(class string, detail string) *Error {
	return &Error{
		Phase:  PhaseInstance,
		Kind:   KindInvalidInstance,
		Class:  class,
		Detail: detail,
	}
}

// Conflict creates a registration conflict for an exported name already
// taken by a different class.
func Conflict(name, class string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindConflict,
		Class:  class,
		Detail: fmt.Sprintf("exported name %q already registered", name),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
