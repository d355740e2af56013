// Package errors provides structured error types for the mirror library.
//
// Errors are categorized by Phase (where in the binding pipeline the error
// occurred) and Kind (error category). The Error type includes rich context:
// member path, Go type name, class name, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseFromTarget, errors.KindConversion).
//		Path("point", "x").
//		GoType("float64").
//		Detail("cannot convert string to number").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseFromTarget, path, "float64", "table")
//	err := errors.NoConstructor("rectangle", 4)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
