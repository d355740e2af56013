// Package convert classifies Go types into conversion categories.
//
// Classification is the first half of the value-conversion protocol: every
// field, parameter, and return type of a bound class is compiled once into
// a Spec tree tagged with a Kind, and per-target converters dispatch on
// those tags at call time. No call ever re-derives structure.
//
//	┌──────────────────────────────────────────────────────────┐
//	│ reflect.Type → [Compiler] → *Spec → per-target converter │
//	└──────────────────────────────────────────────────────────┘
//
// # Categories
//
// Categories are mutually exclusive, matched most specific first:
//
//	Kind           Go types                        Target form
//	─────────────────────────────────────────────────────────────
//	bool           bool                            native boolean
//	int/uint       builtin integer spellings       native number
//	float          float32, float64                native number
//	enum           defined integer types           integer value
//	string         string kind                     native string
//	slice          slices (growable)               ordered array
//	array          arrays (fixed size)             ordered array
//	map            maps, text/integer keys         table / object
//	reference      pointers (possibly absent)      absent sentinel or
//	                                               converted pointee
//	object         remaining structs               generic key→value
//	                                               mapping
//
// Strings always convert by explicit length, never by NUL scanning.
// Sequences convert element-wise under the element spec; growable
// containers accept any length, fixed-size containers require an exact
// element count. References convert to the target's absent sentinel when
// nil and to the converted pointee otherwise.
//
// # Fidelity limit
//
// Object conversion always produces a generic mapping of the struct's
// discoverable fields, discarding the value's own bound type identity and
// method surface even when that type is itself bound somewhere. The same
// collapse applies to references whose pointee is a bound struct. This
// keeps conversion free of any live cross-class registry and avoids
// ownership sharing between runtimes, at the cost of losing method access
// on nested values from the target side.
//
// # Field visibility
//
// Object fields flatten embedded value structs the way Go promotes them.
// Unexported fields, fields promoted through embedded pointers, and fields
// tagged `mirror:"-"` are not discoverable. `mirror:"name"` renames,
// `mirror:",readonly"` drops the setter.
package convert
