package convert

// Kind is the conversion category of a classified Go type. Categories are
// mutually exclusive; classification picks the most specific match.
type Kind uint8

const (
	KindBool Kind = iota
	KindInt
	KindUint
	KindFloat
	KindEnum
	KindString
	KindSlice
	KindArray
	KindMap
	KindReference
	KindObject
)

var kindNames = [...]string{
	KindBool:      "bool",
	KindInt:       "int",
	KindUint:      "uint",
	KindFloat:     "float",
	KindEnum:      "enum",
	KindString:    "string",
	KindSlice:     "slice",
	KindArray:     "array",
	KindMap:       "map",
	KindReference: "reference",
	KindObject:    "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsScalar reports whether values of this kind convert to a single target
// primitive with no element recursion.
func (k Kind) IsScalar() bool {
	return k <= KindString
}

// IsSequence reports whether values of this kind convert element-wise.
func (k Kind) IsSequence() bool {
	return k == KindSlice || k == KindArray || k == KindMap
}
