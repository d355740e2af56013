package bind

import (
	"strings"

	"github.com/wippyai/mirror/convert"
	"github.com/wippyai/mirror/descriptor"
	"github.com/wippyai/mirror/errors"
)

// ExportedNames assigns the exported name for each method in the list.
// Methods in single-member groups keep the bare base name. Members of a
// multi-member group get the base name plus a suffix rendered from their
// parameter type tokens, qualifiers stripped, joined with underscores:
//
//	print(int)      -> print_int
//	print(float64)  -> print_float64
//	print(string)   -> print_string
//
// A zero-parameter member of a group keeps the bare base name. Name
// assignment is deterministic: rebuilding the same descriptor yields the
// same names. Two members with identical parameter tokens collide, which
// is reported rather than silently renamed.
func ExportedNames(class string, methods []descriptor.Method) ([]string, error) {
	counts := make(map[string]int, len(methods))
	for _, m := range methods {
		counts[m.BaseName]++
	}

	names := make([]string, len(methods))
	taken := make(map[string]bool, len(methods))

	for i, m := range methods {
		name := m.BaseName
		if counts[m.BaseName] > 1 {
			if sfx := overloadSuffix(m.Params); sfx != "" {
				name = m.BaseName + "_" + sfx
			}
		}
		if taken[name] {
			return nil, errors.New(errors.PhaseDiscover, errors.KindInvalidInput).
				Class(class).
				Path(m.BaseName).
				Detail("overload variants produce colliding exported name %q", name).
				Build()
		}
		taken[name] = true
		names[i] = name
	}

	return names, nil
}

func overloadSuffix(params []*convert.Spec) string {
	if len(params) == 0 {
		return ""
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.Token()
	}
	return strings.Join(parts, "_")
}
