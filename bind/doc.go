// Package bind generates binding tables from class descriptors.
//
// A Table is the complete generated surface for one class: field
// getters/setters, method invokers under deterministic exported names,
// and a constructor dispatcher. Tables are parametrized over the target
// runtime's native value type and built against a Converter for that
// type, so the same generation path serves every adapter.
//
// Generation happens once per (class, converter) pair. Each closure
// captures its member's reflect index and compiled conversion spec at
// build time; no call through the table branches on "which member is
// this" or re-derives structure.
//
// # Overload names
//
// Same-named methods (declared overload variants) export under
// base_name plus a parameter-token suffix; see ExportedNames. Names are
// stable across rebuilds since target call sites are written against
// them.
//
// # Constructor dispatch
//
// Construction selects by argument count alone, first declared match
// wins. Two declared constructors sharing an arity resolve to whichever
// was declared first; keep arities distinct when that matters.
package bind
