package wasm

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/mirror"
	"github.com/wippyai/mirror/descriptor"
	"github.com/wippyai/mirror/errors"
)

func describe(t *testing.T, class *mirror.Class) *descriptor.Class {
	t.Helper()
	d, err := descriptor.NewCache().Describe(class)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	return d
}

func TestRenderWITScalarClass(t *testing.T) {
	d := describe(t, gaugeClass(nil))

	got, err := RenderWIT(d)
	if err != nil {
		t.Fatalf("RenderWIT failed: %v", err)
	}

	want := `package mirror:class;

interface gauge {
  resource gauge {
    new0: static func() -> gauge;
    new2: static func(arg0: f64, arg1: f64) -> gauge;
    get-level: func() -> f64;
    set-level: func(value: f64);
    get-ceiling: func() -> f64;
    raise: func(arg0: f64) -> f64;
    reset: func();
    half-of: static func(arg0: f64) -> f64;
  }
}
`
	if got != want {
		t.Errorf("rendered document:\n%s\nwant:\n%s", got, want)
	}
}

type board struct {
	Origin innerPoint
	Tags   []string
	Extra  *innerPoint
	Scores map[string]int32
}

func TestRenderWITCompoundTypes(t *testing.T) {
	d := describe(t, mirror.NewClass[board]("board"))

	got, err := RenderWIT(d)
	if err != nil {
		t.Fatalf("RenderWIT failed: %v", err)
	}

	for _, want := range []string{
		"interface board {",
		"record inner-point {\n    x: f64,\n    y: f64,\n  }",
		"get-origin: func() -> inner-point;",
		"set-origin: func(value: inner-point);",
		"get-tags: func() -> list<string>;",
		"set-tags: func(value: list<string>);",
		"get-extra: func() -> option<inner-point>;",
		"get-scores: func() -> list<tuple<string, s32>>;",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("document lacks %q:\n%s", want, got)
		}
	}

	// Origin and Extra share one struct type; it declares once.
	if strings.Count(got, "record inner-point") != 1 {
		t.Errorf("shared record declared more than once:\n%s", got)
	}
}

type pair struct {
	A int32
	B int32
}

type dealer struct {
	N int32
}

func (d *dealer) Pair() pair { return pair{} }

func TestRenderWITRecordNameYieldsToExport(t *testing.T) {
	d := describe(t, mirror.NewClass[dealer]("dealer"))

	got, err := RenderWIT(d)
	if err != nil {
		t.Fatalf("RenderWIT failed: %v", err)
	}

	if !strings.Contains(got, "pair: func() -> pair2;") {
		t.Errorf("method line missing or record took the export name:\n%s", got)
	}
	if !strings.Contains(got, "record pair2 {") {
		t.Errorf("renamed record declaration missing:\n%s", got)
	}
}

type medal struct {
	Rank int32
}

type cabinet struct {
	Best medal
}

func TestRenderWITRecordNameYieldsToResource(t *testing.T) {
	d := describe(t, mirror.NewClass[cabinet]("medal"))

	got, err := RenderWIT(d)
	if err != nil {
		t.Fatalf("RenderWIT failed: %v", err)
	}

	if !strings.Contains(got, "resource medal {") {
		t.Errorf("resource declaration missing:\n%s", got)
	}
	if !strings.Contains(got, "record medal-data {") {
		t.Errorf("record did not yield the resource name:\n%s", got)
	}
	if !strings.Contains(got, "get-best: func() -> medal-data;") {
		t.Errorf("field getter does not use the renamed record:\n%s", got)
	}
}

func TestRenderWITMultipleClasses(t *testing.T) {
	got, err := RenderWIT(
		describe(t, gaugeClass(nil)),
		describe(t, mirror.NewClass[dealer]("dealer")),
	)
	if err != nil {
		t.Fatalf("RenderWIT failed: %v", err)
	}

	if !strings.HasPrefix(got, "package mirror:class;\n") {
		t.Errorf("document lacks the package header:\n%s", got)
	}
	if !strings.Contains(got, "interface gauge {") || !strings.Contains(got, "interface dealer {") {
		t.Errorf("document lacks an interface:\n%s", got)
	}
}

func TestRenderWITRecursiveType(t *testing.T) {
	d := describe(t, mirror.NewClass[walker]("walker"))

	_, err := RenderWIT(d)
	if err == nil {
		t.Fatal("expected recursive type rejection")
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRegister, Kind: errors.KindStructure}) {
		t.Errorf("wrong error: %v", err)
	}
}
