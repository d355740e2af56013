package wrapper

import (
	stderrors "errors"
	"reflect"
	"testing"

	"github.com/wippyai/mirror/errors"
)

type widget struct {
	ID int
}

func invalidInstance(err error) bool {
	return stderrors.Is(err, &errors.Error{Phase: errors.PhaseInstance, Kind: errors.KindInvalidInstance})
}

func TestRecord_Lifecycle(t *testing.T) {
	r := New("widget")
	if r.State() != StateUnbound {
		t.Fatalf("state = %v, want unbound", r.State())
	}

	w := &widget{ID: 7}
	if err := r.Bind(reflect.ValueOf(w), true, nil); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if r.State() != StateBound {
		t.Fatalf("state = %v, want bound", r.State())
	}

	recv, err := r.Recv()
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if recv.Interface().(*widget).ID != 7 {
		t.Error("Recv returned wrong instance")
	}

	if err := r.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if r.State() != StateFinalized {
		t.Fatalf("state = %v, want finalized", r.State())
	}

	if _, err := r.Recv(); !invalidInstance(err) {
		t.Errorf("Recv after finalize = %v, want invalid instance", err)
	}
}

func TestRecord_OwningRunsCleanup(t *testing.T) {
	freed := 0
	r, err := Bound("widget", reflect.ValueOf(&widget{}), true, func(reflect.Value) { freed++ })
	if err != nil {
		t.Fatalf("Bound failed: %v", err)
	}

	if err := r.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if freed != 1 {
		t.Errorf("cleanup ran %d times, want 1", freed)
	}
}

func TestRecord_NonOwningSkipsCleanup(t *testing.T) {
	freed := 0
	r, err := Bound("widget", reflect.ValueOf(&widget{}), false, func(reflect.Value) { freed++ })
	if err != nil {
		t.Fatalf("Bound failed: %v", err)
	}

	if err := r.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if freed != 0 {
		t.Error("non-owning record must not run cleanup")
	}
	if r.State() != StateFinalized {
		t.Error("non-owning record should still reach finalized")
	}
}

func TestRecord_DoubleFinalize(t *testing.T) {
	r, _ := Bound("widget", reflect.ValueOf(&widget{}), true, nil)

	if err := r.Finalize(); err != nil {
		t.Fatalf("first Finalize failed: %v", err)
	}
	if err := r.Finalize(); !invalidInstance(err) {
		t.Errorf("second Finalize = %v, want invalid instance", err)
	}
}

func TestRecord_UnboundMisuse(t *testing.T) {
	r := New("widget")

	if _, err := r.Recv(); !invalidInstance(err) {
		t.Errorf("Recv on unbound = %v, want invalid instance", err)
	}
	if err := r.Finalize(); !invalidInstance(err) {
		t.Errorf("Finalize on unbound = %v, want invalid instance", err)
	}
}

func TestRecord_DoubleBind(t *testing.T) {
	r := New("widget")
	if err := r.Bind(reflect.ValueOf(&widget{}), true, nil); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if err := r.Bind(reflect.ValueOf(&widget{}), true, nil); !invalidInstance(err) {
		t.Errorf("second Bind = %v, want invalid instance", err)
	}
}

func TestRecord_BindAfterFinalize(t *testing.T) {
	r, _ := Bound("widget", reflect.ValueOf(&widget{}), true, nil)
	if err := r.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if err := r.Bind(reflect.ValueOf(&widget{}), true, nil); !invalidInstance(err) {
		t.Errorf("Bind after finalize = %v, want invalid instance", err)
	}
}

func TestRecord_BindRequiresPointer(t *testing.T) {
	r := New("widget")

	if err := r.Bind(reflect.ValueOf(widget{}), true, nil); err == nil {
		t.Error("expected error binding a non-pointer")
	}
	if err := r.Bind(reflect.ValueOf((*widget)(nil)), true, nil); err == nil {
		t.Error("expected error binding a nil pointer")
	}
	if r.State() != StateUnbound {
		t.Error("failed bind must leave the record unbound")
	}
}

func TestRecord_OwningFlag(t *testing.T) {
	r := New("widget")
	if r.Owning() {
		t.Error("unbound record reports owning")
	}

	if err := r.Bind(reflect.ValueOf(&widget{}), true, nil); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	if !r.Owning() {
		t.Error("owning record reports not owning")
	}

	if err := r.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if r.Owning() {
		t.Error("finalized record reports owning")
	}
}

func TestRecord_Class(t *testing.T) {
	r := New("widget")
	if r.Class() != "widget" {
		t.Errorf("Class = %q, want widget", r.Class())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUnbound, "unbound"},
		{StateBound, "bound"},
		{StateFinalized, "finalized"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
