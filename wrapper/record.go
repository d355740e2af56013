package wrapper

import (
	"reflect"

	"github.com/wippyai/mirror/errors"
)

// State is the lifecycle position of a Record.
type State uint8

const (
	// StateUnbound means the record exists but holds no host instance.
	StateUnbound State = iota

	// StateBound means a host instance is attached.
	StateBound

	// StateFinalized means the record was released. Terminal.
	StateFinalized
)

var stateNames = [...]string{
	StateUnbound:   "unbound",
	StateBound:     "bound",
	StateFinalized: "finalized",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Record pairs one host instance with its target-runtime wrapper. It
// moves Unbound -> Bound -> Finalized and never backwards. The owning
// flag is fixed when the instance binds; finalization runs the cleanup
// hook only for owning records, so non-owning views over shared host
// state never free it.
//
// Records carry no lock. The embedding targets serialize calls per VM,
// and a record never crosses VMs.
type Record struct {
	recv   reflect.Value
	fin    func(reflect.Value)
	class  string
	state  State
	owning bool
}

// New creates an unbound record for the named class.
func New(class string) *Record {
	return &Record{class: class}
}

// Bound creates a record with the instance already attached. This is the
// common adapter path where the host instance exists before the wrapper.
func Bound(class string, recv reflect.Value, owning bool, fin func(reflect.Value)) (*Record, error) {
	r := New(class)
	if err := r.Bind(recv, owning, fin); err != nil {
		return nil, err
	}
	return r, nil
}

// Bind attaches a host instance to an unbound record. recv must be a
// non-nil pointer to the instance. owning decides, permanently, whether
// Finalize releases the instance; fin is the class cleanup hook, nil when
// the class declares none.
func (r *Record) Bind(recv reflect.Value, owning bool, fin func(reflect.Value)) error {
	switch r.state {
	case StateBound:
		return errors.InvalidInstance(r.class, "instance already bound")
	case StateFinalized:
		return errors.InvalidInstance(r.class, "record is finalized")
	}
	if recv.Kind() != reflect.Pointer || recv.IsNil() {
		return errors.InvalidInput(errors.PhaseInstance, "bind requires a non-nil instance pointer")
	}

	r.recv = recv
	r.owning = owning
	r.fin = fin
	r.state = StateBound
	return nil
}

// Recv returns the bound instance pointer.
func (r *Record) Recv() (reflect.Value, error) {
	switch r.state {
	case StateUnbound:
		return reflect.Value{}, errors.InvalidInstance(r.class, "no instance bound")
	case StateFinalized:
		return reflect.Value{}, errors.InvalidInstance(r.class, "instance already finalized")
	}
	return r.recv, nil
}

// Finalize releases the record. The cleanup hook runs only when the
// record owns its instance. Finalized is terminal; a second Finalize and
// every later access report caller misuse.
func (r *Record) Finalize() error {
	switch r.state {
	case StateUnbound:
		return errors.InvalidInstance(r.class, "no instance bound")
	case StateFinalized:
		return errors.InvalidInstance(r.class, "instance already finalized")
	}

	if r.owning && r.fin != nil {
		r.fin(r.recv)
	}
	r.recv = reflect.Value{}
	r.fin = nil
	r.state = StateFinalized
	return nil
}

// Class returns the exported class name the record belongs to.
func (r *Record) Class() string {
	return r.class
}

// State returns the current lifecycle state.
func (r *Record) State() State {
	return r.state
}

// Owning reports whether finalization releases the instance. False until
// an instance binds.
func (r *Record) Owning() bool {
	return r.state == StateBound && r.owning
}
