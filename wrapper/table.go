package wrapper

import (
	"sync"
)

// Handle is an opaque reference to a record in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Table maps integer handles to live records. Adapters that hand numeric
// handles across a runtime boundary (the wasm host modules) allocate
// through it; handles are recycled through a free list. Unlike records,
// the table is locked: host modules outlive single calls.
type Table struct {
	entries  []*Record
	freeList []Handle
	mu       sync.RWMutex
	closed   bool
}

// NewTable creates an empty handle table.
func NewTable() *Table {
	return &Table{
		entries:  make([]*Record, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

// Insert stores a record and returns its handle, or 0 after Close.
func (t *Table) Insert(r *Record) Handle {
	if r == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0
	}

	if len(t.freeList) > 0 {
		handle := t.freeList[len(t.freeList)-1]
		t.freeList = t.freeList[:len(t.freeList)-1]
		t.entries[handle-1] = r
		return handle
	}

	t.entries = append(t.entries, r)
	return Handle(len(t.entries))
}

// Get retrieves a record by handle.
func (t *Table) Get(handle Handle) (*Record, bool) {
	if handle == 0 {
		return nil, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := handle - 1
	if int(idx) >= len(t.entries) {
		return nil, false
	}

	r := t.entries[idx]
	if r == nil {
		return nil, false
	}
	return r, true
}

// Remove detaches a record from the table and returns it. The record is
// not finalized; the caller decides whether to run Finalize.
func (t *Table) Remove(handle Handle) (*Record, bool) {
	if handle == 0 {
		return nil, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := handle - 1
	if int(idx) >= len(t.entries) {
		return nil, false
	}

	r := t.entries[idx]
	if r == nil {
		return nil, false
	}

	t.entries[idx] = nil
	t.freeList = append(t.freeList, handle)
	return r, true
}

// Len returns the number of live records.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, r := range t.entries {
		if r != nil {
			count++
		}
	}
	return count
}

// Each iterates over live records until fn returns false.
func (t *Table) Each(fn func(Handle, *Record) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, r := range t.entries {
		if r != nil {
			if !fn(Handle(i+1), r) {
				break
			}
		}
	}
}

// Close finalizes every remaining record and stops accepting inserts.
// Records already finalized through their handle are skipped. Idempotent.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	for i, r := range t.entries {
		if r == nil {
			continue
		}
		if r.State() == StateBound {
			_ = r.Finalize()
		}
		t.entries[i] = nil
	}

	t.entries = nil
	t.freeList = nil
	return nil
}
