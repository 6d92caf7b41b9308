package resource

import (
	"errors"
	"math"
	"sync"
)

var (
	ErrClosed = errors.New("resource backend closed")
	ErrFull   = errors.New("resource backend has no free slots")
)

// maxSlots bounds the arena so that index+1 always fits the low half of a Handle.
const maxSlots = math.MaxUint32 - 1

// LocalBackend is an in-memory arena of generation-tagged slots.
// Freed slots are reused with an incremented generation, so a stale handle
// never resolves to a newer value. A slot whose generation would wrap is retired.
type LocalBackend[T any] struct {
	entries  []entry[T]
	freeList []int
	live     int
	mu       sync.RWMutex
	closed   bool
}

type entry[T any] struct {
	value T
	gen   uint32
	valid bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend[T any]() *LocalBackend[T] {
	return &LocalBackend[T]{
		entries:  make([]entry[T], 0, 64),
		freeList: make([]int, 0, 16),
	}
}

// Create stores a value and returns a handle.
func (b *LocalBackend[T]) Create(value T) (Handle, error) {
	h, _, err := b.create(value)
	return h, err
}

// create stores a value and returns its handle and the live count taken
// under the same lock.
func (b *LocalBackend[T]) create(value T) (Handle, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, b.live, ErrClosed
	}

	if n := len(b.freeList); n > 0 {
		idx := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		e := &b.entries[idx]
		e.value = value
		e.valid = true
		b.live++
		return makeHandle(e.gen, idx), b.live, nil
	}

	if len(b.entries) >= maxSlots {
		return 0, b.live, ErrFull
	}

	b.entries = append(b.entries, entry[T]{value: value, gen: 1, valid: true})
	b.live++
	return makeHandle(1, len(b.entries)-1), b.live, nil
}

// lookup returns the entry for handle. Caller holds mu.
func (b *LocalBackend[T]) lookup(handle Handle) *entry[T] {
	if handle == 0 || uint32(handle) == 0 {
		return nil
	}
	idx := int(handle.Index())
	if idx >= len(b.entries) {
		return nil
	}
	e := &b.entries[idx]
	if !e.valid || e.gen != handle.Generation() {
		return nil
	}
	return e
}

// Get retrieves a value by handle.
func (b *LocalBackend[T]) Get(handle Handle) (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if e := b.lookup(handle); e != nil {
		return e.value, true
	}
	var zero T
	return zero, false
}

// Drop removes a value and returns (value, true) if the handle was live.
func (b *LocalBackend[T]) Drop(handle Handle) (T, bool) {
	v, _, ok := b.drop(handle)
	return v, ok
}

// drop removes a value and returns it with the live count left behind.
func (b *LocalBackend[T]) drop(handle Handle) (T, int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	e := b.lookup(handle)
	if e == nil {
		return zero, b.live, false
	}

	value := e.value
	e.value = zero
	e.valid = false
	b.live--

	if e.gen == math.MaxUint32 {
		// retired: reusing the slot would repeat generation 1
		return value, b.live, true
	}
	e.gen++
	b.freeList = append(b.freeList, int(handle.Index()))
	return value, b.live, true
}

// Close releases all values, calling Drop on those implementing Dropper.
func (b *LocalBackend[T]) Close() error {
	b.drain(nil)
	return nil
}

// drain marks the backend closed and hands every live value, with the
// number of values still to be released after it, to fn before running its
// Dropper.
func (b *LocalBackend[T]) drain(fn func(Handle, T, int)) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	remaining := b.live
	entries := b.entries
	b.entries = nil
	b.freeList = nil
	b.live = 0
	b.mu.Unlock()

	for i := range entries {
		e := &entries[i]
		if !e.valid {
			continue
		}
		remaining--
		if fn != nil {
			fn(makeHandle(e.gen, i), e.value, remaining)
		}
		if d, ok := any(e.value).(Dropper); ok {
			d.Drop()
		}
	}
}

// Len returns the number of live values.
func (b *LocalBackend[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.live
}

// Each iterates over all live values.
func (b *LocalBackend[T]) Each(fn func(Handle, T) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(makeHandle(e.gen, i), e.value) {
				break
			}
		}
	}
}

// Closed reports whether Close has been called.
func (b *LocalBackend[T]) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}
