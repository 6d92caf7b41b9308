package resource

import (
	"sync"
)

// Table maps generation-tagged handles to values and notifies observers
// about lifecycle events. Events are delivered in the order the table
// changed, and each carries the live count right after its change.
// Observers must not insert into or remove from the table they observe.
type Table[T any] struct {
	backend   *LocalBackend[T]
	observers []Observer
	obsMu     sync.RWMutex
	seqMu     sync.Mutex // orders structural changes with their events
}

// NewTable creates a new table with a LocalBackend.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		backend: NewLocalBackend[T](),
	}
}

// Insert adds a value and returns its handle.
func (t *Table[T]) Insert(value T) (Handle, error) {
	t.seqMu.Lock()
	defer t.seqMu.Unlock()

	handle, live, err := t.backend.create(value)
	if err != nil {
		return 0, err
	}

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		Value:  value,
		Live:   live,
	})

	return handle, nil
}

// Get retrieves a value by handle.
func (t *Table[T]) Get(handle Handle) (T, bool) {
	return t.backend.Get(handle)
}

// Remove drops a value and returns (value, true) if found.
func (t *Table[T]) Remove(handle Handle) (T, bool) {
	t.seqMu.Lock()
	defer t.seqMu.Unlock()

	value, live, ok := t.backend.drop(handle)
	if !ok {
		return value, false
	}

	if d, ok := any(value).(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		Value:  value,
		Live:   live,
	})

	return value, true
}

// Subscribe adds an observer for lifecycle events.
func (t *Table[T]) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table[T]) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live values.
func (t *Table[T]) Len() int {
	return t.backend.Len()
}

// Each iterates over all live values under the read lock.
// fn must not call back into the table's structural operations.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	t.backend.Each(fn)
}

// Clear drops all values.
func (t *Table[T]) Clear() {
	// Collect handles first to avoid holding lock during Remove
	var handles []Handle
	t.backend.Each(func(h Handle, _ T) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Close releases all values and stops accepting inserts.
// Observers see an EventDropped for every value still live.
func (t *Table[T]) Close() error {
	t.seqMu.Lock()
	defer t.seqMu.Unlock()

	t.backend.drain(func(h Handle, v T, live int) {
		t.notify(Event{
			Type:   EventDropped,
			Handle: h,
			Value:  v,
			Live:   live,
		})
	})
	return nil
}

// Closed reports whether the table has been closed.
func (t *Table[T]) Closed() bool {
	return t.backend.Closed()
}

func (t *Table[T]) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
