// Package resource provides generation-tagged handle tables.
//
// A Table maps opaque 64-bit handles to Go values. Handles are what the
// host keeps; values never leave the process.
//
// # Handle Layout
//
//	bits 63..32  slot generation (starts at 1)
//	bits 31..0   slot index + 1
//
// Handle 0 is never issued. When a slot is freed its generation is
// incremented before the slot returns to the free list, so a handle that
// outlived its value fails to resolve instead of reaching a newer value.
// A slot whose generation reaches the maximum is retired rather than reused.
//
// # Usage
//
//	table := resource.NewTable[*model.Model]()
//
//	h, err := table.Insert(m)
//	m, ok := table.Get(h)
//	m, ok = table.Remove(h) // h is dead from here on
//
// # Concurrency
//
// Insert and Remove take the write lock; Get takes the read lock. Values
// are returned to the caller and used without holding any table lock.
//
// # Observers
//
// Register observers to track lifecycle events:
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    switch e.Type {
//	    case resource.EventCreated:
//	        logger.Debug("created", zap.Uint64("handle", uint64(e.Handle)))
//	    case resource.EventDropped:
//	        logger.Debug("dropped", zap.Uint64("handle", uint64(e.Handle)))
//	    }
//	}))
//
// Close drops every live value (calling Drop on values implementing
// Dropper) and refuses further inserts.
package resource
