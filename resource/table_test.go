package resource

import (
	"sync"
	"testing"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.events = append(o.events, e)
}

func TestTable_Basic(t *testing.T) {
	table := NewTable[string]()

	// Insert
	h, err := table.Insert("test")
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	// Get
	val, ok := table.Get(h)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	// Remove
	val, ok = table.Remove(h)
	if !ok {
		t.Fatal("Remove failed")
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	// Len should be 0
	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Remove")
	}

	// Second remove is a miss
	if _, ok := table.Remove(h); ok {
		t.Fatal("Remove of a dead handle should fail")
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable[string]()
	obs := &testObserver{}
	table.Subscribe(obs)

	// Insert should trigger EventCreated
	h, _ := table.Insert("test")
	if len(obs.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(obs.events))
	}
	if obs.events[0].Type != EventCreated {
		t.Fatal("Expected EventCreated")
	}
	if obs.events[0].Handle != h {
		t.Fatal("Wrong handle in event")
	}
	if obs.events[0].Live != 1 {
		t.Fatalf("Expected Live 1, got %d", obs.events[0].Live)
	}

	// Remove should trigger EventDropped
	table.Remove(h)
	if len(obs.events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(obs.events))
	}
	if obs.events[1].Type != EventDropped {
		t.Fatal("Expected EventDropped")
	}
	if obs.events[1].Live != 0 {
		t.Fatalf("Expected Live 0, got %d", obs.events[1].Live)
	}

	// Unsubscribe
	table.Unsubscribe(obs)
	table.Insert("test2")
	if len(obs.events) != 2 {
		t.Fatal("Should not receive events after Unsubscribe")
	}
}

func TestTable_ObserverFunc(t *testing.T) {
	table := NewTable[int]()
	var created, dropped int
	table.Subscribe(ObserverFunc(func(e Event) {
		switch e.Type {
		case EventCreated:
			created++
		case EventDropped:
			dropped++
		}
	}))

	h, _ := table.Insert(1)
	table.Insert(2)
	table.Remove(h)
	if err := table.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if created != 2 {
		t.Fatalf("Expected 2 created events, got %d", created)
	}
	if dropped != 2 {
		t.Fatalf("Expected 2 dropped events (remove + close), got %d", dropped)
	}
}

func TestTable_Clear(t *testing.T) {
	table := NewTable[string]()

	table.Insert("a")
	table.Insert("b")
	table.Insert("c")

	if table.Len() != 3 {
		t.Fatal("Expected Len() == 3")
	}

	table.Clear()

	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Clear")
	}
}

func TestTable_Close(t *testing.T) {
	table := NewTable[string]()

	h, _ := table.Insert("a")
	table.Insert("b")

	if err := table.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !table.Closed() {
		t.Fatal("Expected Closed() after Close")
	}

	// Insert should fail after Close
	if _, err := table.Insert("c"); err != ErrClosed {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}
	if _, ok := table.Get(h); ok {
		t.Fatal("Get should fail after Close")
	}

	// Close is idempotent
	if err := table.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

type dropCounter struct {
	count int
}

func (d *dropCounter) Drop() {
	d.count++
}

func TestTable_DropperInterface(t *testing.T) {
	table := NewTable[*dropCounter]()
	d := &dropCounter{}

	h, _ := table.Insert(d)
	table.Remove(h)

	if d.count != 1 {
		t.Fatalf("Expected Drop() to be called once, called %d times", d.count)
	}

	d2 := &dropCounter{}
	table.Insert(d2)
	table.Close()
	if d2.count != 1 {
		t.Fatalf("Expected Close to call Drop() once, called %d times", d2.count)
	}
}

func TestTable_Each(t *testing.T) {
	table := NewTable[int]()
	for i := 0; i < 5; i++ {
		table.Insert(i)
	}

	sum := 0
	table.Each(func(_ Handle, v int) bool {
		sum += v
		return true
	})
	if sum != 10 {
		t.Fatalf("Expected sum 10, got %d", sum)
	}

	visited := 0
	table.Each(func(Handle, int) bool {
		visited++
		return visited < 2
	})
	if visited != 2 {
		t.Fatalf("Expected early stop after 2, got %d", visited)
	}
}

// liveRecorder checks that consecutive events move the live count by one.
type liveRecorder struct {
	mu    sync.Mutex
	last  int
	jumps int
	n     int
}

func (r *liveRecorder) OnResourceEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := r.last + 1
	if e.Type == EventDropped {
		want = r.last - 1
	}
	if e.Live != want {
		r.jumps++
	}
	r.last = e.Live
	r.n++
}

func TestTable_EventOrder(t *testing.T) {
	table := NewTable[int]()
	rec := &liveRecorder{}
	table.Subscribe(rec)

	const workers, rounds = 16, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				h, err := table.Insert(i)
				if err != nil {
					t.Errorf("Insert failed: %v", err)
					return
				}
				if i%3 != 0 {
					table.Remove(h)
				}
			}
		}()
	}
	wg.Wait()

	if rec.jumps != 0 {
		t.Fatalf("%d events out of order", rec.jumps)
	}
	if rec.last != table.Len() {
		t.Fatalf("last event live=%d, table has %d", rec.last, table.Len())
	}

	live := table.Len()
	table.Close()
	if rec.last != 0 {
		t.Fatalf("after Close last event live=%d, want 0", rec.last)
	}
	if rec.n != workers*rounds+(workers*rounds-live)+live {
		t.Fatalf("unexpected event count %d", rec.n)
	}
}
