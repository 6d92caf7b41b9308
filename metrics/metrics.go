// Package metrics records per-operation call statistics for the runtime.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wippyai/model-runtime/errors"
)

// Operation names recorded by the runtime.
const (
	OpNewModel    = "new_model"
	OpDeleteModel = "delete_model"
	OpFit         = "fit"
	OpPredict     = "predict"
	OpGetParams   = "get_params"
	OpSetParams   = "set_params"
	OpSave        = "save"
	OpLoad        = "load"
)

// Collector receives one record per runtime operation.
// Implementations must be safe for concurrent use.
type Collector interface {
	// RecordCall is called after each operation. err is nil on success.
	RecordCall(op string, duration time.Duration, err error)

	// SetLiveModels reports the number of live models after a change.
	SetLiveModels(n int)
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordCall(string, time.Duration, error) {}
func (Noop) SetLiveModels(int)                       {}

// Basic keeps in-memory counters. Useful for debugging and tests.
type Basic struct {
	ops  sync.Map // op -> *opStats
	live atomic.Int64
}

type opStats struct {
	calls  atomic.Int64
	errors atomic.Int64
	nanos  atomic.Int64
}

// OpStats is a snapshot of one operation's counters.
type OpStats struct {
	Calls    int64
	Errors   int64
	AvgNanos int64
}

// RecordCall implements Collector.
func (b *Basic) RecordCall(op string, duration time.Duration, err error) {
	v, _ := b.ops.LoadOrStore(op, &opStats{})
	s := v.(*opStats)
	s.calls.Add(1)
	s.nanos.Add(duration.Nanoseconds())
	if err != nil {
		s.errors.Add(1)
	}
}

// SetLiveModels implements Collector.
func (b *Basic) SetLiveModels(n int) {
	b.live.Store(int64(n))
}

// LiveModels returns the last reported live model count.
func (b *Basic) LiveModels() int {
	return int(b.live.Load())
}

// Stats returns a snapshot of the counters for op.
func (b *Basic) Stats(op string) OpStats {
	v, ok := b.ops.Load(op)
	if !ok {
		return OpStats{}
	}
	s := v.(*opStats)
	out := OpStats{Calls: s.calls.Load(), Errors: s.errors.Load()}
	if out.Calls > 0 {
		out.AvgNanos = s.nanos.Load() / out.Calls
	}
	return out
}

// Status maps an operation result to a low-cardinality label: "ok" or
// the error kind.
func Status(err error) string {
	if err == nil {
		return "ok"
	}
	return string(errors.KindOf(err))
}
