// Package abi implements the plugin's C functions over plain uint64
// addresses so they can be exercised without cgo.
//
// Every call clears, then on failure fills, the last-error slot of the handle
// value it received (slot 0 for NewModel). Hosts read the slot back with
// LastErrorCode and LastErrorMessage. Panics never cross the boundary: they
// are recovered and reported as errors.KindInternal.
//
// Slot 0 is shared: when several threads call NewModel at once, a failure
// read from slot 0 may belong to another thread's call. Slots of handles
// that are not live (deleted, never issued, or from before Shutdown) are
// kept for the most recent maxStaleSlots such handles only; older ones read
// back as no error. Shutdown drops every slot.
//
// Output buffers are caller-owned and never resized. GetParams assumes the
// runtime's params capacity (1024 bytes by default, NUL included); hosts
// that need more use GetParamsLen and GetParamsInto.
package abi

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/model-runtime/array"
	"github.com/wippyai/model-runtime/codec"
	"github.com/wippyai/model-runtime/config"
	"github.com/wippyai/model-runtime/errors"
	"github.com/wippyai/model-runtime/learner/wasm"
	"github.com/wippyai/model-runtime/runtime"
)

// maxStaleSlots bounds the error slots held for handles that are not live.
const maxStaleSlots = 1024

// Surface serves the ABI functions for one runtime.
type Surface struct {
	rt   *runtime.Runtime
	log  *zap.Logger
	errs sync.Map // uint64 -> error

	staleMu sync.Mutex
	stale   []uint64 // FIFO of stale handles with a slot
	staleIn map[uint64]struct{}
}

// New wraps rt. A nil logger disables logging.
func New(rt *runtime.Runtime, log *zap.Logger) *Surface {
	if log == nil {
		log = zap.NewNop()
	}
	return &Surface{rt: rt, log: log, staleIn: make(map[uint64]struct{})}
}

// Open builds a surface from the process environment: the config file named
// by MODELRT_CONFIG, MODELRT_* overrides, and the logger they describe.
func Open(ctx context.Context) (*Surface, error) {
	cfg, err := config.FromEnvironment()
	if err != nil {
		return nil, err
	}
	log, err := cfg.BuildLogger()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidArgument, err, "build logger")
	}
	runtime.SetLogger(log)
	wasm.SetLogger(log.Named("wasm"))

	rt, err := runtime.New(ctx, runtime.WithConfig(cfg), runtime.WithLogger(log))
	if err != nil {
		return nil, err
	}
	log.Info("model runtime ready",
		zap.String("learner", cfg.Learner.Learner),
		zap.String("codec", cfg.Params.Codec),
		zap.Int("params_capacity", cfg.Params.Capacity))
	return New(rt, log), nil
}

// Runtime returns the wrapped runtime.
func (s *Surface) Runtime() *runtime.Runtime {
	return s.rt
}

// LastError returns the error recorded for h by the last call that used it.
func (s *Surface) LastError(h uint64) error {
	if v, ok := s.errs.Load(h); ok {
		return v.(error)
	}
	return nil
}

func (s *Surface) call(h uint64, op string, fn func() error) (err error) {
	s.errs.Delete(h)
	defer func() {
		if p := recover(); p != nil {
			err = errors.Internal(errors.PhaseABI, fmt.Sprintf("panic in %s: %v", op, p), nil)
			s.log.Error("recovered panic",
				zap.String("op", op),
				zap.Uint64("handle", h),
				zap.Any("panic", p),
				zap.Stack("stack"))
		}
		if err != nil {
			s.store(h, err)
			s.log.Debug("call failed",
				zap.String("op", op),
				zap.Uint64("handle", h),
				zap.String("kind", string(errors.KindOf(err))),
				zap.Error(err))
		}
	}()
	return fn()
}

// store fills the slot of h. A handle that is not live joins the stale
// FIFO; once it holds more than maxStaleSlots the oldest slot is dropped.
func (s *Surface) store(h uint64, err error) {
	s.errs.Store(h, err)
	if h == 0 {
		return
	}
	if _, lerr := s.rt.Model(runtime.Handle(h)); lerr == nil {
		return
	}

	s.staleMu.Lock()
	defer s.staleMu.Unlock()
	if _, ok := s.staleIn[h]; ok {
		return
	}
	s.staleIn[h] = struct{}{}
	s.stale = append(s.stale, h)
	for len(s.stale) > maxStaleSlots {
		old := s.stale[0]
		s.stale = s.stale[1:]
		delete(s.staleIn, old)
		s.errs.Delete(old)
	}
}

// slots returns the number of error slots held.
func (s *Surface) slots() int {
	n := 0
	s.errs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *Surface) dropSlots() {
	s.staleMu.Lock()
	defer s.staleMu.Unlock()
	s.errs.Clear()
	s.stale = nil
	clear(s.staleIn)
}

// NewModel allocates a model and returns its handle, or 0 on failure.
func (s *Surface) NewModel() uint64 {
	var h runtime.Handle
	_ = s.call(0, "new_model", func() (err error) {
		h, err = s.rt.NewModel()
		return err
	})
	return uint64(h)
}

// DeleteModel releases h. Unknown handles are left alone and reported as
// KindInvalidHandle.
func (s *Surface) DeleteModel(h uint64) {
	err := s.call(h, "delete_model", func() error {
		return s.rt.DeleteModel(runtime.Handle(h))
	})
	if err == nil {
		s.errs.Delete(h)
	}
}

// Fit trains h on the matrices described by x and y.
func (s *Surface) Fit(h uint64, x, y array.Descriptor) {
	_ = s.call(h, "fit", func() error {
		if _, err := s.rt.Model(runtime.Handle(h)); err != nil {
			return err
		}
		xv, err := array.FromDescriptor("x", x)
		if err != nil {
			return err
		}
		yv, err := array.FromDescriptor("y", y)
		if err != nil {
			return err
		}
		return s.rt.Fit(context.Background(), runtime.Handle(h), xv, yv)
	})
}

// Predict writes the predictions of h for x into out.
func (s *Surface) Predict(out array.Descriptor, h uint64, x array.Descriptor) {
	_ = s.call(h, "predict", func() error {
		if _, err := s.rt.Model(runtime.Handle(h)); err != nil {
			return err
		}
		xv, err := array.FromDescriptor("x", x)
		if err != nil {
			return err
		}
		ov, err := array.FromDescriptor("out", out)
		if err != nil {
			return err
		}
		return s.rt.Predict(ov, runtime.Handle(h), xv)
	})
}

// GetParams writes the params text of h and a NUL into the buffer at out,
// which is assumed to hold the runtime's params capacity. On failure out
// holds an empty string.
func (s *Surface) GetParams(h uint64, out uint64) {
	capacity := s.rt.ParamsCapacity()
	err := s.call(h, "get_params", func() error {
		text, err := s.rt.GetParams(runtime.Handle(h))
		if err != nil {
			return err
		}
		return writeCString("out", out, capacity, text)
	})
	if err != nil {
		clearCString(out, capacity)
	}
}

// GetParamsLen returns the length of the params text of h without the NUL,
// or -1 on failure.
func (s *Surface) GetParamsLen(h uint64) int64 {
	var n int
	err := s.call(h, "get_params_len", func() error {
		text, err := s.rt.GetParams(runtime.Handle(h))
		n = len(text)
		return err
	})
	if err != nil {
		return -1
	}
	return int64(n)
}

// GetParamsInto writes the params text of h into a buffer of capacity bytes.
// It returns the bytes written without the NUL, -(needed+1) when the buffer
// is too small, or -1 on other failures.
func (s *Surface) GetParamsInto(h uint64, out uint64, capacity int64) int64 {
	var n int
	err := s.call(h, "get_params_into", func() error {
		text, err := s.rt.GetParams(runtime.Handle(h))
		if err != nil {
			return err
		}
		n = len(text)
		return writeCString("out", out, clampCap(capacity), text)
	})
	if err != nil {
		clearCString(out, clampCap(capacity))
	}
	return sizedResult(n, err)
}

// SetParams replaces the state of h with the NUL-terminated text at params.
func (s *Surface) SetParams(h uint64, params uint64) {
	_ = s.call(h, "set_params", func() error {
		if _, err := s.rt.Model(runtime.Handle(h)); err != nil {
			return err
		}
		text, err := readCString("params", params, codec.MaxTextSize+1)
		if err != nil {
			return err
		}
		return s.rt.SetParams(runtime.Handle(h), text)
	})
}

// LastErrorCode returns the code of the last failure recorded for h, or 0.
func (s *Surface) LastErrorCode(h uint64) int32 {
	return int32(errors.CodeOf(s.LastError(h)))
}

// LastErrorMessage copies the last failure message recorded for h into a
// buffer of capacity bytes, with the return convention of GetParamsInto.
// With no recorded failure it writes an empty string and returns 0.
func (s *Surface) LastErrorMessage(h uint64, out uint64, capacity int32) int32 {
	var msg []byte
	if err := s.LastError(h); err != nil {
		msg = []byte(err.Error())
	}
	err := writeCString("out", out, int(capacity), msg)
	return int32(sizedResult(len(msg), err))
}

// LiveModels returns the number of live models.
func (s *Surface) LiveModels() int32 {
	return int32(s.rt.Len())
}

// Shutdown releases every model and drops every error slot. Later calls
// fail with KindClosed or KindInvalidHandle.
func (s *Surface) Shutdown() {
	s.dropSlots()
	_ = s.call(0, "shutdown", func() error {
		return s.rt.Close(context.Background())
	})
	_ = s.log.Sync()
}

func clampCap(c int64) int {
	if c > int64(codec.MaxTextSize)+1 {
		return codec.MaxTextSize + 1
	}
	if c < 0 {
		return 0
	}
	return int(c)
}
