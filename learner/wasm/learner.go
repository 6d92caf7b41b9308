package wasm

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/model-runtime/array"
	"github.com/wippyai/model-runtime/errors"
	"github.com/wippyai/model-runtime/model"
)

// Name is the learner name under which guest modules are registered.
const Name = "wasm"

const (
	exportMemory = "memory"
	exportAlloc  = "alloc"
	exportFit    = "fit"
)

// Config holds configuration for module compilation.
type Config struct {
	// MemoryLimitPages caps guest memory in 64KiB pages. 0 means the wazero default.
	MemoryLimitPages uint32

	// FitTimeout aborts a guest fit that runs longer. 0 means no limit.
	FitTimeout time.Duration
}

// Module is a compiled guest learner.
type Module struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	timeout  time.Duration
}

// Load reads and compiles a guest module from path.
func Load(ctx context.Context, path string, cfg Config) (*Module, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindNotFound, err, "read guest learner")
	}
	return Compile(ctx, wasmBytes, cfg)
}

// Compile compiles a guest module and checks its exports.
func Compile(ctx context.Context, wasmBytes []byte, cfg Config) (*Module, error) {
	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, rc)

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidArgument, err, "compile guest learner")
	}
	if err := checkExports(compiled); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	Logger().Debug("guest learner compiled",
		zap.Int("bytes", len(wasmBytes)),
		zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages),
		zap.Duration("fit_timeout", cfg.FitTimeout))

	return &Module{runtime: rt, compiled: compiled, timeout: cfg.FitTimeout}, nil
}

func checkExports(compiled wazero.CompiledModule) error {
	bad := func(format string, args ...any) error {
		return errors.New(errors.PhaseLoad, errors.KindInvalidArgument).
			Detail(format, args...).
			Build()
	}

	if _, ok := compiled.ExportedMemories()[exportMemory]; !ok {
		return bad("guest does not export %q", exportMemory)
	}

	i32 := api.ValueTypeI32
	want := map[string][]api.ValueType{
		exportAlloc: {i32},
		exportFit:   {i32, i32, i32, i32, i32, i32},
	}
	funcs := compiled.ExportedFunctions()
	for name, params := range want {
		def, ok := funcs[name]
		if !ok {
			return bad("guest does not export function %q", name)
		}
		if !slices.Equal(def.ParamTypes(), params) || !slices.Equal(def.ResultTypes(), []api.ValueType{i32}) {
			return bad("guest function %q has signature (%s) -> (%s)", name,
				typeNames(def.ParamTypes()), typeNames(def.ResultTypes()))
		}
	}
	return nil
}

func typeNames(types []api.ValueType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return strings.Join(names, ", ")
}

// Close releases the compiled module and its runtime.
func (m *Module) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}

// Factory returns a model.Factory producing learners backed by m.
// Guest learners take no hyperparameters.
func (m *Module) Factory() model.Factory {
	return func(model.Hyperparams) (model.Learner, error) {
		return m, nil
	}
}

// Name implements model.Learner.
func (m *Module) Name() string { return Name }

// Fit implements model.Learner by running the guest's fit export in a fresh instance.
func (m *Module) Fit(ctx context.Context, x, y array.View) (*model.Linear, error) {
	if err := model.CheckFitShapes(x, y); err != nil {
		return nil, err
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	lin, err := m.fit(ctx, x, y)
	if err != nil {
		Logger().Debug("guest fit failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, errors.FitFailed(Name, err)
	}

	lin.TrainingLoss = meanHalfSquaredError(lin, x, y)
	lin.NIter = 1
	Logger().Debug("guest fit done",
		zap.Int("rows", x.Rows()),
		zap.Int("cols", x.Cols()),
		zap.Duration("elapsed", time.Since(start)))
	return lin, nil
}

func (m *Module) fit(ctx context.Context, x, y array.View) (*model.Linear, error) {
	mod, err := m.runtime.InstantiateModule(ctx, m.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, fmt.Errorf("instantiate guest: %w", err)
	}
	defer mod.Close(ctx)

	g := &guestMemory{
		mem:   mod.ExportedMemory(exportMemory),
		alloc: mod.ExportedFunction(exportAlloc),
	}

	rows, nf, no := x.Rows(), x.Cols(), y.Cols()
	xPtr, err := g.allocFloats(ctx, x.Len())
	if err != nil {
		return nil, err
	}
	yPtr, err := g.allocFloats(ctx, y.Len())
	if err != nil {
		return nil, err
	}
	outLen := no * (nf + 1)
	outPtr, err := g.allocFloats(ctx, outLen)
	if err != nil {
		return nil, err
	}

	if err := g.writeFloats(xPtr, x.Data()); err != nil {
		return nil, err
	}
	if err := g.writeFloats(yPtr, y.Data()); err != nil {
		return nil, err
	}

	res, err := mod.ExportedFunction(exportFit).Call(ctx,
		uint64(xPtr), uint64(yPtr), uint64(rows), uint64(nf), uint64(no), uint64(outPtr))
	if err != nil {
		return nil, fmt.Errorf("guest fit: %w", err)
	}
	if status := int32(res[0]); status != 0 {
		return nil, fmt.Errorf("guest fit returned status %d", status)
	}

	out, err := g.readFloats(outPtr, outLen)
	if err != nil {
		return nil, err
	}

	lin := model.NewLinear(no, nf)
	for o := 0; o < no; o++ {
		base := o * (nf + 1)
		lin.Intercept[o] = out[base]
		copy(lin.Coef[o], out[base+1:base+1+nf])
	}
	return lin, nil
}

func meanHalfSquaredError(lin *model.Linear, x, y array.View) float64 {
	pred := array.Zeros(y.Rows(), y.Cols())
	lin.Predict(pred, x)
	var sum float64
	for i, p := range pred.Data() {
		d := p - y.Data()[i]
		sum += 0.5 * d * d
	}
	return sum / float64(pred.Len())
}
