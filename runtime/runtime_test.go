package runtime

import (
	"context"
	"math"
	"net"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/model-runtime/array"
	"github.com/wippyai/model-runtime/config"
	"github.com/wippyai/model-runtime/errors"
	"github.com/wippyai/model-runtime/learner"
	"github.com/wippyai/model-runtime/metrics"
	"github.com/wippyai/model-runtime/model"
)

func newRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt, err := New(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

// line samples y = 2x + 1 at n points over [-1, 1].
func line(n int) (array.View, array.View) {
	x := array.Zeros(n, 1)
	y := array.Zeros(n, 1)
	for i := 0; i < n; i++ {
		v := -1 + 2*float64(i)/float64(n-1)
		x.Set(i, 0, v)
		y.Set(i, 0, 2*v+1)
	}
	return x, y
}

func olsDefaults() model.Hyperparams {
	p := model.DefaultHyperparams()
	p.Learner = learner.NameOLS
	p.Penalty = model.PenaltyNone
	return p
}

func sgdDefaults() model.Hyperparams {
	p := model.DefaultHyperparams()
	p.Learner = learner.NameSGD
	p.Penalty = model.PenaltyNone
	p.Tol = -1
	p.MaxIter = 2000
	p.Seed = 7
	return p
}

func TestRuntime_FitPredictLine(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		defaults model.Hyperparams
		delta    float64
	}{
		{"ols", olsDefaults(), 1e-9},
		{"sgd", sgdDefaults(), 1e-2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newRuntime(t, WithDefaults(tt.defaults))
			h, err := rt.NewModel()
			require.NoError(t, err)

			x, y := line(50)
			require.NoError(t, rt.Fit(ctx, h, x, y))

			q, err := array.New([]float64{0, 0.5, -0.25}, 3, 1)
			require.NoError(t, err)
			out := array.Zeros(3, 1)
			require.NoError(t, rt.Predict(out, h, q))

			assert.InDelta(t, 1.0, out.At(0, 0), tt.delta)
			assert.InDelta(t, 2.0, out.At(1, 0), tt.delta)
			assert.InDelta(t, 0.5, out.At(2, 0), tt.delta)
		})
	}
}

func TestRuntime_DefaultsRecoverLine(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)
	h, err := rt.NewModel()
	require.NoError(t, err)

	x, y := line(100)
	require.NoError(t, rt.Fit(ctx, h, x, y))

	held := []float64{0.1234, -0.777, 0.5555, 0.999}
	q, err := array.New(held, len(held), 1)
	require.NoError(t, err)
	out := array.Zeros(len(held), 1)
	require.NoError(t, rt.Predict(out, h, q))

	for i, v := range held {
		assert.InDelta(t, 2*v+1, out.At(i, 0), 1e-2, "x=%g", v)
	}
}

func TestRuntime_ParamsRoundTrip(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, WithDefaults(sgdDefaults()))

	src, err := rt.NewModel()
	require.NoError(t, err)
	x, y := line(20)
	require.NoError(t, rt.Fit(ctx, src, x, y))

	text, err := rt.GetParams(src)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(text)+1, rt.ParamsCapacity())

	dst, err := rt.NewModel()
	require.NoError(t, err)
	require.NoError(t, rt.SetParams(dst, text))

	a := array.Zeros(20, 1)
	b := array.Zeros(20, 1)
	require.NoError(t, rt.Predict(a, src, x))
	require.NoError(t, rt.Predict(b, dst, x))
	assert.Equal(t, a.Data(), b.Data())

	again, err := rt.GetParams(dst)
	require.NoError(t, err)
	assert.Equal(t, string(text), string(again))
}

func TestRuntime_UseAfterDelete(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t)

	h, err := rt.NewModel()
	require.NoError(t, err)
	require.NoError(t, rt.DeleteModel(h))

	x, y := line(4)
	out := array.Zeros(4, 1)

	checks := map[string]error{
		"fit":        rt.Fit(ctx, h, x, y),
		"predict":    rt.Predict(out, h, x),
		"set_params": rt.SetParams(h, []byte(`{"format":"modelrt.linear","version":1}`)),
		"delete":     rt.DeleteModel(h),
	}
	_, err = rt.GetParams(h)
	checks["get_params"] = err

	for op, err := range checks {
		assert.Equal(t, errors.KindInvalidHandle, errors.KindOf(err), op)
	}

	reused, err := rt.NewModel()
	require.NoError(t, err)
	assert.Equal(t, h.Index(), reused.Index())
	assert.NotEqual(t, h, reused)
	assert.Equal(t, errors.KindInvalidHandle, errors.KindOf(rt.Predict(out, h, x)))
}

func TestRuntime_InvalidHandles(t *testing.T) {
	rt := newRuntime(t)
	for _, h := range []Handle{0, 1, 0xffffffff, 1 << 40} {
		assert.Equal(t, errors.KindInvalidHandle, errors.KindOf(rt.DeleteModel(h)))
	}
}

func TestRuntime_NotFitted(t *testing.T) {
	rt := newRuntime(t)
	h, err := rt.NewModel()
	require.NoError(t, err)

	x, _ := line(3)
	out := array.Zeros(3, 1)
	assert.True(t, errors.Is(rt.Predict(out, h, x), errors.ErrNotFitted))

	_, err = rt.GetParams(h)
	assert.True(t, errors.Is(err, errors.ErrNotFitted))
}

func TestRuntime_FitShapeMismatchKeepsState(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, WithDefaults(olsDefaults()))
	h, err := rt.NewModel()
	require.NoError(t, err)

	x, y := line(10)
	require.NoError(t, rt.Fit(ctx, h, x, y))
	before, err := rt.GetParams(h)
	require.NoError(t, err)

	bad := array.Zeros(9, 1)
	err = rt.Fit(ctx, h, x, bad)
	assert.True(t, errors.Is(err, errors.ErrShapeMismatch))

	after, err := rt.GetParams(h)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// an unfitted model stays unfitted
	fresh, err := rt.NewModel()
	require.NoError(t, err)
	assert.Error(t, rt.Fit(ctx, fresh, x, bad))
	_, err = rt.GetParams(fresh)
	assert.True(t, errors.Is(err, errors.ErrNotFitted))
}

func TestRuntime_PredictShapes(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, WithDefaults(olsDefaults()))
	h, err := rt.NewModel()
	require.NoError(t, err)
	x, y := line(5)
	require.NoError(t, rt.Fit(ctx, h, x, y))

	tests := []struct {
		name string
		out  array.View
		x    array.View
	}{
		{"out rows", array.Zeros(4, 1), x},
		{"out cols", array.Zeros(5, 2), x},
		{"x cols", array.Zeros(5, 1), array.Zeros(5, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := rt.Predict(tt.out, h, tt.x)
			assert.Equal(t, errors.KindShapeMismatch, errors.KindOf(err))
		})
	}
}

func TestRuntime_ConcurrentNewModel(t *testing.T) {
	rt := newRuntime(t)

	const n = 128
	handles := make([]Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := rt.NewModel()
			assert.NoError(t, err)
			handles[i] = h
		}()
	}
	wg.Wait()

	seen := make(map[Handle]bool, n)
	for _, h := range handles {
		assert.NotZero(t, h)
		assert.False(t, seen[h], "duplicate handle %#x", uint64(h))
		seen[h] = true
	}
	assert.Equal(t, n, rt.Len())
	assert.Len(t, rt.Handles(), n)
}

func TestRuntime_SetParams(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, WithDefaults(olsDefaults()))
	h, err := rt.NewModel()
	require.NoError(t, err)
	x, y := line(6)
	require.NoError(t, rt.Fit(ctx, h, x, y))
	before, err := rt.GetParams(h)
	require.NoError(t, err)

	t.Run("malformed keeps state", func(t *testing.T) {
		for _, text := range []string{
			``,
			`{`,
			`{"format":"other","version":1}`,
			`{"format":"modelrt.linear","version":1,"learner":{"name":"forest"}}`,
			`{"format":"modelrt.linear","version":1,"coef":[[1]]}`,
		} {
			err := rt.SetParams(h, []byte(text))
			assert.True(t, errors.Is(err, errors.ErrParse), "%q: %v", text, err)
		}
		after, err := rt.GetParams(h)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("hyperparameters only", func(t *testing.T) {
		text := `{"format":"modelrt.linear","version":1,"learner":{"name":"sgd","alpha":0.5}}`
		require.NoError(t, rt.SetParams(h, []byte(text)))

		m, err := rt.Model(h)
		require.NoError(t, err)
		assert.False(t, m.Fitted())
		assert.Equal(t, learner.NameSGD, m.Hyperparams().Learner)
		assert.Equal(t, 0.5, m.Hyperparams().Alpha)

		q, _ := array.New([]float64{1}, 1, 1)
		assert.True(t, errors.Is(rt.Predict(array.Zeros(1, 1), h, q), errors.ErrNotFitted))

		got, err := rt.GetParams(h)
		require.NoError(t, err)
		assert.NotContains(t, string(got), `"coef"`)

		h2, err := rt.NewModel()
		require.NoError(t, err)
		require.NoError(t, rt.SetParams(h2, got))
		again, err := rt.GetParams(h2)
		require.NoError(t, err)
		assert.Equal(t, string(got), string(again))

		m2, err := rt.Model(h2)
		require.NoError(t, err)
		assert.Equal(t, m.Hyperparams(), m2.Hyperparams())
		assert.False(t, m2.Fitted())
	})

	t.Run("legacy", func(t *testing.T) {
		require.NoError(t, rt.SetParams(h, []byte(`{"coef":[2.0],"intercept":1.0,"loss":"squared_error"}`)))
		q, _ := array.New([]float64{3}, 1, 1)
		out := array.Zeros(1, 1)
		require.NoError(t, rt.Predict(out, h, q))
		assert.Equal(t, 7.0, out.At(0, 0))
	})
}

func TestRuntime_NewModelWith(t *testing.T) {
	rt := newRuntime(t)

	h, err := rt.NewModelWith(olsDefaults())
	require.NoError(t, err)
	m, err := rt.Model(h)
	require.NoError(t, err)
	assert.Equal(t, learner.NameOLS, m.Hyperparams().Learner)

	p := olsDefaults()
	p.Learner = "wasm"
	_, err = rt.NewModelWith(p)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))

	p = olsDefaults()
	p.Alpha = math.Inf(1)
	_, err = rt.NewModelWith(p)
	assert.Equal(t, errors.KindInvalidArgument, errors.KindOf(err))
}

func TestRuntime_Metrics(t *testing.T) {
	ctx := context.Background()
	m := &metrics.Basic{}
	rt := newRuntime(t, WithMetrics(m), WithDefaults(olsDefaults()))

	a, err := rt.NewModel()
	require.NoError(t, err)
	_, err = rt.NewModel()
	require.NoError(t, err)
	assert.Equal(t, 2, m.LiveModels())

	x, y := line(4)
	require.NoError(t, rt.Fit(ctx, a, x, y))
	require.NoError(t, rt.DeleteModel(a))
	assert.Error(t, rt.DeleteModel(a))
	assert.Equal(t, 1, m.LiveModels())

	assert.Equal(t, int64(2), m.Stats(metrics.OpNewModel).Calls)
	assert.Equal(t, int64(1), m.Stats(metrics.OpFit).Calls)
	del := m.Stats(metrics.OpDeleteModel)
	assert.Equal(t, int64(2), del.Calls)
	assert.Equal(t, int64(1), del.Errors)

	require.NoError(t, rt.Close(ctx))
	assert.Equal(t, 0, m.LiveModels())
}

func TestRuntime_PrometheusFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Namespace = "modelrt_test"

	reg := prometheus.NewRegistry()
	rt := newRuntime(t, WithConfig(cfg), WithRegisterer(reg))

	_, err := rt.NewModel()
	require.NoError(t, err)
	assert.Error(t, rt.DeleteModel(0))

	_, ok := rt.metrics.(*metrics.Prometheus)
	require.True(t, ok)

	n, err := testutil.GatherAndCount(reg, "modelrt_test_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	live, err := testutil.GatherAndCount(reg, "modelrt_test_live_models")
	require.NoError(t, err)
	assert.Equal(t, 1, live)
}

func TestRuntime_ConfigErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Params.Codec = "xml"
	_, err := New(context.Background(), WithConfig(cfg))
	assert.Equal(t, errors.KindInvalidArgument, errors.KindOf(err))

	cfg = config.Default()
	cfg.Wasm.Path = "/nonexistent/learner.wasm"
	_, err = New(context.Background(), WithConfig(cfg))
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestRuntime_MetricsListenInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := config.Default()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Listen = ln.Addr().String()

	_, err = New(context.Background(), WithConfig(cfg))
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidArgument, errors.KindOf(err))
	assert.Contains(t, err.Error(), "metrics.listen")
}

func TestRuntime_ConfigCapacity(t *testing.T) {
	cfg := config.Default()
	cfg.Params.Capacity = 4096
	cfg.Params.Codec = "json"

	rt := newRuntime(t, WithConfig(cfg))
	assert.Equal(t, 4096, rt.ParamsCapacity())
	assert.Equal(t, "json", rt.Codec().Name())

	rt = newRuntime(t, WithConfig(cfg), WithParamsCapacity(64))
	assert.Equal(t, 64, rt.ParamsCapacity())
}

func TestRuntime_Close(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx)
	require.NoError(t, err)

	h, err := rt.NewModel()
	require.NoError(t, err)

	require.NoError(t, rt.Close(ctx))
	require.NoError(t, rt.Close(ctx))
	assert.True(t, rt.Closed())
	assert.Equal(t, 0, rt.Len())

	_, err = rt.NewModel()
	assert.Equal(t, errors.KindClosed, errors.KindOf(err))
	assert.Equal(t, errors.KindInvalidHandle, errors.KindOf(rt.DeleteModel(h)))
}

func TestRuntime_ConvergenceWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	p := sgdDefaults()
	p.MaxIter = 5

	rt := newRuntime(t, WithLogger(zap.New(core)), WithDefaults(p))
	h, err := rt.NewModel()
	require.NoError(t, err)

	x, y := line(10)
	require.NoError(t, rt.Fit(context.Background(), h, x, y))

	entries := logs.FilterMessageSnippet("before convergence").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(5), entries[0].ContextMap()["max_iter"])
}
