package runtime

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wippyai/model-runtime/array"
	"github.com/wippyai/model-runtime/codec"
	"github.com/wippyai/model-runtime/config"
	"github.com/wippyai/model-runtime/errors"
	"github.com/wippyai/model-runtime/learner"
	"github.com/wippyai/model-runtime/learner/wasm"
	"github.com/wippyai/model-runtime/metrics"
	"github.com/wippyai/model-runtime/model"
	"github.com/wippyai/model-runtime/resource"
)

// Handle identifies a live model.
type Handle = resource.Handle

// Runtime owns the model registry and the services its operations use.
type Runtime struct {
	models   *resource.Table[*model.Model]
	learners *learner.Registry
	codec    codec.Codec
	metrics  metrics.Collector
	log      *zap.Logger
	guest    *wasm.Module
	server   *http.Server
	defaults model.Hyperparams
	capacity int
	closeMu  sync.Once
}

type options struct {
	cfg      *config.Config
	log      *zap.Logger
	metrics  metrics.Collector
	codec    codec.Codec
	learners *learner.Registry
	defaults *model.Hyperparams
	capacity int
	register prometheus.Registerer
}

// Option configures a Runtime.
type Option func(*options)

// WithConfig applies a loaded configuration. Explicit options given
// alongside it take precedence.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = &cfg }
}

// WithLogger sets the logger. The default is the package Logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithCodec sets the params JSON backend.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithLearners replaces the learner registry.
func WithLearners(r *learner.Registry) Option {
	return func(o *options) { o.learners = r }
}

// WithDefaults sets the hyperparameters given to new models.
func WithDefaults(h model.Hyperparams) Option {
	return func(o *options) { o.defaults = &h }
}

// WithParamsCapacity sets the buffer size get_params assumes, NUL included.
func WithParamsCapacity(n int) Option {
	return func(o *options) { o.capacity = n }
}

// WithRegisterer sets where Prometheus collectors are registered when
// metrics are enabled by config. The default is a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.register = reg }
}

// New creates a runtime.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	cfg := config.Default()
	if o.cfg != nil {
		cfg = *o.cfg
	}

	r := &Runtime{
		models:   resource.NewTable[*model.Model](),
		learners: o.learners,
		codec:    o.codec,
		metrics:  o.metrics,
		log:      o.log,
		defaults: cfg.Learner,
		capacity: cfg.Params.Capacity,
	}
	if r.log == nil {
		r.log = Logger()
	}
	if r.learners == nil {
		r.learners = learner.NewRegistry()
	}
	if o.defaults != nil {
		r.defaults = *o.defaults
	}
	if o.capacity > 0 {
		r.capacity = o.capacity
	}
	if r.capacity <= 0 {
		r.capacity = config.DefaultParamsCapacity
	}
	if r.codec == nil {
		c, ok := codec.ByName(cfg.Params.Codec)
		if !ok {
			return nil, errors.InvalidArgument(errors.PhaseConfig, []string{"params", "codec"},
				"unknown codec "+cfg.Params.Codec)
		}
		r.codec = c
	}
	if err := r.defaults.Validate(); err != nil {
		return nil, err
	}

	if r.metrics == nil {
		if err := r.setupMetrics(cfg.Metrics, o.register); err != nil {
			return nil, err
		}
	}

	if cfg.Wasm.Path != "" {
		guest, err := wasm.Load(ctx, cfg.Wasm.Path, wasm.Config{
			MemoryLimitPages: cfg.Wasm.MemoryLimitPages,
			FitTimeout:       cfg.Wasm.FitTimeout,
		})
		if err != nil {
			r.stopServer()
			return nil, err
		}
		r.guest = guest
		r.learners.Register(wasm.Name, guest.Factory())
	}

	r.models.Subscribe(resource.ObserverFunc(r.onModelEvent))

	r.log.Debug("runtime created",
		zap.String("codec", r.codec.Name()),
		zap.Int("params_capacity", r.capacity),
		zap.Strings("learners", r.learners.Names()),
		zap.String("default_learner", r.defaults.Learner))
	return r, nil
}

func (r *Runtime) setupMetrics(mc config.MetricsConfig, reg prometheus.Registerer) error {
	if !mc.Enabled {
		r.metrics = metrics.Noop{}
		return nil
	}

	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		private := prometheus.NewRegistry()
		reg, gatherer = private, private
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	p, err := metrics.NewPrometheus(mc.Namespace, reg)
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidArgument, err, "register metrics")
	}
	r.metrics = p
	if mc.Listen != "" {
		srv, err := metrics.Serve(mc.Listen, gatherer, r.log)
		if err != nil {
			return errors.New(errors.PhaseConfig, errors.KindInvalidArgument).
				Path("metrics", "listen").
				Value(mc.Listen).
				Cause(err).
				Detail("cannot bind metrics endpoint").
				Build()
		}
		r.server = srv
		r.log.Info("metrics endpoint started", zap.String("listen", srv.Addr))
	}
	return nil
}

func (r *Runtime) onModelEvent(e resource.Event) {
	r.metrics.SetLiveModels(e.Live)
	r.log.Debug("model "+e.Type.String(),
		zap.Uint64("handle", uint64(e.Handle)),
		zap.Int("live", e.Live))
}

// Close releases every live model, the guest learner and the metrics
// endpoint. Operations after Close report errors.KindClosed or
// errors.KindInvalidHandle.
func (r *Runtime) Close(ctx context.Context) error {
	var err error
	r.closeMu.Do(func() {
		live := r.models.Len()
		err = r.models.Close()
		r.metrics.SetLiveModels(0)
		if r.guest != nil {
			if cerr := r.guest.Close(ctx); cerr != nil {
				err = stderrors.Join(err, cerr)
			}
		}
		r.stopServer()
		r.log.Debug("runtime closed", zap.Int("released", live))
	})
	return err
}

func (r *Runtime) stopServer() {
	if r.server != nil {
		_ = r.server.Close()
		r.server = nil
	}
}

// Closed reports whether Close has been called.
func (r *Runtime) Closed() bool {
	return r.models.Closed()
}

// Learners returns the learner registry.
func (r *Runtime) Learners() *learner.Registry {
	return r.learners
}

// Defaults returns the hyperparameters given to new models.
func (r *Runtime) Defaults() model.Hyperparams {
	return r.defaults
}

// ParamsCapacity returns the buffer size get_params assumes, NUL included.
func (r *Runtime) ParamsCapacity() int {
	return r.capacity
}

// Codec returns the params JSON backend.
func (r *Runtime) Codec() codec.Codec {
	return r.codec
}

// Len returns the number of live models.
func (r *Runtime) Len() int {
	return r.models.Len()
}

// Handles returns the live handles in slot order.
func (r *Runtime) Handles() []Handle {
	var hs []Handle
	r.models.Each(func(h Handle, _ *model.Model) bool {
		hs = append(hs, h)
		return true
	})
	return hs
}

// Model resolves a handle.
func (r *Runtime) Model(h Handle) (*model.Model, error) {
	m, ok := r.models.Get(h)
	if !ok {
		return nil, errors.InvalidHandle(errors.PhaseResolve, uint64(h))
	}
	return m, nil
}

// NewModel allocates an unfitted model with the default hyperparameters.
func (r *Runtime) NewModel() (h Handle, err error) {
	defer r.record(metrics.OpNewModel, time.Now(), &err)
	return r.insert(model.New(r.defaults))
}

// NewModelWith allocates an unfitted model with the given hyperparameters.
func (r *Runtime) NewModelWith(params model.Hyperparams) (h Handle, err error) {
	defer r.record(metrics.OpNewModel, time.Now(), &err)
	if err := params.Validate(); err != nil {
		return 0, err
	}
	if !r.learners.Has(params.Learner) {
		return 0, errors.NotFound(errors.PhaseCreate, "learner", params.Learner)
	}
	return r.insert(model.New(params))
}

func (r *Runtime) insert(m *model.Model) (Handle, error) {
	h, err := r.models.Insert(m)
	switch {
	case err == nil:
		return h, nil
	case stderrors.Is(err, resource.ErrClosed):
		return 0, errors.Closed(errors.PhaseCreate, "runtime")
	default:
		return 0, errors.Internal(errors.PhaseCreate, "allocate model", err)
	}
}

// DeleteModel releases the model and invalidates h. Deleting an unknown or
// already deleted handle changes nothing and reports KindInvalidHandle.
func (r *Runtime) DeleteModel(h Handle) (err error) {
	defer r.record(metrics.OpDeleteModel, time.Now(), &err)
	if _, ok := r.models.Remove(h); !ok {
		return errors.InvalidHandle(errors.PhaseResolve, uint64(h))
	}
	return nil
}

// Fit trains the model behind h on x (rows x features) and y (rows x outputs).
// On any failure the model keeps its previous state.
func (r *Runtime) Fit(ctx context.Context, h Handle, x, y array.View) (err error) {
	defer r.record(metrics.OpFit, time.Now(), &err)

	m, err := r.Model(h)
	if err != nil {
		return err
	}
	if err := model.CheckFitShapes(x, y); err != nil {
		return err
	}

	params := m.Hyperparams()
	l, err := r.learners.New(params)
	if err != nil {
		return err
	}
	if err := m.Fit(ctx, l, x, y); err != nil {
		r.log.Debug("fit failed",
			zap.Uint64("handle", uint64(h)),
			zap.String("learner", l.Name()),
			zap.Int("rows", x.Rows()),
			zap.Int("cols", x.Cols()),
			zap.Error(err))
		return err
	}

	lin := m.State().Fitted
	if l.Name() == learner.NameSGD && lin.NIter >= params.MaxIter {
		r.log.Warn("maximum number of iterations reached before convergence",
			zap.Uint64("handle", uint64(h)),
			zap.Int("max_iter", params.MaxIter))
	}
	r.log.Debug("model fitted",
		zap.Uint64("handle", uint64(h)),
		zap.String("learner", l.Name()),
		zap.Int("rows", x.Rows()),
		zap.Int("cols", x.Cols()),
		zap.Int("n_iter", lin.NIter),
		zap.Float64("training_loss", lin.TrainingLoss))
	return nil
}

// Predict writes the predictions for x into out.
func (r *Runtime) Predict(out array.View, h Handle, x array.View) (err error) {
	defer r.record(metrics.OpPredict, time.Now(), &err)

	m, err := r.Model(h)
	if err != nil {
		return err
	}
	return m.Predict(out, x)
}

// GetParams encodes the state of h. The text carries no NUL. A model that
// was given a hyperparameters-only document by SetParams or Load encodes
// as one; a model that was neither fitted nor given params is NotFitted.
func (r *Runtime) GetParams(h Handle) (text []byte, err error) {
	defer r.record(metrics.OpGetParams, time.Now(), &err)

	m, err := r.Model(h)
	if err != nil {
		return nil, err
	}
	state := m.State()
	if !state.HasParams() {
		return nil, errors.NotFitted(errors.PhaseEncode)
	}
	return codec.Encode(r.codec, state)
}

// SetParams replaces the state of h with the decoded text. The model is
// untouched unless the whole document decodes and validates.
func (r *Runtime) SetParams(h Handle, text []byte) (err error) {
	defer r.record(metrics.OpSetParams, time.Now(), &err)

	m, err := r.Model(h)
	if err != nil {
		return err
	}
	state, err := r.decode(text)
	if err != nil {
		return err
	}
	m.Swap(state)
	r.log.Debug("params installed",
		zap.Uint64("handle", uint64(h)),
		zap.String("learner", state.Params.Learner),
		zap.Bool("fitted", state.Fitted != nil))
	return nil
}

func (r *Runtime) decode(text []byte) (*model.State, error) {
	state, err := codec.Decode(r.codec, text, r.defaults)
	if err != nil {
		return nil, err
	}
	if !r.learners.Has(state.Params.Learner) {
		return nil, errors.New(errors.PhaseDecode, errors.KindParseError).
			Path("learner", "name").
			Value(state.Params.Learner).
			Detail("unknown learner %q", state.Params.Learner).
			Build()
	}
	state.Installed = true
	return state, nil
}

func (r *Runtime) record(op string, start time.Time, err *error) {
	r.metrics.RecordCall(op, time.Since(start), *err)
}
