package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/model-runtime/errors"
	"github.com/wippyai/model-runtime/metrics"
	"github.com/wippyai/model-runtime/snapshot"
)

// snapshotWorkers bounds concurrent store requests in SaveAll and LoadAll.
const snapshotWorkers = 8

// SnapshotName returns the name SaveAll uses for h: the model's learner and
// slot index, so that one iteration holds one snapshot per live model.
func (r *Runtime) SnapshotName(h Handle, iteration int) (string, error) {
	m, err := r.Model(h)
	if err != nil {
		return "", err
	}
	return snapshot.Name(iteration, fmt.Sprintf("%s-%d", m.Hyperparams().Learner, h.Index())), nil
}

// Save writes the params of h to store under name.
func (r *Runtime) Save(ctx context.Context, store snapshot.Store, h Handle, name string) (err error) {
	defer r.record(metrics.OpSave, time.Now(), &err)

	text, err := r.GetParams(h)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, name, text); err != nil {
		return errors.Wrap(errors.PhaseStore, errors.KindInternal, err, "put "+name)
	}
	r.log.Debug("snapshot saved",
		zap.Uint64("handle", uint64(h)),
		zap.String("name", name),
		zap.Int("bytes", len(text)))
	return nil
}

// Load reads the snapshot name from store into a new model.
func (r *Runtime) Load(ctx context.Context, store snapshot.Store, name string) (h Handle, err error) {
	defer r.record(metrics.OpLoad, time.Now(), &err)

	text, err := store.Get(ctx, name)
	if err != nil {
		if stderrors.Is(err, snapshot.ErrNotFound) {
			return 0, errors.NotFound(errors.PhaseStore, "snapshot", name)
		}
		return 0, errors.Wrap(errors.PhaseStore, errors.KindInternal, err, "get "+name)
	}
	state, err := r.decode(text)
	if err != nil {
		return 0, err
	}

	h, err = r.NewModel()
	if err != nil {
		return 0, err
	}
	m, err := r.Model(h)
	if err != nil {
		return 0, err
	}
	m.Swap(state)

	r.log.Debug("snapshot loaded",
		zap.Uint64("handle", uint64(h)),
		zap.String("name", name))
	return h, nil
}

// SaveAll writes every model that has params to export to store for the
// given iteration and returns the names written by handle. Models that were
// never fitted nor given params are skipped.
func (r *Runtime) SaveAll(ctx context.Context, store snapshot.Store, iteration int) (map[Handle]string, error) {
	var (
		mu    sync.Mutex
		saved = make(map[Handle]string)
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotWorkers)
	for _, h := range r.Handles() {
		m, err := r.Model(h)
		if err != nil || !m.State().HasParams() {
			continue
		}
		name, err := r.SnapshotName(h, iteration)
		if err != nil {
			continue
		}
		g.Go(func() error {
			if err := r.Save(ctx, store, h, name); err != nil {
				return fmt.Errorf("save %s: %w", name, err)
			}
			mu.Lock()
			saved[h] = name
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return saved, err
	}
	return saved, nil
}

// LoadAll loads every snapshot in store whose name starts with prefix and
// returns the new handles by snapshot name. On failure, models already
// loaded by this call are deleted.
func (r *Runtime) LoadAll(ctx context.Context, store snapshot.Store, prefix string) (map[string]Handle, error) {
	names, err := store.List(ctx, prefix)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInternal, err, "list "+prefix)
	}

	var (
		mu     sync.Mutex
		loaded = make(map[string]Handle, len(names))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotWorkers)
	for _, name := range names {
		if _, _, ok := snapshot.ParseName(name); !ok {
			continue
		}
		g.Go(func() error {
			h, err := r.Load(gctx, store, name)
			if err != nil {
				return fmt.Errorf("load %s: %w", name, err)
			}
			mu.Lock()
			loaded[name] = h
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, h := range loaded {
			_ = r.DeleteModel(h)
		}
		return nil, err
	}
	return loaded, nil
}
