// Package runtime is the model registry behind the plugin ABI.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	h, _ := rt.NewModel()
//	x, _ := array.New([]float64{0, 1, 2, 3}, 4, 1)
//	y, _ := array.New([]float64{1, 3, 5, 7}, 4, 1)
//	if err := rt.Fit(ctx, h, x, y); err != nil {
//	    log.Fatal(err)
//	}
//
//	out := array.Zeros(4, 1)
//	_ = rt.Predict(out, h, x)
//
// # Handles
//
// Every model is addressed by a generation-tagged handle. Deleting a model
// invalidates its handle for good: the slot is reused with a new generation,
// so a stale handle reports errors.KindInvalidHandle instead of reaching
// another model.
//
// # Parameters
//
// GetParams and SetParams exchange the full model state as codec text.
// SetParams decodes and validates the whole document before swapping it in,
// so malformed input never changes the model.
//
// # Snapshots
//
// Save, Load, SaveAll and LoadAll move parameter texts between the registry
// and a snapshot.Store under "{iteration}_{model}.json" names.
//
// # Configuration
//
// New accepts options; WithConfig applies a config.Config (default
// hyperparameters, params codec and capacity, optional guest learner,
// metrics):
//
//	cfg, err := config.FromEnvironment()
//	rt, err := runtime.New(ctx, runtime.WithConfig(cfg))
package runtime
