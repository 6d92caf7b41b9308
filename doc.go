// Package modelrt is a native model-serving core driven through a narrow,
// synchronous, handle-based C ABI.
//
// A host process loads the shared library built from cmd/libmodelrt, asks
// for model handles, and passes numeric matrices as raw descriptors over its
// own buffers. The core never allocates host-visible memory.
//
// # Architecture Overview
//
//	modelrt/
//	├── abi/             ABI functions over uint64 addresses, last-error slots
//	├── array/           Bounds-checked views over caller-owned float64 buffers
//	├── codec/           Versioned params text format and JSON backends
//	├── config/          YAML file and MODELRT_* environment configuration
//	├── errors/          Structured error types and ABI error codes
//	├── learner/         SGD and least-squares learners
//	│   └── wasm/        Learners compiled to WebAssembly
//	├── metrics/         Call metrics (basic counters, Prometheus)
//	├── model/           Linear model state, shape checks, prediction
//	├── resource/        Generation-tagged handle table
//	├── runtime/         Model registry and operations
//	├── snapshot/        Params snapshot stores (local, memory, zstd, s3, minio)
//	└── cmd/
//	    ├── libmodelrt/  c-shared entry points and model_runtime.h
//	    └── modelctl/    Command line and interactive front end
//
// # Quick Start
//
// From Go, without the C boundary:
//
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
//	out := array.Zeros(1, 1)
//	q, _ := array.New([]float64{10}, 1, 1)
//	_ = rt.Predict(out, h, q) // out.At(0, 0) ≈ 21
//
// From C, link against libmodelrt and include model_runtime.h.
package modelrt
