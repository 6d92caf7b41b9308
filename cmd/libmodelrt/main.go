// Command libmodelrt builds the model runtime as a C shared library.
//
//	go build -buildmode=c-shared -o libmodelrt.so ./cmd/libmodelrt
//
// The exported functions are declared in model_runtime.h. Configuration
// comes from the environment (MODELRT_CONFIG and MODELRT_* variables) and
// is read on the first call.
package main

/*
#include <stdint.h>

#ifndef MODELRT_ARRAY2PTR
#define MODELRT_ARRAY2PTR
struct Array2Ptr {
    uint64_t data_address;
    int32_t dim1;
    int32_t dim2;
};
#endif
*/
import "C"

import (
	"context"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/wippyai/model-runtime/abi"
	"github.com/wippyai/model-runtime/array"
	"github.com/wippyai/model-runtime/errors"
	"github.com/wippyai/model-runtime/runtime"
)

var (
	surfaceOnce sync.Once
	surface     *abi.Surface
)

// get opens the surface on first use. A bad configuration is reported on
// stderr and the built-in defaults are used instead.
func get() *abi.Surface {
	surfaceOnce.Do(func() {
		ctx := context.Background()
		s, err := abi.Open(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "modelrt: %v; using defaults\n", err)
			rt, rerr := runtime.New(ctx)
			if rerr != nil {
				fmt.Fprintf(os.Stderr, "modelrt: %v\n", rerr)
				return
			}
			s = abi.New(rt, nil)
		}
		surface = s
	})
	return surface
}

func desc(a C.struct_Array2Ptr) array.Descriptor {
	return array.Descriptor{
		DataAddress: uint64(a.data_address),
		Dim1:        int32(a.dim1),
		Dim2:        int32(a.dim2),
	}
}

func addr(p *C.char) uint64 {
	return uint64(uintptr(unsafe.Pointer(p)))
}

//export new_model
func new_model() C.uint64_t {
	s := get()
	if s == nil {
		return 0
	}
	return C.uint64_t(s.NewModel())
}

//export delete_model
func delete_model(h C.uint64_t) {
	if s := get(); s != nil {
		s.DeleteModel(uint64(h))
	}
}

//export fit
func fit(h C.uint64_t, x, y C.struct_Array2Ptr) {
	if s := get(); s != nil {
		s.Fit(uint64(h), desc(x), desc(y))
	}
}

//export predict
func predict(out C.struct_Array2Ptr, h C.uint64_t, x C.struct_Array2Ptr) {
	if s := get(); s != nil {
		s.Predict(desc(out), uint64(h), desc(x))
	}
}

//export get_params
func get_params(h C.uint64_t, out *C.char) {
	if s := get(); s != nil {
		s.GetParams(uint64(h), addr(out))
	}
}

//export set_params
func set_params(h C.uint64_t, params *C.char) {
	if s := get(); s != nil {
		s.SetParams(uint64(h), addr(params))
	}
}

//export get_params_len
func get_params_len(h C.uint64_t) C.int64_t {
	s := get()
	if s == nil {
		return -1
	}
	return C.int64_t(s.GetParamsLen(uint64(h)))
}

//export get_params_into
func get_params_into(h C.uint64_t, out *C.char, capacity C.int64_t) C.int64_t {
	s := get()
	if s == nil {
		return -1
	}
	return C.int64_t(s.GetParamsInto(uint64(h), addr(out), int64(capacity)))
}

//export last_error_code
func last_error_code(h C.uint64_t) C.int32_t {
	s := get()
	if s == nil {
		return C.int32_t(errors.CodeInternal)
	}
	return C.int32_t(s.LastErrorCode(uint64(h)))
}

//export last_error_message
func last_error_message(h C.uint64_t, out *C.char, capacity C.int32_t) C.int32_t {
	s := get()
	if s == nil {
		return -1
	}
	return C.int32_t(s.LastErrorMessage(uint64(h), addr(out), int32(capacity)))
}

//export live_models
func live_models() C.int32_t {
	s := get()
	if s == nil {
		return 0
	}
	return C.int32_t(s.LiveModels())
}

//export modelrt_shutdown
func modelrt_shutdown() {
	if s := get(); s != nil {
		s.Shutdown()
	}
}

func main() {}
