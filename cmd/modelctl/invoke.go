package main

import (
	"bytes"
	"fmt"
	goruntime "runtime"
	"strconv"
	"strings"
	"unsafe"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/model-runtime/abi"
	"github.com/wippyai/model-runtime/array"
	"github.com/wippyai/model-runtime/runtime"
)

// messageCapacity sizes the buffer for last_error_message when the caller
// gives no capacity.
const messageCapacity = 1024

// invoker calls ABI functions by name with textual arguments, the way a C
// host would: buffers are allocated here and passed by address.
type invoker struct {
	s *abi.Surface
}

// inputs returns the parameters a caller supplies for sig.
func inputs(sig abi.Signature) []abi.Param {
	var in []abi.Param
	for _, p := range sig.Params {
		if !p.Out {
			in = append(in, p)
		}
	}
	return in
}

// call invokes the function named name. args holds one value per input
// parameter, in order.
func (iv *invoker) call(name string, args []string) (string, error) {
	sig, ok := abi.Lookup(name)
	if !ok {
		return "", fmt.Errorf("unknown function %q", name)
	}
	in := inputs(sig)
	if len(args) != len(in) {
		return "", fmt.Errorf("%s takes %d arguments, got %d", name, len(in), len(args))
	}

	vals := make(map[string]any, len(in))
	var keep []any
	for i, p := range in {
		v, pinned, err := convertArg(args[i], p.Type)
		if err != nil {
			return "", fmt.Errorf("%s: %w", p.Name, err)
		}
		vals[p.Name] = v
		if pinned != nil {
			keep = append(keep, pinned)
		}
	}
	defer goruntime.KeepAlive(keep)

	h, _ := vals["h"].(uint64)
	s := iv.s

	switch name {
	case "new_model":
		h = s.NewModel()
		if err := iv.check(0); err != nil {
			return "", err
		}
		return strconv.FormatUint(h, 10), nil

	case "delete_model":
		s.DeleteModel(h)
		return "ok", iv.check(h)

	case "fit":
		s.Fit(h, vals["x"].(array.Descriptor), vals["y"].(array.Descriptor))
		return "ok", iv.check(h)

	case "predict":
		x := vals["x"].(array.Descriptor)
		width := 0
		if m, err := s.Runtime().Model(runtime.Handle(h)); err == nil {
			width = m.OutputWidth()
		}
		rows := int(x.Dim1)
		if rows < 0 {
			rows = 0
		}
		out := array.Zeros(rows, width)
		s.Predict(out.Descriptor(), h, x)
		goruntime.KeepAlive(out)
		if err := iv.check(h); err != nil {
			return "", err
		}
		return formatMatrix(out), nil

	case "get_params":
		buf := make([]byte, s.Runtime().ParamsCapacity())
		s.GetParams(h, bufAddr(buf))
		goruntime.KeepAlive(buf)
		if err := iv.check(h); err != nil {
			return "", err
		}
		return cString(buf), nil

	case "set_params":
		s.SetParams(h, vals["params"].(uint64))
		return "ok", iv.check(h)

	case "get_params_len":
		n := s.GetParamsLen(h)
		if err := iv.check(h); err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil

	case "get_params_into":
		capacity := vals["cap"].(int64)
		buf := make([]byte, max(capacity, 1))
		n := s.GetParamsInto(h, bufAddr(buf), capacity)
		goruntime.KeepAlive(buf)
		if err := iv.check(h); err != nil {
			return strconv.FormatInt(n, 10), err
		}
		return fmt.Sprintf("%d %s", n, cString(buf)), nil

	case "last_error_code":
		return strconv.Itoa(int(s.LastErrorCode(h))), nil

	case "last_error_message":
		capacity := int32(vals["cap"].(int64))
		if capacity <= 0 {
			capacity = messageCapacity
		}
		buf := make([]byte, capacity)
		n := s.LastErrorMessage(h, bufAddr(buf), capacity)
		goruntime.KeepAlive(buf)
		if n < 0 {
			return strconv.Itoa(int(n)), nil
		}
		return cString(buf), nil

	case "live_models":
		return strconv.Itoa(int(s.LiveModels())), nil

	case "modelrt_shutdown":
		s.Shutdown()
		return "ok", nil
	}
	return "", fmt.Errorf("no invoker for %q", name)
}

func (iv *invoker) check(h uint64) error {
	if iv.s.LastErrorCode(h) == 0 {
		return nil
	}
	return iv.s.LastError(h)
}

// convertArg parses value as WIT type t. The second result is memory that
// must stay reachable while the call runs.
func convertArg(value string, t wit.Type) (any, any, error) {
	value = strings.TrimSpace(value)
	switch v := t.(type) {
	case wit.U64:
		n, err := strconv.ParseUint(value, 0, 64)
		return n, nil, err
	case wit.S32:
		n, err := strconv.ParseInt(value, 0, 32)
		return n, nil, err
	case wit.S64:
		n, err := strconv.ParseInt(value, 0, 64)
		return n, nil, err
	case wit.String:
		b := append([]byte(value), 0)
		return bufAddr(b), b, nil
	case *wit.TypeDef:
		if v == abi.Array2Ptr {
			data, rows, cols, err := parseMatrix(value)
			if err != nil {
				return nil, nil, err
			}
			return array.DescriptorFor(data, rows, cols), data, nil
		}
	}
	return nil, nil, fmt.Errorf("unsupported type %s", abi.TypeName(t))
}

func bufAddr(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
