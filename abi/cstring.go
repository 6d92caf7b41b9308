package abi

import (
	"unsafe"

	"github.com/wippyai/model-runtime/errors"
)

// bytesAt views n bytes of caller memory at addr.
func bytesAt(addr uint64, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), n)
}

// readCString copies a NUL-terminated string from caller memory. At most
// limit bytes are scanned; a string without a NUL in that range fails with
// KindParseError.
func readCString(name string, addr uint64, limit int) ([]byte, error) {
	if addr == 0 {
		return nil, errors.InvalidArgument(errors.PhaseABI, []string{name}, "null pointer")
	}
	base := unsafe.Pointer(uintptr(addr))
	for i := 0; i < limit; i++ {
		if *(*byte)(unsafe.Add(base, i)) == 0 {
			out := make([]byte, i)
			copy(out, bytesAt(addr, i))
			return out, nil
		}
	}
	return nil, errors.New(errors.PhaseDecode, errors.KindParseError).
		Path(name).
		Detail("no terminating NUL within %d bytes", limit).
		Build()
}

// writeCString copies text plus a NUL into a buffer of capacity bytes at addr.
// When it does not fit only out[0] is cleared.
func writeCString(name string, addr uint64, capacity int, text []byte) error {
	if addr == 0 {
		return errors.InvalidArgument(errors.PhaseABI, []string{name}, "null pointer")
	}
	if capacity <= 0 {
		return errors.InvalidArgument(errors.PhaseABI, []string{name}, "non-positive capacity")
	}
	dst := bytesAt(addr, capacity)
	if len(text)+1 > capacity {
		dst[0] = 0
		return errors.BufferTooSmall(errors.PhaseEncode, len(text)+1, capacity)
	}
	copy(dst, text)
	dst[len(text)] = 0
	return nil
}

// clearCString writes an empty string when addr is usable.
func clearCString(addr uint64, capacity int) {
	if addr != 0 && capacity > 0 {
		bytesAt(addr, 1)[0] = 0
	}
}

// sizedResult encodes the outcome of a write into a caller-sized buffer:
// bytes written excluding the NUL, -(needed+1) when the buffer is too small
// (needed counts the NUL), or -1 on any other failure.
func sizedResult(n int, err error) int64 {
	if err == nil {
		return int64(n)
	}
	var e *errors.Error
	if errors.As(err, &e) && e.Kind == errors.KindBufferTooSmall {
		if need, ok := e.Value.(int); ok {
			return -int64(need) - 1
		}
	}
	return -1
}
