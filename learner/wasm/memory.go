package wasm

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero/api"
)

// guestMemory moves float64 slices in and out of a guest instance.
type guestMemory struct {
	mem   api.Memory
	alloc api.Function
}

// allocFloats reserves room for n float64 values and returns the pointer.
func (g *guestMemory) allocFloats(ctx context.Context, n int) (uint32, error) {
	size := uint64(n) * 8
	if size > math.MaxUint32 {
		return 0, fmt.Errorf("allocation of %d floats exceeds the 32-bit address space", n)
	}
	res, err := g.alloc.Call(ctx, size)
	if err != nil {
		return 0, fmt.Errorf("alloc(%d): %w", size, err)
	}
	ptr := uint32(res[0])
	if ptr%8 != 0 {
		return 0, fmt.Errorf("alloc(%d) returned unaligned pointer %#x", size, ptr)
	}
	return ptr, nil
}

// writeFloats copies values to guest memory at offset.
func (g *guestMemory) writeFloats(offset uint32, values []float64) error {
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	if !g.mem.Write(offset, buf) {
		return fmt.Errorf("memory write out of bounds: offset=%d, length=%d", offset, len(buf))
	}
	return nil
}

// readFloats copies n values out of guest memory at offset.
func (g *guestMemory) readFloats(offset uint32, n int) ([]float64, error) {
	buf, ok := g.mem.Read(offset, uint32(n*8))
	if !ok {
		return nil, fmt.Errorf("memory read out of bounds: offset=%d, length=%d", offset, n*8)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}
