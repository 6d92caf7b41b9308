package array

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/wippyai/model-runtime/errors"
)

// ElemSize is the size in bytes of one element.
const ElemSize = 8

// Descriptor describes a caller-owned row-major float64 matrix.
type Descriptor struct {
	DataAddress uint64
	Dim1        int32
	Dim2        int32
}

// String implements fmt.Stringer.
func (d Descriptor) String() string {
	return fmt.Sprintf("array(%#x, %dx%d)", d.DataAddress, d.Dim1, d.Dim2)
}

// DescriptorFor returns a descriptor over a Go slice. The slice must stay
// reachable for as long as the descriptor is in use.
func DescriptorFor(data []float64, rows, cols int) Descriptor {
	var addr uint64
	if len(data) > 0 {
		addr = uint64(uintptr(unsafe.Pointer(&data[0])))
	}
	return Descriptor{DataAddress: addr, Dim1: int32(rows), Dim2: int32(cols)}
}

// View is a bounds-checked row-major matrix over memory it does not own.
type View struct {
	data []float64
	rows int
	cols int
}

// New wraps a Go slice as a rows x cols view.
func New(data []float64, rows, cols int) (View, error) {
	if rows < 0 || cols < 0 {
		return View{}, errors.ShapeMismatch(errors.PhaseValidate, nil, "negative dimensions %dx%d", rows, cols)
	}
	if rows*cols != len(data) {
		return View{}, errors.ShapeMismatch(errors.PhaseValidate, nil,
			"%dx%d view needs %d elements, slice has %d", rows, cols, rows*cols, len(data))
	}
	return View{data: data, rows: rows, cols: cols}, nil
}

// Zeros allocates a rows x cols view backed by Go memory.
func Zeros(rows, cols int) View {
	return View{data: make([]float64, rows*cols), rows: rows, cols: cols}
}

// FromDescriptor validates d and returns a view over the memory it points
// to. name identifies the argument in errors ("x", "y", "out").
func FromDescriptor(name string, d Descriptor) (View, error) {
	if d.Dim1 < 0 || d.Dim2 < 0 {
		return View{}, errors.ShapeMismatch(errors.PhaseValidate, []string{name},
			"negative dimensions %dx%d", d.Dim1, d.Dim2)
	}

	n := int64(d.Dim1) * int64(d.Dim2)
	if n > math.MaxInt/ElemSize {
		return View{}, errors.ShapeMismatch(errors.PhaseValidate, []string{name},
			"%dx%d elements overflow the address space", d.Dim1, d.Dim2)
	}

	rows, cols := int(d.Dim1), int(d.Dim2)
	if n == 0 {
		return View{rows: rows, cols: cols}, nil
	}

	if d.DataAddress == 0 {
		return View{}, errors.InvalidArgument(errors.PhaseValidate, []string{name, "data_address"},
			fmt.Sprintf("null address for %dx%d array", d.Dim1, d.Dim2))
	}
	if d.DataAddress%ElemSize != 0 {
		return View{}, errors.InvalidArgument(errors.PhaseValidate, []string{name, "data_address"},
			fmt.Sprintf("address %#x is not %d-byte aligned", d.DataAddress, ElemSize))
	}
	if d.DataAddress > math.MaxUint64-uint64(n)*ElemSize {
		return View{}, errors.InvalidArgument(errors.PhaseValidate, []string{name, "data_address"},
			fmt.Sprintf("address %#x plus %d elements wraps", d.DataAddress, n))
	}

	data := unsafe.Slice((*float64)(unsafe.Pointer(uintptr(d.DataAddress))), int(n))
	return View{data: data, rows: rows, cols: cols}, nil
}

// Rows returns the first dimension.
func (v View) Rows() int { return v.rows }

// Cols returns the second dimension.
func (v View) Cols() int { return v.cols }

// Dims returns both dimensions.
func (v View) Dims() (int, int) { return v.rows, v.cols }

// Len returns the number of elements.
func (v View) Len() int { return len(v.data) }

// Data returns the backing slice. Writes go to the caller's memory.
func (v View) Data() []float64 { return v.data }

func (v View) offset(i, j int) int {
	if uint(i) >= uint(v.rows) || uint(j) >= uint(v.cols) {
		panic(fmt.Sprintf("array: index (%d, %d) out of range for %dx%d view", i, j, v.rows, v.cols))
	}
	return i*v.cols + j
}

// At returns element (i, j). It panics if the index is out of range.
func (v View) At(i, j int) float64 {
	return v.data[v.offset(i, j)]
}

// Set writes element (i, j). It panics if the index is out of range.
func (v View) Set(i, j int, x float64) {
	v.data[v.offset(i, j)] = x
}

// Row returns row i as a slice aliasing the view's memory.
func (v View) Row(i int) []float64 {
	if uint(i) >= uint(v.rows) {
		panic(fmt.Sprintf("array: row %d out of range for %dx%d view", i, v.rows, v.cols))
	}
	return v.data[i*v.cols : (i+1)*v.cols : (i+1)*v.cols]
}

// Col copies column j into a new slice.
func (v View) Col(j int) []float64 {
	if uint(j) >= uint(v.cols) {
		panic(fmt.Sprintf("array: column %d out of range for %dx%d view", j, v.rows, v.cols))
	}
	out := make([]float64, v.rows)
	for i := range out {
		out[i] = v.data[i*v.cols+j]
	}
	return out
}

// Clone copies the view into Go-owned memory.
func (v View) Clone() View {
	data := make([]float64, len(v.data))
	copy(data, v.data)
	return View{data: data, rows: v.rows, cols: v.cols}
}

// Descriptor returns a descriptor over the view's memory.
func (v View) Descriptor() Descriptor {
	return DescriptorFor(v.data, v.rows, v.cols)
}
