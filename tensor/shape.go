// Package tensor provides the flat float32 tensor type shared by all layers.
//
// Storage is a row-major []float32 slice. Shapes are small value types so they
// can be passed and compared freely without aliasing surprises.
package tensor

import (
	"fmt"
	"strings"
)

// Shape represents the dimensions of a tensor. The dims slice is private so a
// Shape cannot be mutated through a retained reference.
type Shape struct {
	dims []int
}

// NewShape creates a new Shape from dimension sizes.
func NewShape(dims ...int) Shape {
	d := make([]int, len(dims))
	copy(d, dims)
	return Shape{dims: d}
}

// Dims returns a copy of the dimensions.
func (s Shape) Dims() []int {
	d := make([]int, len(s.dims))
	copy(d, s.dims)
	return d
}

// NDim returns the number of dimensions.
func (s Shape) NDim() int {
	return len(s.dims)
}

// Numel returns the total number of elements.
func (s Shape) Numel() int {
	if len(s.dims) == 0 {
		return 0
	}
	n := 1
	for _, d := range s.dims {
		n *= d
	}
	return n
}

// At returns the size at the given dimension. Negative indices count from the
// end, so At(-1) is the trailing dimension.
func (s Shape) At(dim int) int {
	if dim < 0 {
		dim = len(s.dims) + dim
	}
	if dim < 0 || dim >= len(s.dims) {
		return 0
	}
	return s.dims[dim]
}

// Strides returns the strides for row-major layout.
func (s Shape) Strides() []int {
	if len(s.dims) == 0 {
		return nil
	}
	strides := make([]int, len(s.dims))
	strides[len(s.dims)-1] = 1
	for i := len(s.dims) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s.dims[i+1]
	}
	return strides
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s.dims) != len(other.dims) {
		return false
	}
	for i := range s.dims {
		if s.dims[i] != other.dims[i] {
			return false
		}
	}
	return true
}

// Broadcast computes the shape two operands broadcast to, aligning trailing
// dimensions. Dimensions of size 1 stretch to match; any other mismatch is an
// error.
func Broadcast(a, b Shape) (Shape, error) {
	n := len(a.dims)
	if len(b.dims) > n {
		n = len(b.dims)
	}

	dims := make([]int, n)
	for i := 0; i < n; i++ {
		da, db := 1, 1
		if i < len(a.dims) {
			da = a.dims[len(a.dims)-1-i]
		}
		if i < len(b.dims) {
			db = b.dims[len(b.dims)-1-i]
		}
		if da != db && da != 1 && db != 1 {
			return Shape{}, fmt.Errorf("cannot broadcast shapes %v and %v", a, b)
		}
		if da > db {
			dims[n-1-i] = da
		} else {
			dims[n-1-i] = db
		}
	}
	return Shape{dims: dims}, nil
}

// String returns a string representation such as "[2, 3, 4]".
func (s Shape) String() string {
	parts := make([]string, len(s.dims))
	for i, d := range s.dims {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
