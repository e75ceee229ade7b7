package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Tensor represents a multi-dimensional array of float32 values in row-major
// order.
type Tensor struct {
	data  []float32
	shape Shape
	dtype DType
}

// New creates a zero-initialized tensor with the given shape and dtype.
func New(shape Shape, dtype DType) *Tensor {
	return &Tensor{
		data:  make([]float32, shape.Numel()),
		shape: shape,
		dtype: dtype,
	}
}

// Zeros creates a zero-filled tensor.
func Zeros(shape Shape, dtype DType) *Tensor {
	return New(shape, dtype)
}

// Ones creates a ones-filled tensor.
func Ones(shape Shape, dtype DType) *Tensor {
	t := New(shape, dtype)
	for i := range t.data {
		t.data[i] = 1.0
	}
	return t
}

// FromSlice creates a tensor holding a copy of data.
func FromSlice(data []float32, shape Shape) *Tensor {
	if len(data) != shape.Numel() {
		panic(fmt.Sprintf("data length %d != shape numel %d", len(data), shape.Numel()))
	}
	d := make([]float32, len(data))
	copy(d, data)
	return &Tensor{
		data:  d,
		shape: shape,
		dtype: F32,
	}
}

// Randn creates a tensor with standard-normal random values.
func Randn(shape Shape, dtype DType) *Tensor {
	t := New(shape, dtype)
	for i := range t.data {
		t.data[i] = float32(rand.NormFloat64())
	}
	return t
}

// RandnWithStd creates a tensor with normal random values of the given std.
func RandnWithStd(shape Shape, dtype DType, std float32) *Tensor {
	t := New(shape, dtype)
	for i := range t.data {
		t.data[i] = float32(rand.NormFloat64()) * std
	}
	return t
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// DType returns the tensor's dtype.
func (t *Tensor) DType() DType {
	return t.dtype
}

// Data returns a copy of the underlying data.
func (t *Tensor) Data() []float32 {
	d := make([]float32, len(t.data))
	copy(d, t.data)
	return d
}

// DataPtr returns the underlying data slice without copying. Mutations are
// visible to every view sharing the storage.
func (t *Tensor) DataPtr() []float32 {
	return t.data
}

// At returns the value at the given indices.
func (t *Tensor) At(indices ...int) float32 {
	return t.data[t.flatIndex(indices)]
}

// Set sets the value at the given indices.
func (t *Tensor) Set(value float32, indices ...int) {
	t.data[t.flatIndex(indices)] = value
}

func (t *Tensor) flatIndex(indices []int) int {
	if len(indices) != t.shape.NDim() {
		panic(fmt.Sprintf("expected %d indices, got %d", t.shape.NDim(), len(indices)))
	}
	idx := 0
	strides := t.shape.Strides()
	for i, index := range indices {
		if index < 0 || index >= t.shape.At(i) {
			panic(fmt.Sprintf("index %d out of bounds for dim %d with size %d", index, i, t.shape.At(i)))
		}
		idx += index * strides[i]
	}
	return idx
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	return FromSlice(t.data, t.shape)
}

// Reshape returns a view with a new shape sharing the same storage. The new
// shape must have the same number of elements.
func (t *Tensor) Reshape(newShape Shape) *Tensor {
	if t.shape.Numel() != newShape.Numel() {
		panic(fmt.Sprintf("cannot reshape %v to %v: different numel", t.shape, newShape))
	}
	return &Tensor{
		data:  t.data,
		shape: newShape,
		dtype: t.dtype,
	}
}

// Add performs element-wise addition.
func (t *Tensor) Add(other *Tensor) *Tensor {
	if !t.shape.Equal(other.shape) {
		panic(fmt.Sprintf("shape mismatch: %v vs %v", t.shape, other.shape))
	}
	result := New(t.shape, t.dtype)
	for i := range t.data {
		result.data[i] = t.data[i] + other.data[i]
	}
	return result
}

// Sub performs element-wise subtraction.
func (t *Tensor) Sub(other *Tensor) *Tensor {
	if !t.shape.Equal(other.shape) {
		panic(fmt.Sprintf("shape mismatch: %v vs %v", t.shape, other.shape))
	}
	result := New(t.shape, t.dtype)
	for i := range t.data {
		result.data[i] = t.data[i] - other.data[i]
	}
	return result
}

// Mul performs element-wise multiplication.
func (t *Tensor) Mul(other *Tensor) *Tensor {
	if !t.shape.Equal(other.shape) {
		panic(fmt.Sprintf("shape mismatch: %v vs %v", t.shape, other.shape))
	}
	result := New(t.shape, t.dtype)
	for i := range t.data {
		result.data[i] = t.data[i] * other.data[i]
	}
	return result
}

// Scale multiplies by a scalar.
func (t *Tensor) Scale(s float32) *Tensor {
	result := New(t.shape, t.dtype)
	for i := range t.data {
		result.data[i] = t.data[i] * s
	}
	return result
}

// Softmax applies softmax along the last dimension, subtracting the row max
// for numerical stability.
func (t *Tensor) Softmax() *Tensor {
	if t.shape.NDim() < 1 {
		panic("softmax requires at least 1 dimension")
	}

	result := New(t.shape, t.dtype)
	lastDim := t.shape.At(-1)
	numVectors := t.shape.Numel() / lastDim

	for v := 0; v < numVectors; v++ {
		offset := v * lastDim

		maxVal := t.data[offset]
		for i := 1; i < lastDim; i++ {
			if t.data[offset+i] > maxVal {
				maxVal = t.data[offset+i]
			}
		}

		sum := float32(0.0)
		for i := 0; i < lastDim; i++ {
			result.data[offset+i] = float32(math.Exp(float64(t.data[offset+i] - maxVal)))
			sum += result.data[offset+i]
		}

		for i := 0; i < lastDim; i++ {
			result.data[offset+i] /= sum
		}
	}

	return result
}

// Transpose transposes the last two dimensions.
func (t *Tensor) Transpose() *Tensor {
	if t.shape.NDim() < 2 {
		panic("transpose requires at least 2D tensor")
	}

	dims := t.shape.Dims()
	dims[len(dims)-1], dims[len(dims)-2] = dims[len(dims)-2], dims[len(dims)-1]
	result := New(NewShape(dims...), t.dtype)

	rows := t.shape.At(-2)
	cols := t.shape.At(-1)
	batchSize := t.shape.Numel() / (rows * cols)

	for batch := 0; batch < batchSize; batch++ {
		srcOffset := batch * rows * cols
		dstOffset := batch * cols * rows
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				result.data[dstOffset+j*rows+i] = t.data[srcOffset+i*cols+j]
			}
		}
	}

	return result
}

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float32 {
	sum := float32(0.0)
	for _, v := range t.data {
		sum += v
	}
	return sum
}

// Mean returns the mean of all elements.
func (t *Tensor) Mean() float32 {
	return t.Sum() / float32(len(t.data))
}
