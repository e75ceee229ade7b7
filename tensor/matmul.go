package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Matrix multiplication is delegated to gonum's float32 BLAS. The entry
// points below mirror cblas_sgemm with NoTrans/NoTrans and NoTrans/Trans
// so callers never materialize a transposed operand.

// Matmul performs matrix multiplication.
// For 2D: [M, K] x [K, N] -> [M, N].
// For 3D: [batch, M, K] x [batch, K, N] -> [batch, M, N].
func Matmul(a, b *Tensor) *Tensor {
	if a.shape.NDim() < 2 || b.shape.NDim() < 2 {
		panic("matmul requires at least 2D tensors")
	}

	aM := a.shape.At(-2)
	aK := a.shape.At(-1)
	bK := b.shape.At(-2)
	bN := b.shape.At(-1)

	if aK != bK {
		panic(fmt.Sprintf("matmul dimension mismatch: %d vs %d", aK, bK))
	}

	var batchSize int
	var resultShape Shape
	switch {
	case a.shape.NDim() == 2 && b.shape.NDim() == 2:
		batchSize = 1
		resultShape = NewShape(aM, bN)
	case a.shape.NDim() == 3 && b.shape.NDim() == 3 && a.shape.At(0) == b.shape.At(0):
		batchSize = a.shape.At(0)
		resultShape = NewShape(batchSize, aM, bN)
	default:
		panic(fmt.Sprintf("unsupported matmul shapes: %v x %v", a.shape, b.shape))
	}

	result := New(resultShape, a.dtype)
	for batch := 0; batch < batchSize; batch++ {
		gemm(blas.NoTrans, blas.NoTrans,
			aM, bN, aK,
			1.0,
			a.data[batch*aM*aK:], aK,
			b.data[batch*bK*bN:], bN,
			0.0,
			result.data[batch*aM*bN:], bN)
	}
	return result
}

// MatmulTransposedB computes a @ b^T for 2D tensors.
// a: [M, K], b: [N, K] -> [M, N]. Used by Linear, whose weight is stored
// as [out, in] so the forward pass needs no transpose allocation.
func MatmulTransposedB(a, b *Tensor) *Tensor {
	if a.shape.NDim() != 2 || b.shape.NDim() != 2 {
		panic("matmulTransposedB requires 2D tensors")
	}
	m := a.shape.At(0)
	k := a.shape.At(1)
	n := b.shape.At(0)
	if b.shape.At(1) != k {
		panic(fmt.Sprintf("matmulTransposedB dimension mismatch: %d vs %d", k, b.shape.At(1)))
	}

	result := New(NewShape(m, n), a.dtype)
	gemm(blas.NoTrans, blas.Trans,
		m, n, k,
		1.0,
		a.data, k,
		b.data, k,
		0.0,
		result.data, n)
	return result
}

// gemm computes C = alpha*op(A)@op(B) + beta*C in row-major layout.
// m, n, k are the dims after the transpose ops are applied.
func gemm(tA, tB blas.Transpose, m, n, k int, alpha float32, a []float32, lda int, b []float32, ldb int, beta float32, c []float32, ldc int) {
	if m == 0 || n == 0 || k == 0 {
		return
	}
	ar, ac := m, k
	if tA == blas.Trans {
		ar, ac = k, m
	}
	br, bc := k, n
	if tB == blas.Trans {
		br, bc = n, k
	}
	blas32.Gemm(tA, tB, alpha,
		blas32.General{Rows: ar, Cols: ac, Stride: lda, Data: a},
		blas32.General{Rows: br, Cols: bc, Stride: ldb, Data: b},
		beta,
		blas32.General{Rows: m, Cols: n, Stride: ldc, Data: c})
}
