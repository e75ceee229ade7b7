package layer

import (
	"math"

	"github.com/fumi-engineer/sentence_encoder/tensor"
)

// LayerNorm normalizes the trailing dimension to zero mean and unit variance,
// then applies a learned affine transform:
//
//	y_i = (x_i - mean) / sqrt(var + eps) * gamma_i + beta_i
type LayerNorm struct {
	gamma *tensor.Tensor // learned scale, shape [dim], initialized to 1
	beta  *tensor.Tensor // learned shift, shape [dim], initialized to 0
	eps   float32
	dim   int

	// export selects the serialization-friendly reference implementation in
	// runtimes that carry a fused kernel. The pure-Go path has a single
	// implementation, so the flag is carried through but numerically inert.
	export bool
}

// NewLayerNorm creates a LayerNorm over the trailing dim with eps 1e-5.
func NewLayerNorm(dim int, export bool) *LayerNorm {
	return &LayerNorm{
		gamma:  tensor.Ones(tensor.NewShape(dim), tensor.F32),
		beta:   tensor.Zeros(tensor.NewShape(dim), tensor.F32),
		eps:    1e-5,
		dim:    dim,
		export: export,
	}
}

// Forward applies layer normalization along the last dimension.
func (n *LayerNorm) Forward(input *tensor.Tensor) *tensor.Tensor {
	shape := input.Shape()
	numVectors := shape.Numel() / n.dim

	output := tensor.New(shape, tensor.F32)
	in, out := input.DataPtr(), output.DataPtr()
	g, b := n.gamma.DataPtr(), n.beta.DataPtr()

	for v := 0; v < numVectors; v++ {
		off := v * n.dim
		row := in[off : off+n.dim]

		mean := float32(0)
		for _, x := range row {
			mean += x
		}
		mean /= float32(n.dim)

		variance := float32(0)
		for _, x := range row {
			d := x - mean
			variance += d * d
		}
		variance /= float32(n.dim)

		inv := 1.0 / sqrtf(variance+n.eps)
		oRow := out[off : off+n.dim]
		for i := range oRow {
			oRow[i] = (row[i]-mean)*inv*g[i] + b[i]
		}
	}
	return output
}

// Parameters returns the learned scale and shift vectors.
func (n *LayerNorm) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{n.gamma, n.beta}
}

// Export reports whether the norm was built in export mode.
func (n *LayerNorm) Export() bool { return n.export }

func sqrtf(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}
