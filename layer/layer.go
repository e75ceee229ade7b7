// Package layer provides the primitive building blocks composed by the
// sentence encoder layer: affine transforms, layer normalization, dropout and
// activation functions.
package layer

import (
	"github.com/fumi-engineer/sentence_encoder/tensor"
)

// Module is the interface for parameterized forward-only layers.
type Module interface {
	// Forward performs the forward pass.
	Forward(input *tensor.Tensor) *tensor.Tensor
	// Parameters returns the layer's learned parameters.
	Parameters() []*tensor.Tensor
}

var (
	_ Module = (*Linear)(nil)
	_ Module = (*LayerNorm)(nil)
)
