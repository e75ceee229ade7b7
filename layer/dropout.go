package layer

import (
	"fmt"
	"math/rand"

	"github.com/fumi-engineer/sentence_encoder/tensor"
)

// Dropout zeroes each element with probability p and scales survivors by
// 1/(1-p) (inverted dropout), so inference needs no rescaling.
//
// The training flag is threaded into every call instead of being held here:
// the owning layer decides the mode, the dropout stays stateless.
type Dropout struct {
	p float32
}

// NewDropout creates a dropout operator. p must be in [0, 1).
func NewDropout(p float32) *Dropout {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("dropout probability %f out of range [0, 1)", p))
	}
	return &Dropout{p: p}
}

// Forward applies dropout in training mode and is the identity otherwise.
// With p == 0 the input tensor is returned unchanged.
func (d *Dropout) Forward(x *tensor.Tensor, training bool) *tensor.Tensor {
	if !training || d.p == 0 {
		return x
	}
	scale := 1.0 / (1.0 - d.p)
	out := tensor.New(x.Shape(), x.DType())
	in, o := x.DataPtr(), out.DataPtr()
	for i := range in {
		if rand.Float32() >= d.p {
			o[i] = in[i] * scale
		}
	}
	return out
}

// P returns the configured dropout probability.
func (d *Dropout) P() float32 { return d.p }
