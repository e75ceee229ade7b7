package layer

import (
	"fmt"
	"math"

	"github.com/fumi-engineer/sentence_encoder/tensor"
)

// Activation is an element-wise nonlinearity over a tensor.
type Activation func(*tensor.Tensor) *tensor.Tensor

// GetActivation resolves an activation by name. The set is closed; unknown
// names fail here so a misconfigured layer is never built.
func GetActivation(name string) (Activation, error) {
	switch name {
	case "relu":
		return elementwise(relu), nil
	case "gelu":
		return elementwise(gelu), nil
	case "gelu_fast", "gelu_accurate":
		return elementwise(geluAccurate), nil
	case "tanh":
		return elementwise(tanhf), nil
	case "linear":
		return func(t *tensor.Tensor) *tensor.Tensor { return t }, nil
	default:
		return nil, fmt.Errorf("unknown activation function %q", name)
	}
}

func elementwise(f func(float32) float32) Activation {
	return func(t *tensor.Tensor) *tensor.Tensor {
		out := tensor.New(t.Shape(), t.DType())
		in, o := t.DataPtr(), out.DataPtr()
		for i := range in {
			o[i] = f(in[i])
		}
		return out
	}
}

func relu(x float32) float32 {
	if x < 0 {
		return 0
	}
	return x
}

// gelu is the exact erf formulation: 0.5 * x * (1 + erf(x / sqrt(2))).
func gelu(x float32) float32 {
	return float32(0.5 * float64(x) * (1.0 + math.Erf(float64(x)/math.Sqrt2)))
}

// geluAccurate is the tanh approximation:
// 0.5 * x * (1 + tanh(sqrt(2/pi) * (x + 0.044715 * x^3))).
func geluAccurate(x float32) float32 {
	const c = 0.7978845608028654 // sqrt(2/pi)
	x64 := float64(x)
	return float32(0.5 * x64 * (1.0 + math.Tanh(c*(x64+0.044715*x64*x64*x64))))
}

func tanhf(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}
