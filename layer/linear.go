package layer

import (
	"github.com/fumi-engineer/sentence_encoder/tensor"
)

// Linear computes y = x @ W^T + b (optional bias).
//
// Weight shape: [out_features, in_features] (transposed layout so that
// tensor.MatmulTransposedB can be used without a transpose allocation).
type Linear struct {
	weight  *tensor.Tensor
	bias    *tensor.Tensor
	inFeat  int
	outFeat int
}

// NewLinear creates a linear layer with Kaiming initialization, N(0, sqrt(2/in)),
// and a zero bias when useBias is set.
func NewLinear(inFeatures, outFeatures int, useBias bool) *Linear {
	std := sqrtf(2.0 / float32(inFeatures))
	l := &Linear{
		weight:  tensor.RandnWithStd(tensor.NewShape(outFeatures, inFeatures), tensor.F32, std),
		inFeat:  inFeatures,
		outFeat: outFeatures,
	}
	if useBias {
		l.bias = tensor.Zeros(tensor.NewShape(outFeatures), tensor.F32)
	}
	return l
}

// Forward computes y = x @ W^T (+ bias). Input may be any shape whose last
// dim is in_features; leading dims are treated as a flat batch and restored
// on the output.
func (l *Linear) Forward(input *tensor.Tensor) *tensor.Tensor {
	lead, batchSize, _ := splitLast(input.Shape().Dims())
	flat := input.Reshape(tensor.NewShape(batchSize, l.inFeat))
	output := tensor.MatmulTransposedB(flat, l.weight)

	if l.bias != nil {
		out, b := output.DataPtr(), l.bias.DataPtr()
		for i := 0; i < batchSize; i++ {
			row := out[i*l.outFeat : (i+1)*l.outFeat]
			for j := range row {
				row[j] += b[j]
			}
		}
	}

	return output.Reshape(tensor.NewShape(append(lead, l.outFeat)...))
}

// Parameters returns the weight (and bias, if present).
func (l *Linear) Parameters() []*tensor.Tensor {
	if l.bias != nil {
		return []*tensor.Tensor{l.weight, l.bias}
	}
	return []*tensor.Tensor{l.weight}
}

// InFeatures returns the input dimension.
func (l *Linear) InFeatures() int { return l.inFeat }

// OutFeatures returns the output dimension.
func (l *Linear) OutFeatures() int { return l.outFeat }

// splitLast peels the trailing dimension off dims, returning the leading
// dims, their element count, and the trailing size.
func splitLast(dims []int) (lead []int, batch, last int) {
	last = dims[len(dims)-1]
	lead = dims[:len(dims)-1]
	batch = 1
	for _, d := range lead {
		batch *= d
	}
	return lead, batch, last
}
