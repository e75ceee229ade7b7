package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/fumi-engineer/sentence_encoder/layer"
	"github.com/fumi-engineer/sentence_encoder/tensor"
)

var negInf = float32(math.Inf(-1))

// MultiheadAttention implements scaled dot-product attention with numHeads
// parallel heads over time-first tensors.
//
//	scores  = (Q @ K^T) / sqrt(d_head) + attn_mask
//	weights = softmax(scores with padded key columns at -inf)
//	output  = W_out @ (weights @ V)
//
// Query is [tgt_len, batch, embed_dim]; key and value are
// [src_len, batch, embed_dim]. Two structural extensions from the BERT/XLM
// lineage are supported: a learned bias key/value pair and a zero-attention
// slot, each appended as one extra source position after projection.
type MultiheadAttention struct {
	embedDim int
	numHeads int
	headDim  int
	scale    float32 // 1 / sqrt(head_dim)
	dropoutP float32 // applied to attention weights in training mode

	wQ, wK, wV, wOut *layer.Linear
	biasK, biasV     *tensor.Tensor // [embed_dim] each, nil unless addBiasKV
	addZeroAttn      bool
	selfAttention    bool
}

// NewMultiheadAttention creates an attention primitive. embedDim must be
// divisible by numHeads and dropout must lie in [0, 1).
func NewMultiheadAttention(embedDim, numHeads int, dropout float32, addBiasKV, addZeroAttn, selfAttention bool) (*MultiheadAttention, error) {
	if numHeads <= 0 || embedDim%numHeads != 0 {
		return nil, fmt.Errorf("embed dim %d not divisible by %d heads", embedDim, numHeads)
	}
	if dropout < 0 || dropout >= 1 {
		return nil, fmt.Errorf("attention dropout %f out of range [0, 1)", dropout)
	}
	headDim := embedDim / numHeads
	m := &MultiheadAttention{
		embedDim:      embedDim,
		numHeads:      numHeads,
		headDim:       headDim,
		scale:         1.0 / sqrtf(float32(headDim)),
		dropoutP:      dropout,
		wQ:            layer.NewLinear(embedDim, embedDim, true),
		wK:            layer.NewLinear(embedDim, embedDim, true),
		wV:            layer.NewLinear(embedDim, embedDim, true),
		wOut:          layer.NewLinear(embedDim, embedDim, true),
		addZeroAttn:   addZeroAttn,
		selfAttention: selfAttention,
	}
	if addBiasKV {
		std := sqrtf(2.0 / float32(embedDim))
		m.biasK = tensor.RandnWithStd(tensor.NewShape(embedDim), tensor.F32, std)
		m.biasV = tensor.RandnWithStd(tensor.NewShape(embedDim), tensor.F32, std)
	}
	return m, nil
}

// Forward computes attention.
//
// keyPaddingMask is [batch, src_len]; nonzero entries mark padding positions
// that are excluded from attention. attnMask is [tgt_len, src_len] and is
// added to the scores before softmax. Either may be nil.
//
// The second return value is the head-averaged attention weights
// [batch, tgt_len, src_len] when needWeights is set, and nil otherwise; the
// two-value shape is kept regardless so callers can rely on it.
func (m *MultiheadAttention) Forward(query, key, value, keyPaddingMask, attnMask *tensor.Tensor, needWeights, training bool) (*tensor.Tensor, *tensor.Tensor) {
	tgtLen := query.Shape().At(0)
	batch := query.Shape().At(1)
	if query.Shape().At(2) != m.embedDim {
		panic(fmt.Sprintf("query embed dim %d != %d", query.Shape().At(2), m.embedDim))
	}

	q := m.wQ.Forward(query)
	k := m.wK.Forward(key)
	v := m.wV.Forward(value)

	// Structural source extensions. The bias slot carries learned content;
	// the zero slot lets the model attend to nothing. Neither is maskable, so
	// the masks simply do not cover the appended columns.
	if m.biasK != nil {
		k = appendSourceSlot(k, m.biasK)
		v = appendSourceSlot(v, m.biasV)
	}
	if m.addZeroAttn {
		k = appendSourceSlot(k, nil)
		v = appendSourceSlot(v, nil)
	}
	srcLen := k.Shape().At(0)

	maskCols := 0
	var maskData []float32
	if keyPaddingMask != nil {
		maskCols = keyPaddingMask.Shape().At(1)
		maskData = keyPaddingMask.DataPtr()
	}
	attnCols := 0
	var attnMaskData []float32
	if attnMask != nil {
		attnCols = attnMask.Shape().At(1)
		attnMaskData = attnMask.DataPtr()
	}

	out := tensor.New(tensor.NewShape(tgtLen, batch, m.embedDim), tensor.F32)
	var avgWeights *tensor.Tensor
	if needWeights {
		avgWeights = tensor.New(tensor.NewShape(batch, tgtLen, srcLen), tensor.F32)
	}

	qData, kData, vData, outData := q.DataPtr(), k.DataPtr(), v.DataPtr(), out.DataPtr()
	scores := make([]float32, srcLen)

	for b := 0; b < batch; b++ {
		for h := 0; h < m.numHeads; h++ {
			hOff := h * m.headDim
			for t := 0; t < tgtLen; t++ {
				qRow := qData[(t*batch+b)*m.embedDim+hOff:]
				qRow = qRow[:m.headDim]

				for s := 0; s < srcLen; s++ {
					kRow := kData[(s*batch+b)*m.embedDim+hOff:]
					dot := float32(0)
					for d := 0; d < m.headDim; d++ {
						dot += qRow[d] * kRow[d]
					}
					scores[s] = dot * m.scale
				}
				for s := 0; s < attnCols; s++ {
					scores[s] += attnMaskData[t*attnCols+s]
				}
				for s := 0; s < maskCols; s++ {
					if maskData[b*maskCols+s] != 0 {
						scores[s] = negInf
					}
				}

				softmaxInPlace(scores)

				if training && m.dropoutP > 0 {
					inv := 1.0 / (1.0 - m.dropoutP)
					for s := range scores {
						if rand.Float32() < m.dropoutP {
							scores[s] = 0
						} else {
							scores[s] *= inv
						}
					}
				}

				oRow := outData[(t*batch+b)*m.embedDim+hOff:]
				oRow = oRow[:m.headDim]
				for s := 0; s < srcLen; s++ {
					w := scores[s]
					if w == 0 {
						continue
					}
					vRow := vData[(s*batch+b)*m.embedDim+hOff:]
					for d := 0; d < m.headDim; d++ {
						oRow[d] += w * vRow[d]
					}
				}

				if needWeights {
					aw := avgWeights.DataPtr()[(b*tgtLen+t)*srcLen:]
					invHeads := 1.0 / float32(m.numHeads)
					for s := 0; s < srcLen; s++ {
						aw[s] += scores[s] * invHeads
					}
				}
			}
		}
	}

	return m.wOut.Forward(out), avgWeights
}

// Parameters returns the projection weights and, when present, the bias
// key/value slots.
func (m *MultiheadAttention) Parameters() []*tensor.Tensor {
	params := make([]*tensor.Tensor, 0, 10)
	params = append(params, m.wQ.Parameters()...)
	params = append(params, m.wK.Parameters()...)
	params = append(params, m.wV.Parameters()...)
	params = append(params, m.wOut.Parameters()...)
	if m.biasK != nil {
		params = append(params, m.biasK, m.biasV)
	}
	return params
}

// EmbedDim returns the model dimension.
func (m *MultiheadAttention) EmbedDim() int { return m.embedDim }

// NumHeads returns the head count.
func (m *MultiheadAttention) NumHeads() int { return m.numHeads }

// SelfAttention reports whether the module was built for q = k = v use.
func (m *MultiheadAttention) SelfAttention() bool { return m.selfAttention }

// appendSourceSlot returns x, [src, batch, dim], extended by one source
// position filled with row (broadcast over batch) or zeros when row is nil.
func appendSourceSlot(x, row *tensor.Tensor) *tensor.Tensor {
	src := x.Shape().At(0)
	batch := x.Shape().At(1)
	dim := x.Shape().At(2)

	out := tensor.New(tensor.NewShape(src+1, batch, dim), tensor.F32)
	copy(out.DataPtr(), x.DataPtr())
	if row != nil {
		base := src * batch * dim
		rd := row.DataPtr()
		for b := 0; b < batch; b++ {
			copy(out.DataPtr()[base+b*dim:base+(b+1)*dim], rd)
		}
	}
	return out
}

// softmaxInPlace normalizes one score row. A fully masked row (all -inf)
// yields all-zero weights rather than NaN.
func softmaxInPlace(row []float32) {
	maxVal := negInf
	for _, v := range row {
		if v > maxVal {
			maxVal = v
		}
	}
	if math.IsInf(float64(maxVal), -1) {
		for i := range row {
			row[i] = 0
		}
		return
	}
	sum := float32(0)
	for i, v := range row {
		e := float32(math.Exp(float64(v - maxVal)))
		row[i] = e
		sum += e
	}
	inv := 1.0 / sum
	for i := range row {
		row[i] *= inv
	}
}

func sqrtf(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}
