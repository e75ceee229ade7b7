package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fumi-engineer/sentence_encoder/tensor"
)

func TestMultiheadAttentionShapes(t *testing.T) {
	m, err := NewMultiheadAttention(16, 4, 0, false, false, true)
	require.NoError(t, err)

	x := tensor.Randn(tensor.NewShape(5, 2, 16), tensor.F32)
	out, weights := m.Forward(x, x, x, nil, nil, false, false)

	require.True(t, out.Shape().Equal(tensor.NewShape(5, 2, 16)))
	require.Nil(t, weights, "weights must be absent when not requested")
}

func TestMultiheadAttentionHeadDivisibility(t *testing.T) {
	_, err := NewMultiheadAttention(10, 3, 0, false, false, true)
	require.Error(t, err)
}

func TestMultiheadAttentionDropoutRange(t *testing.T) {
	_, err := NewMultiheadAttention(8, 2, 1.0, false, false, true)
	require.ErrorContains(t, err, "out of range")

	_, err = NewMultiheadAttention(8, 2, -0.1, false, false, true)
	require.ErrorContains(t, err, "out of range")
}

func TestMultiheadAttentionWeights(t *testing.T) {
	m, err := NewMultiheadAttention(8, 2, 0, false, false, true)
	require.NoError(t, err)

	x := tensor.Randn(tensor.NewShape(3, 2, 8), tensor.F32)
	_, weights := m.Forward(x, x, x, nil, nil, true, false)

	require.NotNil(t, weights)
	require.True(t, weights.Shape().Equal(tensor.NewShape(2, 3, 3)))

	// Each row is an average of per-head softmax rows, so it still sums to 1.
	data := weights.Data()
	for row := 0; row < 2*3; row++ {
		sum := float64(0)
		for s := 0; s < 3; s++ {
			sum += float64(data[row*3+s])
		}
		require.InDelta(t, 1.0, sum, 1e-4)
	}
}

func TestMultiheadAttentionKeyPaddingMask(t *testing.T) {
	m, err := NewMultiheadAttention(8, 2, 0, false, false, true)
	require.NoError(t, err)

	x := tensor.Randn(tensor.NewShape(4, 2, 8), tensor.F32)
	// Batch 0: last position padded. Batch 1: nothing padded.
	mask := tensor.Zeros(tensor.NewShape(2, 4), tensor.F32)
	mask.Set(1, 0, 3)

	_, weights := m.Forward(x, x, x, mask, nil, true, false)
	require.NotNil(t, weights)
	for tgt := 0; tgt < 4; tgt++ {
		require.Equal(t, float32(0), weights.At(0, tgt, 3), "padded column must carry no weight")
	}
}

func TestMultiheadAttentionAdditiveMask(t *testing.T) {
	m, err := NewMultiheadAttention(8, 2, 0, false, false, true)
	require.NoError(t, err)

	x := tensor.Randn(tensor.NewShape(3, 1, 8), tensor.F32)
	// Causal-style additive mask: block future positions with -inf.
	attnMask := tensor.Zeros(tensor.NewShape(3, 3), tensor.F32)
	neg := float32(math.Inf(-1))
	attnMask.Set(neg, 0, 1)
	attnMask.Set(neg, 0, 2)
	attnMask.Set(neg, 1, 2)

	_, weights := m.Forward(x, x, x, nil, attnMask, true, false)
	require.Equal(t, float32(1), weights.At(0, 0, 0))
	require.Equal(t, float32(0), weights.At(0, 0, 1))
	require.Equal(t, float32(0), weights.At(0, 0, 2))
	require.Equal(t, float32(0), weights.At(0, 1, 2))
}

func TestMultiheadAttentionFullyMaskedRow(t *testing.T) {
	m, err := NewMultiheadAttention(8, 2, 0, false, false, true)
	require.NoError(t, err)

	x := tensor.Randn(tensor.NewShape(2, 1, 8), tensor.F32)
	mask := tensor.Ones(tensor.NewShape(1, 2), tensor.F32) // everything padded

	out, weights := m.Forward(x, x, x, mask, nil, true, false)
	for i, v := range weights.Data() {
		require.Zerof(t, v, "weight %d", i)
	}
	for _, v := range out.Data() {
		require.False(t, math.IsNaN(float64(v)))
	}
}

// Bias-KV and the zero-attention slot each append one source position.
func TestMultiheadAttentionSourceExtensions(t *testing.T) {
	m, err := NewMultiheadAttention(8, 2, 0, true, true, true)
	require.NoError(t, err)

	x := tensor.Randn(tensor.NewShape(3, 2, 8), tensor.F32)
	out, weights := m.Forward(x, x, x, nil, nil, true, false)

	require.True(t, out.Shape().Equal(tensor.NewShape(3, 2, 8)))
	require.True(t, weights.Shape().Equal(tensor.NewShape(2, 3, 5)), "3 positions + bias slot + zero slot")

	// Bias K/V are learned parameters and must be exposed for loading.
	require.Len(t, m.Parameters(), 10)
}

func TestMultiheadAttentionDeterministicInference(t *testing.T) {
	m, err := NewMultiheadAttention(16, 4, 0.5, false, false, true)
	require.NoError(t, err)

	x := tensor.Randn(tensor.NewShape(4, 2, 16), tensor.F32)
	a, _ := m.Forward(x, x, x, nil, nil, false, false)
	b, _ := m.Forward(x, x, x, nil, nil, false, false)
	require.Equal(t, a.Data(), b.Data())
}

func TestMultiheadAttentionAccessors(t *testing.T) {
	m, err := NewMultiheadAttention(16, 4, 0, false, false, true)
	require.NoError(t, err)
	require.Equal(t, 16, m.EmbedDim())
	require.Equal(t, 4, m.NumHeads())
	require.True(t, m.SelfAttention())
	require.Len(t, m.Parameters(), 8)
}
