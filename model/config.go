// Package model implements a BERT/XLM-style Transformer sentence encoder
// layer with optional bottleneck adapters.
package model

// LayerConfig holds the construction parameters of a SentenceEncoderLayer.
// It is read once at construction; the built layer never consults it again.
//
// An adapter dimension of 0 means the corresponding adapter is not built at
// all: presence is structural, not a runtime bypass.
type LayerConfig struct {
	EmbeddingDim      int     // model dimension of the sequence representation
	FFNEmbeddingDim   int     // hidden dimension of the feed-forward block
	NumAttentionHeads int     // must divide EmbeddingDim
	Dropout           float32 // output dropout after attention and after fc2
	AttentionDropout  float32 // dropout on attention weights, inside the primitive
	ActivationDropout float32 // dropout on the fc1 activation
	ActivationFn      string  // see layer.GetActivation for the closed name set
	AddBiasKV         bool    // learned bias slot appended to key/value
	AddZeroAttn       bool    // zero attention slot appended to key/value
	Export            bool    // export mode forwarded to both layer norms

	SelfAttnAdapterDim int // bottleneck dim of the post-attention adapter, 0 = none
	FFNAdapterDim      int // bottleneck dim of the post-FFN adapter, 0 = none
}

// DefaultLayerConfig returns the BERT-base style defaults: 768 model dim,
// 3072 FFN dim, 8 heads, 0.1 dropout everywhere, relu, no adapters.
func DefaultLayerConfig() LayerConfig {
	return LayerConfig{
		EmbeddingDim:      768,
		FFNEmbeddingDim:   3072,
		NumAttentionHeads: 8,
		Dropout:           0.1,
		AttentionDropout:  0.1,
		ActivationDropout: 0.1,
		ActivationFn:      "relu",
	}
}

// TinyLayerConfig returns a minimal config for tests: 16 model dim, 32 FFN
// dim, 4 heads, no dropout.
func TinyLayerConfig() LayerConfig {
	return LayerConfig{
		EmbeddingDim:      16,
		FFNEmbeddingDim:   32,
		NumAttentionHeads: 4,
		ActivationFn:      "relu",
	}
}
