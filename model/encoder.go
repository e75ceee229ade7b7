package model

import (
	"fmt"

	"github.com/fumi-engineer/sentence_encoder/layer"
	"github.com/fumi-engineer/sentence_encoder/tensor"
)

// Adapter is a parameter-efficient bottleneck module (Houlsby et al., 2019):
// project down to a small adapter space, apply a nonlinearity, project back
// up and add the input as a residual shortcut.
type Adapter struct {
	down *layer.Linear // [embed_dim -> adapter_dim]
	up   *layer.Linear // [adapter_dim -> embed_dim]
	act  layer.Activation
}

var _ layer.Module = (*Adapter)(nil)

// NewAdapter creates an adapter. The activation is resolved by name here so
// an unknown name fails at construction, never at call time.
func NewAdapter(embedDim, adapterDim int, activationFn string) (*Adapter, error) {
	act, err := layer.GetActivation(activationFn)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		down: layer.NewLinear(embedDim, adapterDim, true),
		up:   layer.NewLinear(adapterDim, embedDim, true),
		act:  act,
	}, nil
}

// Forward computes up(act(down(x))) + x. The output has the shape of x.
func (a *Adapter) Forward(x *tensor.Tensor) *tensor.Tensor {
	return a.up.Forward(a.act(a.down.Forward(x))).Add(x)
}

// Parameters returns the down- and up-projection parameters.
func (a *Adapter) Parameters() []*tensor.Tensor {
	return append(a.down.Parameters(), a.up.Parameters()...)
}

// DownProjection returns the down-projection transform.
func (a *Adapter) DownProjection() *layer.Linear { return a.down }

// UpProjection returns the up-projection transform.
func (a *Adapter) UpProjection() *layer.Linear { return a.up }

// SentenceEncoderLayer is one post-LN Transformer encoder block as used in
// BERT/XLM style pre-trained models, with optional adapters after the
// self-attention and feed-forward sub-blocks.
//
// The sub-block ordering is load-bearing for weight compatibility:
// attention -> adapter -> dropout -> residual -> norm, and again
// fc1/act/fc2 -> adapter -> residual -> norm. Moving an adapter after the
// residual add or the norm computes a different function.
type SentenceEncoderLayer struct {
	embedDim int
	training bool

	selfAttn          *MultiheadAttention
	selfAttnLayerNorm *layer.LayerNorm
	fc1               *layer.Linear
	fc2               *layer.Linear
	finalLayerNorm    *layer.LayerNorm
	activation        layer.Activation
	dropout           *layer.Dropout
	activationDropout *layer.Dropout

	// nil when the corresponding adapter dim is 0: absence is structural,
	// decided once at construction.
	selfAttnAdapter *Adapter
	ffnAdapter      *Adapter
}

// NewSentenceEncoderLayer builds an encoder layer from cfg. Construction
// fails on an unknown activation name, a head count that does not divide the
// embedding dimension, or a dropout probability outside [0, 1).
func NewSentenceEncoderLayer(cfg LayerConfig) (*SentenceEncoderLayer, error) {
	act, err := layer.GetActivation(cfg.ActivationFn)
	if err != nil {
		return nil, err
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		return nil, fmt.Errorf("dropout %f out of range [0, 1)", cfg.Dropout)
	}
	if cfg.ActivationDropout < 0 || cfg.ActivationDropout >= 1 {
		return nil, fmt.Errorf("activation dropout %f out of range [0, 1)", cfg.ActivationDropout)
	}
	selfAttn, err := NewMultiheadAttention(
		cfg.EmbeddingDim,
		cfg.NumAttentionHeads,
		cfg.AttentionDropout,
		cfg.AddBiasKV,
		cfg.AddZeroAttn,
		true,
	)
	if err != nil {
		return nil, err
	}

	l := &SentenceEncoderLayer{
		embedDim:          cfg.EmbeddingDim,
		selfAttn:          selfAttn,
		selfAttnLayerNorm: layer.NewLayerNorm(cfg.EmbeddingDim, cfg.Export),
		fc1:               layer.NewLinear(cfg.EmbeddingDim, cfg.FFNEmbeddingDim, true),
		fc2:               layer.NewLinear(cfg.FFNEmbeddingDim, cfg.EmbeddingDim, true),
		finalLayerNorm:    layer.NewLayerNorm(cfg.EmbeddingDim, cfg.Export),
		activation:        act,
		dropout:           layer.NewDropout(cfg.Dropout),
		activationDropout: layer.NewDropout(cfg.ActivationDropout),
	}

	if cfg.SelfAttnAdapterDim > 0 {
		l.selfAttnAdapter, err = NewAdapter(cfg.EmbeddingDim, cfg.SelfAttnAdapterDim, cfg.ActivationFn)
		if err != nil {
			return nil, err
		}
	}
	if cfg.FFNAdapterDim > 0 {
		l.ffnAdapter, err = NewAdapter(cfg.EmbeddingDim, cfg.FFNAdapterDim, cfg.ActivationFn)
		if err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Forward runs one encoder block over x, [seq_len, batch, embed_dim].
//
// This layer accepts only a key-padding mask (selfAttnPaddingMask,
// [batch, seq_len], nonzero marks padding) and an additive extra attention
// mask (extraAttentionMask, [seq_len, seq_len]). The general selfAttnMask
// parameter must be nil; passing one is a programming error and panics.
//
// The second return value is the attention weights from the self-attention
// call. Weights are not requested here, so it is nil today, but the pair is
// always returned: retaining weights costs O(seq_len^2) memory and callers
// rely on the tuple shape, not on the weights being populated.
func (l *SentenceEncoderLayer) Forward(x, selfAttnMask, selfAttnPaddingMask, extraAttentionMask *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor) {
	if selfAttnMask != nil {
		panic("sentence encoder layer does not accept a full self-attention mask; use the padding mask and the extra attention mask")
	}

	residual := x
	x, attn := l.selfAttn.Forward(x, x, x, selfAttnPaddingMask, extraAttentionMask, false, l.training)
	if l.selfAttnAdapter != nil {
		x = l.selfAttnAdapter.Forward(x)
	}
	x = l.dropout.Forward(x, l.training)
	x = residual.Add(x)
	x = l.selfAttnLayerNorm.Forward(x)

	residual = x
	x = l.activation(l.fc1.Forward(x))
	x = l.activationDropout.Forward(x, l.training)
	x = l.fc2.Forward(x)
	x = l.dropout.Forward(x, l.training)
	if l.ffnAdapter != nil {
		x = l.ffnAdapter.Forward(x)
	}
	x = residual.Add(x)
	x = l.finalLayerNorm.Forward(x)

	return x, attn
}

// SetTraining switches between training mode (dropout active) and inference
// mode. The flag is read at the start of each forward call; toggling it
// concurrently with an in-flight call is a caller error, no locking is done.
func (l *SentenceEncoderLayer) SetTraining(training bool) {
	l.training = training
}

// IsTraining reports the current mode.
func (l *SentenceEncoderLayer) IsTraining() bool { return l.training }

// EmbeddingDim returns the model dimension.
func (l *SentenceEncoderLayer) EmbeddingDim() int { return l.embedDim }

// SelfAttn returns the self-attention sub-module.
func (l *SentenceEncoderLayer) SelfAttn() *MultiheadAttention { return l.selfAttn }

// SelfAttnLayerNorm returns the post-attention normalization.
func (l *SentenceEncoderLayer) SelfAttnLayerNorm() *layer.LayerNorm { return l.selfAttnLayerNorm }

// FinalLayerNorm returns the post-feed-forward normalization.
func (l *SentenceEncoderLayer) FinalLayerNorm() *layer.LayerNorm { return l.finalLayerNorm }

// FC1 returns the first feed-forward transform.
func (l *SentenceEncoderLayer) FC1() *layer.Linear { return l.fc1 }

// FC2 returns the second feed-forward transform.
func (l *SentenceEncoderLayer) FC2() *layer.Linear { return l.fc2 }

// SelfAttnAdapter returns the post-attention adapter, or nil when the layer
// was built without one.
func (l *SentenceEncoderLayer) SelfAttnAdapter() *Adapter { return l.selfAttnAdapter }

// FFNAdapter returns the post-feed-forward adapter, or nil when the layer
// was built without one.
func (l *SentenceEncoderLayer) FFNAdapter() *Adapter { return l.ffnAdapter }

// Parameters returns all learned parameters in a deterministic order:
// attention, post-attention norm, fc1, fc2, final norm, then the adapters
// that exist.
func (l *SentenceEncoderLayer) Parameters() []*tensor.Tensor {
	params := make([]*tensor.Tensor, 0, 16)
	params = append(params, l.selfAttn.Parameters()...)
	params = append(params, l.selfAttnLayerNorm.Parameters()...)
	params = append(params, l.fc1.Parameters()...)
	params = append(params, l.fc2.Parameters()...)
	params = append(params, l.finalLayerNorm.Parameters()...)
	if l.selfAttnAdapter != nil {
		params = append(params, l.selfAttnAdapter.Parameters()...)
	}
	if l.ffnAdapter != nil {
		params = append(params, l.ffnAdapter.Parameters()...)
	}
	return params
}
