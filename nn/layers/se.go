package layers

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"textnet/checkpoint"
	"textnet/tensor"
)

// SEBlock gates channels: global average pool, 1x1 reduce, ReLU, 1x1 expand,
// hard sigmoid, then multiply the gate back onto the feature map.
type SEBlock struct {
	Pool  *GlobalAvgPool2D
	Conv1 *Conv2D // reduce: inChan -> outChan/ratio, with bias
	Conv2 *Conv2D // expand: outChan/ratio -> outChan, with bias
}

// NewSEBlock creates the gate. ratio divides outChan to size the bottleneck;
// the reduced width must stay at least one channel.
func NewSEBlock(inChan, outChan, ratio int) (*SEBlock, error) {
	if ratio <= 0 {
		return nil, fmt.Errorf("invalid reduction ratio %d", ratio)
	}
	mid := outChan / ratio
	if mid < 1 {
		return nil, fmt.Errorf("reduction ratio %d leaves no channels from %d", ratio, outChan)
	}

	one := [2]int{1, 1}
	none := [2]int{0, 0}
	conv1, err := NewConv2D(inChan, mid, one, one, none, 1, true)
	if err != nil {
		return nil, err
	}
	conv2, err := NewConv2D(mid, outChan, one, one, none, 1, true)
	if err != nil {
		return nil, err
	}
	return &SEBlock{
		Pool:  NewGlobalAvgPool2D(),
		Conv1: conv1,
		Conv2: conv2,
	}, nil
}

// Forward computes the per-channel gate and scales the input by it.
func (s *SEBlock) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, ErrRank
	}

	attn, err := s.Pool.Forward(x)
	if err != nil {
		return nil, err
	}
	attn, err = s.Conv1.Forward(attn)
	if err != nil {
		return nil, err
	}
	attn = ReLU(attn)
	attn, err = s.Conv2.Forward(attn)
	if err != nil {
		return nil, err
	}
	attn = HardSigmoid(attn, hardSigmoidSlope, hardSigmoidOffset)

	batch, ch, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	if attn.Shape[1] != ch {
		return nil, fmt.Errorf("gate produces %d channels for a %d-channel input", attn.Shape[1], ch)
	}

	area := h * w
	out := tensor.New(x.Shape...)
	for b := 0; b < batch; b++ {
		for c := 0; c < ch; c++ {
			off := (b*ch + c) * area
			dst := out.Data[off : off+area]
			copy(dst, x.Data[off:off+area])
			floats.Scale(attn.Data[b*ch+c], dst)
		}
	}
	return out, nil
}

// LoadPaddle installs the two gate convolutions from a flat foreign map.
// All keys are resolved before anything is written.
func (s *SEBlock) LoadPaddle(tm checkpoint.TensorMap, prefix string) error {
	keys := checkpoint.PaddleSEKeys(prefix)

	w1, err := tm.Fetch(keys.ReduceWeights, s.Conv1.W.Shape)
	if err != nil {
		return fmt.Errorf("se gate %s: %w", prefix, err)
	}
	b1, err := tm.Fetch(keys.ReduceOffset, s.Conv1.B.Shape)
	if err != nil {
		return fmt.Errorf("se gate %s: %w", prefix, err)
	}
	w2, err := tm.Fetch(keys.ExpandWeights, s.Conv2.W.Shape)
	if err != nil {
		return fmt.Errorf("se gate %s: %w", prefix, err)
	}
	b2, err := tm.Fetch(keys.ExpandOffset, s.Conv2.B.Shape)
	if err != nil {
		return fmt.Errorf("se gate %s: %w", prefix, err)
	}

	copy(s.Conv1.W.Data, w1.Data)
	copy(s.Conv1.B.Data, b1.Data)
	copy(s.Conv2.W.Data, w2.Data)
	copy(s.Conv2.B.Data, b2.Data)
	return nil
}

// Parameters lists the gate's tensors under the given structured prefix.
func (s *SEBlock) Parameters(prefix string) []checkpoint.Entry {
	return []checkpoint.Entry{
		{Name: prefix + ".reduce.weight", Tensor: s.Conv1.W},
		{Name: prefix + ".reduce.bias", Tensor: s.Conv1.B},
		{Name: prefix + ".expand.weight", Tensor: s.Conv2.W},
		{Name: prefix + ".expand.bias", Tensor: s.Conv2.B},
	}
}

// Tag returns a unique identifier string for this gate configuration.
func (s *SEBlock) Tag() string {
	return fmt.Sprintf("SEBlock_%d_%d", s.Conv1.InChannels(), s.Conv2.OutChannels())
}
