package layers

import (
	"fmt"

	"textnet/checkpoint"
	"textnet/tensor"
)

// Shortcut is the skip path of the virtual-depth blocks. Three cases:
// shape change on the architecturally first block projects through a
// direct-stride unit; shape change elsewhere projects through a
// pool-then-convolve unit; the first block projects even when shapes match.
// Everything else is the identity.
type Shortcut struct {
	direct *ConvBNAct
	pooled *PoolConvBNAct
}

// NewShortcut builds the skip path for a block taking inChan to outChan at
// the given stride. first marks the first block of the whole stack.
func NewShortcut(inChan, outChan int, stride [2]int, first bool) (*Shortcut, error) {
	one := [2]int{1, 1}
	none := [2]int{0, 0}
	s := &Shortcut{}
	switch {
	case inChan != outChan || stride[0] != 1:
		if first {
			direct, err := NewConvBNAct(inChan, outChan, one, stride, none, 1, ActNone)
			if err != nil {
				return nil, err
			}
			s.direct = direct
		} else {
			pooled, err := NewPoolConvBNAct(inChan, outChan, one, stride, 1, ActNone)
			if err != nil {
				return nil, err
			}
			s.pooled = pooled
		}
	case first:
		direct, err := NewConvBNAct(inChan, outChan, one, stride, none, 1, ActNone)
		if err != nil {
			return nil, err
		}
		s.direct = direct
	}
	return s, nil
}

// Identity reports whether the shortcut passes its input through unchanged.
func (s *Shortcut) Identity() bool {
	return s.direct == nil && s.pooled == nil
}

// Forward projects x or returns it unchanged.
func (s *Shortcut) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	switch {
	case s.direct != nil:
		return s.direct.Forward(x)
	case s.pooled != nil:
		return s.pooled.Forward(x)
	default:
		return x, nil
	}
}

// LoadPaddle installs the projection, if any.
func (s *Shortcut) LoadPaddle(tm checkpoint.TensorMap, prefix string) error {
	switch {
	case s.direct != nil:
		return s.direct.LoadPaddle(tm, prefix)
	case s.pooled != nil:
		return s.pooled.LoadPaddle(tm, prefix)
	default:
		return nil
	}
}

// Parameters lists the projection's tensors, empty for the identity.
func (s *Shortcut) Parameters(prefix string) []checkpoint.Entry {
	switch {
	case s.direct != nil:
		return s.direct.Parameters(prefix)
	case s.pooled != nil:
		return s.pooled.Parameters(prefix)
	default:
		return nil
	}
}

// BasicBlock is the two-convolution residual block of the shallow
// virtual-depth variants.
type BasicBlock struct {
	Conv0 *ConvBNAct
	Conv1 *ConvBNAct
	Short *Shortcut
}

// NewBasicBlock creates a block taking inChan to outChan at the given stride.
func NewBasicBlock(inChan, outChan int, stride [2]int, first bool) (*BasicBlock, error) {
	three := [2]int{3, 3}
	onePad := [2]int{1, 1}

	conv0, err := NewConvBNAct(inChan, outChan, three, stride, onePad, 1, ActReLU)
	if err != nil {
		return nil, err
	}
	conv1, err := NewConvBNAct(outChan, outChan, three, [2]int{1, 1}, onePad, 1, ActNone)
	if err != nil {
		return nil, err
	}
	short, err := NewShortcut(inChan, outChan, stride, first)
	if err != nil {
		return nil, err
	}
	return &BasicBlock{Conv0: conv0, Conv1: conv1, Short: short}, nil
}

// Forward adds the skip path onto the two-convolution branch, then ReLU.
func (b *BasicBlock) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := b.Conv0.Forward(x)
	if err != nil {
		return nil, err
	}
	y, err = b.Conv1.Forward(y)
	if err != nil {
		return nil, err
	}
	skip, err := b.Short.Forward(x)
	if err != nil {
		return nil, err
	}
	sum, err := tensor.Add(y, skip)
	if err != nil {
		return nil, err
	}
	return ReLU(sum), nil
}

// LoadPaddle installs the block from its foreign branch prefixes.
func (b *BasicBlock) LoadPaddle(tm checkpoint.TensorMap, prefix string) error {
	br := checkpoint.PaddleVDBranches(prefix)
	if err := b.Conv0.LoadPaddle(tm, br.Conv0); err != nil {
		return err
	}
	if err := b.Conv1.LoadPaddle(tm, br.Conv1); err != nil {
		return err
	}
	return b.Short.LoadPaddle(tm, br.Shortcut)
}

// Parameters lists the block's tensors under the given structured prefix.
func (b *BasicBlock) Parameters(prefix string) []checkpoint.Entry {
	entries := b.Conv0.Parameters(prefix + ".conv0")
	entries = append(entries, b.Conv1.Parameters(prefix+".conv1")...)
	return append(entries, b.Short.Parameters(prefix+".shortcut")...)
}

// Tag returns a unique identifier string for this block configuration.
func (b *BasicBlock) Tag() string {
	tag := fmt.Sprintf("BasicBlock[%s,%s", b.Conv0.Tag(), b.Conv1.Tag())
	if !b.Short.Identity() {
		tag += ",proj"
	}
	return tag + "]"
}

// BottleneckExpansion is the channel multiplier of the closing 1x1
// convolution in a bottleneck block.
const BottleneckExpansion = 4

// BottleneckBlock is the three-convolution residual block of the deep
// virtual-depth variants. It narrows to outChan, convolves at the stride,
// then widens to outChan*BottleneckExpansion.
type BottleneckBlock struct {
	Conv0 *ConvBNAct
	Conv1 *ConvBNAct
	Conv2 *ConvBNAct
	Short *Shortcut
}

// NewBottleneckBlock creates a block taking inChan to
// outChan*BottleneckExpansion at the given stride.
func NewBottleneckBlock(inChan, outChan int, stride [2]int, first bool) (*BottleneckBlock, error) {
	one := [2]int{1, 1}
	none := [2]int{0, 0}

	conv0, err := NewConvBNAct(inChan, outChan, one, one, none, 1, ActReLU)
	if err != nil {
		return nil, err
	}
	conv1, err := NewConvBNAct(outChan, outChan, [2]int{3, 3}, stride, [2]int{1, 1}, 1, ActReLU)
	if err != nil {
		return nil, err
	}
	conv2, err := NewConvBNAct(outChan, outChan*BottleneckExpansion, one, one, none, 1, ActNone)
	if err != nil {
		return nil, err
	}
	short, err := NewShortcut(inChan, outChan*BottleneckExpansion, stride, first)
	if err != nil {
		return nil, err
	}
	return &BottleneckBlock{Conv0: conv0, Conv1: conv1, Conv2: conv2, Short: short}, nil
}

// Forward adds the skip path onto the three-convolution branch, then ReLU.
func (b *BottleneckBlock) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := b.Conv0.Forward(x)
	if err != nil {
		return nil, err
	}
	y, err = b.Conv1.Forward(y)
	if err != nil {
		return nil, err
	}
	y, err = b.Conv2.Forward(y)
	if err != nil {
		return nil, err
	}
	skip, err := b.Short.Forward(x)
	if err != nil {
		return nil, err
	}
	sum, err := tensor.Add(y, skip)
	if err != nil {
		return nil, err
	}
	return ReLU(sum), nil
}

// LoadPaddle installs the block from its foreign branch prefixes.
func (b *BottleneckBlock) LoadPaddle(tm checkpoint.TensorMap, prefix string) error {
	br := checkpoint.PaddleVDBranches(prefix)
	if err := b.Conv0.LoadPaddle(tm, br.Conv0); err != nil {
		return err
	}
	if err := b.Conv1.LoadPaddle(tm, br.Conv1); err != nil {
		return err
	}
	if err := b.Conv2.LoadPaddle(tm, br.Conv2); err != nil {
		return err
	}
	return b.Short.LoadPaddle(tm, br.Shortcut)
}

// Parameters lists the block's tensors under the given structured prefix.
func (b *BottleneckBlock) Parameters(prefix string) []checkpoint.Entry {
	entries := b.Conv0.Parameters(prefix + ".conv0")
	entries = append(entries, b.Conv1.Parameters(prefix+".conv1")...)
	entries = append(entries, b.Conv2.Parameters(prefix+".conv2")...)
	return append(entries, b.Short.Parameters(prefix+".shortcut")...)
}

// Tag returns a unique identifier string for this block configuration.
func (b *BottleneckBlock) Tag() string {
	tag := fmt.Sprintf("BottleneckBlock[%s,%s,%s", b.Conv0.Tag(), b.Conv1.Tag(), b.Conv2.Tag())
	if !b.Short.Identity() {
		tag += ",proj"
	}
	return tag + "]"
}
