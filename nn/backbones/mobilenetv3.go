package backbones

import (
	"errors"
	"fmt"

	"textnet/checkpoint"
	"textnet/nn"
	"textnet/nn/layers"
	"textnet/tensor"
)

// ErrInvalidConfig marks construction failures from unsupported scales,
// model names or depths.
var ErrInvalidConfig = errors.New("invalid backbone configuration")

// mobileRow is one residual unit of the mobile configuration table.
type mobileRow struct {
	kernel int
	exp    int
	out    int
	se     bool
	act    string
	stride [2]int
}

// stemPlanes is the unscaled width of the stem convolution.
const stemPlanes = 16

// The large and small tables. Vertical strides halve the height four times
// counting the stem; widths stay at the table values until scaled and
// rounded.
var mobileLargeCfg = []mobileRow{
	{3, 16, 16, false, layers.ActReLU, [2]int{1, 1}},
	{3, 64, 24, false, layers.ActReLU, [2]int{2, 1}},
	{3, 72, 24, false, layers.ActReLU, [2]int{1, 1}},
	{5, 72, 40, true, layers.ActReLU, [2]int{2, 1}},
	{5, 120, 40, true, layers.ActReLU, [2]int{1, 1}},
	{5, 120, 40, true, layers.ActReLU, [2]int{1, 1}},
	{3, 240, 80, false, layers.ActHSwish, [2]int{1, 1}},
	{3, 200, 80, false, layers.ActHSwish, [2]int{1, 1}},
	{3, 184, 80, false, layers.ActHSwish, [2]int{1, 1}},
	{3, 184, 80, false, layers.ActHSwish, [2]int{1, 1}},
	{3, 480, 112, true, layers.ActHSwish, [2]int{1, 1}},
	{3, 672, 112, true, layers.ActHSwish, [2]int{1, 1}},
	{5, 672, 160, true, layers.ActHSwish, [2]int{2, 1}},
	{5, 960, 160, true, layers.ActHSwish, [2]int{1, 1}},
	{5, 960, 160, true, layers.ActHSwish, [2]int{1, 1}},
}

var mobileSmallCfg = []mobileRow{
	{3, 16, 16, true, layers.ActReLU, [2]int{2, 1}},
	{3, 72, 24, false, layers.ActReLU, [2]int{2, 1}},
	{3, 88, 24, false, layers.ActReLU, [2]int{1, 1}},
	{5, 96, 40, true, layers.ActHSwish, [2]int{2, 1}},
	{5, 240, 40, true, layers.ActHSwish, [2]int{1, 1}},
	{5, 240, 40, true, layers.ActHSwish, [2]int{1, 1}},
	{5, 120, 48, true, layers.ActHSwish, [2]int{1, 1}},
	{5, 144, 48, true, layers.ActHSwish, [2]int{1, 1}},
	{5, 288, 96, true, layers.ActHSwish, [2]int{2, 1}},
	{5, 576, 96, true, layers.ActHSwish, [2]int{1, 1}},
	{5, 576, 96, true, layers.ActHSwish, [2]int{1, 1}},
}

// Head squeeze widths per model name, before scaling.
const (
	largeSqueeze = 960
	smallSqueeze = 576
)

var supportedScales = []float64{0.35, 0.5, 0.75, 1.0, 1.25}

func supportedScale(scale float64) bool {
	for _, s := range supportedScales {
		if s == scale {
			return true
		}
	}
	return false
}

// MobileNetV3 is the width-scalable mobile backbone: a stride-2 stem, a
// table of residual units, a 1x1 head and a final 2x2 max pool.
type MobileNetV3 struct {
	Stem   *layers.ConvBNAct
	Blocks []*layers.ResidualUnit
	Head   *layers.ConvBNAct
	Pool   *layers.MaxPool2D

	seq         *nn.Sequential
	name        string
	scale       float64
	outChannels int
}

// NewMobileNetV3 builds the backbone for the given input channel count,
// width multiplier and model name ("large" or "small"). Every channel width
// is scaled then rounded with MakeDivisible.
func NewMobileNetV3(inChannels int, scale float64, modelName string) (*MobileNetV3, error) {
	var cfg []mobileRow
	var squeeze int
	switch modelName {
	case "large":
		cfg, squeeze = mobileLargeCfg, largeSqueeze
	case "small":
		cfg, squeeze = mobileSmallCfg, smallSqueeze
	default:
		return nil, fmt.Errorf("%w: model name %q is not implemented", ErrInvalidConfig, modelName)
	}
	if !supportedScale(scale) {
		return nil, fmt.Errorf("%w: scale %v not in %v", ErrInvalidConfig, scale, supportedScales)
	}
	if inChannels <= 0 {
		return nil, fmt.Errorf("%w: in_channels %d", ErrInvalidConfig, inChannels)
	}

	stemOut := divisible(float64(stemPlanes) * scale)
	stem, err := layers.NewConvBNAct(inChannels, stemOut, [2]int{3, 3}, [2]int{2, 2}, [2]int{1, 1}, 1, layers.ActHSwish)
	if err != nil {
		return nil, err
	}

	m := &MobileNetV3{
		Stem:  stem,
		name:  modelName,
		scale: scale,
	}

	in := stemOut
	for _, row := range cfg {
		mid := divisible(scale * float64(row.exp))
		out := divisible(scale * float64(row.out))
		block, err := layers.NewResidualUnit(in, mid, out, row.stride, row.kernel, row.act, row.se)
		if err != nil {
			return nil, err
		}
		m.Blocks = append(m.Blocks, block)
		in = out
	}

	headOut := divisible(scale * float64(squeeze))
	head, err := layers.NewConvBNAct(in, headOut, [2]int{1, 1}, [2]int{1, 1}, [2]int{0, 0}, 1, layers.ActHSwish)
	if err != nil {
		return nil, err
	}
	m.Head = head
	m.Pool = layers.NewMaxPool2D([2]int{2, 2}, [2]int{2, 2}, [2]int{0, 0})
	m.outChannels = headOut

	mods := make([]nn.Module, 0, len(m.Blocks)+3)
	mods = append(mods, m.Stem)
	for _, b := range m.Blocks {
		mods = append(mods, b)
	}
	mods = append(mods, m.Head, m.Pool)
	m.seq = nn.NewSequential(mods...)

	return m, nil
}

// OutChannels returns the channel count of the emitted feature map.
func (m *MobileNetV3) OutChannels() int { return m.outChannels }

// Forward runs the full backbone on an NCHW tensor.
func (m *MobileNetV3) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return m.seq.Forward(x)
}

// LoadForeignWeights installs a flat foreign checkpoint. Unknown toolkit
// tags are ignored; the paddle walk visits the stem at conv1, unit i at
// conv{i+2} and the head at conv_last.
func (m *MobileNetV3) LoadForeignWeights(toolkit string, tm checkpoint.TensorMap) error {
	if toolkit != checkpoint.PaddleToolkit {
		return nil
	}
	if err := m.Stem.LoadPaddle(tm, checkpoint.PaddleMobileStem); err != nil {
		return fmt.Errorf("stem: %w", err)
	}
	for i, block := range m.Blocks {
		if err := block.LoadPaddle(tm, i+2); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}
	if err := m.Head.LoadPaddle(tm, checkpoint.PaddleMobileHead); err != nil {
		return fmt.Errorf("head: %w", err)
	}
	return nil
}

// Parameters lists every tensor of the backbone in a stable order under
// structured names.
func (m *MobileNetV3) Parameters() []checkpoint.Entry {
	entries := m.Stem.Parameters("stem")
	for i, block := range m.Blocks {
		entries = append(entries, block.Parameters(fmt.Sprintf("blocks.%d", i))...)
	}
	return append(entries, m.Head.Parameters("head")...)
}

// Tag returns a unique identifier string for this backbone configuration.
func (m *MobileNetV3) Tag() string {
	return fmt.Sprintf("MobileNetV3_%s_x%g", m.name, m.scale)
}
