package backbones

import (
	"fmt"

	"textnet/checkpoint"
	"textnet/nn"
	"textnet/nn/layers"
	"textnet/tensor"
)

// Block is one residual block of the vd backbone.
type Block interface {
	nn.Module
	LoadPaddle(tm checkpoint.TensorMap, prefix string) error
	Parameters(prefix string) []checkpoint.Entry
	Tag() string
}

// vdVariant maps a depth to its per-stage block counts and block kind.
type vdVariant struct {
	depths     [4]int
	bottleneck bool
}

var vdVariants = map[int]vdVariant{
	18:  {[4]int{2, 2, 2, 2}, false},
	34:  {[4]int{3, 4, 6, 3}, false},
	50:  {[4]int{3, 4, 6, 3}, true},
	101: {[4]int{3, 4, 23, 3}, true},
	152: {[4]int{3, 8, 36, 3}, true},
	200: {[4]int{3, 12, 48, 3}, true},
}

var supportedDepths = []int{18, 34, 50, 101, 152, 200}

// vdStageFilters is the base width of each stage before bottleneck expansion.
var vdStageFilters = [4]int{64, 128, 256, 512}

// vdDeepThreshold is the depth at which the foreign namespace switches its
// third-stage suffix scheme.
const vdDeepThreshold = 101

// ResNetVD is the vd-flavored residual backbone: a three-convolution stem,
// four stages of residual blocks and a final 2x2 max pool. Stages after the
// first start with a (2,1) stride so downsampling halves height but preserves
// the horizontal text axis.
type ResNetVD struct {
	Stem   []*layers.ConvBNAct
	Pool   *layers.MaxPool2D
	Stages [][]Block
	Out    *layers.MaxPool2D

	seq         *nn.Sequential
	numLayers   int
	outChannels int
	deep        bool
}

// NewResNetVD builds the backbone for the given input channel count and
// depth (18, 34, 50, 101, 152 or 200).
func NewResNetVD(inChannels, numLayers int) (*ResNetVD, error) {
	variant, ok := vdVariants[numLayers]
	if !ok {
		return nil, fmt.Errorf("%w: %d layers not in %v", ErrInvalidConfig, numLayers, supportedDepths)
	}
	if inChannels <= 0 {
		return nil, fmt.Errorf("%w: in_channels %d", ErrInvalidConfig, inChannels)
	}

	r := &ResNetVD{
		numLayers: numLayers,
		deep:      numLayers >= vdDeepThreshold,
	}

	// Stem: three 3x3 convolutions replacing the classic 7x7.
	stemWidths := [3]int{32, 32, 64}
	in := inChannels
	for _, width := range stemWidths {
		conv, err := layers.NewConvBNAct(in, width, [2]int{3, 3}, [2]int{1, 1}, [2]int{1, 1}, 1, layers.ActReLU)
		if err != nil {
			return nil, err
		}
		r.Stem = append(r.Stem, conv)
		in = width
	}
	r.Pool = layers.NewMaxPool2D([2]int{3, 3}, [2]int{2, 2}, [2]int{1, 1})

	for s := 0; s < 4; s++ {
		blocks := make([]Block, 0, variant.depths[s])
		for i := 0; i < variant.depths[s]; i++ {
			stride := [2]int{1, 1}
			if i == 0 && s != 0 {
				stride = [2]int{2, 1}
			}
			first := s == 0 && i == 0

			var b Block
			var err error
			if variant.bottleneck {
				b, err = layers.NewBottleneckBlock(in, vdStageFilters[s], stride, first)
				in = vdStageFilters[s] * layers.BottleneckExpansion
			} else {
				b, err = layers.NewBasicBlock(in, vdStageFilters[s], stride, first)
				in = vdStageFilters[s]
			}
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, b)
		}
		r.Stages = append(r.Stages, blocks)
	}

	r.Out = layers.NewMaxPool2D([2]int{2, 2}, [2]int{2, 2}, [2]int{0, 0})
	r.outChannels = in

	mods := make([]nn.Module, 0, 6+numLayers)
	for _, conv := range r.Stem {
		mods = append(mods, conv)
	}
	mods = append(mods, r.Pool)
	for _, stage := range r.Stages {
		for _, b := range stage {
			mods = append(mods, b)
		}
	}
	mods = append(mods, r.Out)
	r.seq = nn.NewSequential(mods...)

	return r, nil
}

// OutChannels returns the channel count of the emitted feature map: 512 for
// basic variants, 2048 for bottleneck variants.
func (r *ResNetVD) OutChannels() int { return r.outChannels }

// Forward runs the full backbone on an NCHW tensor.
func (r *ResNetVD) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return r.seq.Forward(x)
}

// LoadForeignWeights installs a flat foreign checkpoint. Unknown toolkit
// tags are ignored; the paddle walk visits the stem at conv1_1..conv1_3 and
// block i of stage s at res{s+2}{suffix}.
func (r *ResNetVD) LoadForeignWeights(toolkit string, tm checkpoint.TensorMap) error {
	if toolkit != checkpoint.PaddleToolkit {
		return nil
	}
	for i, conv := range r.Stem {
		if err := conv.LoadPaddle(tm, fmt.Sprintf("conv1_%d", i+1)); err != nil {
			return fmt.Errorf("stem: %w", err)
		}
	}
	for s, stage := range r.Stages {
		for i, block := range stage {
			prefix := checkpoint.PaddleBlockPrefix(s, i, r.deep)
			if err := block.LoadPaddle(tm, prefix); err != nil {
				return fmt.Errorf("stage %d block %d: %w", s, i, err)
			}
		}
	}
	return nil
}

// Parameters lists every tensor of the backbone in a stable order under
// structured names.
func (r *ResNetVD) Parameters() []checkpoint.Entry {
	var entries []checkpoint.Entry
	for i, conv := range r.Stem {
		entries = append(entries, conv.Parameters(fmt.Sprintf("stem.%d", i))...)
	}
	for s, stage := range r.Stages {
		for i, block := range stage {
			entries = append(entries, block.Parameters(fmt.Sprintf("stages.%d.%d", s, i))...)
		}
	}
	return entries
}

// Tag returns a unique identifier string for this backbone configuration.
func (r *ResNetVD) Tag() string {
	return fmt.Sprintf("ResNetVD_%d", r.numLayers)
}
