package checkpoint

import "fmt"

// PaddleToolkit tags checkpoints exported from the paddle training toolkit.
// Importers treat any other tag as a no-op.
const PaddleToolkit = "paddle"

// Fixed prefixes of the mobile backbone walk.
const (
	PaddleMobileStem = "conv1"
	PaddleMobileHead = "conv_last"
)

// ConvBNKeys is the key set of one conv-bn unit.
type ConvBNKeys struct {
	Weights  string
	Scale    string
	Offset   string
	Mean     string
	Variance string
}

// PaddleConvBNKeys expands a unit prefix into its five tensor keys.
func PaddleConvBNKeys(prefix string) ConvBNKeys {
	return ConvBNKeys{
		Weights:  prefix + "_weights",
		Scale:    prefix + "_bn_scale",
		Offset:   prefix + "_bn_offset",
		Mean:     prefix + "_bn_mean",
		Variance: prefix + "_bn_variance",
	}
}

// SEKeys is the key set of one squeeze-excite gate.
type SEKeys struct {
	ReduceWeights string
	ReduceOffset  string
	ExpandWeights string
	ExpandOffset  string
}

// PaddleSEKeys expands a gate prefix into its four tensor keys.
func PaddleSEKeys(prefix string) SEKeys {
	return SEKeys{
		ReduceWeights: prefix + "_1_weights",
		ReduceOffset:  prefix + "_1_offset",
		ExpandWeights: prefix + "_2_weights",
		ExpandOffset:  prefix + "_2_offset",
	}
}

// UnitPrefixes locates the sub-units of one mobile residual unit.
type UnitPrefixes struct {
	Expand    string
	Depthwise string
	SE        string
	Linear    string
}

// PaddleUnitPrefixes names the residual unit at the given enumerated
// position. The stem occupies conv1, so units count from 2 in build order.
func PaddleUnitPrefixes(index int) UnitPrefixes {
	return UnitPrefixes{
		Expand:    fmt.Sprintf("conv%d_expand", index),
		Depthwise: fmt.Sprintf("conv%d_depthwise", index),
		SE:        fmt.Sprintf("conv%d_se", index),
		Linear:    fmt.Sprintf("conv%d_linear", index),
	}
}

// VDBranches locates the convolution branches of one vd residual block.
type VDBranches struct {
	Conv0    string
	Conv1    string
	Conv2    string
	Shortcut string
}

// PaddleVDBranches expands a block prefix into its branch prefixes. Basic
// blocks use Conv0 and Conv1 only.
func PaddleVDBranches(prefix string) VDBranches {
	return VDBranches{
		Conv0:    prefix + "_branch2a",
		Conv1:    prefix + "_branch2b",
		Conv2:    prefix + "_branch2c",
		Shortcut: prefix + "_branch1",
	}
}

// PaddleBlockPrefix names block i of stage s (both 0-based). Stages count
// from 2 in the foreign namespace. Deep variants switch the letter suffix to
// b1, b2, ... inside the long third stage, where block counts outgrow the
// alphabet.
func PaddleBlockPrefix(stage, block int, deep bool) string {
	if deep && stage == 2 {
		if block == 0 {
			return fmt.Sprintf("res%da", stage+2)
		}
		return fmt.Sprintf("res%db%d", stage+2, block)
	}
	return fmt.Sprintf("res%d%c", stage+2, 'a'+block)
}
