package layers

import (
	"fmt"
	"math"

	"textnet/tensor"
)

// BatchNorm2D normalizes each channel of an NCHW tensor with stored
// statistics: y = gamma*(x-mean)/sqrt(var+eps) + beta. Inference only.
type BatchNorm2D struct {
	numFeatures int
	Eps         float64

	Gamma *tensor.Tensor // scale: [numFeatures]
	Beta  *tensor.Tensor // shift: [numFeatures]
	Mean  *tensor.Tensor // running mean: [numFeatures]
	Var   *tensor.Tensor // running variance: [numFeatures]
}

// NewBatchNorm2D creates an identity-initialized normalization layer
// (gamma=1, beta=0, mean=0, var=1).
func NewBatchNorm2D(numFeatures int) *BatchNorm2D {
	bn := &BatchNorm2D{
		numFeatures: numFeatures,
		Eps:         1e-5,
		Gamma:       tensor.New(numFeatures),
		Beta:        tensor.New(numFeatures),
		Mean:        tensor.New(numFeatures),
		Var:         tensor.New(numFeatures),
	}
	for i := 0; i < numFeatures; i++ {
		bn.Gamma.Data[i] = 1
		bn.Var.Data[i] = 1
	}
	return bn
}

// NumFeatures returns the channel count the layer normalizes.
func (bn *BatchNorm2D) NumFeatures() int { return bn.numFeatures }

// Forward applies the per-channel affine transform.
func (bn *BatchNorm2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, ErrRank
	}
	if x.Shape[1] != bn.numFeatures {
		return nil, fmt.Errorf("expected %d channels, got %d", bn.numFeatures, x.Shape[1])
	}
	batch, ch, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	area := h * w

	out := tensor.New(x.Shape...)
	for b := 0; b < batch; b++ {
		for c := 0; c < ch; c++ {
			// Fold the four parameters into one scale and shift per channel.
			scale := bn.Gamma.Data[c] / math.Sqrt(bn.Var.Data[c]+bn.Eps)
			shift := bn.Beta.Data[c] - bn.Mean.Data[c]*scale
			off := (b*ch + c) * area
			src := x.Data[off : off+area]
			dst := out.Data[off : off+area]
			for i, v := range src {
				dst[i] = v*scale + shift
			}
		}
	}
	return out, nil
}

// Tag returns a unique identifier string for this layer configuration.
func (bn *BatchNorm2D) Tag() string {
	return fmt.Sprintf("BatchNorm2D_%d", bn.numFeatures)
}
