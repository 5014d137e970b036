package layers

import (
	"fmt"
	"math"

	"textnet/tensor"
)

// Activation names accepted by the conv-bn units. The empty name means no
// activation.
const (
	ActNone   = ""
	ActReLU   = "relu"
	ActHSwish = "hard_swish"
)

// SupportedActivations contains the elementwise activation functions.
var SupportedActivations = map[string]func(*tensor.Tensor) *tensor.Tensor{
	ActReLU:   ReLU,
	ActHSwish: HSwish,
}

// activationFor resolves an activation name, nil for ActNone.
func activationFor(name string) (func(*tensor.Tensor) *tensor.Tensor, error) {
	if name == ActNone {
		return nil, nil
	}
	fn, ok := SupportedActivations[name]
	if !ok {
		return nil, fmt.Errorf("unsupported activation: %s", name)
	}
	return fn, nil
}

// ReLU applies max(x, 0) to each element, returns a new tensor.
func ReLU(x *tensor.Tensor) *tensor.Tensor {
	return x.Apply(func(v float64) float64 {
		if v > 0 {
			return v
		}
		return 0
	})
}

// HSwish applies x * clamp(x+3, 0, 6) / 6 to each element.
func HSwish(x *tensor.Tensor) *tensor.Tensor {
	return x.Apply(func(v float64) float64 {
		return v * math.Min(math.Max(v+3, 0), 6) / 6
	})
}

// Slope and offset of the gating hard sigmoid.
const (
	hardSigmoidSlope  = 0.2
	hardSigmoidOffset = 0.5
)

// HardSigmoid applies clamp(slope*x + offset, 0, 1) to each element.
func HardSigmoid(x *tensor.Tensor, slope, offset float64) *tensor.Tensor {
	return x.Apply(func(v float64) float64 {
		return math.Min(math.Max(slope*v+offset, 0), 1)
	})
}
