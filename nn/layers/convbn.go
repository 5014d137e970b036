package layers

import (
	"fmt"

	"textnet/checkpoint"
	"textnet/tensor"
)

// ConvBNAct fuses a bias-free convolution, batch normalization and an
// optional activation. The stride sits on the convolution itself.
type ConvBNAct struct {
	Conv *Conv2D
	BN   *BatchNorm2D

	act     func(*tensor.Tensor) *tensor.Tensor
	actName string
}

// NewConvBNAct creates the unit. act must be one of the supported activation
// names or ActNone.
func NewConvBNAct(inChan, outChan int, kernel, stride, padding [2]int, groups int, act string) (*ConvBNAct, error) {
	fn, err := activationFor(act)
	if err != nil {
		return nil, err
	}
	conv, err := NewConv2D(inChan, outChan, kernel, stride, padding, groups, false)
	if err != nil {
		return nil, err
	}
	return &ConvBNAct{
		Conv:    conv,
		BN:      NewBatchNorm2D(outChan),
		act:     fn,
		actName: act,
	}, nil
}

// Forward runs convolve, normalize, then activate.
func (u *ConvBNAct) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := u.Conv.Forward(x)
	if err != nil {
		return nil, err
	}
	y, err = u.BN.Forward(y)
	if err != nil {
		return nil, err
	}
	if u.act != nil {
		y = u.act(y)
	}
	return y, nil
}

// LoadPaddle installs the unit's convolution weights and normalization
// statistics from a flat foreign map.
func (u *ConvBNAct) LoadPaddle(tm checkpoint.TensorMap, prefix string) error {
	return loadConvBN(tm, prefix, u.Conv, u.BN)
}

// Parameters lists the unit's tensors under the given structured prefix.
func (u *ConvBNAct) Parameters(prefix string) []checkpoint.Entry {
	return convBNParams(prefix, u.Conv, u.BN)
}

// Tag returns a unique identifier string for this unit configuration.
func (u *ConvBNAct) Tag() string {
	if u.actName == ActNone {
		return fmt.Sprintf("ConvBN[%s]", u.Conv.Tag())
	}
	return fmt.Sprintf("ConvBN[%s,%s]", u.Conv.Tag(), u.actName)
}

// PoolConvBNAct is the pool-then-convolve variant: the input is average
// pooled by the stride factor (ceil mode, kernel == stride) before a
// stride-1 convolution. Any non-empty activation name maps to ReLU.
type PoolConvBNAct struct {
	Pool *AvgPool2D
	Conv *Conv2D
	BN   *BatchNorm2D

	act func(*tensor.Tensor) *tensor.Tensor
}

// NewPoolConvBNAct creates the unit. Padding is derived from the kernel as
// (k-1)/2 per side.
func NewPoolConvBNAct(inChan, outChan int, kernel, stride [2]int, groups int, act string) (*PoolConvBNAct, error) {
	padding := [2]int{(kernel[0] - 1) / 2, (kernel[1] - 1) / 2}
	conv, err := NewConv2D(inChan, outChan, kernel, [2]int{1, 1}, padding, groups, false)
	if err != nil {
		return nil, err
	}
	u := &PoolConvBNAct{
		Pool: NewAvgPool2D(stride, stride, true),
		Conv: conv,
		BN:   NewBatchNorm2D(outChan),
	}
	if act != ActNone {
		u.act = ReLU
	}
	return u, nil
}

// Forward runs pool, convolve, normalize, then activate.
func (u *PoolConvBNAct) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := u.Pool.Forward(x)
	if err != nil {
		return nil, err
	}
	y, err = u.Conv.Forward(y)
	if err != nil {
		return nil, err
	}
	y, err = u.BN.Forward(y)
	if err != nil {
		return nil, err
	}
	if u.act != nil {
		y = u.act(y)
	}
	return y, nil
}

// LoadPaddle installs the unit's tensors; the pool has no parameters.
func (u *PoolConvBNAct) LoadPaddle(tm checkpoint.TensorMap, prefix string) error {
	return loadConvBN(tm, prefix, u.Conv, u.BN)
}

// Parameters lists the unit's tensors under the given structured prefix.
func (u *PoolConvBNAct) Parameters(prefix string) []checkpoint.Entry {
	return convBNParams(prefix, u.Conv, u.BN)
}

// Tag returns a unique identifier string for this unit configuration.
func (u *PoolConvBNAct) Tag() string {
	return fmt.Sprintf("PoolConvBN[%s,%s]", u.Pool.Tag(), u.Conv.Tag())
}

// loadConvBN resolves all five tensors of a conv-bn pair before writing any
// of them, so a failed unit is left untouched.
func loadConvBN(tm checkpoint.TensorMap, prefix string, conv *Conv2D, bn *BatchNorm2D) error {
	keys := checkpoint.PaddleConvBNKeys(prefix)
	n := []int{bn.NumFeatures()}

	w, err := tm.Fetch(keys.Weights, conv.W.Shape)
	if err != nil {
		return fmt.Errorf("conv unit %s: %w", prefix, err)
	}
	gamma, err := tm.Fetch(keys.Scale, n)
	if err != nil {
		return fmt.Errorf("conv unit %s: %w", prefix, err)
	}
	beta, err := tm.Fetch(keys.Offset, n)
	if err != nil {
		return fmt.Errorf("conv unit %s: %w", prefix, err)
	}
	mean, err := tm.Fetch(keys.Mean, n)
	if err != nil {
		return fmt.Errorf("conv unit %s: %w", prefix, err)
	}
	variance, err := tm.Fetch(keys.Variance, n)
	if err != nil {
		return fmt.Errorf("conv unit %s: %w", prefix, err)
	}

	copy(conv.W.Data, w.Data)
	copy(bn.Gamma.Data, gamma.Data)
	copy(bn.Beta.Data, beta.Data)
	copy(bn.Mean.Data, mean.Data)
	copy(bn.Var.Data, variance.Data)
	return nil
}

func convBNParams(prefix string, conv *Conv2D, bn *BatchNorm2D) []checkpoint.Entry {
	return []checkpoint.Entry{
		{Name: prefix + ".conv.weight", Tensor: conv.W},
		{Name: prefix + ".bn.gamma", Tensor: bn.Gamma},
		{Name: prefix + ".bn.beta", Tensor: bn.Beta},
		{Name: prefix + ".bn.mean", Tensor: bn.Mean},
		{Name: prefix + ".bn.var", Tensor: bn.Var},
	}
}
