package layers

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"textnet/tensor"
)

// Conv2D is a 2D convolutional layer over NCHW tensors with stride, zero
// padding and channel groups. groups == inChan gives a depthwise convolution.
type Conv2D struct {
	// Layer parameters
	inChan, outChan  int // number of input/output channels
	kh, kw           int // kernel height and width
	strideH, strideW int // vertical/horizontal stride
	padH, padW       int // zero padding per side
	groups           int // channel groups; in and out must both divide

	// Learnable parameters
	W *tensor.Tensor // weights: [outChan, inChan/groups, kh, kw]
	B *tensor.Tensor // bias: [outChan], nil when the layer has none
}

// NewConv2D creates a new Conv2D layer. Weights start at small random
// values; bias=false leaves B nil.
func NewConv2D(inChan, outChan int, kernel, stride, padding [2]int, groups int, bias bool) (*Conv2D, error) {
	if inChan <= 0 || outChan <= 0 {
		return nil, fmt.Errorf("invalid channel counts: in=%d out=%d", inChan, outChan)
	}
	if kernel[0] <= 0 || kernel[1] <= 0 {
		return nil, fmt.Errorf("invalid kernel size %v", kernel)
	}
	if stride[0] <= 0 || stride[1] <= 0 {
		return nil, fmt.Errorf("invalid stride %v", stride)
	}
	if padding[0] < 0 || padding[1] < 0 {
		return nil, fmt.Errorf("invalid padding %v", padding)
	}
	if groups < 1 || inChan%groups != 0 || outChan%groups != 0 {
		return nil, fmt.Errorf("groups %d must divide in=%d and out=%d", groups, inChan, outChan)
	}

	c := &Conv2D{
		inChan:  inChan,
		outChan: outChan,
		kh:      kernel[0],
		kw:      kernel[1],
		strideH: stride[0],
		strideW: stride[1],
		padH:    padding[0],
		padW:    padding[1],
		groups:  groups,
		W:       tensor.New(outChan, inChan/groups, kernel[0], kernel[1]),
	}

	for i := range c.W.Data {
		c.W.Data[i] = (rand.Float64() - 0.5) * 0.1
	}
	if bias {
		c.B = tensor.New(outChan)
	}

	return c, nil
}

// InChannels returns the expected input channel count.
func (c *Conv2D) InChannels() int { return c.inChan }

// OutChannels returns the produced channel count.
func (c *Conv2D) OutChannels() int { return c.outChan }

// OutShape returns the spatial output size for the given input size.
func (c *Conv2D) OutShape(inH, inW int) (outH, outW int) {
	outH = (inH+2*c.padH-c.kh)/c.strideH + 1
	outW = (inW+2*c.padW-c.kw)/c.strideW + 1
	return outH, outW
}

// Forward convolves an NCHW input. Each (batch, group) pair is unrolled into
// an im2col matrix and multiplied against the group's weight matrix, writing
// straight into the output backing slice.
func (c *Conv2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, ErrRank
	}
	batch, ch, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	if ch != c.inChan {
		return nil, fmt.Errorf("expected %d input channels, got %d", c.inChan, ch)
	}
	outH, outW := c.OutShape(h, w)
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("input %dx%d too small for kernel %dx%d stride %dx%d", h, w, c.kh, c.kw, c.strideH, c.strideW)
	}

	icg := c.inChan / c.groups  // input channels per group
	ocg := c.outChan / c.groups // output channels per group
	kArea := icg * c.kh * c.kw
	spatial := outH * outW

	out := tensor.New(batch, c.outChan, outH, outW)
	cols := make([]float64, kArea*spatial) // im2col buffer, fully rewritten per (batch, group)

	for b := 0; b < batch; b++ {
		for g := 0; g < c.groups; g++ {
			// Unroll the group's input windows into columns.
			for ic := 0; ic < icg; ic++ {
				chanOff := (b*ch + g*icg + ic) * h * w
				for dy := 0; dy < c.kh; dy++ {
					for dx := 0; dx < c.kw; dx++ {
						rowOff := ((ic*c.kh+dy)*c.kw + dx) * spatial
						for oy := 0; oy < outH; oy++ {
							iy := oy*c.strideH + dy - c.padH
							if iy < 0 || iy >= h {
								// whole row falls into padding
								zeroFill(cols[rowOff+oy*outW : rowOff+(oy+1)*outW])
								continue
							}
							for ox := 0; ox < outW; ox++ {
								ix := ox*c.strideW + dx - c.padW
								v := 0.0
								if ix >= 0 && ix < w {
									v = x.Data[chanOff+iy*w+ix]
								}
								cols[rowOff+oy*outW+ox] = v
							}
						}
					}
				}
			}

			// One dense multiply per group: [ocg, kArea] x [kArea, spatial].
			wOff := g * ocg * kArea
			outOff := (b*c.outChan + g*ocg) * spatial
			wm := mat.NewDense(ocg, kArea, c.W.Data[wOff:wOff+ocg*kArea])
			cm := mat.NewDense(kArea, spatial, cols)
			om := mat.NewDense(ocg, spatial, out.Data[outOff:outOff+ocg*spatial])
			om.Mul(wm, cm)

			if c.B != nil {
				for oc := 0; oc < ocg; oc++ {
					row := out.Data[outOff+oc*spatial : outOff+(oc+1)*spatial]
					floats.AddConst(c.B.Data[g*ocg+oc], row)
				}
			}
		}
	}

	return out, nil
}

// Tag returns a unique identifier string for this layer configuration.
func (c *Conv2D) Tag() string {
	return fmt.Sprintf("Conv2D_%d_%d_%dx%d_s%d%d", c.inChan, c.outChan, c.kh, c.kw, c.strideH, c.strideW)
}

func zeroFill(s []float64) {
	for i := range s {
		s[i] = 0
	}
}
