package layers

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"textnet/tensor"
)

// MaxPool2D is a 2D max pooling layer. Padded positions never win the max.
type MaxPool2D struct {
	kh, kw int
	sh, sw int
	ph, pw int
}

// NewMaxPool2D creates a max pooling layer.
func NewMaxPool2D(kernel, stride, padding [2]int) *MaxPool2D {
	return &MaxPool2D{
		kh: kernel[0], kw: kernel[1],
		sh: stride[0], sw: stride[1],
		ph: padding[0], pw: padding[1],
	}
}

// Forward pools each channel of an NCHW input.
func (p *MaxPool2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, ErrRank
	}
	batch, ch, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	outH := (h+2*p.ph-p.kh)/p.sh + 1
	outW := (w+2*p.pw-p.kw)/p.sw + 1
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("input %dx%d too small for pool %dx%d stride %dx%d", h, w, p.kh, p.kw, p.sh, p.sw)
	}

	out := tensor.New(batch, ch, outH, outW)
	for b := 0; b < batch; b++ {
		for c := 0; c < ch; c++ {
			chanOff := (b*ch + c) * h * w
			outOff := (b*ch + c) * outH * outW
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					best := math.Inf(-1)
					for dy := 0; dy < p.kh; dy++ {
						iy := oy*p.sh + dy - p.ph
						if iy < 0 || iy >= h {
							continue
						}
						for dx := 0; dx < p.kw; dx++ {
							ix := ox*p.sw + dx - p.pw
							if ix < 0 || ix >= w {
								continue
							}
							if v := x.Data[chanOff+iy*w+ix]; v > best {
								best = v
							}
						}
					}
					out.Data[outOff+oy*outW+ox] = best
				}
			}
		}
	}
	return out, nil
}

// Tag returns a unique identifier string for this layer configuration.
func (p *MaxPool2D) Tag() string {
	return fmt.Sprintf("MaxPool2D_%dx%d_s%d%d", p.kh, p.kw, p.sh, p.sw)
}

// AvgPool2D averages kernel windows. In ceil mode the rightmost and bottom
// windows may hang over the edge; they are clipped and the divisor counts
// only in-bounds cells.
type AvgPool2D struct {
	kh, kw   int
	sh, sw   int
	ceilMode bool
}

// NewAvgPool2D creates an average pooling layer without padding.
func NewAvgPool2D(kernel, stride [2]int, ceilMode bool) *AvgPool2D {
	return &AvgPool2D{
		kh: kernel[0], kw: kernel[1],
		sh: stride[0], sw: stride[1],
		ceilMode: ceilMode,
	}
}

// Forward pools each channel of an NCHW input.
func (p *AvgPool2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, ErrRank
	}
	batch, ch, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	var outH, outW int
	if p.ceilMode {
		outH = ceilDiv(h-p.kh, p.sh) + 1
		outW = ceilDiv(w-p.kw, p.sw) + 1
		// The last window must start inside the input.
		if (outH-1)*p.sh >= h {
			outH--
		}
		if (outW-1)*p.sw >= w {
			outW--
		}
	} else {
		if h < p.kh || w < p.kw {
			return nil, fmt.Errorf("input %dx%d too small for pool %dx%d", h, w, p.kh, p.kw)
		}
		outH = (h-p.kh)/p.sh + 1
		outW = (w-p.kw)/p.sw + 1
	}
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("input %dx%d too small for pool %dx%d stride %dx%d", h, w, p.kh, p.kw, p.sh, p.sw)
	}

	out := tensor.New(batch, ch, outH, outW)
	for b := 0; b < batch; b++ {
		for c := 0; c < ch; c++ {
			chanOff := (b*ch + c) * h * w
			outOff := (b*ch + c) * outH * outW
			for oy := 0; oy < outH; oy++ {
				y0 := oy * p.sh
				y1 := min(y0+p.kh, h)
				for ox := 0; ox < outW; ox++ {
					x0 := ox * p.sw
					x1 := min(x0+p.kw, w)
					sum := 0.0
					for iy := y0; iy < y1; iy++ {
						rowOff := chanOff + iy*w
						sum += floats.Sum(x.Data[rowOff+x0 : rowOff+x1])
					}
					count := (y1 - y0) * (x1 - x0)
					out.Data[outOff+oy*outW+ox] = sum / float64(count)
				}
			}
		}
	}
	return out, nil
}

// Tag returns a unique identifier string for this layer configuration.
func (p *AvgPool2D) Tag() string {
	return fmt.Sprintf("AvgPool2D_%dx%d_s%d%d", p.kh, p.kw, p.sh, p.sw)
}

// GlobalAvgPool2D reduces each channel map to its mean, (N,C,H,W) -> (N,C,1,1).
type GlobalAvgPool2D struct{}

// NewGlobalAvgPool2D creates a global average pooling layer.
func NewGlobalAvgPool2D() *GlobalAvgPool2D {
	return &GlobalAvgPool2D{}
}

// Forward reduces each channel to a single value.
func (p *GlobalAvgPool2D) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, ErrRank
	}
	batch, ch, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	area := h * w
	if area == 0 {
		return nil, fmt.Errorf("empty feature map %dx%d", h, w)
	}

	out := tensor.New(batch, ch, 1, 1)
	for b := 0; b < batch; b++ {
		for c := 0; c < ch; c++ {
			off := (b*ch + c) * area
			out.Data[b*ch+c] = floats.Sum(x.Data[off:off+area]) / float64(area)
		}
	}
	return out, nil
}

// Tag returns a unique identifier string for this layer configuration.
func (p *GlobalAvgPool2D) Tag() string {
	return "GlobalAvgPool2D"
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// ErrRank is returned by every layer that receives a tensor of the wrong rank.
var ErrRank = &RankError{"input must be a 4-D NCHW tensor"}

// RankError indicates an input tensor with an unsupported number of dimensions.
type RankError struct {
	msg string
}

func (e *RankError) Error() string {
	return e.msg
}
