// Package preprocess turns decoded images into normalized NCHW input
// tensors for the recognition backbones.
package preprocess

import (
	"fmt"
	"image"
	"math"

	"github.com/up-zero/gotool/imageutil"
	"golang.org/x/image/draw"

	"textnet/tensor"
)

// Options controls the target geometry and normalization.
type Options struct {
	Channels int     // 1 (grayscale) or 3 (RGB)
	Height   int     // target height
	Width    int     // target width; <= 0 derives it from the aspect ratio
	Mean     float64 // subtracted after scaling pixels to [0,1]
	Std      float64 // divides after mean subtraction
}

// DefaultOptions is the recognition input geometry: RGB, 32 pixels high,
// proportional width, (x - 0.5) / 0.5 normalization.
func DefaultOptions() Options {
	return Options{Channels: 3, Height: 32, Width: 0, Mean: 0.5, Std: 0.5}
}

// FromFile decodes an image file and converts it.
func FromFile(path string, opts Options) (*tensor.Tensor, error) {
	img, err := imageutil.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return FromImage(img, opts)
}

// FromImage resizes img to the target height preserving aspect ratio,
// normalizes pixels and emits a (1, C, H, W) tensor. With a fixed width,
// wider images are squeezed down to it and narrower ones zero-padded on the
// right, so the text keeps its horizontal anchor at column zero.
func FromImage(img image.Image, opts Options) (*tensor.Tensor, error) {
	if opts.Channels != 1 && opts.Channels != 3 {
		return nil, fmt.Errorf("unsupported channel count %d", opts.Channels)
	}
	if opts.Height <= 0 {
		return nil, fmt.Errorf("invalid target height %d", opts.Height)
	}
	if opts.Std == 0 {
		return nil, fmt.Errorf("std must be non-zero")
	}
	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()
	if srcW == 0 || srcH == 0 {
		return nil, fmt.Errorf("empty source image")
	}

	newW := int(math.Round(float64(srcW) * float64(opts.Height) / float64(srcH)))
	if newW < 1 {
		newW = 1
	}
	if opts.Width > 0 && newW > opts.Width {
		newW = opts.Width
	}
	outW := opts.Width
	if outW <= 0 {
		outW = newW
	}

	resized := image.NewRGBA(image.Rect(0, 0, newW, opts.Height))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	out := tensor.New(1, opts.Channels, opts.Height, outW)
	if opts.Channels == 1 {
		gray := imageutil.Grayscale(resized)
		for y := 0; y < opts.Height; y++ {
			for x := 0; x < newW; x++ {
				p := float64(gray.Pix[y*gray.Stride+x]) / 255.0
				out.Data[y*outW+x] = (p - opts.Mean) / opts.Std
			}
		}
		return out, nil
	}

	area := opts.Height * outW
	for y := 0; y < opts.Height; y++ {
		for x := 0; x < newW; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			out.Data[0*area+y*outW+x] = (float64(r>>8)/255.0 - opts.Mean) / opts.Std
			out.Data[1*area+y*outW+x] = (float64(g>>8)/255.0 - opts.Mean) / opts.Std
			out.Data[2*area+y*outW+x] = (float64(b>>8)/255.0 - opts.Mean) / opts.Std
		}
	}
	return out, nil
}
