// textnet-inspect: Build a recognition backbone and run a forward pass
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"textnet/checkpoint"
	"textnet/nn/backbones"
	"textnet/preprocess"
	"textnet/tensor"
	"textnet/utils"
)

var (
	family      = flag.String("backbone", "mobile", "Backbone family: mobile or vd")
	modelName   = flag.String("name", "large", "Mobile variant: large or small")
	scale       = flag.Float64("scale", 0.5, "Mobile width multiplier")
	numLayers   = flag.Int("layers", 18, "Residual depth: 18, 34, 50, 101, 152 or 200")
	inChannels  = flag.Int("in-channels", 3, "Input channels")
	height      = flag.Int("height", 32, "Input height")
	width       = flag.Int("width", 100, "Input width")
	weightsFile = flag.String("weights", "", "Foreign checkpoint JSON to import")
	imageFile   = flag.String("image", "", "Image file to preprocess and forward")
	describe    = flag.Bool("describe", false, "Print the block graph")
	verbose     = flag.Bool("verbose", true, "Verbose output")
)

type backbone interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	LoadForeignWeights(toolkit string, tm checkpoint.TensorMap) error
	Parameters() []checkpoint.Entry
	OutChannels() int
	Tag() string
}

func main() {
	flag.Parse()
	utils.Verbose = *verbose

	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║              textnet Backbone Inspector                       ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")

	cfg := &utils.RunConfig{
		Family:     *family,
		ModelName:  *modelName,
		Scale:      *scale,
		NumLayers:  *numLayers,
		InChannels: *inChannels,
		Height:     *height,
		Width:      *width,
	}
	if err := utils.ValidateRunConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	stats := &utils.PhaseStats{}

	start := time.Now()
	model, err := build(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building backbone: %v\n", err)
		os.Exit(1)
	}
	stats.BuildTime = time.Since(start)
	fmt.Printf("Backbone: %s (out_channels=%d)\n", model.Tag(), model.OutChannels())

	if *describe {
		printGraph(model)
	}

	if *weightsFile != "" {
		start = time.Now()
		tm, err := checkpoint.Load(*weightsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading checkpoint: %v\n", err)
			os.Exit(1)
		}
		if err := model.LoadForeignWeights(checkpoint.PaddleToolkit, tm); err != nil {
			fmt.Fprintf(os.Stderr, "Error importing weights: %v\n", err)
			os.Exit(1)
		}
		stats.ImportTime = time.Since(start)
		fmt.Printf("Imported checkpoint with %d tensors\n", len(tm))
	}

	start = time.Now()
	input, err := buildInput(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing input: %v\n", err)
		os.Exit(1)
	}
	if *imageFile != "" {
		stats.PreprocessTime = time.Since(start)
	}

	fmt.Println("\nRunning forward pass...")
	start = time.Now()
	out, err := model.Forward(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	stats.ForwardTime = time.Since(start)

	fmt.Printf("Input shape:  %v\n", input.Shape)
	fmt.Printf("Output shape: %v\n", out.Shape)
	utils.PrintPhaseStats(stats)
}

func build(cfg *utils.RunConfig) (backbone, error) {
	if cfg.Family == "vd" {
		return backbones.NewResNetVD(cfg.InChannels, cfg.NumLayers)
	}
	return backbones.NewMobileNetV3(cfg.InChannels, cfg.Scale, cfg.ModelName)
}

func buildInput(cfg *utils.RunConfig) (*tensor.Tensor, error) {
	if *imageFile != "" {
		opts := preprocess.DefaultOptions()
		opts.Channels = cfg.InChannels
		opts.Height = cfg.Height
		opts.Width = cfg.Width
		return preprocess.FromFile(*imageFile, opts)
	}
	return tensor.New(1, cfg.InChannels, cfg.Height, cfg.Width), nil
}

func printGraph(model backbone) {
	switch m := model.(type) {
	case *backbones.MobileNetV3:
		fmt.Printf("  stem:  %s\n", m.Stem.Tag())
		for i, b := range m.Blocks {
			fmt.Printf("  %2d:    %s\n", i, b.Tag())
		}
		fmt.Printf("  head:  %s\n", m.Head.Tag())
		fmt.Printf("  pool:  %s\n", m.Pool.Tag())
	case *backbones.ResNetVD:
		for i, c := range m.Stem {
			fmt.Printf("  stem %d: %s\n", i, c.Tag())
		}
		fmt.Printf("  pool:   %s\n", m.Pool.Tag())
		for s, stage := range m.Stages {
			for i, b := range stage {
				fmt.Printf("  %d.%d:    %s\n", s, i, b.Tag())
			}
		}
		fmt.Printf("  out:    %s\n", m.Out.Tag())
	}

	var values int
	params := model.Parameters()
	for _, e := range params {
		values += e.Tensor.Numel()
	}
	fmt.Printf("  parameters: %d tensors, %d values\n", len(params), values)
}
