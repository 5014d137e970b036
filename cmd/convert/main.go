// textnet-convert: Import a foreign checkpoint and re-export it under the
// structured parameter namespace
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"textnet/checkpoint"
	"textnet/nn/backbones"
)

var (
	family     = flag.String("backbone", "mobile", "Backbone family: mobile or vd")
	modelName  = flag.String("name", "large", "Mobile variant: large or small")
	scale      = flag.Float64("scale", 0.5, "Mobile width multiplier")
	numLayers  = flag.Int("layers", 18, "Residual depth: 18, 34, 50, 101, 152 or 200")
	inChannels = flag.Int("in-channels", 3, "Input channels")
	fromFile   = flag.String("from", "", "Foreign checkpoint JSON (required)")
	toFile     = flag.String("to", "", "Output checkpoint JSON (required)")
)

type backbone interface {
	LoadForeignWeights(toolkit string, tm checkpoint.TensorMap) error
	Parameters() []checkpoint.Entry
	Tag() string
}

func main() {
	flag.Parse()

	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║              textnet Checkpoint Converter                     ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")

	if *fromFile == "" || *toFile == "" {
		fmt.Fprintln(os.Stderr, "Both -from and -to are required")
		flag.Usage()
		os.Exit(2)
	}

	var model backbone
	var err error
	switch *family {
	case "vd":
		model, err = backbones.NewResNetVD(*inChannels, *numLayers)
	case "mobile":
		model, err = backbones.NewMobileNetV3(*inChannels, *scale, *modelName)
	default:
		fmt.Fprintf(os.Stderr, "Unknown backbone family %q\n", *family)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building backbone: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Backbone: %s\n", model.Tag())

	start := time.Now()
	tm, err := checkpoint.Load(*fromFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading checkpoint: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d tensors from %s\n", len(tm), *fromFile)

	if err := model.LoadForeignWeights(checkpoint.PaddleToolkit, tm); err != nil {
		fmt.Fprintf(os.Stderr, "Error importing weights: %v\n", err)
		os.Exit(1)
	}

	entries := model.Parameters()
	if err := checkpoint.Save(*toFile, entries); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving checkpoint: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d tensors to %s\n", len(entries), *toFile)
	fmt.Printf("Time: %.4fs\n", time.Since(start).Seconds())
}
