package utils

import (
	"fmt"
)

// RunConfig holds a backbone run configuration
type RunConfig struct {
	Family     string  // "mobile" or "vd"
	ModelName  string  // mobile only: "large" or "small"
	Scale      float64 // mobile only: width multiplier
	NumLayers  int     // vd only: depth
	InChannels int
	Height     int
	Width      int
}

// ValidateRunConfig validates a backbone run configuration
func ValidateRunConfig(config *RunConfig) error {
	if config.Family != "mobile" && config.Family != "vd" {
		return fmt.Errorf("family must be 'mobile' or 'vd'")
	}

	if config.InChannels <= 0 {
		return fmt.Errorf("input channels must be positive")
	}

	if config.Height <= 0 || config.Width <= 0 {
		return fmt.Errorf("input size must be positive")
	}

	return nil
}
