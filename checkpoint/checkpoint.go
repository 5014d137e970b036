// Package checkpoint reads and writes flat named-tensor files and defines
// the foreign naming rules the weight importers walk.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"textnet/tensor"
)

// Entry pairs a structured parameter name with its tensor.
type Entry struct {
	Name   string
	Tensor *tensor.Tensor
}

// record is the on-disk JSON form of one tensor.
type record struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// TensorMap is a flat name-to-tensor view of a checkpoint. Importers only
// read from it.
type TensorMap map[string]*tensor.Tensor

var (
	// ErrMissingKey reports a key an importer required but the map lacks.
	ErrMissingKey = errors.New("missing checkpoint key")
	// ErrShapeMismatch reports a stored tensor that does not fit its
	// destination parameter.
	ErrShapeMismatch = errors.New("checkpoint shape mismatch")
)

// Fetch returns the tensor stored under key after validating its shape.
func (m TensorMap) Fetch(key string, shape []int) (*tensor.Tensor, error) {
	t, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	if !shapeEq(t.Shape, shape) {
		return nil, fmt.Errorf("%w: %s has %v, want %v", ErrShapeMismatch, key, t.Shape, shape)
	}
	return t, nil
}

func shapeEq(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Save writes entries to a JSON checkpoint file, preserving their order.
func Save(path string, entries []Entry) error {
	records := make([]record, 0, len(entries))
	for _, e := range entries {
		records = append(records, record{
			Name:  e.Name,
			Shape: e.Tensor.Shape,
			Data:  e.Tensor.Data,
		})
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	return nil
}

// Load reads a JSON checkpoint file into a flat tensor map.
func Load(path string) (TensorMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	tm := make(TensorMap, len(records))
	for _, rec := range records {
		total := 1
		for _, d := range rec.Shape {
			total *= d
		}
		if total != len(rec.Data) {
			return nil, fmt.Errorf("tensor %s: shape %v does not fit %d values", rec.Name, rec.Shape, len(rec.Data))
		}
		t := tensor.New(rec.Shape...)
		copy(t.Data, rec.Data)
		tm[rec.Name] = t
	}
	return tm, nil
}
