package nn

import (
	"errors"
	"strings"
	"testing"

	"textnet/tensor"
)

// dummy layer: adds a constant
type addLayer struct{ c float64 }

func (l *addLayer) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return x.Apply(func(v float64) float64 { return v + l.c }), nil
}

// dummy layer: error on forward
type errLayer struct{}

var errFail = errors.New("fail")

func (l *errLayer) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return nil, errFail
}

func TestSequentialForward(t *testing.T) {
	seq := NewSequential(&addLayer{c: 1}, &addLayer{c: 10})

	x := tensor.NewWithData([]float64{1, 2, 3})
	out, err := seq.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{12, 13, 14}
	for i := range want {
		if out.Data[i] != want[i] {
			t.Errorf("at %d, got %f, want %f", i, out.Data[i], want[i])
		}
	}
	// input stays untouched
	if x.Data[0] != 1 {
		t.Errorf("Forward modified its input")
	}
}

func TestSequentialForwardError(t *testing.T) {
	seq := NewSequential(&addLayer{c: 1}, &errLayer{}, &addLayer{c: 10})

	_, err := seq.Forward(tensor.New(3))
	if err == nil {
		t.Fatal("expected error from failing layer")
	}
	if !errors.Is(err, errFail) {
		t.Errorf("error does not wrap the layer failure: %v", err)
	}
	if !strings.Contains(err.Error(), "layer 1:") {
		t.Errorf("error does not name the failing position: %v", err)
	}
}

func TestSequentialEmpty(t *testing.T) {
	seq := NewSequential()

	x := tensor.NewWithData([]float64{4, 5})
	out, err := seq.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	if out != x {
		t.Errorf("empty chain should return its input")
	}
}
