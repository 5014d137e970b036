package layers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textnet/tensor"
)

func TestMaxPool2D_Basic(t *testing.T) {
	pool := NewMaxPool2D([2]int{2, 2}, [2]int{2, 2}, [2]int{0, 0})

	input := tensor.New(1, 1, 4, 4)
	for i := range input.Data {
		input.Data[i] = float64(i)
	}

	output, err := pool.Forward(input)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1, 2, 2}, output.Shape)
	// Bottom-right corner of each 2x2 window
	assert.Equal(t, []float64{5, 7, 13, 15}, output.Data)
}

func TestMaxPool2D_PaddingNeverWins(t *testing.T) {
	// All-negative input with padding: the max must come from real cells
	pool := NewMaxPool2D([2]int{3, 3}, [2]int{2, 2}, [2]int{1, 1})

	input := tensor.New(1, 1, 3, 3)
	for i := range input.Data {
		input.Data[i] = -5
	}

	output, err := pool.Forward(input)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1, 2, 2}, output.Shape)
	for i, v := range output.Data {
		assert.Equal(t, -5.0, v, "padded cell won the max at %d", i)
	}
}

func TestMaxPool2D_TooSmall(t *testing.T) {
	pool := NewMaxPool2D([2]int{2, 2}, [2]int{2, 2}, [2]int{0, 0})

	_, err := pool.Forward(tensor.New(1, 1, 1, 4))
	assert.ErrorContains(t, err, "too small")

	_, err = pool.Forward(tensor.New(1, 4))
	assert.ErrorIs(t, err, ErrRank)
}

func TestAvgPool2D_CeilClippedWindows(t *testing.T) {
	// 3x3 input, 2x2 kernel, stride 2, ceil mode: the hanging windows are
	// clipped and divide by their real cell count
	pool := NewAvgPool2D([2]int{2, 2}, [2]int{2, 2}, true)

	input := tensor.New(1, 1, 3, 3)
	for i := 0; i < 9; i++ {
		input.Data[i] = float64(i + 1)
	}

	output, err := pool.Forward(input)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1, 2, 2}, output.Shape)
	want := []float64{
		(1 + 2 + 4 + 5) / 4.0,
		(3 + 6) / 2.0,
		(7 + 8) / 2.0,
		9 / 1.0,
	}
	assert.Equal(t, want, output.Data)
}

func TestAvgPool2D_FloorMode(t *testing.T) {
	pool := NewAvgPool2D([2]int{2, 2}, [2]int{2, 2}, false)

	input := tensor.New(1, 1, 3, 3)
	for i := 0; i < 9; i++ {
		input.Data[i] = float64(i + 1)
	}

	output, err := pool.Forward(input)
	require.NoError(t, err)

	// Floor mode drops the hanging windows
	assert.Equal(t, []int{1, 1, 1, 1}, output.Shape)
	assert.Equal(t, []float64{3}, output.Data)

	_, err = pool.Forward(tensor.New(1, 1, 1, 1))
	assert.ErrorContains(t, err, "too small")
}

func TestGlobalAvgPool2D(t *testing.T) {
	pool := NewGlobalAvgPool2D()

	input := tensor.New(2, 2, 2, 3)
	for i := range input.Data {
		input.Data[i] = float64(i)
	}

	output, err := pool.Forward(input)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1, 1}, output.Shape)
	// Channel means: 0..5 -> 2.5, 6..11 -> 8.5, ...
	assert.Equal(t, []float64{2.5, 8.5, 14.5, 20.5}, output.Data)
}
