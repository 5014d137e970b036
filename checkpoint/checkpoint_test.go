package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textnet/tensor"
)

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.json")
	weight := tensor.NewWithData([]float64{1, 2, 3, 4, 5, 6}, 2, 3, 1, 1)
	gamma := tensor.NewWithData([]float64{0.5, -0.5})

	err := Save(path, []Entry{
		{Name: "stem.conv.weight", Tensor: weight},
		{Name: "stem.bn.gamma", Tensor: gamma},
	})
	require.NoError(t, err)

	tm, err := Load(path)
	require.NoError(t, err)
	require.Len(t, tm, 2)
	assert.Equal(t, weight.Shape, tm["stem.conv.weight"].Shape)
	assert.Equal(t, weight.Data, tm["stem.conv.weight"].Data)
	assert.Equal(t, gamma.Data, tm["stem.bn.gamma"].Data)
}

func TestSave_PreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.json")
	entries := []Entry{
		{Name: "z", Tensor: tensor.NewWithData([]float64{1})},
		{Name: "a", Tensor: tensor.NewWithData([]float64{2})},
		{Name: "m", Tensor: tensor.NewWithData([]float64{3})},
	}
	require.NoError(t, Save(path, entries))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []record
	require.NoError(t, json.Unmarshal(data, &records))

	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, entries[i].Name, rec.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorContains(t, err, "failed to read checkpoint file")
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to unmarshal checkpoint")
}

func TestLoad_RejectsShapeDataMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.json")
	raw := `[{"name": "w", "shape": [2, 2], "data": [1, 2, 3]}]`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "shape [2 2] does not fit 3 values")
}

func TestTensorMapFetch(t *testing.T) {
	stored := tensor.NewWithData([]float64{1, 2, 3}, 3)
	tm := TensorMap{"conv1_weights": stored}

	got, err := tm.Fetch("conv1_weights", []int{3})
	require.NoError(t, err)
	assert.Same(t, stored, got)

	_, err = tm.Fetch("conv2_weights", []int{3})
	assert.ErrorIs(t, err, ErrMissingKey)
	assert.ErrorContains(t, err, "conv2_weights")

	_, err = tm.Fetch("conv1_weights", []int{1, 3})
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.ErrorContains(t, err, "has [3], want [1 3]")
}
