package backbones

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textnet/checkpoint"
	"textnet/nn/layers"
	"textnet/tensor"
)

func randTensor(shape ...int) *tensor.Tensor {
	x := tensor.New(shape...)
	for i := range x.Data {
		x.Data[i] = rand.Float64()*2 - 1
	}
	return x
}

// fillConvBNShapes synthesizes the five foreign tensors of one conv-bn unit
// with the given weight shape and channel count. Variances are kept positive.
func fillConvBNShapes(tm checkpoint.TensorMap, prefix string, wShape []int, n int) {
	keys := checkpoint.PaddleConvBNKeys(prefix)
	tm[keys.Weights] = randTensor(wShape...)
	tm[keys.Scale] = randTensor(n)
	tm[keys.Offset] = randTensor(n)
	tm[keys.Mean] = randTensor(n)
	variance := randTensor(n)
	for i := range variance.Data {
		variance.Data[i] = variance.Data[i]*0.5 + 1
	}
	tm[keys.Variance] = variance
}

func fillConvBN(tm checkpoint.TensorMap, prefix string, u *layers.ConvBNAct) {
	fillConvBNShapes(tm, prefix, u.Conv.W.Shape, u.BN.NumFeatures())
}

func fillSE(tm checkpoint.TensorMap, prefix string, se *layers.SEBlock) {
	keys := checkpoint.PaddleSEKeys(prefix)
	tm[keys.ReduceWeights] = randTensor(se.Conv1.W.Shape...)
	tm[keys.ReduceOffset] = randTensor(se.Conv1.B.Shape...)
	tm[keys.ExpandWeights] = randTensor(se.Conv2.W.Shape...)
	tm[keys.ExpandOffset] = randTensor(se.Conv2.B.Shape...)
}

// mobileCheckpoint walks the backbone in foreign naming order and invents a
// complete checkpoint for it.
func mobileCheckpoint(m *MobileNetV3) checkpoint.TensorMap {
	tm := checkpoint.TensorMap{}
	fillConvBN(tm, checkpoint.PaddleMobileStem, m.Stem)
	for i, block := range m.Blocks {
		p := checkpoint.PaddleUnitPrefixes(i + 2)
		fillConvBN(tm, p.Expand, block.Expand)
		fillConvBN(tm, p.Depthwise, block.Depthwise)
		if block.SE != nil {
			fillSE(tm, p.SE, block.SE)
		}
		fillConvBN(tm, p.Linear, block.Project)
	}
	fillConvBN(tm, checkpoint.PaddleMobileHead, m.Head)
	return tm
}

func TestNewMobileNetV3_OutChannels(t *testing.T) {
	cases := []struct {
		name  string
		scale float64
		want  int
	}{
		{"large", 0.35, 336},
		{"large", 0.5, 480},
		{"large", 0.75, 720},
		{"large", 1.0, 960},
		{"large", 1.25, 1200},
		{"small", 0.35, 200},
		{"small", 0.5, 288},
		{"small", 0.75, 432},
		{"small", 1.0, 576},
		{"small", 1.25, 720},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%s_x%g", c.name, c.scale), func(t *testing.T) {
			m, err := NewMobileNetV3(3, c.scale, c.name)
			require.NoError(t, err)
			assert.Equal(t, c.want, m.OutChannels())
		})
	}
}

func TestNewMobileNetV3_InvalidConfig(t *testing.T) {
	_, err := NewMobileNetV3(3, 0.6, "large")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewMobileNetV3(3, 1.0, "huge")
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorContains(t, err, "not implemented")

	_, err = NewMobileNetV3(0, 1.0, "large")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMobileNetV3_ForwardLarge(t *testing.T) {
	m, err := NewMobileNetV3(3, 0.5, "large")
	require.NoError(t, err)

	// Text recognition input: low, wide. Height collapses to 1, width
	// quarters through the stem and the final pool.
	out, err := m.Forward(randTensor(1, 3, 32, 100))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 480, 1, 25}, out.Shape)
}

func TestMobileNetV3_ForwardSmall(t *testing.T) {
	m, err := NewMobileNetV3(3, 0.35, "small")
	require.NoError(t, err)

	// The small table halves the height once more than the large one, so it
	// needs the taller input.
	out, err := m.Forward(randTensor(1, 3, 48, 100))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 200, 1, 25}, out.Shape)
}

func TestMobileNetV3_ForwardBadInput(t *testing.T) {
	m, err := NewMobileNetV3(3, 0.5, "large")
	require.NoError(t, err)

	_, err = m.Forward(randTensor(1, 4, 32, 100))
	assert.ErrorContains(t, err, "layer 0")
}

func TestMobileNetV3_LoadForeignWeights(t *testing.T) {
	m, err := NewMobileNetV3(3, 0.35, "small")
	require.NoError(t, err)
	tm := mobileCheckpoint(m)

	require.NoError(t, m.LoadForeignWeights(checkpoint.PaddleToolkit, tm))
	assert.Equal(t, tm["conv1_bn_mean"].Data, m.Stem.BN.Mean.Data)
	assert.Equal(t, tm["conv2_expand_weights"].Data, m.Blocks[0].Expand.Conv.W.Data)
	assert.Equal(t, tm["conv2_se_1_weights"].Data, m.Blocks[0].SE.Conv1.W.Data)
	assert.Equal(t, tm["conv12_linear_weights"].Data, m.Blocks[10].Project.Conv.W.Data)
	assert.Equal(t, tm["conv_last_weights"].Data, m.Head.Conv.W.Data)
}

func TestMobileNetV3_LoadForeignWeightsMissingKey(t *testing.T) {
	m, err := NewMobileNetV3(3, 0.35, "small")
	require.NoError(t, err)
	tm := mobileCheckpoint(m)
	delete(tm, "conv4_depthwise_bn_mean")

	err = m.LoadForeignWeights(checkpoint.PaddleToolkit, tm)
	assert.ErrorIs(t, err, checkpoint.ErrMissingKey)
	assert.ErrorContains(t, err, "block 2")
}

func TestMobileNetV3_LoadForeignWeightsUnknownToolkit(t *testing.T) {
	m, err := NewMobileNetV3(3, 0.35, "small")
	require.NoError(t, err)
	before := m.Stem.Conv.W.Clone()

	// Unknown toolkits are ignored, even with an empty map.
	require.NoError(t, m.LoadForeignWeights("torch", checkpoint.TensorMap{}))
	assert.Equal(t, before.Data, m.Stem.Conv.W.Data)
}

func TestMobileNetV3_ParameterNames(t *testing.T) {
	m, err := NewMobileNetV3(3, 0.5, "large")
	require.NoError(t, err)

	params := m.Parameters()
	require.NotEmpty(t, params)
	assert.Equal(t, "stem.conv.weight", params[0].Name)

	seen := map[string]bool{}
	for _, p := range params {
		require.NotNil(t, p.Tensor, p.Name)
		assert.False(t, seen[p.Name], "duplicate parameter name %s", p.Name)
		seen[p.Name] = true
	}
	assert.True(t, seen["blocks.3.se.reduce.weight"])
	assert.True(t, seen["head.bn.var"])
}

func BenchmarkMobileNetV3Forward(b *testing.B) {
	m, err := NewMobileNetV3(3, 0.5, "large")
	if err != nil {
		b.Fatal(err)
	}
	x := randTensor(1, 3, 32, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.Forward(x); err != nil {
			b.Fatal(err)
		}
	}
}
