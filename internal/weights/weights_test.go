package weights

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestFromPriorities(t *testing.T) {
	got, err := FromPriorities([]float32{1, 4, 9, 0}, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.InDelta(t, 1.0, got[0], 1e-6)
	assert.InDelta(t, 2.0, got[1], 1e-6)
	assert.InDelta(t, 3.0, got[2], 1e-6)
	assert.InDelta(t, 0.0, got[3], 1e-6)

	identity, err := FromPriorities([]float32{0.25, 8}, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.25, 8}, identity, 1e-6)

	empty, err := FromPriorities(nil, 0.6)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFromPriorities_DoesNotAliasInput(t *testing.T) {
	in := []float32{2, 3}
	_, err := FromPriorities(in, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3}, in)
}

func TestValidate_RejectsBadPriorities(t *testing.T) {
	cases := map[string]float32{
		"negative": -1,
		"nan":      float32(math.NaN()),
		"inf":      float32(math.Inf(1)),
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromPriorities([]float32{1, p}, 1)
			assert.ErrorIs(t, err, ErrInvalidPriority)
		})
	}
}

func TestImportance_NormalizedToOne(t *testing.T) {
	sampled := []float32{1, 1, 8}
	w, err := Importance(sampled, 10, 3, 0.4)
	require.NoError(t, err)

	values := Float32s(w)
	require.Len(t, values, 3)

	peak := float32(0)
	for _, v := range values {
		assert.GreaterOrEqual(t, v, float32(0))
		if v > peak {
			peak = v
		}
	}
	assert.Equal(t, float32(1), peak)

	// the rarest draws carry the largest correction
	assert.Equal(t, float32(1), values[0])
	expected := math.Pow(3*8.0/10, -0.4) / math.Pow(3*1.0/10, -0.4)
	assert.InDelta(t, expected, values[2], 1e-5)
}

func TestImportance_BetaZeroIsUniform(t *testing.T) {
	w, err := Importance([]float32{0.5, 2, 7}, 9.5, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1, 1}, Float32s(w))
}

func TestImportance_RejectsDegenerateInput(t *testing.T) {
	_, err := Importance(nil, 1, 1, 0.4)
	assert.Error(t, err)
	_, err = Importance([]float32{1}, 0, 1, 0.4)
	assert.Error(t, err)
}

func TestUniform(t *testing.T) {
	assert.Nil(t, Uniform(0))
	assert.Equal(t, []float32{1, 1, 1}, Float32s(Uniform(3)))
}

func TestToDevice(t *testing.T) {
	v := Uniform(2)

	same, err := ToDevice(v, CPU)
	require.NoError(t, err)
	assert.Same(t, v, same)

	_, err = ToDevice(v, "cuda:7")
	assert.ErrorIs(t, err, ErrUnknownDevice)
	assert.False(t, Supported("cuda:7"))

	moved := 0
	require.NoError(t, RegisterDevice("cuda:7", MoverFunc(func(in *tensor.Dense) (*tensor.Dense, error) {
		moved++
		return in, nil
	})))
	defer UnregisterDevice("cuda:7")

	assert.True(t, Supported("cuda:7"))
	_, err = ToDevice(v, "cuda:7")
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	assert.Error(t, RegisterDevice(CPU, MoverFunc(nil)))
	assert.Error(t, RegisterDevice("tpu", nil))
}
