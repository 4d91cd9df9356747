package shader

import (
	"math"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniformLayoutPlacement(t *testing.T) {
	layout := newUniformLayout([]UniformDescriptor{
		{Name: "f", Kind: UniformKindFloat},
		{Name: "v3", Kind: UniformKindVec3},
		{Name: "m", Kind: UniformKindMat4},
		{Name: "v2", Kind: UniformKindVec2},
		{Name: "i", Kind: UniformKindInt},
		{Name: "b", Kind: UniformKindFlag},
		{Name: "v4", Kind: UniformKindVec4},
	})

	offsets := make(map[string]int)
	for _, d := range layout.Descriptors {
		offsets[d.Name] = d.Offset
	}
	assert.Equal(t, map[string]int{"m": 0, "v4": 16, "v3": 20, "v2": 24, "f": 23, "i": 26, "b": 27}, offsets)
	assert.Equal(t, 28, layout.Footprint)
	assert.Equal(t, 7, layout.Texels())

	// no descriptor straddles a texel boundary
	for _, d := range layout.Descriptors {
		if d.Kind.Floats() < 4 {
			assert.LessOrEqual(t, d.Component()+d.Kind.Floats(), 4, d.Name)
		}
	}
}

func TestUniformLayoutRoundTrip(t *testing.T) {
	layout := newUniformLayout([]UniformDescriptor{
		{Name: "model", Kind: UniformKindMat4},
		{Name: "color", Kind: UniformKindVec4},
		{Name: "normal", Kind: UniformKindVec3},
		{Name: "uv", Kind: UniformKindVec2},
		{Name: "weight", Kind: UniformKindFloat},
		{Name: "count", Kind: UniformKindInt},
		{Name: "on", Kind: UniformKindFlag},
		{Name: "off", Kind: UniformKindFlag},
	})

	var model math32.Matrix4
	for i := range model {
		model[i] = float32(i) * 1.5
	}
	nan := math.Float32frombits(0x7fc00abc)
	values := map[string]any{
		"model":  model,
		"color":  math32.Vector4{X: 0.1, Y: 0.2, Z: 0.3, W: 1},
		"normal": math32.Vector3{X: 0, Y: -1, Z: 0},
		"uv":     math32.Vector2{X: 3, Y: 4},
		"weight": nan,
		"count":  int32(-7),
		"on":     true,
		"off":    false,
	}

	row := make([]float32, layout.Footprint)
	require.NoError(t, layout.Pack(row, values))
	out := layout.Unpack(row)

	assert.Equal(t, values["model"], out["model"])
	assert.Equal(t, values["color"], out["color"])
	assert.Equal(t, values["normal"], out["normal"])
	assert.Equal(t, values["uv"], out["uv"])
	assert.Equal(t, math.Float32bits(nan), math.Float32bits(out["weight"].(float32)))
	assert.Equal(t, int32(-7), out["count"])
	assert.Equal(t, true, out["on"])
	assert.Equal(t, false, out["off"])
}

func TestPackValueForms(t *testing.T) {
	layout := newUniformLayout([]UniformDescriptor{
		{Name: "m", Kind: UniformKindMat4},
		{Name: "c", Kind: UniformKindVec3},
		{Name: "n", Kind: UniformKindInt},
		{Name: "f", Kind: UniformKindFloat},
	})
	row := make([]float32, layout.Footprint)

	var id math32.Matrix4
	id.SetIdentity()
	require.NoError(t, layout.Pack(row, map[string]any{
		"m":       &id,
		"c":       [3]float32{1, 2, 3},
		"n":       42,
		"f":       float64(0.5),
		"ignored": "not in the layout",
	}))
	out := layout.Unpack(row)
	assert.Equal(t, id, out["m"])
	assert.Equal(t, math32.Vector3{X: 1, Y: 2, Z: 3}, out["c"])
	assert.Equal(t, int32(42), out["n"])
	assert.Equal(t, float32(0.5), out["f"])

	err := layout.Pack(row, map[string]any{"c": []float32{1, 2}})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
	err = layout.Pack(row, map[string]any{"n": "seven"})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestUniformKindString(t *testing.T) {
	assert.Equal(t, "mat4", UniformKindMat4.String())
	assert.Equal(t, "flag", UniformKindFlag.String())
	assert.Equal(t, 16, UniformKindMat4.Floats())
	assert.Equal(t, 1, UniformKindFlag.Floats())
}
