package shader

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskCommentsKeepsOffsets(t *testing.T) {
	src := "a /* x /* nested */ y */ b // tail\nc"
	masked := maskComments(src)
	require.Len(t, masked, len(src))
	assert.Equal(t, "a                        b        \nc", masked)
}

func TestMatchingClose(t *testing.T) {
	src := "f(a(b), c) { if (x) { y; } }"
	assert.Equal(t, 9, matchingClose(src, 1))
	assert.Equal(t, len(src)-1, matchingClose(src, 11))
	assert.Equal(t, -1, matchingClose("f(a", 1))
}

func TestSplitAtTopLevelCommas(t *testing.T) {
	parts := splitAtTopLevelCommas("@location(0) @interpolate(flat, either) id: u32, a: array<f32, 4>")
	require.Len(t, parts, 2)
	assert.Equal(t, " a: array<f32, 4>", parts[1])
}

func TestParseEntryFunction(t *testing.T) {
	fn, ok := parseEntryFunction(maskComments(testVertex), ShaderTypeVertex)
	require.True(t, ok)
	assert.Equal(t, "vs_main", fn.name)
	assert.Equal(t, "VertexOutput", fn.returnType)
	require.Len(t, fn.params, 1)
	assert.Equal(t, "in", fn.params[0].name)
	assert.Equal(t, "VertexInput", fn.params[0].typeName)

	returns := parseReturns(maskComments(testVertex), fn)
	require.Len(t, returns, 1)
	assert.Equal(t, "out", testVertex[returns[0].start:returns[0].end])

	_, ok = parseEntryFunction(maskComments(testVertex), ShaderTypeFragment)
	assert.False(t, ok)
	assert.Equal(t, "fs_main", parseEntryPoint(testFragment, ShaderTypeFragment))
}

func TestParseBindGroupLayouts(t *testing.T) {
	layouts, names := parseBindGroupLayouts(testVertex, wgpu.ShaderStageVertex)
	require.Contains(t, layouts, 0)
	require.Contains(t, layouts, 1)
	assert.Len(t, layouts[1].Entries, 2)
	assert.Equal(t, wgpu.BufferBindingTypeUniform, layouts[0].Entries[0].Buffer.Type)
	assert.Equal(t, uint64(64), layouts[0].Entries[0].Buffer.MinBindingSize)
	assert.Equal(t, "diffuse", names[1][1])

	frag, _ := parseBindGroupLayouts(testFragment, wgpu.ShaderStageFragment)
	assert.Equal(t, wgpu.SamplerBindingTypeFiltering, frag[2].Entries[1].Sampler.Type)
	assert.Equal(t, wgpu.TextureSampleTypeFloat, frag[2].Entries[0].Texture.SampleType)
}

func TestNewShaderDerivesVertexLayouts(t *testing.T) {
	s, err := NewShader("plain", ShaderTypeVertex, testVertex)
	require.NoError(t, err)
	require.Len(t, s.VertexLayouts(), 2)
	assert.Equal(t, uint32(1), s.VertexLayouts()[1].Attributes[0].ShaderLocation)
	assert.Equal(t, "plain", s.Module().Label)

	_, err = NewShader("broken", ShaderTypeFragment, testVertex)
	assert.ErrorIs(t, err, ErrMissingEntryPoint)
}
