package shader

import (
	"strings"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformLayout(t *testing.T) {
	in, err := NewTransformer().Transform(testTemplate())
	require.NoError(t, err)

	assert.Equal(t, []UniformDescriptor{
		{Name: "modelViewMatrix", Kind: UniformKindMat4, Type: "mat4x4f", Offset: 0},
		{Name: "diffuse", Kind: UniformKindVec4, Type: "vec4f", Offset: 16},
		{Name: "shininess", Kind: UniformKindFloat, Type: "f32", Offset: 20},
		{Name: "count", Kind: UniformKindInt, Type: "i32", Offset: 21},
		{Name: "lit", Kind: UniformKindFlag, Type: "bool", Offset: 22},
	}, in.Layout.Descriptors)
	assert.Equal(t, 24, in.Layout.Footprint)
	assert.Equal(t, 1, in.TableGroup)
	assert.Equal(t, 2, in.TextureGroup)
	assert.Equal(t, -1, in.ReflectionGroup)
	assert.Equal(t, []int{0}, in.SharedGroups())

	require.Len(t, in.Attributes, 2)
	assert.Equal(t, VertexAttribute{Name: "position", Location: 0, Components: 3, Format: wgpu.VertexFormatFloat32x3}, in.Attributes[0])
	assert.Equal(t, "normal", in.Attributes[1].Name)
	assert.Equal(t, 2, in.InstanceIDSlot())
}

func TestTransformVertexSource(t *testing.T) {
	in, err := NewTransformer().Transform(testTemplate())
	require.NoError(t, err)
	src := in.Vertex.Source()

	assert.Contains(t, src, "@group(0) @binding(0) var<uniform> projectionMatrix: mat4x4f;")
	assert.Contains(t, src, "var<private> modelViewMatrix: mat4x4f;")
	assert.Contains(t, src, "var<private> diffuse: vec4f;")
	assert.NotContains(t, src, "var<uniform> modelViewMatrix")
	assert.Contains(t, src, "// @group(1) @binding(2) var<uniform> commented: vec4f;")

	assert.Contains(t, src, "fn vs_main(in: VertexInput, @location(15) sys_instance_id: u32) -> VertexOutput {\n    sys_fetch_instance(sys_instance_id);")
	assert.Contains(t, src, "struct VertexOutput {\n    @location(1) @interpolate(flat) sys_instance_id: u32,")
	assert.Contains(t, src, "return sys_tag_instance(out, sys_instance_id);")
	assert.Contains(t, src, "@group(1) @binding(0) var sys_instance_table: texture_2d<f32>;")
	assert.Contains(t, src, "modelViewMatrix = mat4x4f(textureLoad(sys_instance_table, vec2i(0, sys_row), 0), textureLoad(sys_instance_table, vec2i(1, sys_row), 0), textureLoad(sys_instance_table, vec2i(2, sys_row), 0), textureLoad(sys_instance_table, vec2i(3, sys_row), 0));")
	assert.Contains(t, src, "fn sys_tag_instance(out: VertexOutput, id: u32) -> VertexOutput {")

	assert.Equal(t, "vs_main", in.Vertex.EntryPoint())
	layouts := in.Vertex.VertexLayouts()
	require.Len(t, layouts, 3)
	assert.Equal(t, uint64(12), layouts[0].ArrayStride)
	assert.Equal(t, wgpu.VertexFormatUint32, layouts[2].Attributes[0].Format)
	assert.Equal(t, uint32(15), layouts[2].Attributes[0].ShaderLocation)

	table := in.Vertex.BindGroupLayoutDescriptor(1)
	require.Len(t, table.Entries, 1)
	assert.Equal(t, wgpu.TextureSampleTypeUnfilterableFloat, table.Entries[0].Texture.SampleType)
	group, binding, ok := in.Vertex.BindGroupFromVarName("sys_instance_table")
	assert.True(t, ok)
	assert.Equal(t, 1, group)
	assert.Equal(t, 0, binding)
}

func TestTransformFragmentSource(t *testing.T) {
	in, err := NewTransformer().Transform(testTemplate())
	require.NoError(t, err)
	src := in.Fragment.Source()

	assert.Contains(t, src, "struct FragmentInput {\n    @location(1) @interpolate(flat) sys_instance_id: u32,")
	assert.Contains(t, src, "fn fs_main(in: FragmentInput) -> @location(0) vec4f {\n    sys_fetch_instance(in.sys_instance_id);")
	assert.Contains(t, src, "shininess = textureLoad(sys_instance_table, vec2i(5, sys_row), 0).x;")
	assert.Contains(t, src, "count = bitcast<i32>(textureLoad(sys_instance_table, vec2i(5, sys_row), 0).y);")
	assert.Contains(t, src, "lit = textureLoad(sys_instance_table, vec2i(5, sys_row), 0).z != 0.0;")
	assert.Contains(t, src, "diffuse = textureLoad(sys_instance_table, vec2i(4, sys_row), 0);")
	// fragment returns are left alone
	assert.Contains(t, src, "return in.color * shininess * f32(count);")
	assert.NotContains(t, src, "sys_tag_instance")

	assert.Contains(t, in.Fragment.BindGroupLayoutDescriptors(), 2)
	assert.Equal(t, "diffuseTexture", in.Fragment.BindGroupVarName(2, 0))
}

func TestTransformIsDeterministic(t *testing.T) {
	tr := NewTransformer()
	a, err := tr.Transform(testTemplate())
	require.NoError(t, err)
	b, err := tr.Transform(testTemplate())
	require.NoError(t, err)

	assert.Equal(t, a.Layout, b.Layout)
	assert.Equal(t, a.Attributes, b.Attributes)
	assert.Equal(t, a.Vertex.Source(), b.Vertex.Source())
	assert.Equal(t, a.Fragment.Source(), b.Fragment.Source())

	c, err := NewTransformer().Transform(testTemplate())
	require.NoError(t, err)
	assert.Equal(t, a.Vertex.Source(), c.Vertex.Source())
}

func TestTransformParamIDFragment(t *testing.T) {
	vert := `@group(0) @binding(0) var<uniform> tint: vec4f;
struct Out {
    @builtin(position) pos: vec4f,
};
@vertex
fn main(@location(0) position: vec2f) -> Out {
    var o: Out;
    o.pos = vec4f(position, 0.0, 1.0) * tint;
    return o;
}`
	frag := `@group(0) @binding(1) var<uniform> alpha: f32;
@fragment
fn main() -> @location(0) vec4f {
    return vec4f(1.0, 1.0, 1.0, alpha);
}`
	in, err := NewTransformer().Transform(NewTemplate("flat", vert, frag))
	require.NoError(t, err)

	assert.Equal(t, 0, in.TableGroup)
	assert.Equal(t, 8, in.Layout.Footprint)
	assert.Contains(t, in.Fragment.Source(), "fn main(@location(0) @interpolate(flat) sys_instance_id: u32) -> @location(0) vec4f {\n    sys_fetch_instance(sys_instance_id);")
	assert.Contains(t, in.Vertex.Source(), "@location(0) @interpolate(flat) sys_instance_id: u32,")
	assert.Contains(t, in.Vertex.Source(), "tint = textureLoad(sys_instance_table, vec2i(0, sys_row), 0);")
}

func TestTransformExternalGlobalsOption(t *testing.T) {
	in, err := NewTransformer(WithExternalGlobals("projectionMatrix", "modelViewMatrix")).Transform(testTemplate())
	require.NoError(t, err)
	_, ok := in.Layout.Lookup("modelViewMatrix")
	assert.False(t, ok)
	assert.Contains(t, in.Vertex.Source(), "var<uniform> modelViewMatrix")
	// group 1 is still used by modelViewMatrix, group 2 by the texture
	assert.Equal(t, 3, in.TableGroup)
}

func TestTransformErrors(t *testing.T) {
	tr := NewTransformer()

	_, err := tr.Transform(NewTemplate("noentry", "fn main() {}", testFragment))
	assert.ErrorIs(t, err, ErrMissingEntryPoint)

	_, err = tr.Transform(NewTemplate("nofrag", testVertex, "fn main() {}"))
	assert.ErrorIs(t, err, ErrMissingEntryPoint)

	bad := strings.Replace(testVertex, "var<uniform> diffuse: vec4f", "var<uniform> diffuse: mat3x3f", 1)
	_, err = tr.Transform(NewTemplate("mat3", bad, testFragment))
	assert.ErrorIs(t, err, ErrUnsupportedUniform)

	mismatch := strings.Replace(testFragment, "var<uniform> diffuse: vec4f", "var<uniform> diffuse: vec3f", 1)
	_, err = tr.Transform(NewTemplate("mismatch", testVertex, mismatch))
	assert.ErrorIs(t, err, ErrUniformKindMismatch)

	plain := `@vertex
fn main(@location(0) p: vec3f) -> @builtin(position) vec4f {
    return vec4f(p, 1.0);
}`
	_, err = tr.Transform(NewTemplate("plain", plain, testFragment))
	assert.ErrorIs(t, err, ErrUnsupportedEntryPoint)

	ints := strings.Replace(plain, "p: vec3f", "p: vec3u", 1)
	_, err = tr.Transform(NewTemplate("ints", ints, "@fragment fn main() -> @location(0) vec4f { return vec4f(1.0); }"))
	assert.ErrorIs(t, err, ErrUnsupportedAttribute)

	clash := strings.Replace(plain, "@location(0)", "@location(15)", 1)
	_, err = tr.Transform(NewTemplate("clash", clash, "@fragment fn main() -> @location(0) vec4f { return vec4f(1.0); }"))
	assert.ErrorIs(t, err, ErrUnsupportedAttribute)
}

func TestTransformWithoutTableUniforms(t *testing.T) {
	plain := `@group(0) @binding(0) var<uniform> viewMatrix: mat4x4f;
@vertex
fn main(@location(0) p: vec3f) -> @builtin(position) vec4f {
    return viewMatrix * vec4f(p, 1.0);
}`
	in, err := NewTransformer().Transform(NewTemplate("plain", plain, "@fragment fn main() -> @location(0) vec4f { return vec4f(1.0); }"))
	require.NoError(t, err)
	assert.Equal(t, -1, in.TableGroup)
	assert.Equal(t, 0, in.Layout.Footprint)
	assert.Contains(t, in.Vertex.Source(), "@location(15) sys_instance_id: u32")
	assert.NotContains(t, in.Vertex.Source(), "sys_fetch_instance")
	assert.True(t, NewTransformer().IsExternalGlobal("viewMatrix"))
	assert.True(t, NewTransformer().IsExternalGlobal("sys_anything"))
	assert.False(t, NewTransformer().IsExternalGlobal("color"))
}
