package batch

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/shader"
	"github.com/stretchr/testify/require"
)

const flatVertex = `struct VertexInput {
    @location(0) position: vec3f,
};

struct VertexOutput {
    @builtin(position) clip: vec4f,
    @location(0) color: vec4f,
};

@group(0) @binding(0) var<uniform> projectionMatrix: mat4x4f;
@group(0) @binding(1) var<uniform> viewMatrix: mat4x4f;
@group(1) @binding(0) var<uniform> modelViewMatrix: mat4x4f;
@group(1) @binding(1) var<uniform> color: vec4f;

@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
    var out: VertexOutput;
    out.clip = projectionMatrix * viewMatrix * modelViewMatrix * vec4f(in.position, 1.0);
    out.color = color;
    return out;
}
`

const flatFragment = `struct FragmentInput {
    @location(0) color: vec4f,
};

@fragment
fn fs_main(in: FragmentInput) -> @location(0) vec4f {
    return in.color;
}
`

const texturedFragment = `struct FragmentInput {
    @location(0) color: vec4f,
};

@group(2) @binding(0) var diffuseTexture: texture_2d<f32>;
@group(2) @binding(1) var diffuseSampler: sampler;

@fragment
fn fs_main(in: FragmentInput) -> @location(0) vec4f {
    return in.color * textureSample(diffuseTexture, diffuseSampler, vec2f(0.5, 0.5));
}
`

// testConfig keeps pools small: 48 floats hold five triangles.
func testConfig() Config {
	return Config{
		BaseSize:         48,
		MaxCapacity:      48 << 6,
		MaxInstances:     64,
		ShrinkRatio:      0.5,
		MaxVertices:      64,
		IdleFrames:       3,
		TransformUniform: DefaultTransformUniform,
		Workers:          2,
	}
}

func flatInstanced(t *testing.T) *shader.Instanced {
	t.Helper()
	in, err := shader.NewTransformer().Transform(shader.NewTemplate("flat", flatVertex, flatFragment))
	require.NoError(t, err)
	return in
}

// triangles returns geometry of n triangles whose coordinates all equal v.
func triangles(n int, v float32) VertexData {
	pos := make([]float32, n*9)
	for i := range pos {
		pos[i] = v
	}
	return VertexData{"position": pos}
}

func translation(x float32) [16]float32 {
	return [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, x, 0, 0, 1}
}

func flatUniforms(x float32) map[string]any {
	return map[string]any{
		"modelViewMatrix": translation(x),
		"color":           [4]float32{1, 0.5, 0.25, 1},
	}
}

type bindGroupInit struct {
	provider bind_group_provider.BindGroupProvider
	key      string
	group    int
}

type drawCall struct {
	key       string
	vertices  uint32
	instances uint32
	groups    []bind_group_provider.BindGroupProvider
}

// fakeDevice records every call the batcher makes and never touches a GPU.
type fakeDevice struct {
	pipelines     map[string]pipeline.Pipeline
	released      []string
	vertexInits   []map[int]uint64
	tableInits    int
	bindGroups    []bindGroupInit
	bufferWrites  []bind_group_provider.BufferWrite
	textureWrites []bind_group_provider.TextureWrite
	draws         []drawCall
	log           *[]string
}

var _ Device = (*fakeDevice)(nil)

func newFakeDevice() *fakeDevice {
	return &fakeDevice{pipelines: make(map[string]pipeline.Pipeline)}
}

// reset drops the recorded writes and draws.
func (f *fakeDevice) reset() {
	f.bufferWrites = nil
	f.textureWrites = nil
	f.draws = nil
}

func (f *fakeDevice) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	for _, p := range pipelines {
		f.pipelines[p.PipelineKey()] = p
	}
	return nil
}

func (f *fakeDevice) ReleasePipeline(key string) {
	delete(f.pipelines, key)
	f.released = append(f.released, key)
}

func (f *fakeDevice) InitVertexBuffers(_ bind_group_provider.BindGroupProvider, sizes map[int]uint64) error {
	f.vertexInits = append(f.vertexInits, sizes)
	return nil
}

func (f *fakeDevice) InitTableTexture(_ bind_group_provider.BindGroupProvider, _ int, _, _ uint32) error {
	f.tableInits++
	return nil
}

func (f *fakeDevice) InitBindGroup(provider bind_group_provider.BindGroupProvider, pipelineKey string, group int) error {
	f.bindGroups = append(f.bindGroups, bindGroupInit{provider: provider, key: pipelineKey, group: group})
	return nil
}

func (f *fakeDevice) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	f.bufferWrites = append(f.bufferWrites, writes...)
}

func (f *fakeDevice) WriteTextures(writes []bind_group_provider.TextureWrite) {
	f.textureWrites = append(f.textureWrites, writes...)
}

func (f *fakeDevice) DrawCall(pipelineKey string, _ bind_group_provider.BindGroupProvider, vertexCount, instanceCount uint32, bindGroups []bind_group_provider.BindGroupProvider) error {
	f.draws = append(f.draws, drawCall{key: pipelineKey, vertices: vertexCount, instances: instanceCount, groups: bindGroups})
	if f.log != nil {
		*f.log = append(*f.log, "draw "+pipelineKey)
	}
	return nil
}

// bufferBytes sums the recorded buffer write sizes.
func (f *fakeDevice) bufferBytes() int {
	n := 0
	for _, w := range f.bufferWrites {
		n += len(w.Data)
	}
	return n
}
