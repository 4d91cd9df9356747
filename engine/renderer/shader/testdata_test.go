package shader

const testVertex = `struct VertexInput {
    @location(0) position: vec3f,
    @location(1) normal: vec3f,
};

struct VertexOutput {
    @builtin(position) clip: vec4f,
    @location(0) color: vec4f,
};

@group(0) @binding(0) var<uniform> projectionMatrix: mat4x4f;
@group(1) @binding(0) var<uniform> modelViewMatrix: mat4x4f;
@group(1) @binding(1) var<uniform> diffuse: vec4f;
// @group(1) @binding(2) var<uniform> commented: vec4f;

@vertex
fn vs_main(in: VertexInput) -> VertexOutput {
    var out: VertexOutput;
    out.clip = projectionMatrix * modelViewMatrix * vec4f(in.position, 1.0);
    out.color = diffuse * max(dot(in.normal, vec3f(0.0, 0.0, 1.0)), 0.2);
    return out;
}
`

const testFragment = `struct FragmentInput {
    @location(0) color: vec4f,
};

@group(1) @binding(2) var<uniform> shininess: f32;
@group(1) @binding(3) var<uniform> lit: bool;
@group(1) @binding(4) var<uniform> diffuse: vec4f;
@group(1) @binding(5) var<uniform> count: i32;
@group(2) @binding(0) var diffuseTexture: texture_2d<f32>;
@group(2) @binding(1) var diffuseSampler: sampler;

/* the table uniforms above are per object */
@fragment
fn fs_main(in: FragmentInput) -> @location(0) vec4f {
    if (lit) {
        return in.color * shininess * f32(count);
    }
    return in.color;
}
`

func testTemplate() *Template {
	return NewTemplate("lit", testVertex, testFragment)
}
