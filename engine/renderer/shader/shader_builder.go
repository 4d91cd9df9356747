package shader

import "github.com/cogentcore/webgpu/wgpu"

// ShaderBuilderOption is a functional option for configuring a Shader during NewShader.
type ShaderBuilderOption func(*shader)

// WithVertexLayouts sets the vertex buffer layouts explicitly instead of deriving them from the
// entry point inputs. Only meaningful for vertex shaders.
//
// Parameters:
//   - layouts: the layouts indexed by vertex buffer slot
//
// Returns:
//   - ShaderBuilderOption: a function that applies the layouts to the shader
func WithVertexLayouts(layouts []wgpu.VertexBufferLayout) ShaderBuilderOption {
	return func(s *shader) {
		s.vertexLayouts = layouts
	}
}

// WithUnfilterableTexture marks a texture variable as sampled with an unfilterable float sample
// type, which 32-bit float formats read only through textureLoad require.
//
// Parameters:
//   - varName: the WGSL name of the texture variable
//
// Returns:
//   - ShaderBuilderOption: a function that records the variable on the shader
func WithUnfilterableTexture(varName string) ShaderBuilderOption {
	return func(s *shader) {
		s.unfilterable[varName] = true
	}
}
