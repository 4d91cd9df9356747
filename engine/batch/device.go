package batch

import (
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/pipeline"
)

// Device is the part of renderer.Renderer the batcher draws through.
type Device interface {
	// RegisterPipelines creates the GPU pipelines and caches them by key.
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// ReleasePipeline drops a cached pipeline and its GPU objects.
	ReleasePipeline(key string)

	// InitVertexBuffers creates zeroed vertex buffers of the given byte sizes, keyed by slot.
	InitVertexBuffers(provider bind_group_provider.BindGroupProvider, sizes map[int]uint64) error

	// InitTableTexture creates an RGBA32Float table texture of widthTexels x rows.
	InitTableTexture(provider bind_group_provider.BindGroupProvider, binding int, widthTexels, rows uint32) error

	// InitBindGroup creates the bind group of a provider against a group of a registered pipeline.
	InitBindGroup(provider bind_group_provider.BindGroupProvider, pipelineKey string, group int) error

	// WriteBuffers uploads staged buffer writes.
	WriteBuffers(writes []bind_group_provider.BufferWrite)

	// WriteTextures uploads staged texel rectangles.
	WriteTextures(writes []bind_group_provider.TextureWrite)

	// DrawCall encodes one non-indexed draw.
	DrawCall(pipelineKey string, vertexProvider bind_group_provider.BindGroupProvider, vertexCount, instanceCount uint32, bindGroups []bind_group_provider.BindGroupProvider) error
}

// FallbackRenderer draws the objects the batcher did not take, after every batched draw.
type FallbackRenderer interface {
	// RenderFallback draws objects individually.
	//
	// Parameters:
	//   - objects: the frame's fallback list, in dispatch order
	//
	// Returns:
	//   - error: a drawing error
	RenderFallback(objects []Renderable) error
}

// FallbackRendererFunc adapts a function to a FallbackRenderer.
type FallbackRendererFunc func(objects []Renderable) error

// RenderFallback calls f(objects).
func (f FallbackRendererFunc) RenderFallback(objects []Renderable) error {
	return f(objects)
}
