package renderer

import "github.com/cogentcore/webgpu/wgpu"

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU backend.
	BackendTypeWGPU RendererBackendType = iota
)

// PresentMode controls how frames reach the display.
type PresentMode int

const (
	// PresentModeVSync presents on vertical blank.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents immediately. Batch benchmarks run in this mode.
	PresentModeUncapped
)

// surfaceMode maps a PresentMode to the wgpu present mode. Unknown modes present immediately.
func (m PresentMode) surfaceMode() wgpu.PresentMode {
	if m == PresentModeVSync {
		return wgpu.PresentModeFifo
	}
	return wgpu.PresentModeImmediate
}

// MSAASampleCount is the sample count of the main render pass. Batch pipelines are created with
// the same count.
type MSAASampleCount uint32

const (
	// MSAAOff renders with one sample.
	MSAAOff MSAASampleCount = 1

	// MSAA4x is the default, the only multisample count WebGPU guarantees.
	MSAA4x MSAASampleCount = 4
)

// normalize returns the count itself when WebGPU guarantees it, and MSAA4x otherwise.
func (c MSAASampleCount) normalize() MSAASampleCount {
	if c == MSAAOff {
		return MSAAOff
	}
	return MSAA4x
}

// RendererBackend is the backend interface of the Renderer, currently the wgpu one.
type RendererBackend interface {
	wgpuRendererBackend
}
