package renderer

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
)

func TestPresentModeSurfaceMode(t *testing.T) {
	assert.Equal(t, wgpu.PresentModeFifo, PresentModeVSync.surfaceMode())
	assert.Equal(t, wgpu.PresentModeImmediate, PresentModeUncapped.surfaceMode())
	assert.Equal(t, wgpu.PresentModeImmediate, PresentMode(7).surfaceMode())
}

func TestMSAASampleCountNormalize(t *testing.T) {
	assert.Equal(t, MSAAOff, MSAAOff.normalize())
	assert.Equal(t, MSAA4x, MSAA4x.normalize())
	assert.Equal(t, MSAA4x, MSAASampleCount(8).normalize())
	assert.Equal(t, MSAA4x, MSAASampleCount(0).normalize())
}
