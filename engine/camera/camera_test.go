package camera

import (
	"testing"

	"cogentcore.org/core/math32"
	"github.com/Carmen-Shannon/oxy-batch/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCameraDefaults(t *testing.T) {
	c := NewCamera()
	assert.InDelta(t, 10, c.Position().Z, 1e-5)
	assert.Equal(t, float32(45), c.Fov())
	assert.NotNil(t, c.BindGroupProvider())

	// the target sits on the view axis in front of the eye
	view := c.ViewMatrix()
	target := c.Target().MulMatrix4(&view)
	assert.InDelta(t, 0, target.X, 1e-4)
	assert.InDelta(t, 0, target.Y, 1e-4)
	assert.InDelta(t, -10, target.Z, 1e-4)
}

func TestCameraOrbitKeepsRadius(t *testing.T) {
	c := NewCamera(WithTarget(1, 2, 3), WithOrbit(5, 0, 0))
	c.Orbit(math32.Pi/2, 0)
	pos := c.Position()
	assert.InDelta(t, 6, pos.X, 1e-4)
	assert.InDelta(t, 3, pos.Z, 1e-4)
	assert.InDelta(t, 5, pos.Sub(c.Target()).Length(), 1e-4)

	c.Orbit(0, 10)
	assert.Less(t, c.Position().Y-2, float32(5))
	assert.Greater(t, c.Position().Y-2, float32(4.99))
}

func TestCameraZoomClamps(t *testing.T) {
	c := NewCamera(WithRadiusBounds(2, 20))
	c.Zoom(0.01)
	assert.Equal(t, float32(2), c.Radius())
	c.Zoom(1000)
	assert.Equal(t, float32(20), c.Radius())
}

func TestCameraWrites(t *testing.T) {
	c := NewCamera(WithAspect(2))
	writes := c.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, ProjectionBinding, writes[0].Binding)
	assert.Equal(t, ViewBinding, writes[1].Binding)
	assert.Same(t, c.BindGroupProvider(), writes[0].Provider)

	projection := c.ProjectionMatrix()
	assert.Equal(t, projection[:], common.BytesToSlice[float32](writes[0].Data))
	assert.Len(t, writes[1].Data, 64)

	c.SetAspect(0)
	assert.Equal(t, float32(2), c.Aspect())
}
