package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDSetLowestFree(t *testing.T) {
	s := newIDSet(130)
	for want := range 130 {
		assert.Equal(t, want, s.acquire())
	}
	assert.Equal(t, -1, s.acquire())
	assert.Equal(t, 0, s.free())

	s.release(64)
	s.release(3)
	s.release(3)
	s.release(500)
	assert.Equal(t, 2, s.free())
	assert.Equal(t, 3, s.acquire())
	assert.Equal(t, 64, s.acquire())
	assert.True(t, s.has(129))
	assert.False(t, s.has(130))

	s.reset()
	assert.Equal(t, 130, s.free())
	assert.Equal(t, 0, s.acquire())
}

func TestHandleStateString(t *testing.T) {
	assert.Equal(t, "unregistered", HandleUnregistered.String())
	assert.Equal(t, "alive", HandleAlive.String())
	assert.Equal(t, "dead", HandleDead.String())
	assert.Equal(t, "reclaimed", HandleReclaimed.String())
	assert.Equal(t, "unknown", HandleState(9).String())
}

func TestHandleDirtyFlags(t *testing.T) {
	var h InstanceHandle
	assert.False(t, h.Alive())
	assert.Equal(t, HandleUnregistered, h.State())

	h.length = 12
	h.appearanceChanged = true
	h.geometryChanged = true
	assert.Equal(t, 4, h.vertices(3))

	h.clearDirty()
	assert.True(t, h.PosUpToDate())
	assert.False(t, h.AppearanceChanged())
	assert.False(t, h.TransformChanged())
}

func TestFeatureString(t *testing.T) {
	assert.Equal(t, "texture", FeatureTexture.String())
	assert.Equal(t, "labels", FeatureLabels.String())
	assert.Equal(t, "feature(0x40)", Feature(0x40).String())
	assert.Equal(t, "7#2", ObjectID{Index: 7, Generation: 2}.String())
}
