package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceBytesRoundTrip(t *testing.T) {
	in := []float32{1, -2.5, 3e7, 0}
	b := SliceToBytes(in)
	require.Len(t, b, 16)
	assert.Equal(t, in, BytesToSlice[float32](b))
	assert.Nil(t, BytesToSlice[float32]([]byte{1, 2}))
	assert.Nil(t, SliceToBytes([]uint32{}))
}

func TestCeilPow2Multiple(t *testing.T) {
	assert.Equal(t, 4096, CeilPow2Multiple(4096, 10))
	assert.Equal(t, 4096, CeilPow2Multiple(4096, 4096))
	assert.Equal(t, 8192, CeilPow2Multiple(4096, 4097))
	assert.Equal(t, 32768, CeilPow2Multiple(4096, 20010))

	assert.True(t, IsPow2Multiple(4096, 16384))
	assert.False(t, IsPow2Multiple(4096, 12288))
	assert.False(t, IsPow2Multiple(4096, 2048))
}

func TestCheckerTexture(t *testing.T) {
	tex := CheckerTexture(4, 2, [4]byte{255, 255, 255, 255}, [4]byte{0, 0, 0, 255})
	require.Len(t, tex.Pixels, 4*4*4)
	assert.Equal(t, byte(255), tex.Pixels[0])
	// pixel (2,0) falls in the second cell
	assert.Equal(t, byte(0), tex.Pixels[2*4])
}
