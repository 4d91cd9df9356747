package batch

import (
	"math/rand/v2"
	"testing"

	"github.com/Carmen-Shannon/oxy-batch/common"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/bind_group_provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frame runs one Update and Render of a pool against a fresh recording.
func frame(t *testing.T, p *InstancePool, dev *fakeDevice) PoolUpdate {
	t.Helper()
	dev.reset()
	u := p.Update()
	_, err := p.Render(dev, "flat", []bind_group_provider.BindGroupProvider{nil, nil})
	require.NoError(t, err)
	return u
}

func TestPoolFirstFrame(t *testing.T) {
	p := NewInstancePool("flat", flatInstanced(t), testConfig())
	dev := newFakeDevice()

	var handles []*InstanceHandle
	for i := range 3 {
		h, err := p.RegisterNewInstance(triangles(1, float32(i)), flatUniforms(float32(i)))
		require.NoError(t, err)
		handles = append(handles, h)
	}
	assert.Equal(t, []int{0, 1, 2}, []int{handles[0].ID(), handles[1].ID(), handles[2].ID()})
	assert.False(t, handles[0].PosUpToDate())

	u := frame(t, p, dev)
	assert.True(t, u.FullRewrite)
	assert.False(t, u.Resized)
	assert.Equal(t, 48, p.Capacity())
	assert.Equal(t, 27, p.HighWater())
	assert.Equal(t, 3, u.Alive)

	require.Len(t, dev.vertexInits, 1)
	assert.Equal(t, map[int]uint64{0: 16 * 12, 1: 16 * 4}, dev.vertexInits[0])
	assert.Equal(t, 1, dev.tableInits)
	require.Len(t, dev.bindGroups, 1)
	assert.Equal(t, 1, dev.bindGroups[0].group)

	require.Len(t, dev.draws, 1)
	assert.Equal(t, uint32(9), dev.draws[0].vertices)
	assert.Equal(t, uint32(1), dev.draws[0].instances)
	require.Len(t, dev.draws[0].groups, 2)
	assert.NotNil(t, dev.draws[0].groups[1])

	require.Len(t, dev.textureWrites, 1)
	rows := dev.textureWrites[0]
	assert.Equal(t, uint32(5), rows.Width)
	assert.Equal(t, uint32(3), rows.Height)
	table := common.BytesToSlice[float32](rows.Data)
	assert.Equal(t, float32(2), table[2*20+12])

	for _, h := range handles {
		assert.True(t, h.PosUpToDate())
	}
}

func TestPoolRegisterErrors(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCapacity = 96
	cfg.MaxInstances = 4
	p := NewInstancePool("flat", flatInstanced(t), cfg)

	_, err := p.RegisterNewInstance(VertexData{"position": nil}, nil)
	assert.ErrorIs(t, err, ErrNotDrawable)

	_, err = p.RegisterNewInstance(VertexData{"position": make([]float32, 10)}, nil)
	assert.ErrorIs(t, err, ErrInconsistentAttributes)

	_, err = p.RegisterNewInstance(triangles(1, 0), map[string]any{"color": "red"})
	assert.Error(t, err)
	assert.Equal(t, cfg.MaxInstances, p.FreeIDs())

	_, err = p.RegisterNewInstance(triangles(11, 0), nil)
	assert.ErrorIs(t, err, ErrPoolFull)

	for range 4 {
		_, err = p.RegisterNewInstance(triangles(1, 0), nil)
		require.NoError(t, err)
	}
	_, err = p.RegisterNewInstance(triangles(1, 0), nil)
	assert.ErrorIs(t, err, ErrPoolFull)
	assert.Equal(t, 0, p.FreeIDs())
}

func TestPoolStaleHandle(t *testing.T) {
	p := NewInstancePool("flat", flatInstanced(t), testConfig())
	other := NewInstancePool("other", flatInstanced(t), testConfig())

	h, err := p.RegisterNewInstance(triangles(1, 0), flatUniforms(0))
	require.NoError(t, err)

	assert.ErrorIs(t, other.Kill(h), ErrStaleHandle)
	require.NoError(t, p.Kill(h))
	assert.Equal(t, HandleDead, h.State())
	assert.ErrorIs(t, p.Kill(h), ErrStaleHandle)

	_, _, err = p.SetUniforms(h, flatUniforms(1))
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.ErrorIs(t, p.SetGeometry(h, triangles(1, 1)), ErrStaleHandle)

	p.Update()
	assert.Equal(t, HandleReclaimed, h.State())
	assert.Equal(t, testConfig().MaxInstances, p.FreeIDs())
}

func TestPoolSetUniformsFlags(t *testing.T) {
	p := NewInstancePool("flat", flatInstanced(t), testConfig())
	h, err := p.RegisterNewInstance(triangles(1, 0), flatUniforms(0))
	require.NoError(t, err)
	p.Update()

	appearance, transform, err := p.SetUniforms(h, flatUniforms(0))
	require.NoError(t, err)
	assert.False(t, appearance)
	assert.False(t, transform)

	appearance, transform, err = p.SetUniforms(h, map[string]any{"modelViewMatrix": translation(3)})
	require.NoError(t, err)
	assert.False(t, appearance)
	assert.True(t, transform)
	assert.True(t, h.TransformChanged())

	appearance, _, err = p.SetUniforms(h, map[string]any{"color": [4]float32{0, 0, 0, 1}, "unknown": 1})
	require.NoError(t, err)
	assert.True(t, appearance)
	assert.True(t, h.AppearanceChanged())

	_, _, err = p.SetUniforms(h, map[string]any{"color": 3})
	assert.Error(t, err)
}

func TestPoolSetGeometry(t *testing.T) {
	p := NewInstancePool("flat", flatInstanced(t), testConfig())
	dev := newFakeDevice()
	h, err := p.RegisterNewInstance(triangles(1, 0), flatUniforms(0))
	require.NoError(t, err)
	frame(t, p, dev)

	assert.ErrorIs(t, p.SetGeometry(h, triangles(2, 1)), ErrInconsistentAttributes)
	require.NoError(t, p.SetGeometry(h, triangles(1, 7)))

	u := frame(t, p, dev)
	assert.False(t, u.FullRewrite)
	assert.Equal(t, 9*4+3*4, u.VertexBytes)
	assert.Empty(t, dev.textureWrites)
	require.NotEmpty(t, dev.bufferWrites)
	assert.Equal(t, float32(7), common.BytesToSlice[float32](dev.bufferWrites[0].Data)[0])
}

func TestPoolGrowthRewritesContiguously(t *testing.T) {
	cfg := DefaultConfig()
	p := NewInstancePool("flat", flatInstanced(t), cfg)
	dev := newFakeDevice()

	for i := range 3 {
		_, err := p.RegisterNewInstance(triangles(1, float32(i)), flatUniforms(0))
		require.NoError(t, err)
	}
	frame(t, p, dev)
	assert.Equal(t, cfg.BaseSize, p.Capacity())

	big := VertexData{"position": make([]float32, 2001)}
	var handles []*InstanceHandle
	for range 10 {
		h, err := p.RegisterNewInstance(big, flatUniforms(0))
		require.NoError(t, err)
		handles = append(handles, h)
	}
	assert.Less(t, p.Available(), 0)

	u := frame(t, p, dev)
	assert.True(t, u.Resized)
	assert.True(t, u.FullRewrite)
	assert.Equal(t, common.CeilPow2Multiple(cfg.BaseSize, 27+20010), p.Capacity())
	assert.GreaterOrEqual(t, p.Available(), 0)
	assert.Len(t, dev.vertexInits, 2)

	pos := 27
	for i, h := range handles {
		assert.Equal(t, 3+i, h.ID())
		assert.Equal(t, pos, h.Position())
		pos += h.Length()
	}
	assert.Equal(t, pos, p.HighWater())
}

func TestPoolKillAndReuseWithoutRewrite(t *testing.T) {
	p := NewInstancePool("flat", flatInstanced(t), testConfig())
	dev := newFakeDevice()

	a, err := p.RegisterNewInstance(triangles(2, 1), flatUniforms(0))
	require.NoError(t, err)
	b, err := p.RegisterNewInstance(triangles(2, 2), flatUniforms(0))
	require.NoError(t, err)
	frame(t, p, dev)

	require.NoError(t, p.Kill(a))
	u := frame(t, p, dev)
	assert.False(t, u.Resized)
	assert.False(t, u.FullRewrite)
	assert.Equal(t, 1, u.Reclaimed)
	assert.Equal(t, 36, p.HighWater())

	require.NotEmpty(t, dev.bufferWrites)
	zero := dev.bufferWrites[0]
	assert.Equal(t, uint64(0), zero.Offset)
	assert.Len(t, zero.Data, 18*4)
	assert.Equal(t, make([]byte, 18*4), zero.Data)

	c, err := p.RegisterNewInstance(triangles(1, 3), flatUniforms(0))
	require.NoError(t, err)
	assert.Equal(t, 0, c.ID())
	assert.Equal(t, 0, c.Position())

	u = frame(t, p, dev)
	assert.False(t, u.Resized)
	assert.False(t, u.FullRewrite)
	assert.Equal(t, 1, b.ID())
	assert.Equal(t, 18, b.Position())
	assert.Equal(t, 9*4+3*4, u.VertexBytes)
	assert.Equal(t, 20*4, u.TableBytes)
}

func TestPoolHighWaterDrops(t *testing.T) {
	p := NewInstancePool("flat", flatInstanced(t), testConfig())
	dev := newFakeDevice()
	a, _ := p.RegisterNewInstance(triangles(1, 0), nil)
	b, _ := p.RegisterNewInstance(triangles(1, 0), nil)
	frame(t, p, dev)

	require.NoError(t, p.Kill(b))
	frame(t, p, dev)
	assert.Equal(t, 9, p.HighWater())
	require.Len(t, dev.draws, 1)
	assert.Equal(t, uint32(3), dev.draws[0].vertices)

	require.NoError(t, p.Kill(a))
	frame(t, p, dev)
	assert.Equal(t, 0, p.HighWater())
	assert.Empty(t, dev.draws)
}

func TestPoolShrinks(t *testing.T) {
	p := NewInstancePool("flat", flatInstanced(t), testConfig())
	dev := newFakeDevice()

	var handles []*InstanceHandle
	for range 20 {
		h, err := p.RegisterNewInstance(triangles(1, 0), nil)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	frame(t, p, dev)
	assert.Equal(t, 192, p.Capacity())

	for _, h := range handles[:16] {
		require.NoError(t, p.Kill(h))
	}
	u := frame(t, p, dev)
	assert.True(t, u.Resized)
	assert.True(t, u.FullRewrite)
	assert.Equal(t, 48, p.Capacity())
	for i, h := range handles[16:] {
		assert.Equal(t, i, h.ID())
		assert.Equal(t, i*9, h.Position())
	}
}

func TestPoolTransformOnlyFrames(t *testing.T) {
	p := NewInstancePool("flat", flatInstanced(t), testConfig())
	dev := newFakeDevice()

	var handles []*InstanceHandle
	for i := range 3 {
		h, err := p.RegisterNewInstance(triangles(1, 0), flatUniforms(float32(i)))
		require.NoError(t, err)
		handles = append(handles, h)
	}
	frame(t, p, dev)

	moving := handles[1]
	for i := range 100 {
		_, _, err := p.SetUniforms(moving, map[string]any{"modelViewMatrix": translation(float32(i + 10))})
		require.NoError(t, err)
		u := frame(t, p, dev)

		assert.False(t, u.FullRewrite)
		assert.Zero(t, u.VertexBytes)
		assert.Empty(t, dev.bufferWrites)
		require.Len(t, dev.textureWrites, 1)
		w := dev.textureWrites[0]
		assert.Equal(t, uint32(0), w.X)
		assert.Equal(t, uint32(moving.ID()), w.Y)
		assert.Equal(t, uint32(4), w.Width)
		assert.Equal(t, uint32(1), w.Height)
		assert.Equal(t, float32(i+10), common.BytesToSlice[float32](w.Data)[12])
	}
}

func TestPoolCoalescesAdjacentRegistrations(t *testing.T) {
	p := NewInstancePool("flat", flatInstanced(t), testConfig())
	dev := newFakeDevice()
	_, _ = p.RegisterNewInstance(triangles(1, 0), flatUniforms(0))
	frame(t, p, dev)

	for range 3 {
		_, err := p.RegisterNewInstance(triangles(1, 1), flatUniforms(1))
		require.NoError(t, err)
	}
	u := frame(t, p, dev)
	assert.False(t, u.FullRewrite)
	// one write per attribute buffer plus the id buffer, one for the rows
	assert.Len(t, dev.bufferWrites, 2)
	assert.Equal(t, uint64(3*12), dev.bufferWrites[0].Offset)
	require.Len(t, dev.textureWrites, 1)
	assert.Equal(t, uint32(1), dev.textureWrites[0].Y)
	assert.Equal(t, uint32(3), dev.textureWrites[0].Height)
}

func TestPoolInvariantsUnderChurn(t *testing.T) {
	cfg := testConfig()
	p := NewInstancePool("flat", flatInstanced(t), cfg)
	dev := newFakeDevice()
	rng := rand.New(rand.NewPCG(1, 2))

	var alive []*InstanceHandle
	for range 200 {
		for range rng.IntN(6) {
			h, err := p.RegisterNewInstance(triangles(1+rng.IntN(3), 1), flatUniforms(0))
			if err != nil {
				require.ErrorIs(t, err, ErrPoolFull)
				continue
			}
			alive = append(alive, h)
		}
		for range rng.IntN(5) {
			if len(alive) == 0 {
				break
			}
			i := rng.IntN(len(alive))
			require.NoError(t, p.Kill(alive[i]))
			alive = append(alive[:i], alive[i+1:]...)
		}

		frame(t, p, dev)

		assert.True(t, common.IsPow2Multiple(cfg.BaseSize, p.Capacity()))
		assert.GreaterOrEqual(t, p.Available(), 0)
		assert.Zero(t, p.DeadFloats())
		assert.LessOrEqual(t, p.HighWater(), p.Capacity())
		assert.Equal(t, cfg.MaxInstances-len(alive), p.FreeIDs())
		assert.Equal(t, len(alive), p.Len())

		ids := make(map[int]bool)
		spans := make([]common.Span, 0, len(alive))
		for _, h := range alive {
			assert.False(t, ids[h.ID()], "id %d reused", h.ID())
			ids[h.ID()] = true
			assert.True(t, h.PosUpToDate())
			spans = append(spans, common.Span{Start: h.Position(), End: h.Position() + h.Length()})
		}
		total := 0
		for _, s := range common.MergeSpans(spans) {
			total += s.Len()
		}
		assert.Equal(t, p.LiveFloats(), total, "ranges overlap")
	}
}

func TestPoolRelease(t *testing.T) {
	p := NewInstancePool("flat", flatInstanced(t), testConfig())
	h, err := p.RegisterNewInstance(triangles(1, 0), nil)
	require.NoError(t, err)
	p.Release()
	assert.Equal(t, HandleReclaimed, h.State())
	assert.Zero(t, p.Len())
}
