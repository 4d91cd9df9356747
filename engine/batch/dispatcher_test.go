package batch

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingTransformer counts the templates it is asked to transform.
type countingTransformer struct {
	shader.Transformer
	calls int
}

func (c *countingTransformer) Transform(t *shader.Template) (*shader.Instanced, error) {
	c.calls++
	return c.Transformer.Transform(t)
}

func newTestDispatcher(t *testing.T, dev *fakeDevice, options ...DispatcherBuilderOption) *Dispatcher {
	t.Helper()
	options = append([]DispatcherBuilderOption{
		WithConfig(testConfig()),
		WithSharedBindGroup(0, bind_group_provider.NewBindGroupProvider("camera")),
	}, options...)
	d, err := NewDispatcher(options...)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close(dev) })
	return d
}

func object(index uint32, tmpl *shader.Template, tris int) Renderable {
	r := flatObject(index, tris)
	r.Identity = ShadingIdentity{Template: tmpl}
	return r
}

func TestNewDispatcherRejectsConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ShrinkRatio = 1
	_, err := NewDispatcher(WithConfig(cfg))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDispatchRoutesFallback(t *testing.T) {
	dev := newFakeDevice()
	var log []string
	dev.log = &log
	d := newTestDispatcher(t, dev, WithFallbackRenderer(FallbackRendererFunc(func(objects []Renderable) error {
		log = append(log, fmt.Sprintf("fallback %d", len(objects)))
		return nil
	})))
	flat := shader.NewTemplate("flat", flatVertex, flatFragment)

	batched := object(0, flat, 1)
	noTemplate := flatObject(1, 1)
	edges := object(2, flat, 1)
	edges.Features = FeatureEdges
	large := object(3, flat, 22)
	textured := object(4, flat, 1)
	textured.Features = FeatureTexture
	unknown := object(5, flat, 1)
	unknown.Features = Feature(1 << 10)

	require.NoError(t, d.Dispatch([]Renderable{batched, noTemplate, edges, large, textured, unknown}))

	var fallback []uint32
	for _, r := range d.Fallback() {
		fallback = append(fallback, r.ID.Index)
	}
	assert.Equal(t, []uint32{1, 2, 3, 4, 5}, fallback)
	require.Len(t, d.Groups(), 1)
	assert.Equal(t, "batch/flat/0", d.Groups()[0].Key())

	stats := d.Stats()
	assert.Equal(t, 1, stats.Groups)
	assert.Equal(t, 1, stats.Resident)
	assert.Equal(t, 5, stats.Fallback)

	require.NoError(t, d.RenderAll(dev))
	assert.Equal(t, []string{"draw batch/flat/0", "fallback 5"}, log)
	assert.Equal(t, 1, d.Stats().Draws)

	// the fallback list is rebuilt every frame
	require.NoError(t, d.Dispatch([]Renderable{batched}))
	assert.Empty(t, d.Fallback())
}

func TestDispatchRejectsRepeatedObjects(t *testing.T) {
	dev := newFakeDevice()
	d := newTestDispatcher(t, dev)
	a := shader.NewTemplate("a", flatVertex, flatFragment)
	b := shader.NewTemplate("b", flatVertex, flatFragment)

	require.NoError(t, d.Dispatch([]Renderable{object(7, a, 1), object(7, b, 1), flatObject(7, 1)}))
	assert.Equal(t, 2, d.Stats().Skipped)
	assert.Equal(t, 1, d.Stats().Resident)
	assert.Empty(t, d.Fallback())
	require.Len(t, d.Groups(), 1)
	g, ok := d.Group(ShadingIdentity{Template: a})
	require.True(t, ok)
	_, ok = g.Handle(ObjectID{Index: 7})
	assert.True(t, ok)

	// the first occurrence wins, also when it is a fallback object
	require.NoError(t, d.Dispatch([]Renderable{flatObject(7, 1), object(7, a, 1)}))
	assert.Equal(t, 1, d.Stats().Skipped)
	assert.Zero(t, d.Stats().Resident)
	assert.Len(t, d.Fallback(), 1)
	_, ok = g.Handle(ObjectID{Index: 7})
	assert.False(t, ok)

	// another generation is another object
	next := object(7, a, 1)
	next.ID.Generation = 1
	require.NoError(t, d.Dispatch([]Renderable{object(7, a, 1), next}))
	assert.Zero(t, d.Stats().Skipped)
	assert.Equal(t, 2, d.Stats().Resident)
}

func TestDispatchLargestEligibleObjectFits(t *testing.T) {
	dev := newFakeDevice()
	cfg := testConfig()
	cfg.MaxCapacity = cfg.BaseSize * 2
	cfg.MaxVertices = cfg.MaxCapacity / 4
	d := newTestDispatcher(t, dev, WithConfig(cfg))
	flat := shader.NewTemplate("flat", flatVertex, flatFragment)

	// 8 triangles are exactly MaxVertices vertices
	require.NoError(t, d.Dispatch([]Renderable{object(0, flat, 8)}))
	assert.Zero(t, d.Stats().Skipped)
	assert.Equal(t, 1, d.Stats().Resident)
	assert.Empty(t, d.Fallback())

	require.NoError(t, d.Dispatch([]Renderable{object(0, flat, 8), object(1, flat, 9)}))
	assert.Equal(t, 1, d.Stats().Resident)
	assert.Len(t, d.Fallback(), 1)
}

func TestDispatchConfigErrors(t *testing.T) {
	dev := newFakeDevice()
	counter := &countingTransformer{Transformer: shader.NewTransformer()}
	d := newTestDispatcher(t, dev, WithTransformer(counter))

	flat := shader.NewTemplate("flat", flatVertex, flatFragment)
	broken := shader.NewTemplate("mat3", strings.Replace(flatVertex, "var<uniform> color: vec4f", "var<uniform> color: mat3x3f", 1), flatFragment)
	objects := []Renderable{object(0, broken, 1), object(1, flat, 1), object(2, broken, 1)}

	err := d.Dispatch(objects)
	require.ErrorIs(t, err, shader.ErrUnsupportedUniform)
	assert.Equal(t, 1, strings.Count(err.Error(), "template mat3"))
	assert.Equal(t, 2, d.Stats().Skipped)
	assert.Equal(t, 1, d.Stats().Resident)
	assert.Equal(t, 2, counter.calls)

	err = d.Dispatch(objects)
	assert.ErrorIs(t, err, shader.ErrUnsupportedUniform)
	assert.Equal(t, 2, counter.calls)

	// a template absent for a frame is transformed again
	require.NoError(t, d.Dispatch(objects[1:2]))
	require.Error(t, d.Dispatch(objects))
	assert.Equal(t, 3, counter.calls)
}

func TestDispatchTextures(t *testing.T) {
	dev := newFakeDevice()
	d := newTestDispatcher(t, dev)
	tex := shader.NewTemplate("tex", flatVertex, texturedFragment)

	in, err := d.Instanced(tex)
	require.NoError(t, err)
	assert.Equal(t, Capabilities{Textured: true}, capabilitiesOf(in))

	missing := object(0, tex, 1)
	missing.Features = FeatureTexture
	require.NoError(t, d.Dispatch([]Renderable{missing}))
	assert.Empty(t, d.Groups())
	assert.Equal(t, 1, d.Stats().Skipped)

	checker := bind_group_provider.NewBindGroupProvider("checker")
	marble := bind_group_provider.NewBindGroupProvider("marble")
	a := object(1, tex, 1)
	a.Identity.Texture = checker
	b := object(2, tex, 1)
	b.Identity.Texture = checker
	c := object(3, tex, 1)
	c.Identity.Texture = marble
	require.NoError(t, d.Dispatch([]Renderable{a, b, c}))
	require.Len(t, d.Groups(), 2)

	g, ok := d.Group(ShadingIdentity{Template: tex, Texture: checker})
	require.True(t, ok)
	assert.Equal(t, 2, g.Resident())

	require.NoError(t, d.RenderAll(dev))
	require.Len(t, dev.draws, 2)
	assert.Same(t, checker, dev.draws[0].groups[in.TextureGroup])
	assert.Same(t, marble, dev.draws[1].groups[in.TextureGroup])

	var textureInits int
	for _, bg := range dev.bindGroups {
		if bg.group == in.TextureGroup {
			textureInits++
		}
	}
	assert.Equal(t, 2, textureInits)
}

func TestDispatchReleasesIdleGroups(t *testing.T) {
	dev := newFakeDevice()
	d := newTestDispatcher(t, dev)
	flat := shader.NewTemplate("flat", flatVertex, flatFragment)

	require.NoError(t, d.Dispatch([]Renderable{object(0, flat, 1)}))
	require.NoError(t, d.RenderAll(dev))

	for range testConfig().IdleFrames - 1 {
		require.NoError(t, d.Dispatch(nil))
		require.NoError(t, d.RenderAll(dev))
		assert.Len(t, d.Groups(), 1)
	}
	require.NoError(t, d.Dispatch(nil))
	assert.Empty(t, d.Groups())
	assert.Empty(t, dev.released)

	require.NoError(t, d.RenderAll(dev))
	assert.Equal(t, []string{"batch/flat/0"}, dev.released)

	require.NoError(t, d.Dispatch([]Renderable{object(0, flat, 1)}))
	require.Len(t, d.Groups(), 1)
	assert.Equal(t, "batch/flat/1", d.Groups()[0].Key())
}

func TestDispatchManyGroups(t *testing.T) {
	dev := newFakeDevice()
	d := newTestDispatcher(t, dev, WithWorkers(4))

	var objects []Renderable
	for i := range 6 {
		tmpl := shader.NewTemplate(fmt.Sprintf("flat%d", i), flatVertex, flatFragment)
		for j := range 10 {
			objects = append(objects, object(uint32(i*10+j), tmpl, 1))
		}
	}

	for range 3 {
		require.NoError(t, d.Dispatch(objects))
		require.NoError(t, d.RenderAll(dev))
	}
	stats := d.Stats()
	assert.Equal(t, 6, stats.Groups)
	assert.Equal(t, 60, stats.Resident)
	assert.Equal(t, 6, stats.Draws)
	assert.Zero(t, stats.Added)
	assert.Len(t, dev.pipelines, 6)
}
