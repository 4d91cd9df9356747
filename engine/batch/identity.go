// Package batch draws many small objects that share a shading template with one instanced draw
// per pool. Objects are reported every frame; the package diffs them against the previous frame,
// packs their vertices into pooled GPU buffers and their uniforms into rows of a float table
// texture read by shaders rewritten with shader.Transformer.
package batch

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/shader"
)

// ObjectID identifies a scene object across frames. Generation distinguishes objects that reuse
// the same arena slot.
type ObjectID struct {
	Index      uint32
	Generation uint32
}

func (id ObjectID) String() string {
	return fmt.Sprintf("%d#%d", id.Index, id.Generation)
}

// VertexData holds per-vertex float arrays keyed by the vertex attribute name of the template.
type VertexData map[string][]float32

// Feature is a bitmask of per-object display features.
type Feature uint32

const (
	// FeatureTexture marks objects that sample their shading identity's texture.
	FeatureTexture Feature = 1 << iota
	// FeatureReflectionMap marks objects that sample their shading identity's reflection map.
	FeatureReflectionMap
	// FeatureEdges marks objects that also draw their edges.
	FeatureEdges
	// FeatureVertices marks objects that also draw their vertices as points.
	FeatureVertices
	// FeatureLabels marks objects carrying text labels.
	FeatureLabels

	featureEnd
)

func (f Feature) String() string {
	switch f {
	case FeatureTexture:
		return "texture"
	case FeatureReflectionMap:
		return "reflection-map"
	case FeatureEdges:
		return "edges"
	case FeatureVertices:
		return "vertices"
	case FeatureLabels:
		return "labels"
	default:
		return fmt.Sprintf("feature(%#x)", uint32(f))
	}
}

// ShadingIdentity is the batching key: objects with equal identities share a group, a pipeline
// and its bind groups. Template, Texture and ReflectionMap compare by pointer.
type ShadingIdentity struct {
	Template      *shader.Template
	Texture       bind_group_provider.BindGroupProvider
	ReflectionMap bind_group_provider.BindGroupProvider
}

// Capabilities describes what the instanced shaders of a ShadingIdentity can draw.
type Capabilities struct {
	// Textured is set when the shaders sample a 2D texture.
	Textured bool
	// Reflective is set when the shaders sample a cube reflection map.
	Reflective bool
}

// capabilitiesOf derives the Capabilities of an instanced shader pair.
func capabilitiesOf(in *shader.Instanced) Capabilities {
	return Capabilities{
		Textured:   in.TextureGroup >= 0,
		Reflective: in.ReflectionGroup >= 0,
	}
}

// Renderable is one object reported by the scene for the current frame.
type Renderable struct {
	ID       ObjectID
	Identity ShadingIdentity
	Features Feature

	// Geometry holds the vertex attributes, keyed by attribute name.
	Geometry VertexData
	// GeometryVersion changes whenever Geometry changes in place.
	GeometryVersion uint64

	// Uniforms holds the values of the template's per-object uniforms, keyed by WGSL name.
	Uniforms map[string]any
}
