package shader

import (
	"fmt"
	"sort"
)

// Instanced is the result of transforming a Template: a vertex/fragment pair that reads its
// per-object uniforms from row `instance id` of a shared float table texture.
type Instanced struct {
	// Template is the source template.
	Template *Template

	// Vertex and Fragment are the rewritten stages.
	Vertex   Shader
	Fragment Shader

	// Layout places every table uniform within a row.
	Layout UniformLayout

	// TableGroup is the bind group of the instance table texture (binding 0), or -1 when the
	// template has no table uniforms.
	TableGroup int

	// Attributes are the float vertex inputs, one vertex buffer slot each, in slot order.
	// The instance id buffer occupies the slot after the last attribute.
	Attributes []VertexAttribute

	// TextureGroup is the bind group of the first texture_2d the stages sample, or -1.
	TextureGroup int

	// ReflectionGroup is the bind group of the first texture_cube the stages sample, or -1.
	ReflectionGroup int
}

// InstanceIDSlot returns the vertex buffer slot that carries the per-vertex instance id.
func (in *Instanced) InstanceIDSlot() int { return len(in.Attributes) }

// SharedGroups returns the bind groups the stages still declare other than the table, texture
// and reflection groups, in ascending order. These are bound from shared providers such as the camera.
func (in *Instanced) SharedGroups() []int {
	seen := make(map[int]bool)
	for _, s := range []Shader{in.Vertex, in.Fragment} {
		for g := range s.BindGroupLayoutDescriptors() {
			if g != in.TableGroup && g != in.TextureGroup && g != in.ReflectionGroup {
				seen[g] = true
			}
		}
	}
	out := make([]int, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Ints(out)
	return out
}

// transformer is the implementation of the Transformer interface.
type transformer struct {
	externalGlobals    map[string]bool
	reservedPrefix     string
	instanceIDLocation int
}

// Transformer compiles Templates into Instanced shader pairs.
type Transformer interface {
	// Transform rewrites a template so that one pipeline can draw many objects, each reading its
	// uniforms from its own row of the instance table. The result is deterministic: transforming
	// the same template twice yields identical layouts and sources.
	//
	// Parameters:
	//   - t: the template to transform
	//
	// Returns:
	//   - *Instanced: the rewritten shaders and the table layout
	//   - error: a configuration error (ErrMissingEntryPoint, ErrUnsupportedUniform,
	//     ErrUniformKindMismatch, ErrUnsupportedEntryPoint, ErrUnsupportedAttribute)
	Transform(t *Template) (*Instanced, error)

	// IsExternalGlobal reports whether a uniform name stays an ordinary bound uniform.
	//
	// Parameters:
	//   - name: a WGSL variable name
	//
	// Returns:
	//   - bool: true for reserved-prefix names and configured external globals
	IsExternalGlobal(name string) bool
}

var _ Transformer = &transformer{}

// DefaultExternalGlobals are the uniform names supplied by the frame rather than by each object.
var DefaultExternalGlobals = []string{"projection", "projectionMatrix", "view", "viewMatrix", "camera", "textureMatrix"}

// NewTransformer creates a Transformer. By default names prefixed "sys_" and DefaultExternalGlobals
// stay ordinary uniforms and the instance id is read from @location(15).
//
// Parameters:
//   - options: optional TransformerBuilderOption functions
//
// Returns:
//   - Transformer: the configured transformer
func NewTransformer(options ...TransformerBuilderOption) Transformer {
	t := &transformer{
		externalGlobals:    make(map[string]bool),
		reservedPrefix:     "sys_",
		instanceIDLocation: 15,
	}
	for _, name := range DefaultExternalGlobals {
		t.externalGlobals[name] = true
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

func (t *transformer) IsExternalGlobal(name string) bool {
	return !t.isTableUniform(bindingDecl{name: name, addressSpace: "uniform"})
}

// name returns a generated identifier in the reserved namespace.
func (t *transformer) name(suffix string) string {
	return t.reservedPrefix + suffix
}

func (t *transformer) Transform(tmpl *Template) (*Instanced, error) {
	vs, err := t.parseStage(tmpl.Name, tmpl.Vertex, ShaderTypeVertex)
	if err != nil {
		return nil, err
	}
	fs, err := t.parseStage(tmpl.Name, tmpl.Fragment, ShaderTypeFragment)
	if err != nil {
		return nil, err
	}

	descs, err := mergeDescriptors(tmpl.Name, vs, fs)
	if err != nil {
		return nil, err
	}
	layout := newUniformLayout(descs)

	attrs, err := parseVertexAttributes(vs.masked, vs.entry)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", tmpl.Name, err)
	}
	if len(attrs) == 0 {
		return nil, fmt.Errorf("%w: template %q has no vertex inputs", ErrUnsupportedAttribute, tmpl.Name)
	}
	for _, a := range attrs {
		if a.Location == t.instanceIDLocation {
			return nil, fmt.Errorf("%w: %q uses @location(%d) reserved for the instance id in template %q",
				ErrUnsupportedAttribute, a.Name, a.Location, tmpl.Name)
		}
	}

	tableGroup := -1
	if layout.Footprint > 0 {
		tableGroup = lowestFreeGroup(vs, fs)
	}

	var forward *parsedStruct
	varyingLoc := 0
	if len(fs.table) > 0 {
		st, ok := findStruct(vs.structs, vs.entry.returnType)
		if !ok {
			return nil, fmt.Errorf("%w: vertex entry %q of template %q must return a struct to forward the instance id",
				ErrUnsupportedEntryPoint, vs.entry.name, tmpl.Name)
		}
		forward = &st
		for _, f := range st.fields {
			if f.location >= varyingLoc {
				varyingLoc = f.location + 1
			}
		}
	}

	vertexSource := t.emitVertex(vs, layout, tableGroup, forward, varyingLoc)
	fragmentSource := t.emitFragment(fs, layout, tableGroup, varyingLoc)

	tableVar := t.name("instance_table")
	vertex, err := NewShader(tmpl.Name+".vert", ShaderTypeVertex, vertexSource,
		WithVertexLayouts(vertexBufferLayouts(attrs, t.instanceIDLocation)),
		WithUnfilterableTexture(tableVar),
	)
	if err != nil {
		return nil, err
	}
	fragment, err := NewShader(tmpl.Name+".frag", ShaderTypeFragment, fragmentSource, WithUnfilterableTexture(tableVar))
	if err != nil {
		return nil, err
	}

	return &Instanced{
		Template:        tmpl,
		Vertex:          vertex,
		Fragment:        fragment,
		Layout:          layout,
		TableGroup:      tableGroup,
		Attributes:      attrs,
		TextureGroup:    firstTextureGroup("texture_2d<", fs, vs),
		ReflectionGroup: firstTextureGroup("texture_cube<", fs, vs),
	}, nil
}
