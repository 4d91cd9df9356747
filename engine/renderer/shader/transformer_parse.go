package shader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// floatAttributeComponents maps the vertex input types a float buffer can feed to their width.
var floatAttributeComponents = map[string]int{
	"f32":       1,
	"vec2f":     2,
	"vec2<f32>": 2,
	"vec3f":     3,
	"vec3<f32>": 3,
	"vec4f":     4,
	"vec4<f32>": 4,
}

// VertexAttribute is one float vertex input of an instanced vertex shader. Each attribute is fed
// from its own vertex buffer slot, in the order the attributes are listed.
type VertexAttribute struct {
	// Name is the WGSL parameter or struct field name, also the key of the geometry data.
	Name string

	// Location is the @location index.
	Location int

	// Components is the number of floats per vertex (1 to 4).
	Components int

	// Format is the matching wgpu vertex format.
	Format wgpu.VertexFormat
}

// tableDecl is a var<uniform> declaration that moves into the instance table.
type tableDecl struct {
	decl bindingDecl
	kind UniformKind
}

// parsedStage is the typed result of parsing one template stage.
type parsedStage struct {
	shaderType ShaderType
	source     string
	masked     string
	entry      entryFunction
	structs    []parsedStruct
	decls      []bindingDecl
	table      []tableDecl
}

// parseStage parses one stage of a template and splits its uniform declarations into the ones
// that stay bound and the ones that move into the instance table.
func (t *transformer) parseStage(name, source string, shaderType ShaderType) (*parsedStage, error) {
	masked := maskComments(source)
	entry, ok := parseEntryFunction(masked, shaderType)
	if !ok {
		return nil, fmt.Errorf("%w: %s stage of template %q", ErrMissingEntryPoint, shaderType, name)
	}

	ps := &parsedStage{
		shaderType: shaderType,
		source:     source,
		masked:     masked,
		entry:      entry,
		structs:    parseStructBlocks(masked),
	}
	for _, d := range parseBindingDecls(masked) {
		if !t.isTableUniform(d) {
			ps.decls = append(ps.decls, d)
			continue
		}
		kind, ok := wgslUniformKindMap[d.typeName]
		if !ok {
			return nil, fmt.Errorf("%w: %q has type %s in template %q", ErrUnsupportedUniform, d.name, d.typeName, name)
		}
		ps.table = append(ps.table, tableDecl{decl: d, kind: kind})
	}
	return ps, nil
}

// isTableUniform reports whether a declaration is a per-object uniform.
func (t *transformer) isTableUniform(d bindingDecl) bool {
	if d.addressSpace != "uniform" {
		return false
	}
	if strings.HasPrefix(d.name, t.reservedPrefix) {
		return false
	}
	return !t.externalGlobals[d.name]
}

// mergeDescriptors collects the table uniforms of both stages, vertex first, keeping the first
// appearance of each name.
func mergeDescriptors(name string, stages ...*parsedStage) ([]UniformDescriptor, error) {
	var descs []UniformDescriptor
	seen := make(map[string]int)
	for _, ps := range stages {
		for _, td := range ps.table {
			if i, ok := seen[td.decl.name]; ok {
				if descs[i].Kind != td.kind {
					return nil, fmt.Errorf("%w: %q is %s and %s in template %q", ErrUniformKindMismatch, td.decl.name, descs[i].Kind, td.kind, name)
				}
				continue
			}
			seen[td.decl.name] = len(descs)
			descs = append(descs, UniformDescriptor{Name: td.decl.name, Kind: td.kind, Type: td.decl.typeName})
		}
	}
	return descs, nil
}

// lowestFreeGroup returns the smallest bind group index not used by any remaining declaration.
func lowestFreeGroup(stages ...*parsedStage) int {
	used := make(map[int]bool)
	for _, ps := range stages {
		for _, d := range ps.decls {
			used[d.group] = true
		}
	}
	g := 0
	for used[g] {
		g++
	}
	return g
}

// parseVertexAttributes collects the float vertex inputs of a vertex entry point, both direct
// @location parameters and @location fields of struct parameters, ordered by location.
//
// Parameters:
//   - masked: the comment-masked vertex source
//   - fn: the parsed vertex entry function
//
// Returns:
//   - []VertexAttribute: attributes sorted by location
//   - error: ErrUnsupportedAttribute if an input is not a float scalar or vector
func parseVertexAttributes(masked string, fn entryFunction) ([]VertexAttribute, error) {
	structs := parseStructBlocks(masked)
	var attrs []VertexAttribute

	add := func(f parsedField) error {
		comps, ok := floatAttributeComponents[f.typeName]
		if !ok {
			return fmt.Errorf("%w: %q at location %d has type %s", ErrUnsupportedAttribute, f.name, f.location, f.typeName)
		}
		attrs = append(attrs, VertexAttribute{
			Name:       f.name,
			Location:   f.location,
			Components: comps,
			Format:     wgslVertexFormatMap[f.typeName].format,
		})
		return nil
	}

	for _, p := range fn.params {
		if p.isBuiltin {
			continue
		}
		if p.location >= 0 {
			if err := add(p); err != nil {
				return nil, err
			}
			continue
		}
		ps, ok := findStruct(structs, p.typeName)
		if !ok {
			continue
		}
		for _, f := range ps.fields {
			if f.isBuiltin || f.location < 0 {
				continue
			}
			if err := add(f); err != nil {
				return nil, err
			}
		}
	}

	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Location < attrs[j].Location })
	return attrs, nil
}

// vertexBufferLayouts builds one single-attribute buffer layout per vertex attribute and, when
// idLocation is non-negative, a trailing u32 slot carrying the instance id.
//
// Parameters:
//   - attrs: the vertex attributes in slot order
//   - idLocation: the @location of the instance id input, or -1 for none
//
// Returns:
//   - []wgpu.VertexBufferLayout: layouts indexed by vertex buffer slot
func vertexBufferLayouts(attrs []VertexAttribute, idLocation int) []wgpu.VertexBufferLayout {
	layouts := make([]wgpu.VertexBufferLayout, 0, len(attrs)+1)
	for _, a := range attrs {
		layouts = append(layouts, wgpu.VertexBufferLayout{
			ArrayStride: uint64(a.Components) * 4,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes: []wgpu.VertexAttribute{
				{Format: a.Format, Offset: 0, ShaderLocation: uint32(a.Location)},
			},
		})
	}
	if idLocation >= 0 {
		layouts = append(layouts, wgpu.VertexBufferLayout{
			ArrayStride: 4,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes: []wgpu.VertexAttribute{
				{Format: wgpu.VertexFormatUint32, Offset: 0, ShaderLocation: uint32(idLocation)},
			},
		})
	}
	return layouts
}

// firstTextureGroup returns the group of the first declaration whose type starts with prefix,
// searching the stages in order, or -1.
func firstTextureGroup(prefix string, stages ...*parsedStage) int {
	for _, ps := range stages {
		for _, d := range ps.decls {
			if strings.HasPrefix(d.typeName, prefix) {
				return d.group
			}
		}
	}
	return -1
}
