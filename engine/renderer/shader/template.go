package shader

// Template is an un-instanced vertex/fragment WGSL pair. Its uniforms are ordinary var<uniform>
// declarations; the Transformer rewrites the per-object ones into reads from the instance table.
//
// A *Template is compared by pointer wherever it takes part in a batching key, so a reloaded
// template is a new value even when its text is unchanged.
type Template struct {
	// Name identifies the template in labels and logs.
	Name string

	// Vertex is the WGSL source of the vertex stage.
	Vertex string

	// Fragment is the WGSL source of the fragment stage.
	Fragment string
}

// NewTemplate creates a Template from a name and the two stage sources.
//
// Parameters:
//   - name: the template name, used to label the generated shaders
//   - vertex: WGSL source containing a @vertex entry point
//   - fragment: WGSL source containing a @fragment entry point
//
// Returns:
//   - *Template: the new template
func NewTemplate(name, vertex, fragment string) *Template {
	return &Template{Name: name, Vertex: vertex, Fragment: fragment}
}

// Equal reports whether two templates carry identical sources.
func (t *Template) Equal(o *Template) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.Name == o.Name && t.Vertex == o.Vertex && t.Fragment == o.Fragment
}
