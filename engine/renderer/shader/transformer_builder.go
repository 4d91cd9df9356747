package shader

// TransformerBuilderOption is a functional option for configuring a Transformer during NewTransformer.
type TransformerBuilderOption func(*transformer)

// WithExternalGlobals replaces the set of uniform names that stay ordinary bound uniforms.
//
// Parameters:
//   - names: the uniform names supplied per frame rather than per object
//
// Returns:
//   - TransformerBuilderOption: a function that applies the set to the transformer
func WithExternalGlobals(names ...string) TransformerBuilderOption {
	return func(t *transformer) {
		t.externalGlobals = make(map[string]bool, len(names))
		for _, n := range names {
			t.externalGlobals[n] = true
		}
	}
}

// WithReservedPrefix sets the prefix of system names. Uniforms with the prefix are never moved
// into the table and generated identifiers use it.
//
// Parameters:
//   - prefix: the reserved prefix, "sys_" by default
//
// Returns:
//   - TransformerBuilderOption: a function that applies the prefix to the transformer
func WithReservedPrefix(prefix string) TransformerBuilderOption {
	return func(t *transformer) {
		if prefix != "" {
			t.reservedPrefix = prefix
		}
	}
}

// WithInstanceIDLocation sets the @location of the generated per-vertex instance id input.
//
// Parameters:
//   - location: the vertex input location, 15 by default
//
// Returns:
//   - TransformerBuilderOption: a function that applies the location to the transformer
func WithInstanceIDLocation(location int) TransformerBuilderOption {
	return func(t *transformer) {
		t.instanceIDLocation = location
	}
}
