package shader

import "github.com/cogentcore/webgpu/wgpu"

// vertexFormatInfo holds the wgpu vertex format and its byte size for offset calculation
type vertexFormatInfo struct {
	format wgpu.VertexFormat
	size   uint64
}

// sampledTextureInfo holds the view dimension and multisampled flag for a sampled texture type
type sampledTextureInfo struct {
	viewDimension wgpu.TextureViewDimension
	multisampled  bool
}

// wgslTypeLayout holds the byte size and alignment for a WGSL type per the WGSL specification.
// Used to compute MinBindingSize for buffer bindings.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// span is a half-open byte range [start, end) of shader source.
type span struct {
	start, end int
}

// parsedField represents a single struct field or function parameter extracted during parsing
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField

	// bodyStart and bodyEnd delimit the text between the braces.
	bodyStart, bodyEnd int
}

// bindingDecl is one `@group(g) @binding(b) var<space> name: type;` declaration.
type bindingDecl struct {
	group        int
	binding      int
	addressSpace string
	name         string
	typeName     string
	start, end   int
}

// entryFunction is a parsed @vertex or @fragment function header.
type entryFunction struct {
	name       string
	params     []parsedField
	returnType string

	// paramsOpen and paramsClose index the parentheses of the parameter list,
	// bodyOpen and bodyClose the braces of the body.
	paramsOpen, paramsClose int
	bodyOpen, bodyClose     int
}
