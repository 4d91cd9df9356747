package shader

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// wgslVertexFormatMap maps WGSL type names to their corresponding wgpu vertex format and byte size
var wgslVertexFormatMap = map[string]vertexFormatInfo{
	"f32":       {wgpu.VertexFormatFloat32, 4},
	"vec2f":     {wgpu.VertexFormatFloat32x2, 8},
	"vec2<f32>": {wgpu.VertexFormatFloat32x2, 8},
	"vec3f":     {wgpu.VertexFormatFloat32x3, 12},
	"vec3<f32>": {wgpu.VertexFormatFloat32x3, 12},
	"vec4f":     {wgpu.VertexFormatFloat32x4, 16},
	"vec4<f32>": {wgpu.VertexFormatFloat32x4, 16},
	"i32":       {wgpu.VertexFormatSint32, 4},
	"vec2i":     {wgpu.VertexFormatSint32x2, 8},
	"vec2<i32>": {wgpu.VertexFormatSint32x2, 8},
	"vec3i":     {wgpu.VertexFormatSint32x3, 12},
	"vec3<i32>": {wgpu.VertexFormatSint32x3, 12},
	"vec4i":     {wgpu.VertexFormatSint32x4, 16},
	"vec4<i32>": {wgpu.VertexFormatSint32x4, 16},
	"u32":       {wgpu.VertexFormatUint32, 4},
	"vec2u":     {wgpu.VertexFormatUint32x2, 8},
	"vec2<u32>": {wgpu.VertexFormatUint32x2, 8},
	"vec3u":     {wgpu.VertexFormatUint32x3, 12},
	"vec3<u32>": {wgpu.VertexFormatUint32x3, 12},
	"vec4u":     {wgpu.VertexFormatUint32x4, 16},
	"vec4<u32>": {wgpu.VertexFormatUint32x4, 16},
	"vec2<f16>": {wgpu.VertexFormatFloat16x2, 4},
	"vec2h":     {wgpu.VertexFormatFloat16x2, 4},
	"vec4<f16>": {wgpu.VertexFormatFloat16x4, 8},
	"vec4h":     {wgpu.VertexFormatFloat16x4, 8},
}

// wgslSampledTextureMap maps WGSL sampled texture base names to their view dimension and multisampled flag
var wgslSampledTextureMap = map[string]sampledTextureInfo{
	"texture_1d":                    {wgpu.TextureViewDimension1D, false},
	"texture_2d":                    {wgpu.TextureViewDimension2D, false},
	"texture_2d_array":              {wgpu.TextureViewDimension2DArray, false},
	"texture_3d":                    {wgpu.TextureViewDimension3D, false},
	"texture_cube":                  {wgpu.TextureViewDimensionCube, false},
	"texture_cube_array":            {wgpu.TextureViewDimensionCubeArray, false},
	"texture_multisampled_2d":       {wgpu.TextureViewDimension2D, true},
	"texture_depth_2d":              {wgpu.TextureViewDimension2D, false},
	"texture_depth_2d_array":        {wgpu.TextureViewDimension2DArray, false},
	"texture_depth_cube":            {wgpu.TextureViewDimensionCube, false},
	"texture_depth_cube_array":      {wgpu.TextureViewDimensionCubeArray, false},
	"texture_depth_multisampled_2d": {wgpu.TextureViewDimension2D, true},
}

// wgslStorageTextureDimMap maps WGSL storage texture base names to their view dimension
var wgslStorageTextureDimMap = map[string]wgpu.TextureViewDimension{
	"texture_storage_1d":       wgpu.TextureViewDimension1D,
	"texture_storage_2d":       wgpu.TextureViewDimension2D,
	"texture_storage_2d_array": wgpu.TextureViewDimension2DArray,
	"texture_storage_3d":       wgpu.TextureViewDimension3D,
}

// wgslSampleTypeMap maps WGSL scalar type parameters to their wgpu texture sample type
var wgslSampleTypeMap = map[string]wgpu.TextureSampleType{
	"f32": wgpu.TextureSampleTypeFloat,
	"i32": wgpu.TextureSampleTypeSint,
	"u32": wgpu.TextureSampleTypeUint,
}

// wgslStorageAccessMap maps WGSL access mode keywords to their wgpu storage texture access
var wgslStorageAccessMap = map[string]wgpu.StorageTextureAccess{
	"write":      wgpu.StorageTextureAccessWriteOnly,
	"read":       wgpu.StorageTextureAccessReadOnly,
	"read_write": wgpu.StorageTextureAccessReadWrite,
}

// wgslTexelFormatMap maps WGSL texel format strings to their corresponding wgpu texture formats.
// These are the formats valid for storage textures per the WGSL specification.
var wgslTexelFormatMap = map[string]wgpu.TextureFormat{
	"rgba8unorm":  wgpu.TextureFormatRGBA8Unorm,
	"rgba8snorm":  wgpu.TextureFormatRGBA8Snorm,
	"rgba8uint":   wgpu.TextureFormatRGBA8Uint,
	"rgba8sint":   wgpu.TextureFormatRGBA8Sint,
	"rgba16uint":  wgpu.TextureFormatRGBA16Uint,
	"rgba16sint":  wgpu.TextureFormatRGBA16Sint,
	"rgba16float": wgpu.TextureFormatRGBA16Float,
	"r32uint":     wgpu.TextureFormatR32Uint,
	"r32sint":     wgpu.TextureFormatR32Sint,
	"r32float":    wgpu.TextureFormatR32Float,
	"rg32uint":    wgpu.TextureFormatRG32Uint,
	"rg32sint":    wgpu.TextureFormatRG32Sint,
	"rg32float":   wgpu.TextureFormatRG32Float,
	"rgba32uint":  wgpu.TextureFormatRGBA32Uint,
	"rgba32sint":  wgpu.TextureFormatRGBA32Sint,
	"rgba32float": wgpu.TextureFormatRGBA32Float,
	"bgra8unorm":  wgpu.TextureFormatBGRA8Unorm,
}

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// locationRegex matches @location(N) attributes
	locationRegex = regexp.MustCompile(`@location\((\d+)\)`)

	// builtinRegex matches @builtin(...) attributes
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// attributeRegex matches any @name or @name(...) attribute
	attributeRegex = regexp.MustCompile(`@\w+(?:\([^)]*\))?`)

	// fieldRegex matches a struct field line: optional attributes, name, colon, type.
	// The type capture (.+) is greedy to handle parameterized types like array<T, N>.
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+\([^)]*\)\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	// vertexEntryRegex matches a @vertex function header up to its parameter list
	vertexEntryRegex = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)\s*\(`)

	// fragmentEntryRegex matches a @fragment function header up to its parameter list
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)\s*\(`)

	// returnRegex matches a return keyword
	returnRegex = regexp.MustCompile(`\breturn\b`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name, and type
	// from declarations like: @group(0) @binding(0) var<uniform> camera: CameraUniform;
	// or handle types: @group(2) @binding(0) var diffuseTexture: texture_2d<f32>;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// parseBindingDecls finds every @group/@binding variable declaration in comment-masked source,
// in source order, along with the byte span of each declaration.
//
// Parameters:
//   - masked: WGSL source with comments masked by maskComments
//
// Returns:
//   - []bindingDecl: the declarations found
func parseBindingDecls(masked string) []bindingDecl {
	matches := bindGroupDeclRegex.FindAllStringSubmatchIndex(masked, -1)
	decls := make([]bindingDecl, 0, len(matches))
	for _, m := range matches {
		group, _ := strconv.Atoi(masked[m[2]:m[3]])
		binding, _ := strconv.Atoi(masked[m[4]:m[5]])
		var addressSpace string
		if m[6] >= 0 {
			addressSpace = strings.TrimSpace(masked[m[6]:m[7]])
		}
		decls = append(decls, bindingDecl{
			group:        group,
			binding:      binding,
			addressSpace: addressSpace,
			name:         masked[m[8]:m[9]],
			typeName:     strings.TrimSpace(masked[m[10]:m[11]]),
			start:        m[0],
			end:          m[1],
		})
	}
	return decls
}

// parseBindGroupLayouts extracts all @group(N) @binding(M) resource declarations from WGSL
// source and returns them as wgpu.BindGroupLayoutDescriptor values grouped by group index.
// Each descriptor's entries are sorted by binding index. The provided visibility flag is
// applied to all entries, corresponding to the shader stage that declared them.
//
// Parameters:
//   - source: the raw WGSL source code string
//   - visibility: the shader stage visibility flag to set on each entry
//
// Returns:
//   - map[int]wgpu.BindGroupLayoutDescriptor: layout descriptors keyed by group index
//   - map[int]map[int]string: variable names keyed by group and binding index for resource tracking
func parseBindGroupLayouts(source string, visibility wgpu.ShaderStage) (map[int]wgpu.BindGroupLayoutDescriptor, map[int]map[int]string) {
	groups := make(map[int][]wgpu.BindGroupLayoutEntry)
	varNames := make(map[int]map[int]string)
	masked := maskComments(source)

	// Struct sizes give buffer entries a MinBindingSize, which InitBindGroup uses to size buffers.
	structSizes := computeStructSizes(parseStructBlocks(masked))

	for _, d := range parseBindingDecls(masked) {
		entry := classifyResource(uint32(d.binding), visibility, d.addressSpace, d.typeName)
		if entry.Buffer.Type != wgpu.BufferBindingTypeUndefined {
			if layout, ok := resolveTypeLayout(d.typeName, structSizes); ok && layout.size > 0 {
				entry.Buffer.MinBindingSize = layout.size
			}
		}
		groups[d.group] = append(groups[d.group], entry)

		if varNames[d.group] == nil {
			varNames[d.group] = make(map[int]string)
		}
		varNames[d.group][d.binding] = d.name
	}

	result := make(map[int]wgpu.BindGroupLayoutDescriptor, len(groups))
	for g, entries := range groups {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Binding < entries[j].Binding
		})
		result[g] = wgpu.BindGroupLayoutDescriptor{
			Entries: entries,
		}
	}

	return result, varNames
}

// parseEntryPoint extracts the entry point function name for the given shader type
// from WGSL source. Returns an empty string if no matching entry point annotation is found.
//
// Parameters:
//   - source: the raw WGSL source code string
//   - shaderType: the shader type to search for (ShaderTypeVertex or ShaderTypeFragment)
//
// Returns:
//   - string: the entry point function name, or empty string if not found
func parseEntryPoint(source string, shaderType ShaderType) string {
	fn, ok := parseEntryFunction(maskComments(source), shaderType)
	if !ok {
		return ""
	}
	return fn.name
}

// parseEntryFunction locates the entry point of the given stage in comment-masked source and
// records the spans the transformer edits: the parameter list, the return type and the body.
//
// Parameters:
//   - masked: WGSL source with comments masked by maskComments
//   - shaderType: ShaderTypeVertex or ShaderTypeFragment
//
// Returns:
//   - entryFunction: the parsed header and spans
//   - bool: false if no entry point exists or its brackets do not balance
func parseEntryFunction(masked string, shaderType ShaderType) (entryFunction, bool) {
	var re *regexp.Regexp
	switch shaderType {
	case ShaderTypeVertex:
		re = vertexEntryRegex
	case ShaderTypeFragment:
		re = fragmentEntryRegex
	default:
		return entryFunction{}, false
	}

	m := re.FindStringSubmatchIndex(masked)
	if m == nil {
		return entryFunction{}, false
	}
	fn := entryFunction{name: masked[m[2]:m[3]], paramsOpen: m[1] - 1}
	fn.paramsClose = matchingClose(masked, fn.paramsOpen)
	if fn.paramsClose < 0 {
		return entryFunction{}, false
	}

	rel := strings.IndexByte(masked[fn.paramsClose:], '{')
	if rel < 0 {
		return entryFunction{}, false
	}
	fn.bodyOpen = fn.paramsClose + rel
	fn.bodyClose = matchingClose(masked, fn.bodyOpen)
	if fn.bodyClose < 0 {
		return entryFunction{}, false
	}

	if ret, ok := strings.CutPrefix(strings.TrimSpace(masked[fn.paramsClose+1:fn.bodyOpen]), "->"); ok {
		fn.returnType = strings.TrimSpace(attributeRegex.ReplaceAllString(ret, ""))
	}
	fn.params = parseStructFields(masked[fn.paramsOpen+1 : fn.paramsClose])
	return fn, true
}

// parseReturns finds every `return expr;` statement inside the body span of fn, returning the
// byte span of each expression. Bare `return;` statements are skipped.
//
// Parameters:
//   - masked: WGSL source with comments masked by maskComments
//   - fn: the entry function whose body is scanned
//
// Returns:
//   - []span: expression spans in source order
func parseReturns(masked string, fn entryFunction) []span {
	body := masked[fn.bodyOpen+1 : fn.bodyClose]
	base := fn.bodyOpen + 1
	var out []span
	for _, m := range returnRegex.FindAllStringIndex(body, -1) {
		start := m[1]
		depth := 0
		end := -1
	scan:
		for i := start; i < len(body); i++ {
			switch body[i] {
			case '(', '[', '{':
				depth++
			case ')', ']', '}':
				depth--
			case ';':
				if depth == 0 {
					end = i
					break scan
				}
			}
		}
		if end < 0 || strings.TrimSpace(body[start:end]) == "" {
			continue
		}
		for start < end && isSpace(body[start]) {
			start++
		}
		out = append(out, span{start: base + start, end: base + end})
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// parseStructBlocks finds all struct { ... } blocks in the masked WGSL source
// and parses their fields including @location and @builtin attributes
//
// Parameters:
//   - source: WGSL source with comments already masked
//
// Returns:
//   - []parsedStruct: all struct blocks found in the source
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatchIndex(source, -1)
	structs := make([]parsedStruct, 0, len(matches))

	for _, m := range matches {
		structs = append(structs, parsedStruct{
			name:      source[m[2]:m[3]],
			fields:    parseStructFields(source[m[4]:m[5]]),
			bodyStart: m[4],
			bodyEnd:   m[5],
		})
	}

	return structs
}

// findStruct returns the struct with the given name.
func findStruct(structs []parsedStruct, name string) (parsedStruct, bool) {
	for _, ps := range structs {
		if ps.name == name {
			return ps, true
		}
	}
	return parsedStruct{}, false
}

// parseStructFields parses a comma separated field or parameter list into individual fields,
// extracting @location and @builtin attributes along with the field name and type
//
// Parameters:
//   - body: the content between { and } of a struct declaration, or between ( and ) of a function
//
// Returns:
//   - []parsedField: all fields found in the body
func parseStructFields(body string) []parsedField {
	lines := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		field := parsedField{location: -1}
		if builtinRegex.MatchString(line) {
			field.isBuiltin = true
		}
		if locMatch := locationRegex.FindStringSubmatch(line); locMatch != nil {
			if loc, err := strconv.Atoi(locMatch[1]); err == nil {
				field.location = loc
			}
		}

		fm := fieldRegex.FindStringSubmatch(attributeRegex.ReplaceAllString(line, ""))
		if fm == nil {
			continue
		}
		field.name = fm[1]
		field.typeName = strings.TrimSpace(fm[2])
		fields = append(fields, field)
	}

	return fields
}
