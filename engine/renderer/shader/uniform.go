package shader

import (
	"fmt"
	"math"
	"sort"

	"cogentcore.org/core/math32"
)

// UniformKind is the scalar shape of a uniform stored in the instance table.
// The declaration order is the placement order used by the layout.
type UniformKind int

const (
	// UniformKindMat4 is a 4x4 float matrix occupying four whole texels.
	UniformKindMat4 UniformKind = iota

	// UniformKindVec4 is a 4-component float vector occupying one whole texel.
	UniformKindVec4

	// UniformKindVec3 is a 3-component float vector.
	UniformKindVec3

	// UniformKindVec2 is a 2-component float vector.
	UniformKindVec2

	// UniformKindFloat is a single float.
	UniformKindFloat

	// UniformKindInt is a signed 32-bit integer stored by bit pattern in a float component.
	UniformKindInt

	// UniformKindFlag is a boolean stored as 0 or 1.
	UniformKindFlag
)

// wgslUniformKindMap maps the WGSL types accepted for table uniforms to their kind.
var wgslUniformKindMap = map[string]UniformKind{
	"mat4x4f":     UniformKindMat4,
	"mat4x4<f32>": UniformKindMat4,
	"vec4f":       UniformKindVec4,
	"vec4<f32>":   UniformKindVec4,
	"vec3f":       UniformKindVec3,
	"vec3<f32>":   UniformKindVec3,
	"vec2f":       UniformKindVec2,
	"vec2<f32>":   UniformKindVec2,
	"f32":         UniformKindFloat,
	"i32":         UniformKindInt,
	"bool":        UniformKindFlag,
}

// Floats returns the number of table floats a value of this kind occupies.
func (k UniformKind) Floats() int {
	switch k {
	case UniformKindMat4:
		return 16
	case UniformKindVec4:
		return 4
	case UniformKindVec3:
		return 3
	case UniformKindVec2:
		return 2
	default:
		return 1
	}
}

func (k UniformKind) String() string {
	switch k {
	case UniformKindMat4:
		return "mat4"
	case UniformKindVec4:
		return "vec4"
	case UniformKindVec3:
		return "vec3"
	case UniformKindVec2:
		return "vec2"
	case UniformKindFloat:
		return "float"
	case UniformKindInt:
		return "int"
	case UniformKindFlag:
		return "flag"
	default:
		return fmt.Sprintf("UniformKind(%d)", int(k))
	}
}

// UniformDescriptor places one uniform inside a table row.
type UniformDescriptor struct {
	// Name is the WGSL variable name.
	Name string

	// Kind is the uniform's shape.
	Kind UniformKind

	// Type is the WGSL type text as declared, reused when generating constructors.
	Type string

	// Offset is the uniform's first float within the row.
	Offset int
}

// Texel returns the first table column (4-float texel) this uniform reads.
func (d UniformDescriptor) Texel() int { return d.Offset / 4 }

// Component returns the first component (0..3) within Texel.
func (d UniformDescriptor) Component() int { return d.Offset % 4 }

// Span returns the half-open float range [Offset, Offset+Floats) within the row.
func (d UniformDescriptor) Span() (int, int) { return d.Offset, d.Offset + d.Kind.Floats() }

// UniformLayout is the ordered set of table uniforms of one instanced shader pair and the
// resulting per-instance row footprint.
type UniformLayout struct {
	// Descriptors are ordered by placement: kind first, then first appearance.
	Descriptors []UniformDescriptor

	// Footprint is the row width in floats, always a multiple of 4.
	Footprint int
}

// newUniformLayout orders descriptors by kind (stable) and places each one first-fit into texels.
// Matrices and 4-vectors always start a fresh texel; smaller kinds fill the first texel gap
// large enough to hold them whole.
func newUniformLayout(descs []UniformDescriptor) UniformLayout {
	ordered := make([]UniformDescriptor, len(descs))
	copy(ordered, descs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Kind < ordered[j].Kind })

	var fill []int // floats used per texel
	for i := range ordered {
		n := ordered[i].Kind.Floats()
		if n >= 4 {
			ordered[i].Offset = len(fill) * 4
			for range n / 4 {
				fill = append(fill, 4)
			}
			continue
		}
		placed := false
		for t, used := range fill {
			if used+n <= 4 {
				ordered[i].Offset = t*4 + used
				fill[t] += n
				placed = true
				break
			}
		}
		if !placed {
			ordered[i].Offset = len(fill) * 4
			fill = append(fill, n)
		}
	}
	return UniformLayout{Descriptors: ordered, Footprint: len(fill) * 4}
}

// Texels returns the row width in texels.
func (l UniformLayout) Texels() int { return l.Footprint / 4 }

// Lookup returns the descriptor of the named uniform.
//
// Parameters:
//   - name: the WGSL variable name
//
// Returns:
//   - UniformDescriptor: the descriptor, zero if not found
//   - bool: true if the layout contains the uniform
func (l UniformLayout) Lookup(name string) (UniformDescriptor, bool) {
	for _, d := range l.Descriptors {
		if d.Name == name {
			return d, true
		}
	}
	return UniformDescriptor{}, false
}

// Pack writes every value whose name has a descriptor into row. Values without a descriptor are
// ignored, and uniforms missing from values keep whatever row already holds.
//
// Parameters:
//   - row: destination row, at least Footprint floats
//   - values: uniform values keyed by WGSL name
//
// Returns:
//   - error: ErrUnsupportedValue wrapped with the uniform name if a value has the wrong type
func (l UniformLayout) Pack(row []float32, values map[string]any) error {
	for _, d := range l.Descriptors {
		v, ok := values[d.Name]
		if !ok {
			continue
		}
		if err := PackValue(row, d, v); err != nil {
			return err
		}
	}
	return nil
}

// Unpack reads every uniform of the layout back from row.
//
// Parameters:
//   - row: source row, at least Footprint floats
//
// Returns:
//   - map[string]any: values keyed by name, typed as UnpackValue documents
func (l UniformLayout) Unpack(row []float32) map[string]any {
	out := make(map[string]any, len(l.Descriptors))
	for _, d := range l.Descriptors {
		out[d.Name] = UnpackValue(row, d)
	}
	return out
}

// PackValue writes a single value at the descriptor's offset in row.
//
// Accepted Go types per kind:
//   - Mat4: math32.Matrix4, *math32.Matrix4, [16]float32, []float32 of length 16
//   - Vec4/Vec3/Vec2: math32.Vector4/Vector3/Vector2 (or pointers), [N]float32, []float32 of length N
//   - Float: float32, float64
//   - Int: int32, int
//   - Flag: bool
//
// Parameters:
//   - row: destination row
//   - d: the descriptor giving kind and offset
//   - v: the value to store
//
// Returns:
//   - error: ErrUnsupportedValue if v does not match d.Kind
func PackValue(row []float32, d UniformDescriptor, v any) error {
	dst := row[d.Offset : d.Offset+d.Kind.Floats()]
	switch d.Kind {
	case UniformKindMat4:
		switch m := v.(type) {
		case math32.Matrix4:
			copy(dst, m[:])
		case *math32.Matrix4:
			copy(dst, m[:])
		case [16]float32:
			copy(dst, m[:])
		case []float32:
			if len(m) != 16 {
				return unsupportedValue(d, v)
			}
			copy(dst, m)
		default:
			return unsupportedValue(d, v)
		}
	case UniformKindVec4:
		switch x := v.(type) {
		case math32.Vector4:
			dst[0], dst[1], dst[2], dst[3] = x.X, x.Y, x.Z, x.W
		case *math32.Vector4:
			dst[0], dst[1], dst[2], dst[3] = x.X, x.Y, x.Z, x.W
		default:
			return packFloats(dst, d, v)
		}
	case UniformKindVec3:
		switch x := v.(type) {
		case math32.Vector3:
			dst[0], dst[1], dst[2] = x.X, x.Y, x.Z
		case *math32.Vector3:
			dst[0], dst[1], dst[2] = x.X, x.Y, x.Z
		default:
			return packFloats(dst, d, v)
		}
	case UniformKindVec2:
		switch x := v.(type) {
		case math32.Vector2:
			dst[0], dst[1] = x.X, x.Y
		case *math32.Vector2:
			dst[0], dst[1] = x.X, x.Y
		default:
			return packFloats(dst, d, v)
		}
	case UniformKindFloat:
		switch x := v.(type) {
		case float32:
			dst[0] = x
		case float64:
			dst[0] = float32(x)
		default:
			return unsupportedValue(d, v)
		}
	case UniformKindInt:
		switch x := v.(type) {
		case int32:
			dst[0] = math.Float32frombits(uint32(x))
		case int:
			dst[0] = math.Float32frombits(uint32(int32(x)))
		default:
			return unsupportedValue(d, v)
		}
	case UniformKindFlag:
		b, ok := v.(bool)
		if !ok {
			return unsupportedValue(d, v)
		}
		dst[0] = 0
		if b {
			dst[0] = 1
		}
	default:
		return unsupportedValue(d, v)
	}
	return nil
}

// packFloats handles the array and slice forms of the vector kinds.
func packFloats(dst []float32, d UniformDescriptor, v any) error {
	switch x := v.(type) {
	case [4]float32:
		if len(dst) == 4 {
			copy(dst, x[:])
			return nil
		}
	case [3]float32:
		if len(dst) == 3 {
			copy(dst, x[:])
			return nil
		}
	case [2]float32:
		if len(dst) == 2 {
			copy(dst, x[:])
			return nil
		}
	case []float32:
		if len(x) == len(dst) {
			copy(dst, x)
			return nil
		}
	}
	return unsupportedValue(d, v)
}

func unsupportedValue(d UniformDescriptor, v any) error {
	return fmt.Errorf("%w: %s %q cannot hold %T", ErrUnsupportedValue, d.Kind, d.Name, v)
}

// UnpackValue reads the uniform described by d from row. Matrices and vectors come back as
// math32.Matrix4 and math32.Vector4/3/2, scalars as float32, int32 and bool.
//
// Parameters:
//   - row: source row
//   - d: the descriptor giving kind and offset
//
// Returns:
//   - any: the decoded value
func UnpackValue(row []float32, d UniformDescriptor) any {
	src := row[d.Offset : d.Offset+d.Kind.Floats()]
	switch d.Kind {
	case UniformKindMat4:
		var m math32.Matrix4
		copy(m[:], src)
		return m
	case UniformKindVec4:
		return math32.Vector4{X: src[0], Y: src[1], Z: src[2], W: src[3]}
	case UniformKindVec3:
		return math32.Vector3{X: src[0], Y: src[1], Z: src[2]}
	case UniformKindVec2:
		return math32.Vector2{X: src[0], Y: src[1]}
	case UniformKindFloat:
		return src[0]
	case UniformKindInt:
		return int32(math.Float32bits(src[0]))
	case UniformKindFlag:
		return src[0] != 0
	}
	return nil
}
