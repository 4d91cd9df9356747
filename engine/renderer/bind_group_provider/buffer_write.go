package bind_group_provider

// BufferTarget selects which of a provider's buffer maps a BufferWrite addresses.
type BufferTarget int

const (
	// BufferTargetBinding addresses Buffer(Binding).
	BufferTargetBinding BufferTarget = iota

	// BufferTargetVertex addresses VertexBuffer(Binding), Binding being the vertex buffer slot.
	BufferTargetVertex
)

// BufferWrite describes a single GPU buffer write operation targeting a specific binding
// (or vertex slot) on a BindGroupProvider at a given byte offset.
type BufferWrite struct {
	Provider BindGroupProvider
	Target   BufferTarget
	Binding  int
	Offset   uint64
	Data     []byte
}

// TextureWrite describes a write of a rectangle of texels into the 2D texture at a binding
// of a BindGroupProvider. X and Width count texels, Y and Height count rows. Data holds
// Height rows of Width texels each, tightly packed.
type TextureWrite struct {
	Provider      BindGroupProvider
	Binding       int
	X, Y          uint32
	Width, Height uint32
	Data          []byte
}
