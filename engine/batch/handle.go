package batch

// HandleState is the lifecycle state of an InstanceHandle.
type HandleState int

const (
	// HandleUnregistered is the zero state of a handle no pool has taken.
	HandleUnregistered HandleState = iota
	// HandleAlive handles own an id and a vertex range and are drawn.
	HandleAlive
	// HandleDead handles were killed; their id and range return to the pool on its next Update.
	HandleDead
	// HandleReclaimed handles were released by their pool and must not be used again.
	HandleReclaimed
)

func (s HandleState) String() string {
	switch s {
	case HandleUnregistered:
		return "unregistered"
	case HandleAlive:
		return "alive"
	case HandleDead:
		return "dead"
	case HandleReclaimed:
		return "reclaimed"
	default:
		return "unknown"
	}
}

// InstanceHandle records where one object lives in an InstancePool: its table row (id), its
// vertex range and what must be uploaded on the pool's next Update.
type InstanceHandle struct {
	pool       *InstancePool
	generation uint64
	state      HandleState

	id       int
	position int
	length   int

	posUpToDate       bool
	appearanceChanged bool
	transformChanged  bool
	geometryChanged   bool

	// CPU copies of what the GPU holds for this instance
	data VertexData
	row  []float32
}

// ID returns the table row of the instance. A full rewrite may reassign it.
func (h *InstanceHandle) ID() int { return h.id }

// Position returns the offset of the instance in floats of the primary attribute.
func (h *InstanceHandle) Position() int { return h.position }

// Length returns the number of primary attribute floats the instance occupies.
func (h *InstanceHandle) Length() int { return h.length }

// State returns the lifecycle state.
func (h *InstanceHandle) State() HandleState { return h.state }

// Generation returns the pool-assigned generation of the handle.
func (h *InstanceHandle) Generation() uint64 { return h.generation }

// Alive reports whether the handle is registered and not killed.
func (h *InstanceHandle) Alive() bool { return h.state == HandleAlive }

// PosUpToDate reports whether the GPU holds the vertex data of the instance at its position.
func (h *InstanceHandle) PosUpToDate() bool { return h.posUpToDate }

// AppearanceChanged reports whether the table row must be rewritten on the next Update.
func (h *InstanceHandle) AppearanceChanged() bool { return h.appearanceChanged }

// TransformChanged reports whether only the transform part of the row must be rewritten.
func (h *InstanceHandle) TransformChanged() bool { return h.transformChanged }

// vertices returns the vertex count of the instance given the primary attribute component count.
func (h *InstanceHandle) vertices(components int) int { return h.length / components }

func (h *InstanceHandle) clearDirty() {
	h.posUpToDate = true
	h.appearanceChanged = false
	h.transformChanged = false
	h.geometryChanged = false
}
