package batch

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/Carmen-Shannon/oxy-batch/common"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/shader"
)

// PoolUpdate reports what one InstancePool.Update did.
type PoolUpdate struct {
	// Capacity is the capacity in floats after the update.
	Capacity int
	// Resized is set when the capacity changed.
	Resized bool
	// FullRewrite is set when every alive instance was repositioned and re-uploaded.
	FullRewrite bool
	// Reclaimed counts the dead handles released.
	Reclaimed int
	// Alive counts the alive handles after the update.
	Alive int
	// VertexBytes and TableBytes count the bytes staged for upload.
	VertexBytes int
	TableBytes  int
}

// InstancePool packs the vertices of up to MaxInstances objects into one set of vertex buffers,
// one per attribute plus a per-vertex instance id buffer, and their uniforms into the rows of a
// float table texture. Capacity is counted in floats of the primary (first) attribute and is
// always BaseSize * 2^k.
//
// An InstancePool is not safe for concurrent use.
type InstancePool struct {
	cfg        Config
	label      string
	layout     shader.UniformLayout
	attrs      []shader.VertexAttribute
	tableGroup int

	transform    shader.UniformDescriptor
	hasTransform bool

	capacity   int
	highWater  int
	liveFloats int
	deadFloats int
	ids        *idSet
	free       []common.Span

	// live holds alive and dead handles keyed by generation
	live           map[uint64]*InstanceHandle
	dead           []*InstanceHandle
	nextGeneration uint64
	scratch        []float32
	zeros          []byte

	vertexProvider bind_group_provider.BindGroupProvider
	tableProvider  bind_group_provider.BindGroupProvider
	rebuild        bool
	tableReady     bool
	bufferWrites   []bind_group_provider.BufferWrite
	textureWrites  []bind_group_provider.TextureWrite
}

// NewInstancePool creates an empty pool of BaseSize capacity for the instanced shaders.
// GPU resources are created on the first Render.
//
// Parameters:
//   - label: a debug label for the pool's GPU objects
//   - in: the instanced shader pair whose attributes and uniform layout the pool stores
//   - cfg: the sizing and policy parameters
//
// Returns:
//   - *InstancePool: the new pool
func NewInstancePool(label string, in *shader.Instanced, cfg Config) *InstancePool {
	p := &InstancePool{
		cfg:            cfg,
		label:          label,
		layout:         in.Layout,
		attrs:          in.Attributes,
		tableGroup:     in.TableGroup,
		capacity:       cfg.BaseSize,
		ids:            newIDSet(cfg.MaxInstances),
		live:           make(map[uint64]*InstanceHandle),
		scratch:        make([]float32, in.Layout.Footprint),
		vertexProvider: bind_group_provider.NewBindGroupProvider(label + " Vertices"),
		tableProvider:  bind_group_provider.NewBindGroupProvider(label + " Table"),
		rebuild:        true,
	}
	p.transform, p.hasTransform = in.Layout.Lookup(cfg.TransformUniform)
	return p
}

// Capacity returns the capacity in floats of the primary attribute.
func (p *InstancePool) Capacity() int { return p.capacity }

// HighWater returns the end of the highest range in use, in floats of the primary attribute.
func (p *InstancePool) HighWater() int { return p.highWater }

// LiveFloats returns the floats occupied by alive instances.
func (p *InstancePool) LiveFloats() int { return p.liveFloats }

// DeadFloats returns the floats occupied by killed instances not yet reclaimed.
func (p *InstancePool) DeadFloats() int { return p.deadFloats }

// Available returns capacity minus live and dead floats. It is negative when the pool is
// over-subscribed until the next Update.
func (p *InstancePool) Available() int { return p.capacity - p.liveFloats - p.deadFloats }

// FreeIDs returns the number of ids neither alive nor dead.
func (p *InstancePool) FreeIDs() int { return p.ids.free() }

// Len returns the number of alive instances.
func (p *InstancePool) Len() int { return len(p.live) - len(p.dead) }

// VertexCount returns the number of vertices a draw of the pool covers.
func (p *InstancePool) VertexCount() int { return p.highWater / p.primaryComponents() }

func (p *InstancePool) primaryComponents() int { return p.attrs[0].Components }

// usable returns the floats of a capacity that hold whole vertices.
func (p *InstancePool) usable(capacity int) int {
	return capacity - capacity%p.primaryComponents()
}

// fit returns the smallest BaseSize * 2^k capacity whose usable part holds need floats.
func (p *InstancePool) fit(need int) int {
	c := p.cfg.BaseSize
	for p.usable(c) < need {
		c <<= 1
	}
	return c
}

// measure validates the geometry against the pool's attributes and returns its length in
// floats of the primary attribute.
func (p *InstancePool) measure(data VertexData) (int, error) {
	primary := p.attrs[0]
	length := len(data[primary.Name])
	if length == 0 {
		return 0, ErrNotDrawable
	}
	if length%primary.Components != 0 {
		return 0, fmt.Errorf("%w: %s has %d floats, not a multiple of %d", ErrInconsistentAttributes, primary.Name, length, primary.Components)
	}
	vertices := length / primary.Components
	for _, a := range p.attrs[1:] {
		got, ok := data[a.Name]
		if !ok {
			return 0, fmt.Errorf("%w: missing attribute %s", ErrInconsistentAttributes, a.Name)
		}
		if len(got) != vertices*a.Components {
			return 0, fmt.Errorf("%w: %s has %d floats, want %d", ErrInconsistentAttributes, a.Name, len(got), vertices*a.Components)
		}
	}
	return length, nil
}

// copyGeometry keeps the pool's own copy of the attributes it stores.
func (p *InstancePool) copyGeometry(data VertexData) VertexData {
	out := make(VertexData, len(p.attrs))
	for _, a := range p.attrs {
		out[a.Name] = slices.Clone(data[a.Name])
	}
	return out
}

func (p *InstancePool) owns(h *InstanceHandle) bool {
	return h != nil && h.pool == p && p.live[h.generation] == h
}

// RegisterNewInstance adds an object to the pool. The instance takes the lowest free id and the
// first reclaimed range large enough to hold it, or the range after the high-water mark. Its GPU
// upload is staged by the next Update.
//
// Parameters:
//   - data: the vertex attributes, keyed by attribute name
//   - uniforms: the initial uniform values, keyed by WGSL name
//
// Returns:
//   - *InstanceHandle: the alive handle
//   - error: ErrNotDrawable, ErrInconsistentAttributes, ErrPoolFull, or a uniform value error
func (p *InstancePool) RegisterNewInstance(data VertexData, uniforms map[string]any) (*InstanceHandle, error) {
	length, err := p.measure(data)
	if err != nil {
		return nil, err
	}
	if p.liveFloats+length > p.usable(p.cfg.MaxCapacity) {
		return nil, ErrPoolFull
	}

	row := make([]float32, p.layout.Footprint)
	if err := p.layout.Pack(row, uniforms); err != nil {
		return nil, err
	}

	id := p.ids.acquire()
	if id < 0 {
		return nil, ErrPoolFull
	}

	h := &InstanceHandle{
		pool:       p,
		generation: p.nextGeneration,
		state:      HandleAlive,
		id:         id,
		position:   p.place(length),
		length:     length,
		data:       p.copyGeometry(data),
		row:        row,
	}
	p.nextGeneration++
	p.live[h.generation] = h
	p.liveFloats += length
	return h, nil
}

// place takes length floats from the first free range that holds them, or from the high-water mark.
func (p *InstancePool) place(length int) int {
	for i, s := range p.free {
		if s.Len() < length {
			continue
		}
		if s.Len() == length {
			p.free = slices.Delete(p.free, i, i+1)
		} else {
			p.free[i].Start += length
		}
		return s.Start
	}
	pos := p.highWater
	p.highWater += length
	return pos
}

// Kill marks an alive instance dead. Its id and range are reclaimed by the next Update.
//
// Parameters:
//   - h: a handle of this pool
//
// Returns:
//   - error: ErrStaleHandle if h is not alive in this pool
func (p *InstancePool) Kill(h *InstanceHandle) error {
	if !p.owns(h) || h.state != HandleAlive {
		return ErrStaleHandle
	}
	h.state = HandleDead
	p.liveFloats -= h.length
	p.deadFloats += h.length
	p.dead = append(p.dead, h)
	return nil
}

// SetUniforms packs new uniform values into the instance row and flags what changed. Names the
// layout does not hold are ignored.
//
// Parameters:
//   - h: an alive handle of this pool
//   - values: uniform values keyed by WGSL name
//
// Returns:
//   - appearance: true if a uniform other than the transform changed
//   - transform: true if the transform uniform changed
//   - err: ErrStaleHandle or a uniform value error, in which case the row is unchanged
func (p *InstancePool) SetUniforms(h *InstanceHandle, values map[string]any) (appearance, transform bool, err error) {
	if !p.owns(h) || h.state != HandleAlive {
		return false, false, ErrStaleHandle
	}
	if p.layout.Footprint == 0 {
		return false, false, nil
	}

	copy(p.scratch, h.row)
	if err := p.layout.Pack(p.scratch, values); err != nil {
		return false, false, err
	}
	for _, d := range p.layout.Descriptors {
		start, end := d.Span()
		if sameBits(h.row[start:end], p.scratch[start:end]) {
			continue
		}
		if p.hasTransform && d.Name == p.transform.Name {
			transform = true
		} else {
			appearance = true
		}
	}
	copy(h.row, p.scratch)

	h.appearanceChanged = h.appearanceChanged || appearance
	h.transformChanged = h.transformChanged || transform
	return appearance, transform, nil
}

// sameBits compares floats bit for bit so that NaN payloads and signed zeros count as changes.
func sameBits(a, b []float32) bool {
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}

// SetGeometry replaces the vertex data of an instance in place. The vertex count must not change.
//
// Parameters:
//   - h: an alive handle of this pool
//   - data: the new vertex attributes
//
// Returns:
//   - error: ErrStaleHandle, or ErrInconsistentAttributes if the data is invalid or changes length
func (p *InstancePool) SetGeometry(h *InstanceHandle, data VertexData) error {
	if !p.owns(h) || h.state != HandleAlive {
		return ErrStaleHandle
	}
	length, err := p.measure(data)
	if err != nil {
		return err
	}
	if length != h.length {
		return fmt.Errorf("%w: length changed from %d to %d", ErrInconsistentAttributes, h.length, length)
	}
	h.data = p.copyGeometry(data)
	h.geometryChanged = true
	return nil
}

// Update reconciles the pool once per frame: it reclaims dead instances, resizes when the live
// floats leave the hysteresis band and stages the GPU writes for the next Render. A resize,
// an over-subscription or a range past the capacity forces a full rewrite that repacks every
// alive instance contiguously with fresh ids.
//
// Returns:
//   - PoolUpdate: what the update did
func (p *InstancePool) Update() PoolUpdate {
	needed := p.capacity - p.Available() - p.deadFloats

	next := p.capacity
	switch {
	case needed > p.usable(p.capacity):
		next = p.fit(needed)
	case p.capacity > p.cfg.BaseSize && float64(needed) <= float64(p.capacity)*p.cfg.ShrinkRatio:
		next = p.fit(needed)
	}

	full := next != p.capacity || p.Available() < 0 || p.highWater > p.usable(p.capacity) || p.rebuild
	u := PoolUpdate{Resized: next != p.capacity, FullRewrite: full}

	if full {
		u.Reclaimed = p.reclaim(false)
		if u.Resized {
			slog.Debug("batch: pool resized", "pool", p.label, "from", p.capacity, "to", next, "alive", p.Len())
			p.capacity = next
			p.rebuild = true
		}
		u.VertexBytes, u.TableBytes = p.rewrite()
	} else {
		u.Reclaimed = p.reclaim(true)
		u.VertexBytes, u.TableBytes = p.stageIncremental()
	}

	u.Capacity = p.capacity
	u.Alive = p.Len()
	return u
}

// reclaim releases the ids and ranges of dead handles and lowers the high-water mark past any
// free range at its end. With zero set, the dead ranges are staged for zeroing.
func (p *InstancePool) reclaim(zero bool) int {
	n := len(p.dead)
	if n == 0 {
		return 0
	}

	spans := make([]common.Span, 0, n)
	for _, h := range p.dead {
		p.ids.release(h.id)
		delete(p.live, h.generation)
		spans = append(spans, common.Span{Start: h.position, End: h.position + h.length})
		p.deadFloats -= h.length
		h.state = HandleReclaimed
		h.data, h.row = nil, nil
	}
	p.dead = p.dead[:0]

	spans = common.MergeSpans(spans)
	if zero {
		for _, s := range spans {
			p.stageZero(s)
		}
	}

	p.free = common.MergeSpans(append(p.free, spans...))
	if last := len(p.free) - 1; last >= 0 && p.free[last].End >= p.highWater {
		p.highWater = p.free[last].Start
		p.free = p.free[:last]
	}
	return n
}

// alive returns the alive handles ordered by position, ties broken by registration order.
func (p *InstancePool) alive() []*InstanceHandle {
	out := make([]*InstanceHandle, 0, p.Len())
	for _, h := range p.live {
		if h.state == HandleAlive {
			out = append(out, h)
		}
	}
	slices.SortFunc(out, func(a, b *InstanceHandle) int {
		if a.position != b.position {
			return a.position - b.position
		}
		return int(a.generation) - int(b.generation)
	})
	return out
}

// rewrite repacks every alive instance from offset zero with ids 0..n-1 in position order and
// stages full uploads of every vertex buffer and the used table rows.
func (p *InstancePool) rewrite() (vertexBytes, tableBytes int) {
	p.bufferWrites = p.bufferWrites[:0]
	p.textureWrites = p.textureWrites[:0]

	handles := p.alive()
	p.ids.reset()
	p.free = p.free[:0]
	pos := 0
	for _, h := range handles {
		h.id = p.ids.acquire()
		h.position = pos
		pos += h.length
		h.clearDirty()
	}
	p.highWater = pos

	comps := p.primaryComponents()
	vertexCapacity := p.usable(p.capacity) / comps
	for slot, a := range p.attrs {
		buf := make([]float32, vertexCapacity*a.Components)
		for _, h := range handles {
			copy(buf[h.position/comps*a.Components:], h.data[a.Name])
		}
		p.stageVertex(slot, 0, common.SliceToBytes(buf))
		vertexBytes += len(buf) * 4
	}
	ids := make([]uint32, vertexCapacity)
	for _, h := range handles {
		v := h.position / comps
		for i := range h.vertices(comps) {
			ids[v+i] = uint32(h.id)
		}
	}
	p.stageVertex(len(p.attrs), 0, common.SliceToBytes(ids))
	vertexBytes += len(ids) * 4

	if p.layout.Footprint > 0 && len(handles) > 0 {
		rows := make([]float32, len(handles)*p.layout.Footprint)
		for _, h := range handles {
			copy(rows[h.id*p.layout.Footprint:], h.row)
		}
		p.stageRows(0, 0, p.layout.Texels(), len(handles), rows)
		tableBytes = len(rows) * 4
	}
	return vertexBytes, tableBytes
}

// stageIncremental stages the vertex ranges of new and reshaped instances, the rows of new and
// restyled instances and the transform texels of instances that only moved. Adjacent ranges
// and consecutive rows coalesce into single writes.
func (p *InstancePool) stageIncremental() (vertexBytes, tableBytes int) {
	var geometry, rows, transforms []*InstanceHandle
	for _, h := range p.live {
		if h.state != HandleAlive {
			continue
		}
		if !h.posUpToDate || h.geometryChanged {
			geometry = append(geometry, h)
		}
		switch {
		case !h.posUpToDate || h.appearanceChanged:
			rows = append(rows, h)
		case h.transformChanged:
			transforms = append(transforms, h)
		}
	}

	slices.SortFunc(geometry, func(a, b *InstanceHandle) int { return a.position - b.position })
	for run := range runs(geometry, func(a, b *InstanceHandle) bool { return a.position+a.length == b.position }) {
		vertexBytes += p.stageGeometry(run)
	}

	if p.layout.Footprint > 0 {
		byID := func(a, b *InstanceHandle) int { return a.id - b.id }
		consecutive := func(a, b *InstanceHandle) bool { return a.id+1 == b.id }

		slices.SortFunc(rows, byID)
		for run := range runs(rows, consecutive) {
			data := make([]float32, 0, len(run)*p.layout.Footprint)
			for _, h := range run {
				data = append(data, h.row...)
			}
			p.stageRows(0, run[0].id, p.layout.Texels(), len(run), data)
			tableBytes += len(data) * 4
		}

		if p.hasTransform {
			first := p.transform.Texel()
			_, end := p.transform.Span()
			last := (end + 3) / 4
			slices.SortFunc(transforms, byID)
			for run := range runs(transforms, consecutive) {
				data := make([]float32, 0, len(run)*(last-first)*4)
				for _, h := range run {
					data = append(data, h.row[first*4:last*4]...)
				}
				p.stageRows(first, run[0].id, last-first, len(run), data)
				tableBytes += len(data) * 4
			}
		}
	}

	for _, h := range geometry {
		h.clearDirty()
	}
	for _, h := range rows {
		h.clearDirty()
	}
	for _, h := range transforms {
		h.clearDirty()
	}
	return vertexBytes, tableBytes
}

// runs yields maximal sub-slices of sorted whose neighbours satisfy adjacent.
func runs[T any](sorted []T, adjacent func(a, b T) bool) func(yield func([]T) bool) {
	return func(yield func([]T) bool) {
		start := 0
		for i := 1; i <= len(sorted); i++ {
			if i < len(sorted) && adjacent(sorted[i-1], sorted[i]) {
				continue
			}
			if !yield(sorted[start:i]) {
				return
			}
			start = i
		}
	}
}

// stageGeometry stages one write per vertex buffer covering a run of adjacent instances.
func (p *InstancePool) stageGeometry(run []*InstanceHandle) int {
	if len(run) == 0 {
		return 0
	}
	comps := p.primaryComponents()
	v := run[0].position / comps
	bytes := 0

	for slot, a := range p.attrs {
		var buf []float32
		for _, h := range run {
			buf = append(buf, h.data[a.Name]...)
		}
		p.stageVertex(slot, uint64(v*a.Components*4), common.SliceToBytes(buf))
		bytes += len(buf) * 4
	}

	var ids []uint32
	for _, h := range run {
		for range h.vertices(comps) {
			ids = append(ids, uint32(h.id))
		}
	}
	p.stageVertex(len(p.attrs), uint64(v*4), common.SliceToBytes(ids))
	return bytes + len(ids)*4
}

// stageZero stages zero writes over a reclaimed range of every attribute buffer so that its
// vertices collapse to zero-area triangles.
func (p *InstancePool) stageZero(s common.Span) {
	comps := p.primaryComponents()
	v, n := s.Start/comps, s.Len()/comps
	for slot, a := range p.attrs {
		size := n * a.Components * 4
		if len(p.zeros) < size {
			p.zeros = make([]byte, size)
		}
		p.stageVertex(slot, uint64(v*a.Components*4), p.zeros[:size])
	}
}

func (p *InstancePool) stageVertex(slot int, offset uint64, data []byte) {
	p.bufferWrites = append(p.bufferWrites, bind_group_provider.BufferWrite{
		Provider: p.vertexProvider,
		Target:   bind_group_provider.BufferTargetVertex,
		Binding:  slot,
		Offset:   offset,
		Data:     data,
	})
}

func (p *InstancePool) stageRows(x, y, width, height int, data []float32) {
	p.textureWrites = append(p.textureWrites, bind_group_provider.TextureWrite{
		Provider: p.tableProvider,
		Binding:  0,
		X:        uint32(x),
		Y:        uint32(y),
		Width:    uint32(width),
		Height:   uint32(height),
		Data:     common.SliceToBytes(data),
	})
}

// Render creates or recreates the pool's GPU resources when needed, flushes the staged writes
// and issues one draw covering every vertex up to the high-water mark.
//
// Parameters:
//   - device: the device to draw with
//   - pipelineKey: the registered pipeline of the pool's group
//   - bindGroups: the group's bind groups by index; the table group is filled in by the pool
//
// Returns:
//   - bool: whether a draw was issued
//   - error: a resource creation or draw error
func (p *InstancePool) Render(device Device, pipelineKey string, bindGroups []bind_group_provider.BindGroupProvider) (bool, error) {
	if p.rebuild {
		comps := p.primaryComponents()
		vertexCapacity := uint64(p.usable(p.capacity) / comps)
		sizes := make(map[int]uint64, len(p.attrs)+1)
		for slot, a := range p.attrs {
			sizes[slot] = vertexCapacity * uint64(a.Components) * 4
		}
		sizes[len(p.attrs)] = vertexCapacity * 4
		if err := device.InitVertexBuffers(p.vertexProvider, sizes); err != nil {
			return false, fmt.Errorf("batch: %s vertex buffers: %w", p.label, err)
		}
		p.rebuild = false
	}

	if p.tableGroup >= 0 && !p.tableReady {
		if err := device.InitTableTexture(p.tableProvider, 0, uint32(p.layout.Texels()), uint32(p.cfg.MaxInstances)); err != nil {
			return false, fmt.Errorf("batch: %s table: %w", p.label, err)
		}
		if err := device.InitBindGroup(p.tableProvider, pipelineKey, p.tableGroup); err != nil {
			return false, fmt.Errorf("batch: %s table bind group: %w", p.label, err)
		}
		p.tableReady = true
	}

	if len(p.bufferWrites) > 0 {
		device.WriteBuffers(p.bufferWrites)
		p.bufferWrites = p.bufferWrites[:0]
	}
	if len(p.textureWrites) > 0 {
		device.WriteTextures(p.textureWrites)
		p.textureWrites = p.textureWrites[:0]
	}

	vertices := p.VertexCount()
	if vertices == 0 {
		return false, nil
	}

	groups := bindGroups
	if p.tableGroup >= 0 {
		groups = make([]bind_group_provider.BindGroupProvider, max(len(bindGroups), p.tableGroup+1))
		copy(groups, bindGroups)
		groups[p.tableGroup] = p.tableProvider
	}
	if err := device.DrawCall(pipelineKey, p.vertexProvider, uint32(vertices), 1, groups); err != nil {
		return false, err
	}
	return true, nil
}

// Release frees the pool's GPU resources and reclaims every handle. The pool must not be used afterwards.
func (p *InstancePool) Release() {
	for _, h := range p.live {
		h.state = HandleReclaimed
		h.data, h.row = nil, nil
	}
	clear(p.live)
	p.dead = nil
	p.bufferWrites, p.textureWrites = nil, nil
	p.vertexProvider.Release()
	p.tableProvider.Release()
	p.tableReady = false
	p.rebuild = true
}
