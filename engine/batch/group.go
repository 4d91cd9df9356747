package batch

import (
	"fmt"
	"log/slog"

	"cogentcore.org/core/base/errors"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/shader"
)

// GroupUpdate reports what one BatchGroup.Update did.
type GroupUpdate struct {
	Pools        int
	Resident     int
	Added        int
	Removed      int
	Skipped      int
	Resized      int
	FullRewrites int
	VertexBytes  int
	TableBytes   int
}

// resident is the placement of an object the group drew last frame.
type resident struct {
	pool    *InstancePool
	handle  *InstanceHandle
	version uint64
}

// BatchGroup owns the pools of every object sharing one ShadingIdentity and the pipeline that
// draws them. Objects are registered every frame; Update diffs the registered set against the
// resident set and pushes the difference into the pools.
type BatchGroup struct {
	key       string
	identity  ShadingIdentity
	instanced *shader.Instanced
	cfg       Config

	pools    []*InstancePool
	retired  []*InstancePool
	resident map[ObjectID]*resident

	frame      []Renderable
	registered map[ObjectID]struct{}

	poolSeq       int
	idleFrames    int
	pipelineReady bool
}

// NewBatchGroup creates an empty group. Pools and the pipeline are created on demand.
//
// Parameters:
//   - key: the pipeline key of the group, unique among live groups
//   - identity: the shading identity every object of the group shares
//   - in: the instanced shaders of identity.Template
//   - cfg: the sizing and policy parameters
//
// Returns:
//   - *BatchGroup: the new group
func NewBatchGroup(key string, identity ShadingIdentity, in *shader.Instanced, cfg Config) *BatchGroup {
	return &BatchGroup{
		key:        key,
		identity:   identity,
		instanced:  in,
		cfg:        cfg,
		resident:   make(map[ObjectID]*resident),
		registered: make(map[ObjectID]struct{}),
	}
}

// Key returns the pipeline key of the group.
func (g *BatchGroup) Key() string { return g.key }

// Identity returns the shading identity of the group.
func (g *BatchGroup) Identity() ShadingIdentity { return g.identity }

// Pools returns the pools of the group in creation order.
func (g *BatchGroup) Pools() []*InstancePool { return g.pools }

// Resident returns the number of objects placed in the group's pools.
func (g *BatchGroup) Resident() int { return len(g.resident) }

// IdleFrames returns the number of consecutive updates that ended with no resident object.
func (g *BatchGroup) IdleFrames() int { return g.idleFrames }

// Handle returns the handle of a resident object.
func (g *BatchGroup) Handle(id ObjectID) (*InstanceHandle, bool) {
	res, ok := g.resident[id]
	if !ok {
		return nil, false
	}
	return res.handle, true
}

// Register adds an object to the current frame's registered set.
//
// Parameters:
//   - r: the object, whose Identity must equal the group's
//
// Returns:
//   - error: ErrDuplicateRegistration if r.ID was already registered this frame
func (g *BatchGroup) Register(r Renderable) error {
	if _, ok := g.registered[r.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRegistration, r.ID)
	}
	g.registered[r.ID] = struct{}{}
	g.frame = append(g.frame, r)
	return nil
}

// Update applies the frame's registered set: objects that disappeared or changed vertex count
// are killed, new objects are placed first-fit in the existing pools or a new one, and the
// geometry and uniforms of the others are refreshed. Every pool is then updated and empty pools
// other than the first are retired. Data errors skip the object and are logged; a resident
// object with a data error is killed so it is not drawn with stale data.
//
// Returns:
//   - GroupUpdate: what the update did
func (g *BatchGroup) Update() GroupUpdate {
	var u GroupUpdate
	primary := g.instanced.Attributes[0]

	for id, res := range g.resident {
		if _, ok := g.registered[id]; !ok {
			g.kill(id, res)
			u.Removed++
		}
	}

	for _, r := range g.frame {
		res, ok := g.resident[r.ID]
		if ok && res.handle.Length() != len(r.Geometry[primary.Name]) {
			g.kill(r.ID, res)
			ok = false
		}

		if !ok {
			if err := g.add(r); err != nil {
				g.skip(r.ID, err)
				u.Skipped++
				continue
			}
			u.Added++
			continue
		}

		// A resident object with bad data is dropped for the frame and placed again once valid.
		if r.GeometryVersion != res.version {
			if err := res.pool.SetGeometry(res.handle, r.Geometry); err != nil {
				g.kill(r.ID, res)
				g.skip(r.ID, err)
				u.Skipped++
				continue
			}
			res.version = r.GeometryVersion
		}
		if _, _, err := res.pool.SetUniforms(res.handle, r.Uniforms); err != nil {
			g.kill(r.ID, res)
			g.skip(r.ID, err)
			u.Skipped++
		}
	}

	kept := g.pools[:0]
	for i, p := range g.pools {
		pu := p.Update()
		if pu.Resized {
			u.Resized++
		}
		if pu.FullRewrite {
			u.FullRewrites++
		}
		u.VertexBytes += pu.VertexBytes
		u.TableBytes += pu.TableBytes

		if i > 0 && p.Len() == 0 {
			g.retired = append(g.retired, p)
			continue
		}
		kept = append(kept, p)
	}
	clear(g.pools[len(kept):])
	g.pools = kept

	clear(g.frame)
	g.frame = g.frame[:0]
	clear(g.registered)

	if len(g.resident) == 0 {
		g.idleFrames++
	} else {
		g.idleFrames = 0
	}

	u.Pools = len(g.pools)
	u.Resident = len(g.resident)
	return u
}

func (g *BatchGroup) kill(id ObjectID, res *resident) {
	if err := res.pool.Kill(res.handle); err != nil {
		slog.Warn("batch: kill rejected", "group", g.key, "object", id, "err", err)
	}
	delete(g.resident, id)
}

func (g *BatchGroup) skip(id ObjectID, err error) {
	slog.Warn("batch: object skipped", "group", g.key, "object", id, "err", err)
}

// add places a new object in the first pool that takes it, creating a pool when all are full.
func (g *BatchGroup) add(r Renderable) error {
	for _, p := range g.pools {
		h, err := p.RegisterNewInstance(r.Geometry, r.Uniforms)
		if errors.Is(err, ErrPoolFull) {
			continue
		}
		if err != nil {
			return err
		}
		g.resident[r.ID] = &resident{pool: p, handle: h, version: r.GeometryVersion}
		return nil
	}

	p := NewInstancePool(fmt.Sprintf("%s/pool%d", g.key, g.poolSeq), g.instanced, g.cfg)
	g.poolSeq++
	g.pools = append(g.pools, p)
	h, err := p.RegisterNewInstance(r.Geometry, r.Uniforms)
	if err != nil {
		return err
	}
	g.resident[r.ID] = &resident{pool: p, handle: h, version: r.GeometryVersion}
	return nil
}

// Render releases retired pools, registers the group's pipeline on first use and draws every pool.
//
// Parameters:
//   - device: the device to draw with
//   - shared: providers of the bind groups the shaders declare besides the table, texture and
//     reflection groups, keyed by group index
//
// Returns:
//   - int: the number of draws issued
//   - error: a pipeline, bind group or draw error
func (g *BatchGroup) Render(device Device, shared map[int]bind_group_provider.BindGroupProvider) (int, error) {
	for _, p := range g.retired {
		p.Release()
	}
	g.retired = nil

	if len(g.pools) == 0 {
		return 0, nil
	}

	groups, err := g.bindGroups(shared)
	if err != nil {
		return 0, err
	}
	if !g.pipelineReady {
		if err := g.initPipeline(device, groups); err != nil {
			return 0, err
		}
		g.pipelineReady = true
	}

	draws := 0
	var errs []error
	for _, p := range g.pools {
		drew, err := p.Render(device, g.key, groups)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if drew {
			draws++
		}
	}
	return draws, errors.Join(errs...)
}

// bindGroups lays out the group's non-table providers by bind group index.
func (g *BatchGroup) bindGroups(shared map[int]bind_group_provider.BindGroupProvider) ([]bind_group_provider.BindGroupProvider, error) {
	in := g.instanced
	size := max(in.TableGroup, in.TextureGroup, in.ReflectionGroup) + 1
	for _, idx := range in.SharedGroups() {
		size = max(size, idx+1)
	}
	groups := make([]bind_group_provider.BindGroupProvider, size)

	for _, idx := range in.SharedGroups() {
		p, ok := shared[idx]
		if !ok || p == nil {
			return nil, fmt.Errorf("%w: group %d of %s", ErrMissingBindGroup, idx, in.Template.Name)
		}
		groups[idx] = p
	}
	if in.TextureGroup >= 0 {
		if g.identity.Texture == nil {
			return nil, fmt.Errorf("%w: %s samples a texture at group %d", ErrMissingTexture, in.Template.Name, in.TextureGroup)
		}
		groups[in.TextureGroup] = g.identity.Texture
	}
	if in.ReflectionGroup >= 0 {
		if g.identity.ReflectionMap == nil {
			return nil, fmt.Errorf("%w: %s samples a reflection map at group %d", ErrMissingTexture, in.Template.Name, in.ReflectionGroup)
		}
		groups[in.ReflectionGroup] = g.identity.ReflectionMap
	}
	return groups, nil
}

// initPipeline registers the group's pipeline and creates the bind groups of providers that have none yet.
func (g *BatchGroup) initPipeline(device Device, groups []bind_group_provider.BindGroupProvider) error {
	p := pipeline.NewPipeline(g.key,
		pipeline.WithVertexShader(g.instanced.Vertex),
		pipeline.WithFragmentShader(g.instanced.Fragment),
	)
	if err := device.RegisterPipelines(p); err != nil {
		return err
	}
	for idx, provider := range groups {
		if provider == nil || idx == g.instanced.TableGroup || provider.BindGroup() != nil {
			continue
		}
		if err := device.InitBindGroup(provider, g.key, idx); err != nil {
			return fmt.Errorf("batch: %s bind group %d: %w", g.key, idx, err)
		}
	}
	return nil
}

// Release frees every pool and the group's pipeline. The group must not be used afterwards.
//
// Parameters:
//   - device: the device the pipeline was registered with
func (g *BatchGroup) Release(device Device) {
	for _, p := range g.retired {
		p.Release()
	}
	for _, p := range g.pools {
		p.Release()
	}
	g.retired, g.pools = nil, nil
	clear(g.resident)
	if g.pipelineReady {
		device.ReleasePipeline(g.key)
		g.pipelineReady = false
	}
}
