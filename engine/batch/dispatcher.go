package batch

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"cogentcore.org/core/base/errors"
	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/shader"
)

// route is where the dispatcher sends an object.
type route int

const (
	routeBatch route = iota
	routeFallback
)

// transformResult caches the outcome of transforming one template, failures included.
type transformResult struct {
	instanced *shader.Instanced
	err       error
}

// Dispatcher routes every frame's objects to the BatchGroup of their ShadingIdentity or to the
// fallback list, and draws the groups before the fallback objects.
//
// Dispatch and RenderAll must be called from one goroutine, once each per frame. Dispatch only
// touches CPU state; every GPU call happens in RenderAll.
type Dispatcher struct {
	cfg              Config
	transformer      shader.Transformer
	transforms       map[*shader.Template]transformResult
	shared           map[int]bind_group_provider.BindGroupProvider
	fallbackRenderer FallbackRenderer

	groups   map[ShadingIdentity]*BatchGroup
	order    []*BatchGroup
	retired  []*BatchGroup
	fallback []Renderable
	frameIDs map[ObjectID]struct{}
	groupSeq int

	workers worker.DynamicWorkerPool
	stats   FrameStats
}

// NewDispatcher creates a Dispatcher.
//
// Parameters:
//   - options: DispatcherBuilderOption functions applied in order
//
// Returns:
//   - *Dispatcher: the dispatcher
//   - error: ErrInvalidConfig if the resulting Config does not validate
func NewDispatcher(options ...DispatcherBuilderOption) (*Dispatcher, error) {
	d := &Dispatcher{
		cfg:        DefaultConfig(),
		transforms: make(map[*shader.Template]transformResult),
		shared:     make(map[int]bind_group_provider.BindGroupProvider),
		groups:     make(map[ShadingIdentity]*BatchGroup),
		frameIDs:   make(map[ObjectID]struct{}),
	}
	for _, opt := range options {
		opt(d)
	}
	if err := d.cfg.Validate(); err != nil {
		return nil, err
	}
	if d.transformer == nil {
		d.transformer = shader.NewTransformer()
	}
	if d.cfg.Workers == 0 {
		d.cfg.Workers = max(runtime.NumCPU()-1, 1)
	}

	// One task per group per frame.
	d.workers = worker.NewDynamicWorkerPool(d.cfg.Workers, 256, 1*time.Second)
	return d, nil
}

// Config returns the dispatcher's Config.
func (d *Dispatcher) Config() Config { return d.cfg }

// Groups returns the live groups in creation order.
func (d *Dispatcher) Groups() []*BatchGroup { return d.order }

// Group returns the group of a shading identity.
func (d *Dispatcher) Group(identity ShadingIdentity) (*BatchGroup, bool) {
	g, ok := d.groups[identity]
	return g, ok
}

// Fallback returns this frame's objects that are drawn individually.
func (d *Dispatcher) Fallback() []Renderable { return d.fallback }

// Stats returns the statistics of the last Dispatch and RenderAll.
func (d *Dispatcher) Stats() FrameStats { return d.stats }

// Instanced returns the instanced shaders of a template, transforming it on first use.
// Failures are cached with the template.
//
// Parameters:
//   - tmpl: the template
//
// Returns:
//   - *shader.Instanced: the instanced shaders
//   - error: the transformer's configuration error
func (d *Dispatcher) Instanced(tmpl *shader.Template) (*shader.Instanced, error) {
	if res, ok := d.transforms[tmpl]; ok {
		return res.instanced, res.err
	}
	in, err := d.transformer.Transform(tmpl)
	d.transforms[tmpl] = transformResult{instanced: in, err: err}
	return in, err
}

// Dispatch routes the frame's objects and updates every group, in parallel across groups.
// Objects of templates that fail to transform are skipped and the failures are returned; objects
// with data errors and repeated ObjectIDs are skipped and logged. Only the first occurrence of an
// ObjectID in a frame is routed, so an object lands in one group or the fallback list.
//
// Parameters:
//   - objects: every object to draw this frame
//
// Returns:
//   - error: the joined configuration errors of the frame's templates
func (d *Dispatcher) Dispatch(objects []Renderable) error {
	d.stats = FrameStats{}
	clear(d.fallback)
	d.fallback = d.fallback[:0]

	clear(d.frameIDs)

	var configErrs []error
	seen := make(map[*shader.Template]bool)
	for _, r := range objects {
		if _, dup := d.frameIDs[r.ID]; dup {
			slog.Warn("batch: object skipped", "object", r.ID, "err", fmt.Errorf("%w: %s", ErrDuplicateRegistration, r.ID))
			d.stats.Skipped++
			continue
		}
		d.frameIDs[r.ID] = struct{}{}

		tmpl := r.Identity.Template
		if tmpl == nil {
			d.fallback = append(d.fallback, r)
			continue
		}

		reported := seen[tmpl]
		seen[tmpl] = true
		in, err := d.Instanced(tmpl)
		if err != nil {
			if !reported {
				configErrs = append(configErrs, fmt.Errorf("batch: template %s: %w", tmpl.Name, err))
			}
			d.stats.Skipped++
			continue
		}

		rt, err := d.classify(r, in)
		if err != nil {
			slog.Warn("batch: object skipped", "template", tmpl.Name, "object", r.ID, "err", err)
			d.stats.Skipped++
			continue
		}
		switch rt {
		case routeFallback:
			d.fallback = append(d.fallback, r)
		case routeBatch:
			if err := d.group(r.Identity, in).Register(r); err != nil {
				slog.Warn("batch: object skipped", "template", tmpl.Name, "object", r.ID, "err", err)
				d.stats.Skipped++
			}
		}
	}

	d.updateGroups()
	d.retireIdle()

	for tmpl := range d.transforms {
		if !seen[tmpl] && !d.hasGroup(tmpl) {
			delete(d.transforms, tmpl)
		}
	}

	d.stats.Groups = len(d.order)
	d.stats.Fallback = len(d.fallback)
	return errors.Join(configErrs...)
}

// classify decides whether an object can be batched with the instanced shaders of its template.
func (d *Dispatcher) classify(r Renderable, in *shader.Instanced) (route, error) {
	primary := in.Attributes[0]
	if len(r.Geometry[primary.Name])/primary.Components > d.cfg.MaxVertices {
		return routeFallback, nil
	}

	if r.Features >= featureEnd {
		return routeFallback, nil
	}
	caps := capabilitiesOf(in)
	for f := Feature(1); f < featureEnd; f <<= 1 {
		if r.Features&f == 0 {
			continue
		}
		switch f {
		case FeatureTexture:
			if !caps.Textured {
				return routeFallback, nil
			}
		case FeatureReflectionMap:
			if !caps.Reflective {
				return routeFallback, nil
			}
		case FeatureEdges, FeatureVertices, FeatureLabels:
			return routeFallback, nil
		default:
			return routeFallback, nil
		}
	}

	if caps.Textured && r.Identity.Texture == nil {
		return routeBatch, fmt.Errorf("%w: %s samples a texture", ErrMissingTexture, in.Template.Name)
	}
	if caps.Reflective && r.Identity.ReflectionMap == nil {
		return routeBatch, fmt.Errorf("%w: %s samples a reflection map", ErrMissingTexture, in.Template.Name)
	}
	return routeBatch, nil
}

// group returns the group of identity, creating it on first use.
func (d *Dispatcher) group(identity ShadingIdentity, in *shader.Instanced) *BatchGroup {
	if g, ok := d.groups[identity]; ok {
		return g
	}
	g := NewBatchGroup(fmt.Sprintf("batch/%s/%d", identity.Template.Name, d.groupSeq), identity, in, d.cfg)
	d.groupSeq++
	d.groups[identity] = g
	d.order = append(d.order, g)
	return g
}

func (d *Dispatcher) hasGroup(tmpl *shader.Template) bool {
	for _, g := range d.order {
		if g.identity.Template == tmpl {
			return true
		}
	}
	return false
}

// updateGroups runs every group's Update on the worker pool and waits for all of them.
func (d *Dispatcher) updateGroups() {
	results := make([]GroupUpdate, len(d.order))
	var wg sync.WaitGroup
	for i, g := range d.order {
		wg.Add(1)
		d.workers.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				results[i] = g.Update()
				return nil, nil
			},
		})
	}
	wg.Wait()

	for _, u := range results {
		d.stats.addGroup(u)
	}
}

// retireIdle moves groups idle for IdleFrames updates to the release list of the next RenderAll.
func (d *Dispatcher) retireIdle() {
	if d.cfg.IdleFrames == 0 {
		return
	}
	kept := d.order[:0]
	for _, g := range d.order {
		if g.IdleFrames() < d.cfg.IdleFrames {
			kept = append(kept, g)
			continue
		}
		slog.Debug("batch: releasing idle group", "group", g.Key())
		delete(d.groups, g.identity)
		d.retired = append(d.retired, g)
	}
	clear(d.order[len(kept):])
	d.order = kept
}

// RenderAll releases retired groups, draws every group in creation order and then hands the
// fallback list to the FallbackRenderer.
//
// Parameters:
//   - device: the device to draw with
//
// Returns:
//   - error: the joined group and fallback errors
func (d *Dispatcher) RenderAll(device Device) error {
	for _, g := range d.retired {
		g.Release(device)
	}
	d.retired = nil

	var errs []error
	for _, g := range d.order {
		n, err := g.Render(device, d.shared)
		d.stats.Draws += n
		if err != nil {
			errs = append(errs, fmt.Errorf("batch: group %s: %w", g.Key(), err))
		}
	}

	if d.fallbackRenderer != nil && len(d.fallback) > 0 {
		if err := d.fallbackRenderer.RenderFallback(d.fallback); err != nil {
			errs = append(errs, fmt.Errorf("batch: fallback: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases every group and stops the worker pool. The dispatcher must not be used afterwards.
//
// Parameters:
//   - device: the device the groups were drawn with
func (d *Dispatcher) Close(device Device) {
	for _, g := range d.retired {
		g.Release(device)
	}
	for _, g := range d.order {
		g.Release(device)
	}
	d.retired, d.order = nil, nil
	clear(d.groups)
	d.workers.Stop()
}
