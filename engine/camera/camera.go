package camera

import (
	"strconv"
	"sync"
	"sync/atomic"

	"cogentcore.org/core/math32"
	"github.com/Carmen-Shannon/oxy-batch/common"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/bind_group_provider"
)

const (
	// ProjectionBinding is the binding of the projectionMatrix uniform within the camera's bind group.
	ProjectionBinding = 0

	// ViewBinding is the binding of the viewMatrix uniform within the camera's bind group.
	ViewBinding = 1
)

// cameraCount is an atomic counter used to generate unique bind group provider names for each camera instance.
var cameraCount atomic.Uint64

type cameraImpl struct {
	mu sync.Mutex

	target    math32.Vector3
	up        math32.Vector3
	radius    float32
	azimuth   float32
	elevation float32

	minRadius    float32
	maxRadius    float32
	maxElevation float32

	fov    float32
	aspect float32
	near   float32
	far    float32

	view       math32.Matrix4
	projection math32.Matrix4

	bindGroupProvider bind_group_provider.BindGroupProvider
}

// Camera is a perspective camera orbiting a target point. It supplies the projectionMatrix and
// viewMatrix uniforms that every batched template reads from a shared bind group.
type Camera interface {
	// Position returns the world-space eye position.
	Position() math32.Vector3

	// Target returns the look-at point.
	Target() math32.Vector3

	// Radius returns the distance between the eye and the target.
	Radius() float32

	// Fov returns the vertical field of view in degrees.
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// ViewMatrix returns the current view matrix.
	//
	// Returns:
	//   - math32.Matrix4: the world to eye transform
	ViewMatrix() math32.Matrix4

	// ProjectionMatrix returns the current perspective projection matrix.
	//
	// Returns:
	//   - math32.Matrix4: the eye to clip transform
	ProjectionMatrix() math32.Matrix4

	// BindGroupProvider returns the provider holding the camera's uniform buffers.
	//
	// Returns:
	//   - bind_group_provider.BindGroupProvider: the camera's provider
	BindGroupProvider() bind_group_provider.BindGroupProvider

	// Orbit rotates the eye around the target. Elevation is clamped short of the poles.
	//
	// Parameters:
	//   - dAzimuth: the azimuth change in radians
	//   - dElevation: the elevation change in radians
	Orbit(dAzimuth, dElevation float32)

	// Zoom scales the orbit radius, clamped to the radius bounds.
	//
	// Parameters:
	//   - factor: the radius multiplier, below 1 to move closer
	Zoom(factor float32)

	// SetTarget moves the look-at point, keeping the orbit angles and radius.
	SetTarget(target math32.Vector3)

	// SetAspect sets the aspect ratio and recomputes the projection.
	SetAspect(aspect float32)

	// Writes returns the buffer writes that upload both matrices to the camera's provider.
	//
	// Returns:
	//   - []bind_group_provider.BufferWrite: one write per matrix binding
	Writes() []bind_group_provider.BufferWrite
}

var _ Camera = &cameraImpl{}

// NewCamera creates a Camera 10 units from the origin looking at it, with a 45 degree field of view.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		up:           math32.Vec3(0, 1, 0),
		radius:       10,
		minRadius:    0.5,
		maxRadius:    1000,
		maxElevation: math32.Pi/2 - 0.01,
		fov:          45,
		aspect:       1,
		near:         0.1,
		far:          1000,
		bindGroupProvider: bind_group_provider.NewBindGroupProvider(
			"camera_" + strconv.FormatUint(cameraCount.Add(1)-1, 10),
		),
	}
	for _, option := range options {
		option(c)
	}
	c.elevation = math32.Clamp(c.elevation, -c.maxElevation, c.maxElevation)
	c.radius = math32.Clamp(c.radius, c.minRadius, c.maxRadius)
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Position() math32.Vector3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position()
}

func (c *cameraImpl) Target() math32.Vector3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameraImpl) Radius() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.radius
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) ViewMatrix() math32.Matrix4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *cameraImpl) ProjectionMatrix() math32.Matrix4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

func (c *cameraImpl) BindGroupProvider() bind_group_provider.BindGroupProvider {
	return c.bindGroupProvider
}

func (c *cameraImpl) Orbit(dAzimuth, dElevation float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.azimuth += dAzimuth
	c.elevation = math32.Clamp(c.elevation+dElevation, -c.maxElevation, c.maxElevation)
	c.updateMatrices()
}

func (c *cameraImpl) Zoom(factor float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.radius = math32.Clamp(c.radius*factor, c.minRadius, c.maxRadius)
	c.updateMatrices()
}

func (c *cameraImpl) SetTarget(target math32.Vector3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = target
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if aspect <= 0 {
		return
	}
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) Writes() []bind_group_provider.BufferWrite {
	c.mu.Lock()
	projection, view := c.projection, c.view
	c.mu.Unlock()

	return []bind_group_provider.BufferWrite{
		{Provider: c.bindGroupProvider, Binding: ProjectionBinding, Data: common.SliceToBytes(projection[:])},
		{Provider: c.bindGroupProvider, Binding: ViewBinding, Data: common.SliceToBytes(view[:])},
	}
}

// position derives the eye from the spherical orbit state. Caller must hold the mutex.
func (c *cameraImpl) position() math32.Vector3 {
	cosElev, sinElev := math32.Cos(c.elevation), math32.Sin(c.elevation)
	offset := math32.Vec3(
		c.radius*cosElev*math32.Sin(c.azimuth),
		c.radius*sinElev,
		c.radius*cosElev*math32.Cos(c.azimuth),
	)
	return c.target.Add(offset)
}

// updateMatrices recomputes the view and projection matrices. Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	eye := c.position()
	var look math32.Quat
	look.SetFromRotationMatrix(math32.NewLookAt(eye, c.target, c.up))
	var world math32.Matrix4
	world.SetTransform(eye, look, math32.Vec3(1, 1, 1))
	if view, err := world.Inverse(); err == nil {
		c.view = *view
	}
	c.projection.SetPerspective(c.fov, c.aspect, c.near, c.far)
}
