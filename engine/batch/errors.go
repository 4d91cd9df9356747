package batch

import "cogentcore.org/core/base/errors"

var (
	// ErrPoolFull is returned by RegisterNewInstance when the pool has no free id or the
	// instance would push the pool past its maximum capacity.
	ErrPoolFull = errors.New("batch: instance pool full")

	// ErrNotDrawable is returned for geometry without any vertex.
	ErrNotDrawable = errors.New("batch: object is not drawable")

	// ErrInconsistentAttributes is returned when a geometry lacks an attribute or its attribute
	// arrays disagree on the vertex count.
	ErrInconsistentAttributes = errors.New("batch: inconsistent vertex attributes")

	// ErrStaleHandle is returned when a handle is used after it was killed or with a pool it
	// does not belong to.
	ErrStaleHandle = errors.New("batch: stale instance handle")

	// ErrDuplicateRegistration is returned when an object is registered twice in one frame.
	ErrDuplicateRegistration = errors.New("batch: object registered twice in one frame")

	// ErrMissingTexture is returned when a template samples a texture or reflection map that the
	// object's shading identity does not provide.
	ErrMissingTexture = errors.New("batch: shading identity is missing a texture")

	// ErrMissingBindGroup is returned when a template declares a shared bind group no provider
	// was registered for.
	ErrMissingBindGroup = errors.New("batch: no shared bind group provider")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("batch: invalid config")
)
