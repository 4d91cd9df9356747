package shader

import "cogentcore.org/core/base/errors"

var (
	// ErrMissingEntryPoint is returned when a template stage has no @vertex or @fragment function.
	ErrMissingEntryPoint = errors.New("shader: missing entry point")

	// ErrUnsupportedUniform is returned when a table uniform has a type outside the supported kinds.
	ErrUnsupportedUniform = errors.New("shader: unsupported uniform type")

	// ErrUniformKindMismatch is returned when both stages declare the same uniform with different types.
	ErrUniformKindMismatch = errors.New("shader: uniform declared with different kinds")

	// ErrUnsupportedEntryPoint is returned when the vertex entry point cannot forward the instance id.
	ErrUnsupportedEntryPoint = errors.New("shader: unsupported entry point shape")

	// ErrUnsupportedAttribute is returned for vertex inputs that cannot be fed from a float buffer.
	ErrUnsupportedAttribute = errors.New("shader: unsupported vertex attribute")

	// ErrUnsupportedValue is returned by UniformLayout.Pack for a value that does not match its uniform kind.
	ErrUnsupportedValue = errors.New("shader: unsupported uniform value")
)
