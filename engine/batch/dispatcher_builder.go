package batch

import (
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-batch/engine/renderer/shader"
)

// DispatcherBuilderOption is a functional option used to configure a Dispatcher during construction.
type DispatcherBuilderOption func(*Dispatcher)

// WithConfig replaces the default Config.
//
// Parameters:
//   - cfg: the sizing and policy parameters
//
// Returns:
//   - DispatcherBuilderOption: a function that sets the config
func WithConfig(cfg Config) DispatcherBuilderOption {
	return func(d *Dispatcher) {
		d.cfg = cfg
	}
}

// WithWorkers sets the number of goroutines that update groups in parallel.
//
// Parameters:
//   - n: the worker count, at least 1
//
// Returns:
//   - DispatcherBuilderOption: a function that sets the worker count
func WithWorkers(n int) DispatcherBuilderOption {
	return func(d *Dispatcher) {
		d.cfg.Workers = n
	}
}

// WithTransformer replaces the default shader.Transformer.
func WithTransformer(t shader.Transformer) DispatcherBuilderOption {
	return func(d *Dispatcher) {
		d.transformer = t
	}
}

// WithSharedBindGroup binds a provider at a group index for every template that declares that
// group outside its per-object uniforms, such as the camera.
//
// Parameters:
//   - group: the bind group index
//   - provider: the provider holding the group's resources
//
// Returns:
//   - DispatcherBuilderOption: a function that registers the provider
func WithSharedBindGroup(group int, provider bind_group_provider.BindGroupProvider) DispatcherBuilderOption {
	return func(d *Dispatcher) {
		d.shared[group] = provider
	}
}

// WithFallbackRenderer sets the renderer of the objects the batcher does not take.
func WithFallbackRenderer(f FallbackRenderer) DispatcherBuilderOption {
	return func(d *Dispatcher) {
		d.fallbackRenderer = f
	}
}
