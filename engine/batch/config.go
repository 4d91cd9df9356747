package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-batch/common"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaseSize is the smallest pool capacity in floats.
	DefaultBaseSize = 4096

	// DefaultMaxInstances is the default row count of the instance table, the WebGPU default
	// for maxTextureDimension2D.
	DefaultMaxInstances = 8192

	// DefaultMaxCapacity is the default largest pool capacity in floats.
	DefaultMaxCapacity = DefaultBaseSize << 10

	// DefaultShrinkRatio is the default fraction of the capacity at or below which a pool shrinks.
	DefaultShrinkRatio = 0.5

	// DefaultMaxVertices is the default per-object vertex count above which objects are not batched.
	DefaultMaxVertices = 2048

	// DefaultIdleFrames is the default number of empty frames after which a group is released.
	DefaultIdleFrames = 120

	// DefaultTransformUniform is the default name of the per-object transform uniform.
	DefaultTransformUniform = "modelViewMatrix"
)

// Config holds the sizing and policy parameters of the batcher.
type Config struct {
	// BaseSize is the minimum pool capacity in floats. Capacities are always BaseSize * 2^k.
	BaseSize int `toml:"base_size" yaml:"base_size"`

	// MaxCapacity is the largest pool capacity in floats, a BaseSize * 2^k multiple.
	MaxCapacity int `toml:"max_capacity" yaml:"max_capacity"`

	// MaxInstances is the row count of the instance table and the id limit of a pool.
	MaxInstances int `toml:"max_instances" yaml:"max_instances"`

	// ShrinkRatio is the fraction of the capacity at or below which a pool shrinks, in (0, 1).
	ShrinkRatio float64 `toml:"shrink_ratio" yaml:"shrink_ratio"`

	// MaxVertices is the per-object vertex count above which objects go to the fallback list.
	MaxVertices int `toml:"max_vertices" yaml:"max_vertices"`

	// IdleFrames is the number of frames a group may hold no objects before it is released.
	// Zero keeps idle groups forever.
	IdleFrames int `toml:"idle_frames" yaml:"idle_frames"`

	// TransformUniform names the uniform whose changes take the transform-only update path.
	TransformUniform string `toml:"transform_uniform" yaml:"transform_uniform"`

	// Workers is the number of goroutines preparing groups in parallel. Zero picks one less
	// than the CPU count.
	Workers int `toml:"workers" yaml:"workers"`
}

// DefaultConfig returns the default Config.
func DefaultConfig() Config {
	return Config{
		BaseSize:         DefaultBaseSize,
		MaxCapacity:      DefaultMaxCapacity,
		MaxInstances:     DefaultMaxInstances,
		ShrinkRatio:      DefaultShrinkRatio,
		MaxVertices:      DefaultMaxVertices,
		IdleFrames:       DefaultIdleFrames,
		TransformUniform: DefaultTransformUniform,
	}
}

// maxAttributeComponents is the widest vertex attribute a template can declare (vec4).
const maxAttributeComponents = 4

// Validate checks the relations between the parameters. Any object within MaxVertices fits an
// empty pool of MaxCapacity, so eligible objects are never rejected for size.
//
// Returns:
//   - error: ErrInvalidConfig wrapped with the offending field, or nil
func (c Config) Validate() error {
	switch {
	case c.BaseSize <= 0:
		return fmt.Errorf("%w: base_size must be positive, got %d", ErrInvalidConfig, c.BaseSize)
	case c.BaseSize%4 != 0:
		return fmt.Errorf("%w: base_size must be a multiple of 4, got %d", ErrInvalidConfig, c.BaseSize)
	case !common.IsPow2Multiple(c.BaseSize, c.MaxCapacity):
		return fmt.Errorf("%w: max_capacity %d is not base_size * 2^k", ErrInvalidConfig, c.MaxCapacity)
	case c.MaxInstances <= 0:
		return fmt.Errorf("%w: max_instances must be positive, got %d", ErrInvalidConfig, c.MaxInstances)
	case c.ShrinkRatio <= 0 || c.ShrinkRatio >= 1:
		return fmt.Errorf("%w: shrink_ratio must be in (0, 1), got %g", ErrInvalidConfig, c.ShrinkRatio)
	case c.MaxVertices <= 0:
		return fmt.Errorf("%w: max_vertices must be positive, got %d", ErrInvalidConfig, c.MaxVertices)
	case c.MaxVertices*maxAttributeComponents > c.MaxCapacity:
		return fmt.Errorf("%w: max_vertices %d of %d-component attributes exceed max_capacity %d",
			ErrInvalidConfig, c.MaxVertices, maxAttributeComponents, c.MaxCapacity)
	case c.IdleFrames < 0:
		return fmt.Errorf("%w: idle_frames must not be negative, got %d", ErrInvalidConfig, c.IdleFrames)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	}
	return nil
}

// LoadConfig reads a Config from a .toml, .yaml or .yml file. Fields missing from the file keep
// their DefaultConfig value.
//
// Parameters:
//   - path: the config file path
//
// Returns:
//   - Config: the loaded and validated config
//   - error: a read, decode or validation error
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("batch: unsupported config format %q", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("batch: decode %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}
