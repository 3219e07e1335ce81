package vkframe

import (
	"io/fs"
)

// DefaultMaxFramesInFlight bounds how many frames the CPU may record
// ahead of the GPU.
const DefaultMaxFramesInFlight = 2

// Config carries the construction-time options of a Context. The zero
// value is usable once a ShaderFS is set; everything else has a default.
// There is no runtime configuration surface: options are fixed when the
// context is built.
type Config struct {
	// AppName is reported to the Vulkan implementation at instance
	// creation.
	AppName string

	// MaxFramesInFlight is the number of frame slots cycled round-robin
	// by the scheduler. Must be at least 1. Defaults to
	// DefaultMaxFramesInFlight.
	MaxFramesInFlight int

	// EnableValidation requests the Khronos validation layer and wires
	// the debug-utils messenger. If the extension or layer is absent the
	// messenger is silently skipped; validation absence is never fatal.
	EnableValidation bool

	// AlphaBlend enables src-alpha / one-minus-src-alpha color blending
	// on the single color attachment. Off means straight overwrite.
	AlphaBlend bool

	// ShaderFS is the filesystem holding compiled SPIR-V blobs under
	// ShaderDir, named <name>.<stage>.spv.
	ShaderFS fs.FS

	// ShaderDir is the directory inside ShaderFS holding the blobs.
	// Defaults to "shaders".
	ShaderDir string

	// ShaderName is the base name of the shader pair to load. Defaults
	// to "basic".
	ShaderName string

	// PipelineCachePath, when non-empty, is a file the pipeline cache is
	// primed from and saved back to on teardown. A cache whose header
	// does not match the selected device is discarded.
	PipelineCachePath string
}

func (c Config) withDefaults() Config {
	if c.AppName == "" {
		c.AppName = "vkframe"
	}
	if c.MaxFramesInFlight == 0 {
		c.MaxFramesInFlight = DefaultMaxFramesInFlight
	}
	if c.ShaderDir == "" {
		c.ShaderDir = "shaders"
	}
	if c.ShaderName == "" {
		c.ShaderName = "basic"
	}
	return c
}
