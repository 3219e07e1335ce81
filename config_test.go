package vkframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, "vkframe", cfg.AppName)
	assert.Equal(t, DefaultMaxFramesInFlight, cfg.MaxFramesInFlight)
	assert.Equal(t, "shaders", cfg.ShaderDir)
	assert.Equal(t, "basic", cfg.ShaderName)
	assert.False(t, cfg.EnableValidation)
	assert.Empty(t, cfg.PipelineCachePath)
}

func TestConfigExplicitValuesKept(t *testing.T) {
	cfg := Config{
		AppName:           "demo",
		MaxFramesInFlight: 3,
		ShaderDir:         "assets",
		ShaderName:        "tri",
	}.withDefaults()

	assert.Equal(t, "demo", cfg.AppName)
	assert.Equal(t, 3, cfg.MaxFramesInFlight)
	assert.Equal(t, "assets", cfg.ShaderDir)
	assert.Equal(t, "tri", cfg.ShaderName)
}
