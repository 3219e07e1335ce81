package vkframe

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShaderPath(t *testing.T) {
	assert.Equal(t, "shaders/basic.vert.spv", ShaderPath("shaders", "basic", "vert"))
	assert.Equal(t, "assets/glsl/tri.frag.spv", ShaderPath("assets/glsl", "tri", "frag"))
}

func TestLoadShaderCodePacksWords(t *testing.T) {
	fsys := fstest.MapFS{
		"shaders/basic.vert.spv": &fstest.MapFile{
			Data: []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00},
		},
	}

	code, err := LoadShaderCode(fsys, "shaders/basic.vert.spv")
	require.NoError(t, err)

	// SPIR-V words are little-endian; the first word is the magic
	// number.
	require.Len(t, code, 2)
	assert.Equal(t, uint32(0x07230203), code[0])
	assert.Equal(t, uint32(0x00010000), code[1])
}

func TestLoadShaderCodeMissingBlob(t *testing.T) {
	_, err := LoadShaderCode(fstest.MapFS{}, "shaders/basic.vert.spv")
	require.Error(t, err)
}

func TestLoadShaderCodeEmptyBlob(t *testing.T) {
	fsys := fstest.MapFS{
		"shaders/basic.frag.spv": &fstest.MapFile{Data: []byte{}},
	}

	_, err := LoadShaderCode(fsys, "shaders/basic.frag.spv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestLoadShaderCodeMisalignedBlob(t *testing.T) {
	fsys := fstest.MapFS{
		"shaders/basic.frag.spv": &fstest.MapFile{Data: []byte{0x03, 0x02, 0x23}},
	}

	_, err := LoadShaderCode(fsys, "shaders/basic.frag.spv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated")
}

func TestBytesToBytecode(t *testing.T) {
	words := bytesToBytecode([]byte{0x01, 0x00, 0x00, 0x00, 0xff, 0xee, 0xdd, 0xcc})
	assert.Equal(t, []uint32{0x00000001, 0xccddeeff}, words)
}
