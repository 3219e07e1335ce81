package vkframe

import (
	"io/fs"
	"path"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// ShaderPath builds the content-addressed location of a compiled SPIR-V
// blob: <dir>/<name>.<stage>.spv. Compilation happens offline; the
// harness only ever consumes the binary blobs.
func ShaderPath(dir, name, stage string) string {
	return path.Join(dir, name+"."+stage+".spv")
}

// LoadShaderCode reads a SPIR-V blob and packs it into the 32-bit words
// Vulkan expects. An unreadable, empty, or misaligned blob is fatal to
// pipeline construction.
func LoadShaderCode(fsys fs.FS, blobPath string) ([]uint32, error) {
	blob, err := fs.ReadFile(fsys, blobPath)
	if err != nil {
		return nil, errors.Wrapf(err, "read shader %s", blobPath)
	}
	if len(blob) == 0 {
		return nil, errors.Newf("shader %s: empty SPIR-V blob", blobPath)
	}
	if len(blob)%4 != 0 {
		return nil, errors.Newf("shader %s: truncated SPIR-V blob (%d bytes)", blobPath, len(blob))
	}

	return bytesToBytecode(blob), nil
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}

func createShaderModule(device core1_0.Device, fsys fs.FS, blobPath string) (core1_0.ShaderModule, error) {
	code, err := LoadShaderCode(fsys, blobPath)
	if err != nil {
		return nil, err
	}

	module, _, err := device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create shader module %s", blobPath)
	}

	return module, nil
}
