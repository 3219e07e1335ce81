package vkframe

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v2"
)

// SwapchainSupport is the capability snapshot for one (device, surface)
// pair. It is queried fresh for every swapchain (re)creation and never
// cached across resize events.
type SwapchainSupport struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

// Adequate reports whether the surface offers at least one format and
// one present mode, the minimum for a usable swapchain.
func (s SwapchainSupport) Adequate() bool {
	return len(s.Formats) > 0 && len(s.PresentModes) > 0
}

// SurfaceBinding owns the presentable surface tied to the window. It is
// created after the instance and destroyed before it.
type SurfaceBinding struct {
	surface khr_surface.Surface
}

// BindSurface creates a surface for window on instance.
func BindSurface(instance core1_0.Instance, window *sdl.Window) (*SurfaceBinding, error) {
	surfaceLoader := khr_surface.CreateExtensionFromInstance(instance)

	surface, err := vkng_sdl2.CreateSurface(instance, surfaceLoader, window)
	if err != nil {
		return nil, errors.Wrap(err, "create window surface")
	}

	return &SurfaceBinding{surface: surface}, nil
}

// Handle returns the underlying surface object.
func (b *SurfaceBinding) Handle() khr_surface.Surface {
	return b.surface
}

// QuerySupport fetches the current capabilities, formats, and present
// modes reported for device against this surface.
func (b *SurfaceBinding) QuerySupport(device core1_0.PhysicalDevice) (SwapchainSupport, error) {
	var support SwapchainSupport
	var err error

	support.Capabilities, _, err = b.surface.PhysicalDeviceSurfaceCapabilities(device)
	if err != nil {
		return support, errors.Wrap(err, "query surface capabilities")
	}

	support.Formats, _, err = b.surface.PhysicalDeviceSurfaceFormats(device)
	if err != nil {
		return support, errors.Wrap(err, "query surface formats")
	}

	support.PresentModes, _, err = b.surface.PhysicalDeviceSurfacePresentModes(device)
	if err != nil {
		return support, errors.Wrap(err, "query surface present modes")
	}

	return support, nil
}

// SupportsPresent reports whether the given queue family of device can
// present to this surface.
func (b *SurfaceBinding) SupportsPresent(device core1_0.PhysicalDevice, queueFamily int) (bool, error) {
	supported, _, err := b.surface.PhysicalDeviceSurfaceSupport(device, queueFamily)
	if err != nil {
		return false, errors.Wrapf(err, "query present support for queue family %d", queueFamily)
	}
	return supported, nil
}

// Destroy releases the surface. Must run before the instance is
// destroyed.
func (b *SurfaceBinding) Destroy() {
	if b.surface != nil {
		b.surface.Destroy(nil)
		b.surface = nil
	}
}
