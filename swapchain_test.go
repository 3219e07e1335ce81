package vkframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
)

func TestChooseSurfaceFormatPrefersSRGB(t *testing.T) {
	formats := []khr_surface.SurfaceFormat{
		{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		{Format: core1_0.FormatR8G8B8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
	}

	chosen := chooseSurfaceFormat(formats)
	assert.Equal(t, core1_0.FormatR8G8B8A8SRGB, chosen.Format)
	assert.Equal(t, khr_surface.ColorSpaceSRGBNonlinear, chosen.ColorSpace)
}

func TestChooseSurfaceFormatFallsBackToFirst(t *testing.T) {
	formats := []khr_surface.SurfaceFormat{
		{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
	}

	chosen := chooseSurfaceFormat(formats)
	assert.Equal(t, formats[0], chosen)
}

func TestChooseSurfaceFormatIgnoresWrongColorSpace(t *testing.T) {
	formats := []khr_surface.SurfaceFormat{
		{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		{Format: core1_0.FormatR8G8B8A8SRGB, ColorSpace: khr_surface.ColorSpace(1000104002)},
	}

	chosen := chooseSurfaceFormat(formats)
	assert.Equal(t, formats[0], chosen)
}

func TestChoosePresentModePrefersMailbox(t *testing.T) {
	modes := []khr_surface.PresentMode{
		khr_surface.PresentModeFIFO,
		khr_surface.PresentModeMailbox,
		khr_surface.PresentModeImmediate,
	}

	assert.Equal(t, khr_surface.PresentModeMailbox, choosePresentMode(modes))
}

func TestChoosePresentModeFallsBackToFIFO(t *testing.T) {
	modes := []khr_surface.PresentMode{
		khr_surface.PresentModeImmediate,
		khr_surface.PresentModeFIFO,
	}

	assert.Equal(t, khr_surface.PresentModeFIFO, choosePresentMode(modes))
}

func TestChoosePresentModeLastResortIsFirst(t *testing.T) {
	modes := []khr_surface.PresentMode{
		khr_surface.PresentModeImmediate,
		khr_surface.PresentModeFIFORelaxed,
	}

	assert.Equal(t, khr_surface.PresentModeImmediate, choosePresentMode(modes))
}

func TestChooseExtentUsesCurrentExtentWhenDefined(t *testing.T) {
	caps := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: 1280, Height: 720},
		MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
	}

	extent := chooseExtent(caps, 640, 480)
	assert.Equal(t, core1_0.Extent2D{Width: 1280, Height: 720}, extent)
}

func TestChooseExtentClampsDrawableSize(t *testing.T) {
	caps := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
		MinImageExtent: core1_0.Extent2D{Width: 320, Height: 240},
		MaxImageExtent: core1_0.Extent2D{Width: 1920, Height: 1080},
	}

	assert.Equal(t, core1_0.Extent2D{Width: 1920, Height: 1080}, chooseExtent(caps, 2560, 1440))
	assert.Equal(t, core1_0.Extent2D{Width: 320, Height: 240}, chooseExtent(caps, 100, 100))
	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, chooseExtent(caps, 800, 600))
}

func TestChooseImageCountRequestsMinPlusOne(t *testing.T) {
	caps := &khr_surface.SurfaceCapabilities{
		MinImageCount: 2,
		MaxImageCount: 8,
	}

	assert.Equal(t, 3, chooseImageCount(caps))
}

func TestChooseImageCountRespectsMaximum(t *testing.T) {
	caps := &khr_surface.SurfaceCapabilities{
		MinImageCount: 3,
		MaxImageCount: 3,
	}

	assert.Equal(t, 3, chooseImageCount(caps))
}

func TestChooseImageCountZeroMaxMeansUnbounded(t *testing.T) {
	caps := &khr_surface.SurfaceCapabilities{
		MinImageCount: 4,
		MaxImageCount: 0,
	}

	assert.Equal(t, 5, chooseImageCount(caps))
}

func TestSharingPolicySameFamilyIsExclusive(t *testing.T) {
	family := 0
	indices := QueueFamilyIndices{Graphics: &family, Present: &family}

	mode, families := sharingPolicy(indices)
	assert.Equal(t, core1_0.SharingModeExclusive, mode)
	assert.Empty(t, families)
}

func TestSharingPolicySplitFamiliesIsConcurrent(t *testing.T) {
	graphics := 0
	present := 2
	indices := QueueFamilyIndices{Graphics: &graphics, Present: &present}

	mode, families := sharingPolicy(indices)
	assert.Equal(t, core1_0.SharingModeConcurrent, mode)
	require.Len(t, families, 2)
	assert.Equal(t, []int{0, 2}, families)
}

func TestTargetsConsistent(t *testing.T) {
	s := &Swapchain{
		Images:       make([]core1_0.Image, 3),
		ImageViews:   make([]core1_0.ImageView, 3),
		Framebuffers: make([]core1_0.Framebuffer, 3),
	}
	assert.True(t, s.targetsConsistent())

	s.Framebuffers = s.Framebuffers[:2]
	assert.False(t, s.targetsConsistent())

	s.Framebuffers = nil
	s.ImageViews = s.ImageViews[:1]
	assert.False(t, s.targetsConsistent())
}

func TestSwapchainSupportAdequate(t *testing.T) {
	assert.False(t, SwapchainSupport{}.Adequate())

	withFormats := SwapchainSupport{
		Formats: []khr_surface.SurfaceFormat{{Format: core1_0.FormatR8G8B8A8SRGB}},
	}
	assert.False(t, withFormats.Adequate())

	complete := SwapchainSupport{
		Formats:      withFormats.Formats,
		PresentModes: []khr_surface.PresentMode{khr_surface.PresentModeFIFO},
	}
	assert.True(t, complete.Adequate())
}
