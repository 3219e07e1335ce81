package vkframe

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
)

// chooseSurfaceFormat prefers 8-bit-per-channel RGBA with the sRGB
// non-linear color space and otherwise falls back to the first format
// the surface reports.
func chooseSurfaceFormat(availableFormats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range availableFormats {
		if format.Format == core1_0.FormatR8G8B8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return availableFormats[0]
}

// choosePresentMode prefers mailbox (low-latency triple buffering), then
// FIFO (guaranteed vsync), then whatever the surface reports first.
func choosePresentMode(availablePresentModes []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, presentMode := range availablePresentModes {
		if presentMode == khr_surface.PresentModeMailbox {
			return presentMode
		}
	}
	for _, presentMode := range availablePresentModes {
		if presentMode == khr_surface.PresentModeFIFO {
			return presentMode
		}
	}

	return availablePresentModes[0]
}

// chooseExtent uses the surface's current extent verbatim unless the
// surface reports the "undefined" sentinel width, in which case the
// extent derives from the live drawable size clamped component-wise into
// the supported range.
func chooseExtent(capabilities *khr_surface.SurfaceCapabilities, drawableWidth, drawableHeight int) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	width := clamp(drawableWidth, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width)
	height := clamp(drawableHeight, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height)

	return core1_0.Extent2D{Width: width, Height: height}
}

func clamp(value, low, high int) int {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

// chooseImageCount requests one image beyond the reported minimum to
// reduce driver stalls, never exceeding the maximum. A maximum of 0
// means the surface imposes no upper bound.
func chooseImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

// sharingPolicy picks exclusive access when graphics and present share a
// queue family, and concurrent access across exactly those two families
// otherwise.
func sharingPolicy(indices QueueFamilyIndices) (core1_0.SharingMode, []int) {
	if indices.SameFamily() {
		return core1_0.SharingModeExclusive, nil
	}
	return core1_0.SharingModeConcurrent, []int{*indices.Graphics, *indices.Present}
}

// Swapchain owns the chain of presentable images together with the
// per-image views and framebuffers derived from them. The images belong
// to the platform; the views and framebuffers are owned here and must be
// destroyed before the chain handle. On a surface-extent change the
// whole set is recreated wholesale.
type Swapchain struct {
	extension khr_swapchain.Extension
	handle    khr_swapchain.Swapchain

	Images       []core1_0.Image
	ImageViews   []core1_0.ImageView
	Framebuffers []core1_0.Framebuffer

	Format core1_0.Format
	Extent core1_0.Extent2D
}

// CreateSwapchain builds a new chain for the bound surface using the
// selection rules above. Support data is queried fresh on every call.
func CreateSwapchain(
	device core1_0.Device,
	physicalDevice core1_0.PhysicalDevice,
	binding *SurfaceBinding,
	selector *DeviceSelector,
	drawableWidth, drawableHeight int,
) (*Swapchain, error) {
	extension := khr_swapchain.CreateExtensionFromDevice(device)

	support, err := binding.QuerySupport(physicalDevice)
	if err != nil {
		return nil, err
	}
	if !support.Adequate() {
		return nil, errors.New("surface reports no formats or present modes")
	}

	surfaceFormat := chooseSurfaceFormat(support.Formats)
	presentMode := choosePresentMode(support.PresentModes)
	extent := chooseExtent(support.Capabilities, drawableWidth, drawableHeight)
	imageCount := chooseImageCount(support.Capabilities)

	indices, err := selector.FindQueueFamilies(physicalDevice)
	if err != nil {
		return nil, err
	}
	sharingMode, queueFamilyIndices := sharingPolicy(indices)

	handle, _, err := extension.CreateSwapchain(device, nil, khr_swapchain.SwapchainCreateInfo{
		Surface: binding.Handle(),

		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   support.Capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}

	return &Swapchain{
		extension: extension,
		handle:    handle,
		Format:    surfaceFormat.Format,
		Extent:    extent,
	}, nil
}

// CreateImageViews produces one 2D color view per swapchain image, with
// identity channel mapping and a single mip level and array layer.
func (s *Swapchain) CreateImageViews(device core1_0.Device) error {
	images, _, err := s.handle.SwapchainImages()
	if err != nil {
		return errors.Wrap(err, "fetch swapchain images")
	}
	s.Images = images

	var imageViews []core1_0.ImageView
	for _, image := range images {
		view, _, err := device.CreateImageView(nil, core1_0.ImageViewCreateInfo{
			ViewType: core1_0.ImageViewType2D,
			Image:    image,
			Format:   s.Format,
			Components: core1_0.ComponentMapping{
				R: core1_0.ComponentSwizzleIdentity,
				G: core1_0.ComponentSwizzleIdentity,
				B: core1_0.ComponentSwizzleIdentity,
				A: core1_0.ComponentSwizzleIdentity,
			},
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		})
		if err != nil {
			return errors.Wrap(err, "create swapchain image view")
		}

		imageViews = append(imageViews, view)
	}
	s.ImageViews = imageViews

	return nil
}

// CreateFramebuffers produces one framebuffer per image view, sized to
// the chosen extent, each with a single color attachment bound to
// renderPass.
func (s *Swapchain) CreateFramebuffers(device core1_0.Device, renderPass core1_0.RenderPass) error {
	for _, imageView := range s.ImageViews {
		framebuffer, _, err := device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
			RenderPass: renderPass,
			Layers:     1,
			Attachments: []core1_0.ImageView{
				imageView,
			},
			Width:  s.Extent.Width,
			Height: s.Extent.Height,
		})
		if err != nil {
			return errors.Wrap(err, "create framebuffer")
		}

		s.Framebuffers = append(s.Framebuffers, framebuffer)
	}

	return nil
}

// targetsConsistent reports the structural invariant that every image
// has exactly one view and one framebuffer.
func (s *Swapchain) targetsConsistent() bool {
	return len(s.Images) == len(s.ImageViews) && len(s.ImageViews) == len(s.Framebuffers)
}

// AcquireNextImage hands out the next presentable image index, signaling
// the given semaphore when the image is ready to be rendered to. A stale
// surface maps to ErrSurfaceOutOfDate; a suboptimal surface is tolerated
// and proceeds.
func (s *Swapchain) AcquireNextImage(imageAvailable core1_0.Semaphore) (int, error) {
	imageIndex, res, err := s.handle.AcquireNextImage(common.NoTimeout, imageAvailable, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return 0, ErrSurfaceOutOfDate
	}
	if err != nil {
		return 0, errors.Wrap(err, "acquire swapchain image")
	}
	return imageIndex, nil
}

// Present queues the image at imageIndex for presentation once
// renderFinished signals. A stale surface maps to ErrSurfaceOutOfDate; a
// suboptimal result presents anyway.
func (s *Swapchain) Present(presentQueue core1_0.Queue, imageIndex int, renderFinished core1_0.Semaphore) error {
	res, err := s.extension.QueuePresent(presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{renderFinished},
		Swapchains:     []khr_swapchain.Swapchain{s.handle},
		ImageIndices:   []int{imageIndex},
	})
	if res == khr_swapchain.VKErrorOutOfDate {
		return ErrSurfaceOutOfDate
	}
	if err != nil && res != khr_swapchain.VKSuboptimal {
		return errors.Wrap(err, "present swapchain image")
	}
	return nil
}

// Destroy releases framebuffers, then image views, then the chain handle
// itself. The images are platform-owned and not freed here.
func (s *Swapchain) Destroy() {
	for _, framebuffer := range s.Framebuffers {
		framebuffer.Destroy(nil)
	}
	s.Framebuffers = nil

	for _, imageView := range s.ImageViews {
		imageView.Destroy(nil)
	}
	s.ImageViews = nil
	s.Images = nil

	if s.handle != nil {
		s.handle.Destroy(nil)
		s.handle = nil
	}
}
