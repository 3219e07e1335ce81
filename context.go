package vkframe

import (
	"log"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v2"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v2/khr_portability_enumeration"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}

// frameSlot holds the synchronization objects owned by one in-flight
// frame. The fence starts signaled so the first wait on a fresh slot
// returns immediately.
type frameSlot struct {
	imageAvailable core1_0.Semaphore
	renderFinished core1_0.Semaphore
	inFlight       core1_0.Fence
}

// Context owns the full Vulkan object graph for rendering to one
// window, from the instance down to the per-frame sync objects.
// Construction is staged; a failure at any stage unwinds everything
// built so far. Destroy releases the graph in strict reverse order of
// creation.
type Context struct {
	window *sdl.Window
	loader core.Loader
	config Config

	instance       core1_0.Instance
	debugMessenger ext_debug_utils.DebugUtilsMessenger
	binding        *SurfaceBinding
	selector       *DeviceSelector

	physicalDevice core1_0.PhysicalDevice
	deviceProps    *core1_0.PhysicalDeviceProperties
	device         core1_0.Device
	graphicsQueue  core1_0.Queue
	presentQueue   core1_0.Queue

	swapchain *Swapchain
	pipeline  *Pipeline
	recorder  *CommandRecorder
	slots     []frameSlot

	scheduler *FrameScheduler
}

// NewContext builds the full rendering context against window. The
// window must have been created with the Vulkan flag. On error nothing
// is leaked: every object created before the failing stage is released.
func NewContext(window *sdl.Window, cfg Config) (*Context, error) {
	c := &Context{
		window: window,
		config: cfg.withDefaults(),
	}

	err := c.initAll()
	if err != nil {
		c.Destroy()
		return nil, err
	}

	return c, nil
}

func (c *Context) initAll() error {
	var err error
	c.loader, err = core.CreateLoaderFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return errors.Wrap(err, "create vulkan loader")
	}

	err = c.createInstance()
	if err != nil {
		return err
	}

	if c.config.EnableValidation {
		c.debugMessenger, err = createDebugMessenger(c.instance)
		if err != nil {
			return err
		}
	}

	c.binding, err = BindSurface(c.instance, c.window)
	if err != nil {
		return err
	}
	c.selector = NewDeviceSelector(c.binding)

	c.physicalDevice, err = c.selector.PickPhysicalDevice(c.instance)
	if err != nil {
		return err
	}
	c.deviceProps, err = c.physicalDevice.Properties()
	if err != nil {
		return errors.Wrap(err, "query device properties")
	}

	c.device, c.graphicsQueue, c.presentQueue, err = c.selector.CreateLogicalDevice(c.physicalDevice)
	if err != nil {
		return err
	}

	err = c.createSwapchainTargets(nil)
	if err != nil {
		return err
	}

	c.pipeline, err = NewPipeline(c.device, c.deviceProps, c.swapchain.Format, c.Viewport(), c.Scissor(), PipelineConfig{
		AlphaBlend: c.config.AlphaBlend,
		ShaderFS:   c.config.ShaderFS,
		ShaderDir:  c.config.ShaderDir,
		ShaderName: c.config.ShaderName,
		CachePath:  c.config.PipelineCachePath,
	})
	if err != nil {
		return err
	}

	err = c.swapchain.CreateFramebuffers(c.device, c.pipeline.RenderPass())
	if err != nil {
		return err
	}
	if !c.swapchain.targetsConsistent() {
		return errors.New("swapchain images, views, and framebuffers out of step")
	}

	indices, err := c.selector.FindQueueFamilies(c.physicalDevice)
	if err != nil {
		return err
	}
	c.recorder, err = NewCommandRecorder(c.device, *indices.Graphics, c.config.MaxFramesInFlight)
	if err != nil {
		return err
	}

	err = c.createSyncObjects()
	if err != nil {
		return err
	}

	c.scheduler = NewFrameScheduler(c, c.config.MaxFramesInFlight)
	return nil
}

func (c *Context) createInstance() error {
	createInfo := core1_0.InstanceCreateInfo{
		ApplicationName:    c.config.AppName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "vkframe",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := c.window.VulkanGetInstanceExtensions()
	extensions, _, err := c.loader.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "enumerate instance extensions")
	}

	for _, ext := range sdlExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Newf("windowing requires missing instance extension %s", ext)
		}
		createInfo.EnabledExtensionNames = append(createInfo.EnabledExtensionNames, ext)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		createInfo.EnabledExtensionNames = append(createInfo.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		createInfo.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if c.config.EnableValidation {
		_, hasDebugUtils := extensions[ext_debug_utils.ExtensionName]

		layers, _, err := c.loader.AvailableLayers()
		if err != nil {
			return errors.Wrap(err, "enumerate instance layers")
		}

		hasAllLayers := true
		for _, layer := range validationLayers {
			_, hasLayer := layers[layer]
			if !hasLayer {
				hasAllLayers = false
			}
		}

		if hasDebugUtils && hasAllLayers {
			createInfo.EnabledExtensionNames = append(createInfo.EnabledExtensionNames, ext_debug_utils.ExtensionName)
			createInfo.EnabledLayerNames = append(createInfo.EnabledLayerNames, validationLayers...)

			// Covers instance creation itself, before the standalone
			// messenger exists.
			createInfo.Next = debugMessengerCreateInfo()
		} else {
			log.Println("validation requested but unavailable, continuing without")
			c.config.EnableValidation = false
		}
	}

	c.instance, _, err = c.loader.CreateInstance(nil, createInfo)
	if err != nil {
		return errors.Wrap(err, "create instance")
	}

	return nil
}

// createSwapchainTargets builds the chain and its image views, and the
// framebuffers too once a render pass exists. During initial
// construction renderPass is nil and framebuffers are deferred until
// the pipeline is up.
func (c *Context) createSwapchainTargets(renderPass core1_0.RenderPass) error {
	w, h := c.window.VulkanGetDrawableSize()

	swapchain, err := CreateSwapchain(c.device, c.physicalDevice, c.binding, c.selector, int(w), int(h))
	if err != nil {
		return err
	}
	c.swapchain = swapchain

	err = c.swapchain.CreateImageViews(c.device)
	if err != nil {
		return err
	}

	if renderPass != nil {
		err = c.swapchain.CreateFramebuffers(c.device, renderPass)
		if err != nil {
			return err
		}
		if !c.swapchain.targetsConsistent() {
			return errors.New("swapchain images, views, and framebuffers out of step")
		}
	}

	return nil
}

func (c *Context) createSyncObjects() error {
	for i := 0; i < c.config.MaxFramesInFlight; i++ {
		imageAvailable, _, err := c.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "create image-available semaphore")
		}

		renderFinished, _, err := c.device.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			imageAvailable.Destroy(nil)
			return errors.Wrap(err, "create render-finished semaphore")
		}

		fence, _, err := c.device.CreateFence(nil, core1_0.FenceCreateInfo{
			Flags: core1_0.FenceCreateSignaled,
		})
		if err != nil {
			imageAvailable.Destroy(nil)
			renderFinished.Destroy(nil)
			return errors.Wrap(err, "create in-flight fence")
		}

		c.slots = append(c.slots, frameSlot{
			imageAvailable: imageAvailable,
			renderFinished: renderFinished,
			inFlight:       fence,
		})
	}

	return nil
}

// Viewport spans the full swapchain extent with the standard 0..1 depth
// range.
func (c *Context) Viewport() core1_0.Viewport {
	return core1_0.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(c.swapchain.Extent.Width),
		Height:   float32(c.swapchain.Extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
}

// Scissor covers the full swapchain extent.
func (c *Context) Scissor() core1_0.Rect2D {
	return core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: c.swapchain.Extent,
	}
}

// DrawFrame renders and presents one frame. Recoverable surface
// staleness is handled internally; any returned error is fatal.
func (c *Context) DrawFrame() error {
	return c.scheduler.DrawFrame()
}

// NoteResize flags the swapchain for rebuild before the next frame.
// Call it from the window-event handler on resize; some platforms never
// report out-of-date from acquire alone.
func (c *Context) NoteResize() {
	c.scheduler.NoteStale()
}

// FrameStats returns the accumulated CPU frame timings.
func (c *Context) FrameStats() FrameStats {
	return c.scheduler.Stats
}

// WaitIdle blocks until the device finishes all outstanding work. Must
// be called after the frame loop exits and before Destroy.
func (c *Context) WaitIdle() error {
	if c.device == nil {
		return nil
	}
	_, err := c.device.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "wait for device idle")
	}
	return nil
}

func (c *Context) WaitFrameFence(slot int) error {
	_, err := c.device.WaitForFences(true, common.NoTimeout, []core1_0.Fence{c.slots[slot].inFlight})
	if err != nil {
		return errors.Wrapf(err, "wait for frame slot %d fence", slot)
	}
	return nil
}

func (c *Context) ResetFrameFence(slot int) error {
	_, err := c.device.ResetFences([]core1_0.Fence{c.slots[slot].inFlight})
	if err != nil {
		return errors.Wrapf(err, "reset frame slot %d fence", slot)
	}
	return nil
}

func (c *Context) AcquireImage(slot int) (int, error) {
	return c.swapchain.AcquireNextImage(c.slots[slot].imageAvailable)
}

func (c *Context) RecordFrame(slot int, imageIndex int) error {
	return c.recorder.Record(
		slot,
		c.pipeline.RenderPass(),
		c.swapchain.Framebuffers[imageIndex],
		c.pipeline.Handle(),
		c.swapchain.Extent,
		c.Viewport(),
		c.Scissor(),
	)
}

// SubmitFrame hands the slot's command buffer to the graphics queue,
// holding color-attachment output until the acquired image is ready and
// signaling the slot's semaphore and fence on completion.
func (c *Context) SubmitFrame(slot int) error {
	_, err := c.graphicsQueue.Submit(c.slots[slot].inFlight, []core1_0.SubmitInfo{
		{
			WaitSemaphores:   []core1_0.Semaphore{c.slots[slot].imageAvailable},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{c.recorder.Buffer(slot)},
			SignalSemaphores: []core1_0.Semaphore{c.slots[slot].renderFinished},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "submit frame slot %d", slot)
	}
	return nil
}

func (c *Context) PresentFrame(slot int, imageIndex int) error {
	return c.swapchain.Present(c.presentQueue, imageIndex, c.slots[slot].renderFinished)
}

// RecreateSwapchain rebuilds the chain and its dependent targets
// against the current drawable size. Declines without error while the
// window is minimized or has a zero-sized drawable; the next resize or
// restore event triggers another attempt. The pipeline survives
// recreation because viewport and scissor are dynamic state.
func (c *Context) RecreateSwapchain() error {
	w, h := c.window.VulkanGetDrawableSize()
	if w == 0 || h == 0 {
		return nil
	}
	if (c.window.GetFlags() & sdl.WINDOW_MINIMIZED) != 0 {
		return nil
	}

	err := c.WaitIdle()
	if err != nil {
		return err
	}

	c.swapchain.Destroy()
	c.swapchain = nil

	return c.createSwapchainTargets(c.pipeline.RenderPass())
}

// Destroy tears down the context in reverse creation order: sync
// objects, command pool, swapchain targets, pipeline, device, surface,
// debug messenger, instance. Safe on a partially constructed context
// and idempotent.
func (c *Context) Destroy() {
	for _, slot := range c.slots {
		if slot.imageAvailable != nil {
			slot.imageAvailable.Destroy(nil)
		}
		if slot.renderFinished != nil {
			slot.renderFinished.Destroy(nil)
		}
		if slot.inFlight != nil {
			slot.inFlight.Destroy(nil)
		}
	}
	c.slots = nil

	if c.recorder != nil {
		c.recorder.Destroy()
		c.recorder = nil
	}

	if c.swapchain != nil {
		c.swapchain.Destroy()
		c.swapchain = nil
	}

	if c.pipeline != nil {
		c.pipeline.Destroy()
		c.pipeline = nil
	}

	if c.device != nil {
		c.device.Destroy(nil)
		c.device = nil
	}

	if c.binding != nil {
		c.binding.Destroy()
		c.binding = nil
	}

	if c.debugMessenger != nil {
		c.debugMessenger.Destroy(nil)
		c.debugMessenger = nil
	}

	if c.instance != nil {
		c.instance.Destroy(nil)
		c.instance = nil
	}
}
