package vkframe

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"log"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
)

// PipelineConfig fixes the construction-time choices of a Pipeline.
type PipelineConfig struct {
	// AlphaBlend enables src-alpha / one-minus-src-alpha blending on the
	// color attachment instead of straight overwrite.
	AlphaBlend bool

	ShaderFS   fs.FS
	ShaderDir  string
	ShaderName string

	// CachePath, when non-empty, primes the pipeline cache from disk and
	// saves it back on Destroy.
	CachePath string
}

// Pipeline owns the shader modules, render pass, layout, and the
// graphics pipeline object built from them. Immutable after
// construction; viewport and scissor are dynamic state set per command
// buffer, so a resize never rebuilds the pipeline.
type Pipeline struct {
	vertModule core1_0.ShaderModule
	fragModule core1_0.ShaderModule

	renderPass core1_0.RenderPass
	layout     core1_0.PipelineLayout
	pipeline   core1_0.Pipeline

	cache     core1_0.PipelineCache
	cachePath string
}

// NewPipeline builds the render pass and graphics pipeline for the given
// swapchain color format. Any creation failure is fatal to context
// construction; partially created objects are released before returning.
func NewPipeline(
	device core1_0.Device,
	deviceProps *core1_0.PhysicalDeviceProperties,
	colorFormat core1_0.Format,
	initialViewport core1_0.Viewport,
	initialScissor core1_0.Rect2D,
	cfg PipelineConfig,
) (*Pipeline, error) {
	p := &Pipeline{cachePath: cfg.CachePath}

	err := p.createShaderModules(device, cfg)
	if err != nil {
		p.Destroy()
		return nil, err
	}

	err = p.createRenderPass(device, colorFormat)
	if err != nil {
		p.Destroy()
		return nil, err
	}

	err = p.createCache(device, deviceProps)
	if err != nil {
		p.Destroy()
		return nil, err
	}

	err = p.createPipeline(device, initialViewport, initialScissor, cfg.AlphaBlend)
	if err != nil {
		p.Destroy()
		return nil, err
	}

	return p, nil
}

// RenderPass returns the single render pass all framebuffers bind to.
func (p *Pipeline) RenderPass() core1_0.RenderPass {
	return p.renderPass
}

// Handle returns the graphics pipeline object.
func (p *Pipeline) Handle() core1_0.Pipeline {
	return p.pipeline
}

func (p *Pipeline) createShaderModules(device core1_0.Device, cfg PipelineConfig) error {
	var err error
	p.vertModule, err = createShaderModule(device, cfg.ShaderFS, ShaderPath(cfg.ShaderDir, cfg.ShaderName, "vert"))
	if err != nil {
		return err
	}

	p.fragModule, err = createShaderModule(device, cfg.ShaderFS, ShaderPath(cfg.ShaderDir, cfg.ShaderName, "frag"))
	return err
}

// One subpass, one color attachment: cleared on load, stored on
// completion, transitioning undefined -> present-ready. The
// external->subpass dependency holds the subpass's color writes until
// the attachment-output stage is past the implicit layout transition.
func (p *Pipeline) createRenderPass(device core1_0.Device, colorFormat core1_0.Format) error {
	renderPass, _, err := device.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         colorFormat,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				DstAccessMask: core1_0.AccessColorAttachmentWrite,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create render pass")
	}

	p.renderPass = renderPass
	return nil
}

func (p *Pipeline) createPipeline(device core1_0.Device, initialViewport core1_0.Viewport, initialScissor core1_0.Rect2D, alphaBlend bool) error {
	vertStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageVertex,
		Module: p.vertModule,
		Name:   "main",
	}

	fragStage := core1_0.PipelineShaderStageCreateInfo{
		Stage:  core1_0.StageFragment,
		Module: p.fragModule,
		Name:   "main",
	}

	// The triangle is synthesized from the vertex index inside the
	// shader, so the pipeline consumes no vertex bindings at all.
	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               core1_0.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: false,
	}

	// Viewport and scissor are dynamic; the initial values only fix the
	// counts and are overwritten at record time from the live extent.
	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{initialViewport},
		Scissors:  []core1_0.Rect2D{initialScissor},
	}

	dynamicState := &core1_0.PipelineDynamicStateCreateInfo{
		DynamicStates: []core1_0.DynamicState{
			core1_0.DynamicStateViewport,
			core1_0.DynamicStateScissor,
		},
	}

	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: core1_0.PolygonModeFill,
		CullMode:    core1_0.CullModeBack,
		FrontFace:   core1_0.FrontFaceClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: core1_0.Samples1,
		MinSampleShading:     1.0,
	}

	blendAttachment := core1_0.PipelineColorBlendAttachmentState{
		BlendEnabled:   alphaBlend,
		ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
	}
	if alphaBlend {
		blendAttachment.SrcColorBlendFactor = core1_0.BlendFactorSrcAlpha
		blendAttachment.DstColorBlendFactor = core1_0.BlendFactorOneMinusSrcAlpha
		blendAttachment.ColorBlendOp = core1_0.BlendOpAdd
		blendAttachment.SrcAlphaBlendFactor = core1_0.BlendFactorOne
		blendAttachment.DstAlphaBlendFactor = core1_0.BlendFactorZero
		blendAttachment.AlphaBlendOp = core1_0.BlendOpAdd
	}

	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			blendAttachment,
		},
	}

	layout, _, err := device.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{})
	if err != nil {
		return errors.Wrap(err, "create pipeline layout")
	}
	p.layout = layout

	pipelines, _, err := device.CreateGraphicsPipelines(p.cache, nil, []core1_0.GraphicsPipelineCreateInfo{
		{
			Stages: []core1_0.PipelineShaderStageCreateInfo{
				vertStage,
				fragStage,
			},
			VertexInputState:   vertexInput,
			InputAssemblyState: inputAssembly,
			ViewportState:      viewport,
			DynamicState:       dynamicState,
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			ColorBlendState:    colorBlend,
			Layout:             p.layout,
			RenderPass:         p.renderPass,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	})
	if err != nil {
		return errors.Wrap(err, "create graphics pipeline")
	}
	p.pipeline = pipelines[0]

	return nil
}

// Destroy releases the pipeline object first, then the layout and
// render pass, and the shader modules only after the pipeline that
// references them is gone. Saves the pipeline cache to disk beforehand
// when a path is configured.
func (p *Pipeline) Destroy() {
	if p.cache != nil {
		p.saveCache()
		p.cache.Destroy(nil)
		p.cache = nil
	}

	if p.pipeline != nil {
		p.pipeline.Destroy(nil)
		p.pipeline = nil
	}

	if p.layout != nil {
		p.layout.Destroy(nil)
		p.layout = nil
	}

	if p.renderPass != nil {
		p.renderPass.Destroy(nil)
		p.renderPass = nil
	}

	if p.vertModule != nil {
		p.vertModule.Destroy(nil)
		p.vertModule = nil
	}

	if p.fragModule != nil {
		p.fragModule.Destroy(nil)
		p.fragModule = nil
	}
}

const pipelineCacheHeaderVersionOne uint32 = 1

// pipelineCacheHeader mirrors the layout Vulkan defines for the start of
// pipeline cache data: header length, header version, vendor ID, device
// ID, then the device's pipeline cache UUID.
type pipelineCacheHeader struct {
	HeaderLength uint32
	Version      uint32
	VendorID     uint32
	DeviceID     uint32
	CacheUUID    uuid.UUID
}

func parsePipelineCacheHeader(data []byte) (pipelineCacheHeader, error) {
	var header pipelineCacheHeader
	reader := bytes.NewReader(data)

	err := binary.Read(reader, common.ByteOrder, &header.HeaderLength)
	if err != nil {
		return header, errors.Wrap(err, "pipeline cache header length")
	}
	err = binary.Read(reader, common.ByteOrder, &header.Version)
	if err != nil {
		return header, errors.Wrap(err, "pipeline cache header version")
	}
	err = binary.Read(reader, common.ByteOrder, &header.VendorID)
	if err != nil {
		return header, errors.Wrap(err, "pipeline cache vendor id")
	}
	err = binary.Read(reader, common.ByteOrder, &header.DeviceID)
	if err != nil {
		return header, errors.Wrap(err, "pipeline cache device id")
	}
	err = binary.Read(reader, common.ByteOrder, &header.CacheUUID)
	if err != nil {
		return header, errors.Wrap(err, "pipeline cache uuid")
	}

	return header, nil
}

func (h pipelineCacheHeader) matchesDevice(props *core1_0.PhysicalDeviceProperties) error {
	if h.HeaderLength == 0 {
		return errors.New("pipeline cache: zero header length")
	}
	if h.Version != pipelineCacheHeaderVersionOne {
		return errors.Newf("pipeline cache: unsupported header version 0x%x", h.Version)
	}
	if h.VendorID != props.VendorID {
		return errors.Newf("pipeline cache: vendor id 0x%x, device reports 0x%x", h.VendorID, props.VendorID)
	}
	if h.DeviceID != props.DeviceID {
		return errors.Newf("pipeline cache: device id 0x%x, device reports 0x%x", h.DeviceID, props.DeviceID)
	}
	if h.CacheUUID != props.PipelineCacheUUID {
		return errors.Newf("pipeline cache: uuid %s, device reports %s", h.CacheUUID, props.PipelineCacheUUID)
	}
	return nil
}

// createCache primes a pipeline cache from disk when the stored header
// still matches the selected device; a stale cache is deleted and the
// cache starts empty. Without a configured path no cache is used.
func (p *Pipeline) createCache(device core1_0.Device, deviceProps *core1_0.PhysicalDeviceProperties) error {
	if p.cachePath == "" {
		return nil
	}

	initialData, err := os.ReadFile(p.cachePath)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "read pipeline cache %s", p.cachePath)
	}

	if initialData != nil {
		header, err := parsePipelineCacheHeader(initialData)
		if err == nil {
			err = header.matchesDevice(deviceProps)
		}
		if err != nil {
			log.Printf("discarding pipeline cache %s: %v", p.cachePath, err)
			initialData = nil
			// stale entry, repopulated on the next save
			_ = os.Remove(p.cachePath)
		}
	}

	cache, _, err := device.CreatePipelineCache(nil, core1_0.PipelineCacheCreateInfo{
		InitialData: initialData,
	})
	if err != nil {
		return errors.Wrap(err, "create pipeline cache")
	}

	p.cache = cache
	return nil
}

func (p *Pipeline) saveCache() {
	data, _, err := p.cache.CacheData()
	if err != nil {
		log.Printf("fetch pipeline cache data: %v", err)
		return
	}

	err = os.WriteFile(p.cachePath, data, 0o644)
	if err != nil {
		log.Printf("save pipeline cache %s: %v", p.cachePath, err)
	}
}
