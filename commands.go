package vkframe

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// CommandRecorder owns the command pool and one primary command buffer
// per frame in flight. Buffers are re-recorded every frame, so the pool
// is created reset-capable.
type CommandRecorder struct {
	pool    core1_0.CommandPool
	buffers []core1_0.CommandBuffer
}

func NewCommandRecorder(device core1_0.Device, graphicsFamily int, frameCount int) (*CommandRecorder, error) {
	pool, _, err := device.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: graphicsFamily,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}

	buffers, _, err := device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: frameCount,
	})
	if err != nil {
		pool.Destroy(nil)
		return nil, errors.Wrap(err, "allocate command buffers")
	}

	return &CommandRecorder{
		pool:    pool,
		buffers: buffers,
	}, nil
}

// Buffer returns the command buffer for the given frame slot.
func (r *CommandRecorder) Buffer(slot int) core1_0.CommandBuffer {
	return r.buffers[slot]
}

// Record resets the slot's buffer and records the full frame: begin the
// render pass on the acquired image's framebuffer, bind the pipeline,
// set the dynamic viewport and scissor from the live extent, and draw
// three vertices.
func (r *CommandRecorder) Record(
	slot int,
	renderPass core1_0.RenderPass,
	framebuffer core1_0.Framebuffer,
	pipeline core1_0.Pipeline,
	extent core1_0.Extent2D,
	viewport core1_0.Viewport,
	scissor core1_0.Rect2D,
) error {
	buffer := r.buffers[slot]

	_, err := buffer.Reset(0)
	if err != nil {
		return errors.Wrapf(err, "reset command buffer for frame slot %d", slot)
	}

	_, err = buffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return errors.Wrapf(err, "begin command buffer for frame slot %d", slot)
	}

	err = buffer.CmdBeginRenderPass(core1_0.SubpassContentsInline, core1_0.RenderPassBeginInfo{
		RenderPass:  renderPass,
		Framebuffer: framebuffer,
		RenderArea: core1_0.Rect2D{
			Offset: core1_0.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		ClearValues: []core1_0.ClearValue{
			core1_0.ClearValueFloat{0.2, 0.2, 0.2, 1},
		},
	})
	if err != nil {
		return errors.Wrap(err, "begin render pass")
	}

	buffer.CmdBindPipeline(core1_0.PipelineBindPointGraphics, pipeline)
	buffer.CmdSetViewport([]core1_0.Viewport{viewport})
	buffer.CmdSetScissor([]core1_0.Rect2D{scissor})
	buffer.CmdDraw(3, 1, 0, 0)
	buffer.CmdEndRenderPass()

	_, err = buffer.End()
	if err != nil {
		return errors.Wrap(err, "end command buffer")
	}

	return nil
}

// Destroy releases the pool along with every buffer allocated from it.
func (r *CommandRecorder) Destroy() {
	if r.pool != nil {
		r.pool.Destroy(nil)
		r.pool = nil
	}
	r.buffers = nil
}
