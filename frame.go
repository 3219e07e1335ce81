package vkframe

import (
	"time"

	"github.com/loov/hrtime"
)

// frameOps is the slice of the rendering context the scheduler drives.
// Narrow on purpose so frame ordering can be exercised without a GPU.
type frameOps interface {
	WaitFrameFence(slot int) error
	ResetFrameFence(slot int) error

	// AcquireImage returns the swapchain image index to render into, or
	// ErrSurfaceOutOfDate when the swapchain no longer matches the
	// surface.
	AcquireImage(slot int) (int, error)

	RecordFrame(slot int, imageIndex int) error
	SubmitFrame(slot int) error

	// PresentFrame returns ErrSurfaceOutOfDate when presentation found
	// the swapchain stale.
	PresentFrame(slot int, imageIndex int) error

	// RecreateSwapchain rebuilds presentation state against the current
	// drawable size. It may decline (for a minimized window) without
	// error.
	RecreateSwapchain() error
}

// FrameStats accumulates per-frame CPU timings for the draw loop.
type FrameStats struct {
	Frames   int
	Total    time.Duration
	lastTick time.Duration
}

func (s *FrameStats) begin() {
	s.lastTick = hrtime.Now()
}

func (s *FrameStats) end() {
	s.Frames++
	s.Total += hrtime.Now() - s.lastTick
}

// Average returns the mean CPU time spent per frame so far.
func (s *FrameStats) Average() time.Duration {
	if s.Frames == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Frames)
}

// FrameScheduler cycles through the frame slots, overlapping CPU
// recording for one frame with GPU execution of the previous ones.
type FrameScheduler struct {
	ops   frameOps
	slots int

	current         int
	pendingRecreate bool

	Stats FrameStats
}

func NewFrameScheduler(ops frameOps, slots int) *FrameScheduler {
	return &FrameScheduler{
		ops:   ops,
		slots: slots,
	}
}

// CurrentSlot returns the frame slot the next DrawFrame call will use.
func (s *FrameScheduler) CurrentSlot() int {
	return s.current
}

// NoteStale marks the swapchain for recreation before the next frame.
// Used for resize events that Vulkan itself may not report as
// out-of-date on every platform.
func (s *FrameScheduler) NoteStale() {
	s.pendingRecreate = true
}

// DrawFrame runs one iteration of the frame loop on the current slot:
// wait for the slot's previous submission, reset its fence, acquire an
// image, record and submit, then present. A stale swapchain during
// acquire is rebuilt and the acquire retried once; if the surface is
// still unusable the frame is skipped so the caller can pump events
// again. A stale swapchain during present defers recreation to the top
// of the next frame, since the submitted work already completed.
func (s *FrameScheduler) DrawFrame() error {
	s.Stats.begin()
	defer s.Stats.end()

	if s.pendingRecreate {
		s.pendingRecreate = false
		err := s.ops.RecreateSwapchain()
		if err != nil {
			return err
		}
	}

	slot := s.current

	err := s.ops.WaitFrameFence(slot)
	if err != nil {
		return err
	}

	imageIndex, err := s.ops.AcquireImage(slot)
	if IsRecoverable(err) {
		err = s.ops.RecreateSwapchain()
		if err != nil {
			return err
		}

		imageIndex, err = s.ops.AcquireImage(slot)
		if IsRecoverable(err) {
			// Still stale after a rebuild. Skip this frame; the slot's
			// fence stays signaled so nothing is lost.
			return nil
		}
	}
	if err != nil {
		return err
	}

	err = s.ops.ResetFrameFence(slot)
	if err != nil {
		return err
	}

	err = s.ops.RecordFrame(slot, imageIndex)
	if err != nil {
		return err
	}

	err = s.ops.SubmitFrame(slot)
	if err != nil {
		return err
	}

	err = s.ops.PresentFrame(slot, imageIndex)
	if IsRecoverable(err) {
		s.pendingRecreate = true
		err = nil
	}
	if err != nil {
		return err
	}

	s.current = (s.current + 1) % s.slots
	return nil
}
