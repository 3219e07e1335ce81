package vkframe

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFrameOps records the call sequence the scheduler issues so
// ordering properties can be asserted without touching a GPU.
type fakeFrameOps struct {
	calls []string

	// consumed one per AcquireImage call; nil means success with the
	// next round-robin image index
	acquireErrs []error
	presentErrs []error
	recreateErr error

	nextImage int
}

func (f *fakeFrameOps) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeFrameOps) WaitFrameFence(slot int) error {
	f.record("wait %d", slot)
	return nil
}

func (f *fakeFrameOps) ResetFrameFence(slot int) error {
	f.record("reset %d", slot)
	return nil
}

func (f *fakeFrameOps) AcquireImage(slot int) (int, error) {
	f.record("acquire %d", slot)
	if len(f.acquireErrs) > 0 {
		err := f.acquireErrs[0]
		f.acquireErrs = f.acquireErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	image := f.nextImage
	f.nextImage++
	return image, nil
}

func (f *fakeFrameOps) RecordFrame(slot int, imageIndex int) error {
	f.record("record %d image %d", slot, imageIndex)
	return nil
}

func (f *fakeFrameOps) SubmitFrame(slot int) error {
	f.record("submit %d", slot)
	return nil
}

func (f *fakeFrameOps) PresentFrame(slot int, imageIndex int) error {
	f.record("present %d image %d", slot, imageIndex)
	if len(f.presentErrs) > 0 {
		err := f.presentErrs[0]
		f.presentErrs = f.presentErrs[1:]
		return err
	}
	return nil
}

func (f *fakeFrameOps) RecreateSwapchain() error {
	f.record("recreate")
	return f.recreateErr
}

func TestDrawFrameOrdering(t *testing.T) {
	ops := &fakeFrameOps{}
	scheduler := NewFrameScheduler(ops, 2)

	require.NoError(t, scheduler.DrawFrame())

	assert.Equal(t, []string{
		"wait 0",
		"acquire 0",
		"reset 0",
		"record 0 image 0",
		"submit 0",
		"present 0 image 0",
	}, ops.calls)
}

func TestDrawFrameRoundRobin(t *testing.T) {
	ops := &fakeFrameOps{}
	scheduler := NewFrameScheduler(ops, 2)

	for i := 0; i < 5; i++ {
		require.NoError(t, scheduler.DrawFrame())
	}

	var waits []string
	for _, call := range ops.calls {
		if len(call) > 4 && call[:4] == "wait" {
			waits = append(waits, call)
		}
	}
	assert.Equal(t, []string{"wait 0", "wait 1", "wait 0", "wait 1", "wait 0"}, waits)
	assert.Equal(t, 1, scheduler.CurrentSlot())
}

func TestDrawFrameFenceWaitPrecedesReuse(t *testing.T) {
	ops := &fakeFrameOps{}
	scheduler := NewFrameScheduler(ops, 2)

	for i := 0; i < 4; i++ {
		require.NoError(t, scheduler.DrawFrame())
	}

	// For every slot, each wait must come before that iteration's reset
	// and record, and a slot never records twice without an intervening
	// wait.
	lastOp := map[int]string{}
	for _, call := range ops.calls {
		var slot int
		var image int
		switch {
		case scanCall(call, "wait %d", &slot):
			lastOp[slot] = "wait"
		case scanCall(call, "reset %d", &slot):
			assert.Equal(t, "wait", lastOp[slot], "reset without preceding wait on slot %d", slot)
			lastOp[slot] = "reset"
		case scanCall(call, "record %d image %d", &slot, &image):
			assert.Equal(t, "reset", lastOp[slot], "record without preceding reset on slot %d", slot)
			lastOp[slot] = "record"
		}
	}
}

func scanCall(call, format string, args ...any) bool {
	n, err := fmt.Sscanf(call, format, args...)
	return err == nil && n == len(args)
}

func TestDrawFrameRecreatesOnStaleAcquire(t *testing.T) {
	ops := &fakeFrameOps{
		acquireErrs: []error{ErrSurfaceOutOfDate, nil},
	}
	scheduler := NewFrameScheduler(ops, 2)

	require.NoError(t, scheduler.DrawFrame())

	assert.Equal(t, []string{
		"wait 0",
		"acquire 0",
		"recreate",
		"acquire 0",
		"reset 0",
		"record 0 image 0",
		"submit 0",
		"present 0 image 0",
	}, ops.calls)
}

func TestDrawFrameSkipsWhenStillStaleAfterRecreate(t *testing.T) {
	ops := &fakeFrameOps{
		acquireErrs: []error{ErrSurfaceOutOfDate, ErrSurfaceOutOfDate},
	}
	scheduler := NewFrameScheduler(ops, 2)

	require.NoError(t, scheduler.DrawFrame())

	// No submit or present happened, the fence was never reset, and the
	// slot did not advance.
	assert.NotContains(t, ops.calls, "reset 0")
	assert.NotContains(t, ops.calls, "submit 0")
	assert.Equal(t, 0, scheduler.CurrentSlot())
}

func TestDrawFrameDefersRecreateOnStalePresent(t *testing.T) {
	ops := &fakeFrameOps{
		presentErrs: []error{ErrSurfaceOutOfDate},
	}
	scheduler := NewFrameScheduler(ops, 2)

	require.NoError(t, scheduler.DrawFrame())
	assert.NotContains(t, ops.calls, "recreate", "recreation must wait for the next frame")
	assert.Equal(t, 1, scheduler.CurrentSlot(), "a presented frame advances the slot even when stale")

	require.NoError(t, scheduler.DrawFrame())
	assert.Equal(t, "recreate", ops.calls[6], "deferred recreation runs before the next frame's fence wait")
}

func TestDrawFrameNoteStaleTriggersRecreate(t *testing.T) {
	ops := &fakeFrameOps{}
	scheduler := NewFrameScheduler(ops, 2)

	scheduler.NoteStale()
	require.NoError(t, scheduler.DrawFrame())

	assert.Equal(t, "recreate", ops.calls[0])
}

func TestDrawFramePropagatesFatalErrors(t *testing.T) {
	ops := &fakeFrameOps{
		acquireErrs: []error{assert.AnError},
	}
	scheduler := NewFrameScheduler(ops, 2)

	err := scheduler.DrawFrame()
	require.Error(t, err)
	assert.False(t, IsRecoverable(err))
	assert.Equal(t, 0, scheduler.CurrentSlot(), "a failed frame must not advance the slot")
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(ErrSurfaceOutOfDate))
	assert.False(t, IsRecoverable(assert.AnError))
	assert.False(t, IsRecoverable(nil))
}

func TestFrameStatsAverage(t *testing.T) {
	var stats FrameStats
	assert.Equal(t, int64(0), int64(stats.Average()))

	stats.Frames = 4
	stats.Total = 8_000_000
	assert.Equal(t, int64(2_000_000), int64(stats.Average()))
}
