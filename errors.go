package vkframe

import (
	"github.com/cockroachdb/errors"
)

// Failure vocabulary for the harness. Construction-time failures
// (object creation, capability mismatches) are fatal and abort with
// context; the only recoverable condition is a stale presentation
// surface, which the frame loop answers with a swapchain rebuild.
var (
	// ErrNoDevices is returned when instance enumeration reports zero
	// physical devices with Vulkan support.
	ErrNoDevices = errors.New("no physical devices with vulkan support")

	// ErrNoSuitableDevice is returned when devices exist but none
	// satisfies the extension, queue-family, and swapchain checks.
	ErrNoSuitableDevice = errors.New("no suitable physical device found")

	// ErrSurfaceOutOfDate reports that the surface no longer matches the
	// swapchain (typically after a resize). Recoverable: recreate the
	// swapchain and continue.
	ErrSurfaceOutOfDate = errors.New("presentation surface out of date")
)

// IsRecoverable reports whether the frame loop may continue after err by
// recreating the swapchain. Everything else unwinds to the loop driver,
// which tears down and exits.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrSurfaceOutOfDate)
}
