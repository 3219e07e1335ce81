package vkframe

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
)

var requiredDeviceExtensions = []string{khr_swapchain.ExtensionName}

// QueueFamilyIndices resolves the graphics and present queue roles to
// family indices. Both must resolve for a device to be usable; they may
// name the same family.
type QueueFamilyIndices struct {
	Graphics *int
	Present  *int
}

// IsComplete reports whether both roles resolved.
func (i QueueFamilyIndices) IsComplete() bool {
	return i.Graphics != nil && i.Present != nil
}

// SameFamily reports whether graphics and present share one family.
// Callers must only ask once IsComplete holds.
func (i QueueFamilyIndices) SameFamily() bool {
	return *i.Graphics == *i.Present
}

type familyCacheKey struct {
	device  core1_0.PhysicalDevice
	surface khr_surface.Surface
}

// DeviceSelector enumerates physical devices and picks the first one
// adequate for rendering to the bound surface. Queue-family discovery is
// memoized per (device, surface) pair in a cache the selector owns;
// rebinding the surface must go through InvalidateCache.
type DeviceSelector struct {
	binding     *SurfaceBinding
	familyCache map[familyCacheKey]QueueFamilyIndices

	// replaced in tests to count underlying enumerations
	queryFamilies func(device core1_0.PhysicalDevice) (QueueFamilyIndices, error)
}

// NewDeviceSelector builds a selector bound to the given surface.
func NewDeviceSelector(binding *SurfaceBinding) *DeviceSelector {
	s := &DeviceSelector{
		binding:     binding,
		familyCache: make(map[familyCacheKey]QueueFamilyIndices),
	}
	s.queryFamilies = s.scanQueueFamilies
	return s
}

// FindQueueFamilies resolves the graphics and present families for
// device, memoized so repeated calls for the same (device, surface) pair
// scan the family table only once.
func (s *DeviceSelector) FindQueueFamilies(device core1_0.PhysicalDevice) (QueueFamilyIndices, error) {
	key := familyCacheKey{device: device, surface: s.binding.Handle()}
	if indices, ok := s.familyCache[key]; ok {
		return indices, nil
	}

	indices, err := s.queryFamilies(device)
	if err != nil {
		return indices, err
	}

	s.familyCache[key] = indices
	return indices, nil
}

// InvalidateCache drops all memoized queue-family results. Must be
// called whenever the surface binding is replaced.
func (s *DeviceSelector) InvalidateCache() {
	clear(s.familyCache)
}

func (s *DeviceSelector) scanQueueFamilies(device core1_0.PhysicalDevice) (QueueFamilyIndices, error) {
	indices := QueueFamilyIndices{}
	queueFamilies := device.QueueFamilyProperties()

	for familyIdx, family := range queueFamilies {
		if (family.QueueFlags & core1_0.QueueGraphics) != 0 {
			indices.Graphics = new(int)
			*indices.Graphics = familyIdx
		}

		supported, err := s.binding.SupportsPresent(device, familyIdx)
		if err != nil {
			return indices, err
		}
		if supported {
			indices.Present = new(int)
			*indices.Present = familyIdx
		}

		if indices.IsComplete() {
			break
		}
	}

	return indices, nil
}

// PickPhysicalDevice returns the first device in enumeration order that
// is suitable for this surface. No scoring: first adequate wins.
func (s *DeviceSelector) PickPhysicalDevice(instance core1_0.Instance) (core1_0.PhysicalDevice, error) {
	physicalDevices, _, err := instance.EnumeratePhysicalDevices()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate physical devices")
	}
	if len(physicalDevices) == 0 {
		return nil, ErrNoDevices
	}

	for _, device := range physicalDevices {
		suitable, err := s.isDeviceSuitable(device)
		if err != nil {
			return nil, err
		}
		if suitable {
			return device, nil
		}
	}

	return nil, ErrNoSuitableDevice
}

// A device is suitable iff it carries the swapchain extension, its
// swapchain support query reports at least one format and present mode,
// and both queue roles resolve.
func (s *DeviceSelector) isDeviceSuitable(device core1_0.PhysicalDevice) (bool, error) {
	indices, err := s.FindQueueFamilies(device)
	if err != nil {
		return false, err
	}
	if !indices.IsComplete() {
		return false, nil
	}

	if !checkDeviceExtensionSupport(device) {
		return false, nil
	}

	support, err := s.binding.QuerySupport(device)
	if err != nil {
		return false, err
	}

	return support.Adequate(), nil
}

func checkDeviceExtensionSupport(device core1_0.PhysicalDevice) bool {
	extensions, _, err := device.EnumerateDeviceExtensionProperties()
	if err != nil {
		return false
	}

	for _, extension := range requiredDeviceExtensions {
		_, hasExtension := extensions[extension]
		if !hasExtension {
			return false
		}
	}

	return true
}

// CreateLogicalDevice builds the logical device with one queue per
// distinct family and returns the graphics and present queues.
func (s *DeviceSelector) CreateLogicalDevice(device core1_0.PhysicalDevice) (core1_0.Device, core1_0.Queue, core1_0.Queue, error) {
	indices, err := s.FindQueueFamilies(device)
	if err != nil {
		return nil, nil, nil, err
	}

	uniqueQueueFamilies := []int{*indices.Graphics}
	if !indices.SameFamily() {
		uniqueQueueFamilies = append(uniqueQueueFamilies, *indices.Present)
	}

	var queueCreateInfos []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range uniqueQueueFamilies {
		queueCreateInfos = append(queueCreateInfos, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	var extensionNames []string
	extensionNames = append(extensionNames, requiredDeviceExtensions...)

	// Needed for vulkan portability implementations (MoltenVK and such)
	extensions, _, err := device.EnumerateDeviceExtensionProperties()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "enumerate device extensions")
	}
	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	logicalDevice, _, err := device.CreateDevice(nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueCreateInfos,
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "create logical device")
	}

	graphicsQueue := logicalDevice.GetQueue(*indices.Graphics, 0)
	presentQueue := logicalDevice.GetQueue(*indices.Present, 0)
	return logicalDevice, graphicsQueue, presentQueue, nil
}
