package rasterizer

import (
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/ext_memory_priority"
)

// ExtensionData records which Vulkan capabilities this Backend's device
// exposes that bear on memory-pressure hints to the rasterizer's caches,
// narrowed to one extension: ext_memory_priority.
//
// The core (gpummu) never touches Vulkan; this is the rasterizer
// package's own narrow use of the Vulkan extension-capability surface.
type ExtensionData struct {
	UseMemoryPriority bool
}

// DetectExtensions inspects device and returns the capabilities this
// package understands.
func DetectExtensions(device core1_0.Device) ExtensionData {
	data := ExtensionData{}

	if device.IsDeviceExtensionActive(ext_memory_priority.ExtensionName) {
		data.UseMemoryPriority = true
	}

	return data
}

// ApplyMemoryPriority records on the Backend whether ext_memory_priority
// is available. No cache behaviour reads the recorded flag: with or
// without it, caches are never deprioritized, only flushed or
// invalidated on the core's explicit callbacks.
func (b *Backend) ApplyMemoryPriority(data ExtensionData) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.useMemoryPriority = data.UseMemoryPriority
}
