package gpummu

import (
	"fmt"

	"github.com/pkg/errors"
)

// allocate transitions the VMA at index to Allocated, clears its
// Mapped-only metadata, refreshes the page table for its range, and
// merges it with any now-compatible neighbours. It returns the index of
// the surviving VMA.
func (m *Manager) allocate(index int) int {
	vma := m.vmas[index]
	vma.Type = VMAAllocated
	vma.BackingMemory = nil
	vma.BackingAddr = 0

	m.updatePageTableForVMA(vma)
	return m.mergeAdjacent(index)
}

// AllocateMemory reserves [target, target+size) as Allocated GPU-VA with
// no host backing, starting at logical offset.
func (m *Manager) AllocateMemory(target GPUAddr, offset, size uint64) int {
	index := m.carveVMA(target, size)
	vma := m.vmas[index]
	vma.Offset = offset
	return m.allocate(index)
}

// MapBackingMemory carves [target, target+size) and binds it to the host
// byte slice memory, resolved from backingAddr. It returns the index of
// the resulting (possibly merged) VMA.
func (m *Manager) MapBackingMemory(target GPUAddr, memory []byte, size uint64, backingAddr CPUAddr) int {
	index := m.carveVMA(target, size)
	vma := m.vmas[index]
	vma.Type = VMAMapped
	vma.BackingMemory = memory
	vma.BackingAddr = backingAddr

	m.updatePageTableForVMA(vma)
	return m.mergeAdjacent(index)
}

// UnmapRange returns [target, target+size) to the Allocated state. It
// panics if any VMA in the range is already Unmapped: unmapping what is
// already unmapped is a caller bug, not a guest-induced anomaly.
//
// Iteration advances by comparing VMA base addresses rather than by
// index, because allocate merges neighbours and so can delete the very
// slice entry a naive index-based loop would visit next.
func (m *Manager) UnmapRange(target GPUAddr, size uint64) {
	targetEnd := target + GPUAddr(size)

	index, ok := m.carveVMARange(target, size)
	if !ok {
		panic(fmt.Sprintf("gpummu: UnmapRange(%#x, %#x) overlaps an already-Unmapped VMA", target, size))
	}

	for index < len(m.vmas) && m.vmas[index].Base < targetEnd {
		base := m.vmas[index].Base
		index = m.allocate(index)
		// allocate may have merged index with its predecessor; re-resolve
		// by address so the loop always advances past the VMA it just
		// processed even if its index shifted.
		index, _ = m.vmaIndexAt(base)
		index++
		if index >= len(m.vmas) {
			break
		}
	}
}

// FindFreeRegion scans the VMA map in order for the first Unmapped VMA
// that can hold size bytes at or after regionStart, and returns the
// lowest aligned offset inside it. ok is false when the address space has
// no such region.
func (m *Manager) FindFreeRegion(regionStart GPUAddr, size uint64) (GPUAddr, bool) {
	for _, vma := range m.vmas {
		if vma.Type != VMAUnmapped {
			continue
		}
		end := vma.end()
		candidate := vma.Base
		if regionStart > candidate {
			candidate = regionStart
		}
		if end <= candidate || uint64(end-candidate) < size {
			continue
		}
		return candidate, true
	}
	return 0, false
}

// AllocateSpace reserves size bytes (rounded up to a page multiple) of
// Allocated GPU-VA, placed by first-fit starting at AddressSpaceBase.
// align is accepted for signature parity with the caller-chosen-base
// form but is a no-op beyond the implicit page alignment every
// placement already gets.
func (m *Manager) AllocateSpace(size, align uint64) (GPUAddr, error) {
	_ = align
	size = m.alignUp(size)

	m.mu.Lock()
	defer m.mu.Unlock()

	base, ok := m.FindFreeRegion(m.addressSpaceBase, size)
	if !ok {
		return 0, ErrOutOfAddressSpace
	}
	m.AllocateMemory(base, 0, size)
	return base, nil
}

// AllocateSpaceAt reserves size bytes of Allocated GPU-VA at a
// caller-chosen base instead of placing it by first-fit.
func (m *Manager) AllocateSpaceAt(base GPUAddr, size, align uint64) (GPUAddr, error) {
	_ = align
	size = m.alignUp(size)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.AllocateMemory(base, 0, size)
	return base, nil
}

// MapBufferEx resolves cpuAddr to host memory via the configured
// HostMemoryProvider and maps size bytes of it at a first-fit GVA. On
// success the guest process manager is told the CPU range is
// DeviceMapped.
func (m *Manager) MapBufferEx(cpuAddr CPUAddr, size uint64) (GPUAddr, error) {
	size = m.alignUp(size)

	m.mu.Lock()
	defer m.mu.Unlock()

	base, ok := m.FindFreeRegion(m.addressSpaceBase, size)
	if !ok {
		return 0, ErrOutOfAddressSpace
	}
	if err := m.mapBufferAt(base, cpuAddr, size); err != nil {
		return 0, err
	}
	return base, nil
}

// MapBufferExAt binds backing memory at a caller-chosen GVA instead of
// placing it by first-fit.
func (m *Manager) MapBufferExAt(base GPUAddr, cpuAddr CPUAddr, size uint64) (GPUAddr, error) {
	size = m.alignUp(size)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.mapBufferAt(base, cpuAddr, size); err != nil {
		return 0, err
	}
	return base, nil
}

func (m *Manager) mapBufferAt(base GPUAddr, cpuAddr CPUAddr, size uint64) error {
	memory, err := m.hostMemory.GetPointer(cpuAddr)
	if err != nil {
		return errors.Wrapf(err, "gpummu: resolving host pointer for CPU address %#x", cpuAddr)
	}
	if uint64(len(memory)) < size {
		return errors.Errorf("gpummu: host memory provider returned %d bytes, need %d", len(memory), size)
	}

	m.MapBackingMemory(base, memory[:size], size, cpuAddr)

	if m.guestProcess != nil {
		if err := m.guestProcess.SetMemoryAttribute(cpuAddr, size, MemoryAttributeDeviceMapped, MemoryAttributeDeviceMapped); err != nil {
			return errors.Wrapf(err, "gpummu: setting DeviceMapped attribute on CPU address %#x", cpuAddr)
		}
	}
	return nil
}

// UnmapBuffer drains any in-flight rasterizer view of [gva, gva+size)
// before the page table loses the pointer backing it, then returns the
// range to the Allocated state and clears the DeviceMapped attribute on
// the guest CPU side. The flush-before-unmap ordering is load-bearing:
// reversing it lets the rasterizer observe stale host memory after the
// core has already reused the GVA range.
func (m *Manager) UnmapBuffer(gva GPUAddr, size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cpuAddr, ok := m.gpuToCpuAddressLocked(gva)
	if !ok {
		m.logger.Error("gpummu: UnmapBuffer on a GVA with no backing CPU address", "gva", uint64(gva), "size", size)
	} else if hostPtr := m.getPointerLocked(gva); hostPtr != nil {
		if m.rasterizer != nil {
			m.rasterizer.FlushAndInvalidateRegion(ToCacheAddr(hostPtr), int(size))
		}
	}

	m.UnmapRange(gva, size)

	if ok && m.guestProcess != nil {
		if err := m.guestProcess.SetMemoryAttribute(cpuAddr, size, MemoryAttributeDeviceMapped, MemoryAttributeNone); err != nil {
			return errors.Wrapf(err, "gpummu: clearing DeviceMapped attribute on CPU address %#x", cpuAddr)
		}
	}
	return nil
}
