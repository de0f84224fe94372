package gpummu

import (
	"encoding/binary"
	"unsafe"
)

// IsAddressValid reports whether addr falls inside the managed address
// space. It does not imply the page is backed.
func (m *Manager) IsAddressValid(addr GPUAddr) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isAddressValidLocked(addr)
}

func (m *Manager) isAddressValidLocked(addr GPUAddr) bool {
	return addr >= m.addressSpaceBase && addr < m.addressSpaceEnd
}

func (m *Manager) pageIndex(addr GPUAddr) uint64 {
	return uint64(addr-m.addressSpaceBase) / m.pageSize
}

// GpuToCpuAddress reverse-translates a GVA to the guest CPU address it
// was mapped from. ok is false if the page is unbacked or out of range.
func (m *Manager) GpuToCpuAddress(addr GPUAddr) (CPUAddr, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gpuToCpuAddressLocked(addr)
}

func (m *Manager) gpuToCpuAddressLocked(addr GPUAddr) (CPUAddr, bool) {
	if !m.isAddressValidLocked(addr) {
		return 0, false
	}
	page := m.pageIndex(addr)
	// An Allocated page also carries attribute Memory (see mapPages), so
	// gating on the attribute alone would report a CPU address for a
	// reserved-but-unbacked page. Gate on the backing address itself,
	// which is only ever non-zero for a page that came from mapPages with
	// a real host slice.
	backingAddr := m.pageTable.backingAddr[page]
	if backingAddr == 0 {
		return 0, false
	}
	pageOffset := uint64(addr) & m.pageMask
	return backingAddr + CPUAddr(pageOffset), true
}

// GetPointer returns the host byte slice backing addr, or nil with a
// logged error if the page is unbacked or out of range. The returned
// slice is borrowed: callers must not grow, append to, or retain it past
// the next structural mutation of the manager.
func (m *Manager) GetPointer(addr GPUAddr) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPointerLocked(addr)
}

func (m *Manager) getPointerLocked(addr GPUAddr) []byte {
	ptr := m.pageHostPointer(addr)
	if ptr == nil {
		m.logger.Error("gpummu: GetPointer on unbacked or out-of-range page", "gva", uint64(addr))
	}
	return ptr
}

// pageHostPointer is the unlogged core of GetPointer: callers that issue
// their own anomaly log (Read, Write) use this directly to avoid logging
// the same anomaly twice.
func (m *Manager) pageHostPointer(addr GPUAddr) []byte {
	if !m.isAddressValidLocked(addr) {
		return nil
	}
	page := m.pageIndex(addr)
	ptr := m.pageTable.pointers[page]
	if ptr == nil {
		return nil
	}
	pageOffset := uint64(addr) & m.pageMask
	return ptr[pageOffset:]
}

// Scalar is the set of widths Read and Write accept.
type Scalar interface {
	uint8 | uint16 | uint32 | uint64
}

// Read loads a little-endian T from addr. An unmapped or out-of-range
// read is a guest-induced anomaly: it is logged and the zero value is
// returned, never a panic. A nil pointer here also covers an Allocated
// page (attribute Memory, no backing), which is reachable only by
// construction, not by corruption, since mapPages always fills a pointer
// for a Mapped page. A genuinely mapped-but-null page would be a bug,
// but the page table alone cannot tell the two cases apart, so both
// take the same log-and-default path.
//
// Go disallows generic methods, so Read and Write are free functions
// taking *Manager rather than Manager methods.
func Read[T Scalar](m *Manager, addr GPUAddr) T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ptr := m.pageHostPointer(addr)
	if ptr == nil {
		m.logger.Error("gpummu: Read on unbacked or out-of-range page, returning zero", "gva", uint64(addr))
		return 0
	}

	var zero T
	switch unsafe.Sizeof(zero) {
	case 1:
		return T(ptr[0])
	case 2:
		return T(binary.LittleEndian.Uint16(ptr))
	case 4:
		return T(binary.LittleEndian.Uint32(ptr))
	default:
		return T(binary.LittleEndian.Uint64(ptr))
	}
}

// Write stores a little-endian T at addr. An unmapped or out-of-range
// write is a guest-induced anomaly: it is logged and silently dropped.
func Write[T Scalar](m *Manager, addr GPUAddr, value T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ptr := m.pageHostPointer(addr)
	if ptr == nil {
		m.logger.Error("gpummu: Write on unbacked or out-of-range page, dropping", "gva", uint64(addr))
		return
	}

	var zero T
	switch unsafe.Sizeof(zero) {
	case 1:
		ptr[0] = uint8(value)
	case 2:
		binary.LittleEndian.PutUint16(ptr, uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(ptr, uint32(value))
	default:
		binary.LittleEndian.PutUint64(ptr, uint64(value))
	}
}
