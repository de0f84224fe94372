package gpummu

import "fmt"

// updatePageTableForVMA refreshes the page table entries covering vma to
// match its current type and metadata. This is the only bridge between
// the authority plane (the VMA map) and the lookup plane (the page
// table); every VMA mutation must be followed by a call to this so the
// two planes never diverge.
func (m *Manager) updatePageTableForVMA(vma *VirtualMemoryArea) {
	switch vma.Type {
	case VMAUnmapped:
		m.unmapRegion(vma.Base, vma.Size)
	case VMAAllocated:
		m.mapMemoryRegion(vma.Base, vma.Size, nil, vma.BackingAddr)
	case VMAMapped:
		m.mapMemoryRegion(vma.Base, vma.Size, vma.BackingMemory, vma.BackingAddr)
	default:
		panic(fmt.Sprintf("gpummu: VMA at %#x has invalid type %d", vma.Base, vma.Type))
	}
}

func (m *Manager) mapMemoryRegion(base GPUAddr, size uint64, memory []byte, backingAddr CPUAddr) {
	if size&m.pageMask != 0 {
		panic(fmt.Sprintf("gpummu: non-page-aligned size %#x", size))
	}
	if uint64(base)&m.pageMask != 0 {
		panic(fmt.Sprintf("gpummu: non-page-aligned base %#x", base))
	}
	m.mapPages(m.pageIndex(base), size/m.pageSize, memory, PageMemory, backingAddr)
}

func (m *Manager) unmapRegion(base GPUAddr, size uint64) {
	if size&m.pageMask != 0 {
		panic(fmt.Sprintf("gpummu: non-page-aligned size %#x", size))
	}
	if uint64(base)&m.pageMask != 0 {
		panic(fmt.Sprintf("gpummu: non-page-aligned base %#x", base))
	}
	m.mapPages(m.pageIndex(base), size/m.pageSize, nil, PageUnmapped, 0)
}

// mapPages writes pageCount page table entries starting at page index
// base. When memory is nil, every pointer entry is nil and the whole
// slice can be filled with the same attribute and backing address; when
// memory is non-nil, the pointer and backing address are advanced by one
// page per step, mirroring the per-page slice held by a Mapped VMA.
func (m *Manager) mapPages(base, pageCount uint64, memory []byte, attr PageAttribute, backingAddr CPUAddr) {
	end := base + pageCount
	if end > uint64(len(m.pageTable.attributes)) {
		panic(fmt.Sprintf("gpummu: out-of-range page mapping at page %#x", end))
	}

	for i := base; i < end; i++ {
		m.pageTable.attributes[i] = attr
	}

	if memory == nil {
		for i := base; i < end; i++ {
			m.pageTable.pointers[i] = nil
			m.pageTable.backingAddr[i] = backingAddr
		}
		return
	}

	offset := uint64(0)
	for i := base; i < end; i++ {
		m.pageTable.pointers[i] = memory[offset:]
		m.pageTable.backingAddr[i] = backingAddr + CPUAddr(offset)
		offset += m.pageSize
	}
}
