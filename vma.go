package gpummu

import (
	"fmt"
	"unsafe"

	"golang.org/x/exp/slices"
)

// vmaIndexAt returns the index of the VMA containing addr, and true, or
// (len(m.vmas), false) if addr is at or past addressSpaceEnd, the end
// sentinel callers use to detect a past-the-end lookup. The VMA map
// always partitions [addressSpaceBase, addressSpaceEnd) with no gaps, so
// any addr in range resolves to a real index.
func (m *Manager) vmaIndexAt(addr GPUAddr) (int, bool) {
	if addr >= m.addressSpaceEnd {
		return len(m.vmas), false
	}

	// slices.BinarySearchFunc finds the insertion point for addr among
	// VMA bases; the containing VMA is either an exact hit or the entry
	// immediately before the insertion point.
	idx, found := slices.BinarySearchFunc(m.vmas, addr, func(v *VirtualMemoryArea, target GPUAddr) int {
		switch {
		case v.Base < target:
			return -1
		case v.Base > target:
			return 1
		default:
			return 0
		}
	})
	if found {
		return idx, true
	}
	return idx - 1, true
}

// lowerBoundIndex returns the index of the first VMA whose Base is >=
// addr, or len(m.vmas) if none exists.
func (m *Manager) lowerBoundIndex(addr GPUAddr) int {
	idx, _ := slices.BinarySearchFunc(m.vmas, addr, func(v *VirtualMemoryArea, target GPUAddr) int {
		switch {
		case v.Base < target:
			return -1
		case v.Base > target:
			return 1
		default:
			return 0
		}
	})
	return idx
}

// splitVMA splits the VMA at index at offsetInVMA, an offset strictly
// interior to it. The VMA at index is shrunk in place to
// [0, offsetInVMA); a new VMA covering the remainder is inserted right
// after it. It returns the index of that new (right-hand) VMA. Splitting
// at a boundary (offsetInVMA == 0 or == vma.Size) is a bug: both halves
// of a split must be non-empty.
func (m *Manager) splitVMA(index int, offsetInVMA uint64) int {
	oldVMA := m.vmas[index]
	if offsetInVMA <= 0 || offsetInVMA >= oldVMA.Size {
		panic(fmt.Sprintf("gpummu: split at boundary: offset %#x, vma size %#x", offsetInVMA, oldVMA.Size))
	}

	newVMA := &VirtualMemoryArea{
		Base:          oldVMA.Base + GPUAddr(offsetInVMA),
		Size:          oldVMA.Size - offsetInVMA,
		Type:          oldVMA.Type,
		BackingMemory: oldVMA.BackingMemory,
		BackingAddr:   oldVMA.BackingAddr,
		Offset:        oldVMA.Offset,
	}
	oldVMA.Size = offsetInVMA

	switch newVMA.Type {
	case VMAUnmapped:
	case VMAAllocated:
		newVMA.Offset += offsetInVMA
	case VMAMapped:
		newVMA.BackingMemory = oldVMA.BackingMemory[offsetInVMA:]
		newVMA.BackingAddr += CPUAddr(offsetInVMA)
		oldVMA.BackingMemory = oldVMA.BackingMemory[:offsetInVMA]
	}

	if !oldVMA.canBeMergedWith(newVMA) {
		panic("gpummu: split produced VMAs that are not immediately re-mergeable")
	}

	m.vmas = slices.Insert(m.vmas, index+1, newVMA)
	return index + 1
}

// mergeAdjacent attempts to merge the VMA at index with its successor
// and then its predecessor, per the mergeability rule in invariant 5. It
// returns the index of the (possibly widened) surviving VMA.
func (m *Manager) mergeAdjacent(index int) int {
	if index+1 < len(m.vmas) && m.vmas[index].canBeMergedWith(m.vmas[index+1]) {
		if m.vmas[index].Type == VMAMapped {
			left := m.vmas[index].BackingMemory
			m.vmas[index].BackingMemory = unsafe.Slice(&left[0], len(left)+len(m.vmas[index+1].BackingMemory))
		}
		m.vmas[index].Size += m.vmas[index+1].Size
		m.vmas = slices.Delete(m.vmas, index+1, index+2)
	}

	if index > 0 && m.vmas[index-1].canBeMergedWith(m.vmas[index]) {
		if m.vmas[index-1].Type == VMAMapped {
			left := m.vmas[index-1].BackingMemory
			m.vmas[index-1].BackingMemory = unsafe.Slice(&left[0], len(left)+len(m.vmas[index].BackingMemory))
		}
		m.vmas[index-1].Size += m.vmas[index].Size
		m.vmas = slices.Delete(m.vmas, index, index+1)
		index--
	}

	return index
}

// carveVMA ensures exactly one VMA covers [base, base+size). It returns
// that VMA's index. If the containing VMA is already Mapped, it is
// returned unchanged: a pre-existing mapping acts as a no-op acquire, so
// double-mapping the same range is tolerated rather than rejected.
func (m *Manager) carveVMA(base GPUAddr, size uint64) int {
	index, ok := m.vmaIndexAt(base)
	if !ok {
		panic(fmt.Sprintf("gpummu: carve target %#x is outside the managed address space", base))
	}

	vma := m.vmas[index]
	if vma.Type == VMAMapped {
		return index
	}

	startInVMA := uint64(base - vma.Base)
	endInVMA := startInVMA + size
	if endInVMA > vma.Size {
		panic(fmt.Sprintf("gpummu: region size %#x at %#x is larger than its containing VMA (size %#x)", size, base, vma.Size))
	}

	if endInVMA < vma.Size {
		// Split off the tail first so index still names the VMA that
		// starts at vma.Base.
		m.splitVMA(index, endInVMA)
	}
	if startInVMA != 0 {
		index = m.splitVMA(index, startInVMA)
	}

	return index
}

// carveVMARange ensures [target, target+size) is partitioned by VMAs
// aligned exactly on target and target+size. It returns the index of the
// first such VMA, or (-1, false) if any VMA in the range is Unmapped:
// unmapping what is already unmapped is refused.
func (m *Manager) carveVMARange(target GPUAddr, size uint64) (int, bool) {
	targetEnd := target + GPUAddr(size)

	beginIndex, ok := m.vmaIndexAt(target)
	if !ok {
		panic(fmt.Sprintf("gpummu: unmap target %#x is outside the managed address space", target))
	}
	endIndex := m.lowerBoundIndex(targetEnd)

	for i := beginIndex; i < endIndex; i++ {
		if m.vmas[i].Type == VMAUnmapped {
			return -1, false
		}
	}

	if target != m.vmas[beginIndex].Base {
		m.splitVMA(beginIndex, uint64(target-m.vmas[beginIndex].Base))
		beginIndex, _ = m.vmaIndexAt(target)
	}

	if endVMAIndex, ok := m.vmaIndexAt(targetEnd); ok && m.vmas[endVMAIndex].Base != targetEnd {
		m.splitVMA(endVMAIndex, uint64(targetEnd-m.vmas[endVMAIndex].Base))
	}

	beginIndex, _ = m.vmaIndexAt(target)
	return beginIndex, true
}
