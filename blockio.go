package gpummu

import "fmt"

// pageSlice iterates [addr, addr+size) one page slice at a time, calling
// fn with the slice's GVA, the byte range [offset, offset+n) of the
// caller's buffer that the slice covers, and the slice's host bytes (nil
// if unbacked). fn
// returns false to stop iteration early.
func (m *Manager) pageSlice(addr GPUAddr, size uint64, fn func(gva GPUAddr, offset uint64, n uint64, hostPage []byte) bool) {
	remaining := size
	offset := uint64(0)
	for remaining > 0 {
		cur := addr + GPUAddr(offset)
		pageOffset := uint64(cur) & m.pageMask
		n := m.pageSize - pageOffset
		if n > remaining {
			n = remaining
		}

		var hostPage []byte
		if m.isAddressValidLocked(cur) {
			page := m.pageIndex(cur)
			if ptr := m.pageTable.pointers[page]; ptr != nil {
				hostPage = ptr[pageOffset : pageOffset+n]
			}
		}

		if !fn(cur, offset, n, hostPage) {
			return
		}

		offset += n
		remaining -= n
	}
}

// ReadBlock copies size bytes starting at addr into dst. Every touched
// page must have attribute Memory; an Unmapped page is a caller bug,
// since ReadBlock is the safe variant that assumes the caller already
// carved the destination range. Before each page's copy, it calls
// rasterizer.FlushRegion so the rasterizer's cached writes land in host
// memory first.
func (m *Manager) ReadBlock(addr GPUAddr, dst []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	size := uint64(len(dst))
	m.pageSlice(addr, size, func(gva GPUAddr, offset, n uint64, hostPage []byte) bool {
		if !m.isAddressValidLocked(gva) || m.pageTable.attributes[m.pageIndex(gva)] != PageMemory {
			panic(fmt.Sprintf("gpummu: ReadBlock touches an Unmapped page at %#x", gva))
		}
		if hostPage != nil && m.rasterizer != nil {
			m.rasterizer.FlushRegion(ToCacheAddr(hostPage), int(n))
		}
		if hostPage != nil {
			copy(dst[offset:offset+n], hostPage)
		}
		return true
	})
}

// WriteBlock copies src into [addr, addr+len(src)). Every touched page
// must have attribute Memory. Before each page's copy, it calls
// rasterizer.InvalidateRegion so the rasterizer discards any cached copy
// whose authoritative value is about to change.
func (m *Manager) WriteBlock(addr GPUAddr, src []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := uint64(len(src))
	m.pageSlice(addr, size, func(gva GPUAddr, offset, n uint64, hostPage []byte) bool {
		if !m.isAddressValidLocked(gva) || m.pageTable.attributes[m.pageIndex(gva)] != PageMemory {
			panic(fmt.Sprintf("gpummu: WriteBlock touches an Unmapped page at %#x", gva))
		}
		if hostPage != nil && m.rasterizer != nil {
			m.rasterizer.InvalidateRegion(ToCacheAddr(hostPage), int(n))
		}
		if hostPage != nil {
			copy(hostPage, src[offset:offset+n])
		}
		return true
	})
}

// ReadBlockUnsafe is ReadBlock without the Memory-attribute assertion or
// rasterizer coherence: unbacked pages read as zero. Callers use this
// when they have already flushed externally or know the region is
// quiescent.
func (m *Manager) ReadBlockUnsafe(addr GPUAddr, dst []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	size := uint64(len(dst))
	m.pageSlice(addr, size, func(gva GPUAddr, offset, n uint64, hostPage []byte) bool {
		if hostPage != nil {
			copy(dst[offset:offset+n], hostPage)
		} else {
			clear(dst[offset : offset+n])
		}
		return true
	})
}

// WriteBlockUnsafe is WriteBlock without the assertion or coherence
// calls: writes to unbacked pages are silently skipped.
func (m *Manager) WriteBlockUnsafe(addr GPUAddr, src []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := uint64(len(src))
	m.pageSlice(addr, size, func(gva GPUAddr, offset, n uint64, hostPage []byte) bool {
		if hostPage != nil {
			copy(hostPage, src[offset:offset+n])
		}
		return true
	})
}

// CopyBlock flushes the source range page by page and then WriteBlocks
// it to dst, which invalidates the destination. Source and destination
// may alias: the whole source range is read into a temporary buffer
// before any byte of dst is written, so overlapping ranges copy the
// original source bytes.
func (m *Manager) CopyBlock(dst, src GPUAddr, size uint64) {
	buf := make([]byte, size)
	m.ReadBlock(src, buf)
	m.WriteBlock(dst, buf)
}

// CopyBlockUnsafe copies via a temporary buffer of the full size using
// the unsafe read/write variants. Coherence is the caller's
// responsibility.
func (m *Manager) CopyBlockUnsafe(dst, src GPUAddr, size uint64) {
	buf := make([]byte, size)
	m.ReadBlockUnsafe(src, buf)
	m.WriteBlockUnsafe(dst, buf)
}

// IsBlockContinuous reports whether [start, start+size) lies in a single
// physically contiguous host mapping, i.e. GetPointer(start) and
// GetPointer(start+size-1) differ by exactly size-1 in host address
// space. A range whose first or last page is unbacked is never
// continuous; the pages in between are not inspected.
func (m *Manager) IsBlockContinuous(start GPUAddr, size uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if size == 0 {
		return true
	}

	first := m.pageHostPointer(start)
	last := m.pageHostPointer(start + GPUAddr(size) - 1)
	if first == nil || last == nil {
		return false
	}
	return hostAddr(last)-hostAddr(first) == uintptr(size-1)
}

