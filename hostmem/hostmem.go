// Package hostmem implements the two collaborators gpummu needs from the
// guest CPU side: a HostMemoryProvider that resolves a guest CPU virtual
// address to a host byte slice, and a GuestProcessManager that tracks the
// DeviceMapped attribute toggled on map/unmap.
//
// It is scoped to exactly the two operations gpummu depends on: it is
// not a general guest memory manager.
package hostmem

import (
	"sync"

	"github.com/dolthub/swiss"
	"github.com/tegra-emu/gpummu"
	baseerrgo "gopkg.in/errgo.v2/errors"
	errgo "gopkg.in/errgo.v2/fmt/errors"
)

// ErrNotResident is returned by GetPointer when the requested CPU
// address falls outside any backing region registered with the space.
var ErrNotResident = baseerrgo.New("hostmem: address is not backed by any registered region")

// ErrAlreadyMapped is returned by SetMemoryAttribute when a caller tries
// to mark a range DeviceMapped that is already DeviceMapped, or to clear
// the attribute on a range that does not carry it. gpummu sets the
// attribute on every successful MapBufferEx/MapBufferExAt and clears it
// on UnmapBuffer, so mapping the same CPU range a second time before
// unmapping it returns this error, as can callers backing a Space with
// their own bookkeeping.
var ErrAlreadyMapped = baseerrgo.New("hostmem: DeviceMapped attribute already in the requested state")

// region is one contiguous run of host-backed guest CPU address space,
// registered with RegisterRegion.
type region struct {
	base   gpummu.CPUAddr
	memory []byte
}

func (r region) end() gpummu.CPUAddr { return r.base + gpummu.CPUAddr(len(r.memory)) }
func (r region) contains(addr gpummu.CPUAddr) bool { return addr >= r.base && addr < r.end() }

// Space is a flat simulation of guest CPU address space: a set of
// registered host-backed regions plus a page-granular DeviceMapped
// attribute set. It implements gpummu.HostMemoryProvider and
// gpummu.GuestProcessManager.
type Space struct {
	pageBits uint

	mu      sync.RWMutex
	regions []region
	// deviceMapped tracks which pages currently carry the DeviceMapped
	// attribute, keyed by page index (addr >> pageBits). A swiss.Map
	// suits this sparse page-indexed bookkeeping the same way it suits
	// suballocation handle tables elsewhere in this stack.
	deviceMapped *swiss.Map[uint64, struct{}]
}

// NewSpace creates an empty Space. pageBits must match the gpummu
// Manager this Space backs, so DeviceMapped toggles land on the same
// page granularity the manager maps in.
func NewSpace(pageBits uint) *Space {
	return &Space{
		pageBits:     pageBits,
		deviceMapped: swiss.NewMap[uint64, struct{}](64),
	}
}

// RegisterRegion backs [base, base+len(memory)) with memory. Regions
// must not overlap; callers typically register one region per guest
// memory segment (e.g. the application's heap) up front.
func (s *Space) RegisterRegion(base gpummu.CPUAddr, memory []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions = append(s.regions, region{base: base, memory: memory})
}

// GetPointer resolves cpuAddr to a host byte slice running to the end of
// whatever region contains it. It implements gpummu.HostMemoryProvider.
func (s *Space) GetPointer(cpuAddr gpummu.CPUAddr) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.regions {
		if r.contains(cpuAddr) {
			return r.memory[cpuAddr-r.base:], nil
		}
	}
	return nil, errgo.Notef(ErrNotResident, baseerrgo.Is(ErrNotResident), "address %#x", uint64(cpuAddr))
}

// SetMemoryAttribute toggles the DeviceMapped bit on every page of
// [cpuAddr, cpuAddr+size). It implements gpummu.GuestProcessManager.
func (s *Space) SetMemoryAttribute(cpuAddr gpummu.CPUAddr, size uint64, mask, value gpummu.MemoryAttribute) error {
	if mask&gpummu.MemoryAttributeDeviceMapped == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	firstPage := uint64(cpuAddr) >> s.pageBits
	lastPage := (uint64(cpuAddr) + size - 1) >> s.pageBits

	setting := value&gpummu.MemoryAttributeDeviceMapped != 0
	for page := firstPage; page <= lastPage; page++ {
		_, already := s.deviceMapped.Get(page)
		if setting == already {
			return errgo.Notef(ErrAlreadyMapped, baseerrgo.Is(ErrAlreadyMapped), "page %#x (addr %#x)", page, page<<s.pageBits)
		}
	}

	for page := firstPage; page <= lastPage; page++ {
		if setting {
			s.deviceMapped.Put(page, struct{}{})
		} else {
			s.deviceMapped.Delete(page)
		}
	}
	return nil
}

// IsDeviceMapped reports whether the page containing addr currently
// carries the DeviceMapped attribute. Exposed for tests and diagnostics;
// gpummu itself never reads this back.
func (s *Space) IsDeviceMapped(addr gpummu.CPUAddr) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.deviceMapped.Get(uint64(addr) >> s.pageBits)
	return ok
}
