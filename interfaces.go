package gpummu

import "unsafe"

// RasterizerBackend is the downstream consumer's coherence surface. The
// manager calls these synchronously from the caller's goroutine, even
// when the backend itself executes GPU work asynchronously: the backend
// is expected to block until the region in question is coherent before
// returning.
type RasterizerBackend interface {
	// FlushRegion makes the backend's cached writes to this host range
	// visible to host memory before the manager reads it.
	FlushRegion(addr CacheAddr, size int)
	// InvalidateRegion discards the backend's cached view of this host
	// range because the manager is about to change its authoritative
	// value.
	InvalidateRegion(addr CacheAddr, size int)
	// FlushAndInvalidateRegion does both, in that order. It is used on
	// unmap, where the backend must drain pending writes and then treat
	// the range as gone.
	FlushAndInvalidateRegion(addr CacheAddr, size int)
}

// HostMemoryProvider resolves a guest CPU virtual address to the host
// byte slice backing it. The manager treats the returned slice as
// borrowed: it never appends to it, grows it, or frees it.
type HostMemoryProvider interface {
	GetPointer(cpuAddr CPUAddr) ([]byte, error)
}

// MemoryAttribute is a guest process memory attribute bit. The manager
// only ever touches DeviceMapped.
type MemoryAttribute uint32

const (
	MemoryAttributeNone         MemoryAttribute = 0
	MemoryAttributeDeviceMapped MemoryAttribute = 1 << 0
)

// GuestProcessManager receives device-mapped attribute toggles whenever
// the manager binds or releases a guest CPU range as GPU-visible memory.
type GuestProcessManager interface {
	SetMemoryAttribute(cpuAddr CPUAddr, size uint64, mask, value MemoryAttribute) error
}

// ToCacheAddr produces the rasterizer cache key for a host byte slice.
// It is a stable, monotonic transform of the slice's backing pointer;
// two slices that view the same host byte produce the same CacheAddr.
func ToCacheAddr(hostPtr []byte) CacheAddr {
	if len(hostPtr) == 0 {
		return 0
	}
	return CacheAddr(hostAddr(hostPtr))
}

func hostAddr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
