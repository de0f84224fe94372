package gpummu

import (
	"io"
	"log/slog"
	"testing"

	"go.uber.org/mock/gomock"
)

// testAddressSpaceBits keeps test managers small: a 40-bit space would
// allocate a page table sized for the real Tegra X1 range, which is far
// more memory than any test needs.
const testAddressSpaceBits = 24

func newTestManager(t *testing.T, rasterizer RasterizerBackend, hostMemory HostMemoryProvider, guestProcess GuestProcessManager) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, Options{AddressSpaceBits: testAddressSpaceBits}, rasterizer, hostMemory, guestProcess)
}

// newHostBuffer returns a buffer of size n and a HostMemoryProvider mock
// that resolves any CPU address within it with the correctly-offset
// sub-slice, the way hostmem.Space's GetPointer does.
func newHostBuffer(t *testing.T, ctrl *gomock.Controller, base CPUAddr, n int) ([]byte, *MockHostMemoryProvider) {
	t.Helper()
	buf := make([]byte, n)
	provider := NewMockHostMemoryProvider(ctrl)
	provider.EXPECT().GetPointer(gomock.Any()).DoAndReturn(func(addr CPUAddr) ([]byte, error) {
		if addr < base || uint64(addr-base) >= uint64(n) {
			return nil, errTestNotResident
		}
		return buf[addr-base:], nil
	}).AnyTimes()
	return buf, provider
}

var errTestNotResident = errTestSentinel("test address not resident")

type errTestSentinel string

func (e errTestSentinel) Error() string { return string(e) }
