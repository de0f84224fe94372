package gpummu

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestAllocateSpaceExhaustionReturnsErrOutOfAddressSpace(t *testing.T) {
	m := newTestManager(t, nil, nil, nil)
	total := uint64(m.addressSpaceEnd - m.addressSpaceBase)

	_, err := m.AllocateSpace(total, 0)
	require.NoError(t, err)

	_, err = m.AllocateSpace(m.PageSize(), 0)
	require.ErrorIs(t, err, ErrOutOfAddressSpace)
}

func TestFindFreeRegionFindsLowestAlignedFit(t *testing.T) {
	m := newTestManager(t, nil, nil, nil)
	base := m.AddressSpaceBase()

	m.AllocateMemory(base, 0, 0x1000)

	found, ok := m.FindFreeRegion(base, 0x1000)
	require.True(t, ok)
	require.Equal(t, base+0x1000, found)
}

func TestMapBufferExFailsWhenHostMemoryProviderErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := NewMockHostMemoryProvider(ctrl)
	provider.EXPECT().GetPointer(CPUAddr(0x1234)).Return(nil, errTestNotResident)

	m := newTestManager(t, nil, provider, nil)
	_, err := m.MapBufferEx(0x1234, 0x1000)
	require.Error(t, err)
}

func TestMapBufferExMarksCPURangeDeviceMapped(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, provider := newHostBuffer(t, ctrl, 0x80000000, 0x1000)
	guestProcess := NewMockGuestProcessManager(ctrl)
	guestProcess.EXPECT().
		SetMemoryAttribute(CPUAddr(0x80000000), uint64(0x1000), MemoryAttributeDeviceMapped, MemoryAttributeDeviceMapped).
		Return(nil)

	m := newTestManager(t, nil, provider, guestProcess)
	_, err := m.MapBufferEx(0x80000000, 0x1000)
	require.NoError(t, err)
}

func TestAllocateSpaceAtCommitsAtExactGVA(t *testing.T) {
	m := newTestManager(t, nil, nil, nil)
	target := m.AddressSpaceBase() + 0x5000

	got, err := m.AllocateSpaceAt(target, 0x1000, 0)
	require.NoError(t, err)
	require.Equal(t, target, got)

	idx, ok := m.vmaIndexAt(target)
	require.True(t, ok)
	require.Equal(t, VMAAllocated, m.vmas[idx].Type)
}
