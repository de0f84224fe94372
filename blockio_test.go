package gpummu

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestWriteBlockThenReadBlockRoundTrips(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, provider := newHostBuffer(t, ctrl, 0x80000000, 0x4000)
	rasterizer := NewMockRasterizerBackend(ctrl)
	rasterizer.EXPECT().InvalidateRegion(gomock.Any(), gomock.Any()).AnyTimes()
	rasterizer.EXPECT().FlushRegion(gomock.Any(), gomock.Any()).AnyTimes()

	m := newTestManager(t, rasterizer, provider, nil)
	gva, err := m.MapBufferEx(0x80000000, 0x4000)
	require.NoError(t, err)

	buf := make([]byte, 0x30)
	for i := range buf {
		buf[i] = byte(i)
	}

	m.WriteBlock(gva+0xFF0, buf)

	out := make([]byte, 0x30)
	m.ReadBlock(gva+0xFF0, out)

	require.Equal(t, buf, out)
}

func TestReadBlockOnUnmappedPagePanics(t *testing.T) {
	m := newTestManager(t, nil, nil, nil)
	out := make([]byte, 0x10)
	require.Panics(t, func() { m.ReadBlock(m.AddressSpaceBase(), out) })
}

func TestReadBlockUnsafeZeroFillsUnbackedPages(t *testing.T) {
	m := newTestManager(t, nil, nil, nil)
	out := make([]byte, 0x10)
	for i := range out {
		out[i] = 0xFF
	}
	m.ReadBlockUnsafe(m.AddressSpaceBase(), out)
	for _, b := range out {
		require.Zero(t, b)
	}
}

func TestWriteBlockUnsafeSkipsUnbackedPagesWithoutPanicking(t *testing.T) {
	m := newTestManager(t, nil, nil, nil)
	require.NotPanics(t, func() { m.WriteBlockUnsafe(m.AddressSpaceBase(), make([]byte, 0x10)) })
}

func TestCopyBlockBetweenMappedRegions(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, srcProvider := newHostBuffer(t, ctrl, 0x80000000, 0x1000)
	_, dstProvider := newHostBuffer(t, ctrl, 0x90000000, 0x1000)

	combined := &multiProvider{providers: []HostMemoryProvider{srcProvider, dstProvider}}
	rasterizer := NewMockRasterizerBackend(ctrl)
	rasterizer.EXPECT().FlushRegion(gomock.Any(), gomock.Any()).AnyTimes()
	rasterizer.EXPECT().InvalidateRegion(gomock.Any(), gomock.Any()).AnyTimes()

	m := newTestManager(t, rasterizer, combined, nil)
	srcGVA, err := m.MapBufferEx(0x80000000, 0x1000)
	require.NoError(t, err)
	dstGVA, err := m.MapBufferEx(0x90000000, 0x1000)
	require.NoError(t, err)

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	m.WriteBlock(srcGVA+0x40, payload)

	m.CopyBlock(dstGVA+0x80, srcGVA+0x40, uint64(len(payload)))

	out := make([]byte, len(payload))
	m.ReadBlock(dstGVA+0x80, out)
	require.Equal(t, payload, out)
}

func TestIsBlockContinuousFalseAcrossDisjointMappings(t *testing.T) {
	ctrl := gomock.NewController(t)
	// Each buffer is larger than the 0x1000 bytes mapped from it, so the
	// two mapped slices can never be adjacent in host memory.
	_, srcProvider := newHostBuffer(t, ctrl, 0x80000000, 0x2000)
	_, dstProvider := newHostBuffer(t, ctrl, 0x90000000, 0x2000)
	combined := &multiProvider{providers: []HostMemoryProvider{srcProvider, dstProvider}}

	m := newTestManager(t, nil, combined, nil)
	base := m.AddressSpaceBase()

	_, err := m.MapBufferExAt(base, 0x80000000, 0x1000)
	require.NoError(t, err)
	_, err = m.MapBufferExAt(base+0x1000, 0x90000000, 0x1000)
	require.NoError(t, err)

	require.False(t, m.IsBlockContinuous(base, 0x2000))
}

// multiProvider tries each provider in order, returning the first
// successful resolution. It lets a single test Manager span host memory
// resolved from more than one independent backing buffer.
type multiProvider struct {
	providers []HostMemoryProvider
}

func (p *multiProvider) GetPointer(cpuAddr CPUAddr) ([]byte, error) {
	var lastErr error
	for _, provider := range p.providers {
		ptr, err := provider.GetPointer(cpuAddr)
		if err == nil {
			return ptr, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
