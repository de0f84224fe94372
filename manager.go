package gpummu

import (
	"log/slog"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/tegra-emu/gpummu/internal/utils"
)

// DefaultPageBits and DefaultAddressSpaceBits describe the Tegra X1
// address space: 4 KiB pages over a 40-bit GPU virtual address space.
const (
	DefaultPageBits         = 12
	DefaultAddressSpaceBits = 40
)

// ErrOutOfAddressSpace is returned by AllocateSpace/MapBufferEx when
// FindFreeRegion cannot satisfy the request, surfacing exhaustion as an
// explicit failure instead of feeding a zero-value GVA into
// AllocateMemory.
var ErrOutOfAddressSpace = errors.New("gpummu: no free region large enough for this allocation")

// Options configures a Manager at construction time. The zero value
// resolves to the Tegra X1 defaults.
type Options struct {
	// PageBits is log2(page size). Zero resolves to DefaultPageBits.
	PageBits uint
	// AddressSpaceBits is log2(managed address space size), measured
	// from AddressSpaceBase. Zero resolves to DefaultAddressSpaceBits.
	AddressSpaceBits uint
	// AddressSpaceBase is the first GVA the manager controls. Defaults
	// to 0.
	AddressSpaceBase GPUAddr
	// UseMutex upgrades the manager from its default single-writer,
	// unsynchronized contract to a real sync.RWMutex discipline: many
	// concurrent readers (GetPointer, Read, ReadBlock) versus exclusive
	// structural writers (AllocateSpace, MapBufferEx, UnmapBuffer).
	UseMutex bool
}

func (o Options) resolve() Options {
	if o.PageBits == 0 {
		o.PageBits = DefaultPageBits
	}
	if o.AddressSpaceBits == 0 {
		o.AddressSpaceBits = DefaultAddressSpaceBits
	}
	return o
}

type pageTable struct {
	// pointers[p] is the host byte slice for page p, sliced from the
	// owning VMA's BackingMemory so that a scalar access spilling past a
	// page boundary still lands in the same VMA's memory. nil means no
	// host backing.
	pointers [][]byte
	// backingAddr[p] is the guest CPU address page p was mapped from,
	// valid for both Allocated and Mapped pages (Allocated pages record
	// it as 0; see mapMemoryRegion).
	backingAddr []CPUAddr
	attributes  []PageAttribute
}

// Manager is a GPU virtual address space manager: the dual page
// table/VMA map representation, plus the translation, block I/O, and
// allocation operations built on top of it.
//
// A Manager is not safe for concurrent use unless constructed with
// Options.UseMutex: the embedding environment is expected to serialize
// structural calls on a single GPU thread.
type Manager struct {
	opts Options

	addressSpaceBase GPUAddr
	addressSpaceEnd  GPUAddr
	pageSize         uint64
	pageMask         uint64

	pageTable pageTable
	// vmas is the authority plane: a slice of VMAs sorted by Base,
	// partitioning [addressSpaceBase, addressSpaceEnd) with no gaps.
	vmas []*VirtualMemoryArea

	rasterizer   RasterizerBackend
	hostMemory   HostMemoryProvider
	guestProcess GuestProcessManager

	logger *slog.Logger
	mu     utils.OptionalRWMutex
}

// New creates a Manager covering the address space described by opts,
// with a single Unmapped VMA spanning the whole range. logger defaults
// to slog.Default() when nil.
func New(logger *slog.Logger, opts Options, rasterizer RasterizerBackend, hostMemory HostMemoryProvider, guestProcess GuestProcessManager) *Manager {
	opts = opts.resolve()
	if logger == nil {
		logger = slog.Default()
	}

	pageSize := uint64(1) << opts.PageBits
	addressSpaceSize := uint64(1) << opts.AddressSpaceBits
	addressSpaceEnd := opts.AddressSpaceBase + GPUAddr(addressSpaceSize)
	pageCount := addressSpaceSize / pageSize

	m := &Manager{
		opts:             opts,
		addressSpaceBase: opts.AddressSpaceBase,
		addressSpaceEnd:  addressSpaceEnd,
		pageSize:         pageSize,
		pageMask:         pageSize - 1,
		pageTable: pageTable{
			pointers:    make([][]byte, pageCount),
			backingAddr: make([]CPUAddr, pageCount),
			attributes:  make([]PageAttribute, pageCount),
		},
		rasterizer:   rasterizer,
		hostMemory:   hostMemory,
		guestProcess: guestProcess,
		logger:       logger,
		mu:           utils.OptionalRWMutex{UseMutex: opts.UseMutex},
	}

	initial := &VirtualMemoryArea{
		Base: m.addressSpaceBase,
		Size: addressSpaceSize,
		Type: VMAUnmapped,
	}
	m.vmas = []*VirtualMemoryArea{initial}
	m.updatePageTableForVMA(initial)

	return m
}

// PageSize returns the manager's page size in bytes.
func (m *Manager) PageSize() uint64 { return m.pageSize }

// AddressSpaceBase returns the first GVA this manager controls.
func (m *Manager) AddressSpaceBase() GPUAddr { return m.addressSpaceBase }

// AddressSpaceEnd returns the address immediately past the last GVA this
// manager controls.
func (m *Manager) AddressSpaceEnd() GPUAddr { return m.addressSpaceEnd }

func (m *Manager) alignUp(size uint64) uint64 {
	return (size + m.pageSize - 1) &^ m.pageMask
}

// DumpJSON writes a snapshot of the VMA map to w: base, size, and type
// per region (plus backingAddr for Mapped regions), in ascending address
// order. It holds the manager's read lock for the duration of the walk,
// the way GetPointer does. This is diagnostic tooling, not part of the hot
// path or the coherence contract.
func (m *Manager) DumpJSON(w *jwriter.Writer) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	arr := w.Array()
	defer arr.End()

	for _, vma := range m.vmas {
		obj := arr.Object()
		obj.Name("base").Int(int(vma.Base))
		obj.Name("size").Int(int(vma.Size))
		obj.Name("type").String(vma.Type.String())
		if vma.Type == VMAMapped {
			obj.Name("backingAddr").Int(int(vma.BackingAddr))
		}
		obj.End()
	}
}
