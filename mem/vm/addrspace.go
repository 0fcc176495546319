package vm

import (
	"errors"
	"fmt"
)

// PID identifies a process.
type PID int

// An AddressSpace is the memory state of one process: its page table, its
// layout, the executable image it loads from, and the swap store its dirty
// pages are written back to.
//
// The image is only read. The swap store is private to the address space and
// is addressed by vpn * PageSize. A page that has been written back at least
// once is reloaded from swap; any other page is assembled from the layout.
type AddressSpace struct {
	PID       PID
	PageSize  uint64
	Layout    Layout
	PageTable *PageTable

	ImageName string
	ImageSize uint64
	SwapName  string

	swapped []bool
}

// AddressSpaceSpec collects what is needed to create an AddressSpace.
type AddressSpaceSpec struct {
	PID       PID
	PageSize  uint64
	Layout    Layout
	ImageName string
	ImageSize uint64
	SwapName  string
}

// NewAddressSpace creates an address space in which no page is resident.
func NewAddressSpace(spec AddressSpaceSpec) (*AddressSpace, error) {
	if spec.PageSize == 0 {
		return nil, errors.New("page size must not be zero")
	}

	if err := spec.Layout.Validate(); err != nil {
		return nil, err
	}

	numPages := spec.Layout.NumPages(spec.PageSize)
	if numPages == 0 {
		return nil, fmt.Errorf("image %q has an empty layout", spec.ImageName)
	}

	as := &AddressSpace{
		PID:       spec.PID,
		PageSize:  spec.PageSize,
		Layout:    spec.Layout,
		PageTable: NewPageTable(numPages),
		ImageName: spec.ImageName,
		ImageSize: spec.ImageSize,
		SwapName:  spec.SwapName,
		swapped:   make([]bool, numPages),
	}

	return as, nil
}

// NumPages returns the number of virtual pages.
func (as *AddressSpace) NumPages() uint64 {
	return as.PageTable.Len()
}

// SwapSize is the logical size of the swap store.
func (as *AddressSpace) SwapSize() uint64 {
	return as.NumPages() * as.PageSize
}

// VPN returns the virtual page that holds vAddr.
func (as *AddressSpace) VPN(vAddr uint64) uint64 {
	return vAddr / as.PageSize
}

// SwapOffset is where page vpn lives in the swap store.
func (as *AddressSpace) SwapOffset(vpn uint64) uint64 {
	return vpn * as.PageSize
}

// SwapLength is the number of bytes of page vpn that fit in the swap store.
func (as *AddressSpace) SwapLength(vpn uint64) uint64 {
	return ClampLength(as.SwapOffset(vpn), as.PageSize, as.SwapSize())
}

// IsSwapped reports whether page vpn has a written-back copy in swap.
func (as *AddressSpace) IsSwapped(vpn uint64) bool {
	as.PageTable.pageMustBeInRange(vpn)
	return as.swapped[vpn]
}

// MarkSwapped records that page vpn has a copy in swap.
func (as *AddressSpace) MarkSwapped(vpn uint64) {
	as.PageTable.pageMustBeInRange(vpn)
	as.swapped[vpn] = true
}

// Duplicate deep-copies the address space for a forked child. The page
// table, layout and swapped set are copied; the child gets its own swap
// name. Valid entries are copied as they are and must be re-homed by the
// caller before the child runs, since a frame has a single owner.
func (as *AddressSpace) Duplicate(pid PID, swapName string) *AddressSpace {
	child := *as
	child.PID = pid
	child.SwapName = swapName
	child.PageTable = as.PageTable.Clone()
	child.swapped = make([]bool, len(as.swapped))
	copy(child.swapped, as.swapped)

	return &child
}

// ClampLength returns how many of length bytes starting at offset fit below
// size. It is zero when offset is already past size.
func ClampLength(offset, length, size uint64) uint64 {
	if offset >= size {
		return 0
	}

	return min(length, size-offset)
}
