package mmu

import "fmt"

// A FaultHandler is the kernel entry that resolves a page fault. When it
// returns, the faulting access is executed again.
type FaultHandler interface {
	HandlePageFault(badVAddr uint64)
}

// PageFaultError reports an access to a page that has no usable translation.
type PageFaultError struct {
	VAddr uint64
	VPN   uint64
}

func (e *PageFaultError) Error() string {
	return fmt.Sprintf("page fault at 0x%x (vpn %d)", e.VAddr, e.VPN)
}

// ReadOnlyError reports a write to a read-only page.
type ReadOnlyError struct {
	VAddr uint64
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("write to read-only page at 0x%x", e.VAddr)
}

// AddressError reports an address outside the address space.
type AddressError struct {
	VAddr    uint64
	NumPages uint64
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("address 0x%x outside an address space of %d pages",
		e.VAddr, e.NumPages)
}
