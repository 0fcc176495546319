// Package mmu provides the translation hardware of the simulated machine.
package mmu

import (
	"errors"
	"log"

	"github.com/sarchlab/nachosvm/mem/vm"
	"github.com/sarchlab/nachosvm/mem/vm/tlb"
	"github.com/sarchlab/nachosvm/memory"
)

// Comp is the MMU. It translates user virtual addresses through the TLB when
// there is one, or straight through the current page table otherwise.
type Comp struct {
	name     string
	pageSize uint64
	storage  memory.Controller
	tlb      *tlb.TLB

	pageTable    *vm.PageTable
	faultHandler FaultHandler

	numTLBHits    uint64
	numTLBMisses  uint64
	numPageFaults uint64
}

// Name returns the name of the MMU.
func (c *Comp) Name() string {
	return c.name
}

// PageSize returns the page size the MMU translates with.
func (c *Comp) PageSize() uint64 {
	return c.pageSize
}

// TLB returns the TLB, or nil if the machine has none.
func (c *Comp) TLB() *tlb.TLB {
	return c.tlb
}

// HasTLB tells whether translations go through a TLB.
func (c *Comp) HasTLB() bool {
	return c.tlb != nil
}

// SetPageTable points the MMU at the running process's page table.
func (c *Comp) SetPageTable(pt *vm.PageTable) {
	c.pageTable = pt
}

// PageTable returns the page table in use.
func (c *Comp) PageTable() *vm.PageTable {
	return c.pageTable
}

// SetFaultHandler registers the kernel's page fault entry.
func (c *Comp) SetFaultHandler(h FaultHandler) {
	c.faultHandler = h
}

// NumTLBHits returns the number of translations served by the TLB.
func (c *Comp) NumTLBHits() uint64 {
	return c.numTLBHits
}

// NumTLBMisses returns the number of translations the TLB could not serve.
func (c *Comp) NumTLBMisses() uint64 {
	return c.numTLBMisses
}

// NumPageFaults returns the number of faults raised to the kernel.
func (c *Comp) NumPageFaults() uint64 {
	return c.numPageFaults
}

// Translate converts vAddr to a physical address and records the access.
func (c *Comp) Translate(vAddr uint64, write bool) (uint64, error) {
	if c.pageTable == nil {
		log.Panicf("%s: translating 0x%x with no page table", c.name, vAddr)
	}

	vpn := vAddr / c.pageSize
	offset := vAddr % c.pageSize

	if vpn >= c.pageTable.Len() {
		return 0, &AddressError{VAddr: vAddr, NumPages: c.pageTable.Len()}
	}

	var frame uint64
	if c.tlb != nil {
		slot, found := c.tlb.Lookup(vpn)
		if !found {
			c.numTLBMisses++
			return 0, &PageFaultError{VAddr: vAddr, VPN: vpn}
		}

		e := c.tlb.Entry(slot)
		if write && e.ReadOnly {
			return 0, &ReadOnlyError{VAddr: vAddr}
		}

		c.numTLBHits++
		c.tlb.Access(slot, write)
		frame = e.PhysicalPage
	} else {
		e := c.pageTable.Lookup(vpn)
		if !e.Valid {
			return 0, &PageFaultError{VAddr: vAddr, VPN: vpn}
		}

		if write && e.ReadOnly {
			return 0, &ReadOnlyError{VAddr: vAddr}
		}

		c.pageTable.Touch(vpn, write)
		frame = e.PhysicalPage
	}

	return frame*c.pageSize + offset, nil
}

// translateOrFault translates, raising at most one page fault to the kernel
// and executing the access again afterwards.
func (c *Comp) translateOrFault(vAddr uint64, write bool) (uint64, error) {
	pAddr, err := c.Translate(vAddr, write)

	var fault *PageFaultError
	if !errors.As(err, &fault) {
		return pAddr, err
	}

	c.numPageFaults++
	if c.faultHandler == nil {
		return 0, err
	}

	c.faultHandler.HandlePageFault(vAddr)

	pAddr, err = c.Translate(vAddr, write)
	if errors.As(err, &fault) {
		log.Panicf("%s: page fault at 0x%x persists after the handler ran",
			c.name, vAddr)
	}

	return pAddr, err
}

// ReadMem reads size bytes of user memory starting at vAddr.
func (c *Comp) ReadMem(vAddr uint64, size int) ([]byte, error) {
	out := make([]byte, size)

	for i := 0; i < size; i++ {
		pAddr, err := c.translateOrFault(vAddr+uint64(i), false)
		if err != nil {
			return nil, err
		}

		b, err := c.storage.Read(pAddr, 1)
		if err != nil {
			return nil, err
		}

		out[i] = b[0]
	}

	return out, nil
}

// WriteMem writes data to user memory starting at vAddr.
func (c *Comp) WriteMem(vAddr uint64, data []byte) error {
	for i, b := range data {
		pAddr, err := c.translateOrFault(vAddr+uint64(i), true)
		if err != nil {
			return err
		}

		err = c.storage.Write(pAddr, []byte{b})
		if err != nil {
			return err
		}
	}

	return nil
}
