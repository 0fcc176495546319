package mmu

import (
	"log"

	"github.com/sarchlab/nachosvm/mem/vm/tlb"
	"github.com/sarchlab/nachosvm/memory"
)

// A Builder can build MMU component
type Builder struct {
	pageSize uint64
	storage  memory.Controller
	tlb      *tlb.TLB
}

// MakeBuilder creates a new builder
func MakeBuilder() Builder {
	return Builder{
		pageSize: 128,
	}
}

// WithPageSize sets the page size that the mmu translates with.
func (b Builder) WithPageSize(pageSize uint64) Builder {
	b.pageSize = pageSize
	return b
}

// WithStorage sets the main memory that translated accesses go to.
func (b Builder) WithStorage(storage memory.Controller) Builder {
	b.storage = storage
	return b
}

// WithTLB puts a TLB in front of the page table. Without one, every access
// is translated by the page table directly.
func (b Builder) WithTLB(t *tlb.TLB) Builder {
	b.tlb = t
	return b
}

// Build returns a newly created MMU component
func (b Builder) Build(name string) *Comp {
	if b.pageSize == 0 {
		log.Panicf("%s: page size must not be zero", name)
	}

	if b.storage == nil {
		log.Panicf("%s: storage is required", name)
	}

	return &Comp{
		name:     name,
		pageSize: b.pageSize,
		storage:  b.storage,
		tlb:      b.tlb,
	}
}
