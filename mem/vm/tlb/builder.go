package tlb

import (
	"log"

	"github.com/sarchlab/nachosvm/mem/vm"
)

// A Builder can build TLBs
type Builder struct {
	numEntries int
	policy     Policy
}

// MakeBuilder returns a Builder with 4 entries and LRU replacement.
func MakeBuilder() Builder {
	return Builder{
		numEntries: 4,
		policy:     LRU,
	}
}

// WithNumEntries sets the number of slots in the TLB.
func (b Builder) WithNumEntries(n int) Builder {
	b.numEntries = n
	return b
}

// WithPolicy sets the replacement policy used when every slot is valid.
func (b Builder) WithPolicy(p Policy) Builder {
	b.policy = p
	return b
}

// Build creates a new TLB with every slot invalid.
func (b Builder) Build(name string) *TLB {
	if b.numEntries <= 0 {
		log.Panicf("TLB %s must have at least one entry", name)
	}

	return &TLB{
		name:    name,
		entries: make([]vm.PageTableEntry, b.numEntries),
		policy:  b.policy,
		fillSeq: make([]uint64, b.numEntries),
	}
}
