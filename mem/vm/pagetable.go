// Package vm provides the models for address translations
package vm

import (
	"log"
)

// A PageTableEntry maintains the information about how to translate one
// virtual page to a physical frame. TLB slots use the same struct.
type PageTableEntry struct {
	VirtualPage  uint64
	PhysicalPage uint64 // meaningful only if Valid
	Valid        bool
	Dirty        bool
	Use          bool
	ReadOnly     bool

	// LRUTime counts the faults since the entry was last touched or loaded.
	LRUTime uint64
}

// A PageTable is the authoritative per-process array of entries, indexed by
// virtual page number.
type PageTable struct {
	entries []PageTableEntry
}

// NewPageTable creates a page table with numPages invalid entries.
func NewPageTable(numPages uint64) *PageTable {
	pt := &PageTable{
		entries: make([]PageTableEntry, numPages),
	}

	for i := range pt.entries {
		pt.entries[i].VirtualPage = uint64(i)
	}

	return pt
}

// Len returns the number of virtual pages the table covers.
func (pt *PageTable) Len() uint64 {
	return uint64(len(pt.entries))
}

// Lookup returns the entry of vpn. An out-of-range vpn panics.
func (pt *PageTable) Lookup(vpn uint64) *PageTableEntry {
	pt.pageMustBeInRange(vpn)
	return &pt.entries[vpn]
}

// Install marks vpn as resident in frame. The caller has already put the
// right content into the frame.
func (pt *PageTable) Install(vpn, frame uint64, readOnly bool) {
	pt.pageMustBeInRange(vpn)

	pt.entries[vpn] = PageTableEntry{
		VirtualPage:  vpn,
		PhysicalPage: frame,
		Valid:        true,
		ReadOnly:     readOnly,
	}
}

// Invalidate drops the mapping of vpn. The observation bits are cleared so a
// later Install starts clean.
func (pt *PageTable) Invalidate(vpn uint64) {
	e := pt.Lookup(vpn)
	e.Valid = false
	e.Dirty = false
	e.Use = false
}

// Touch records an access that went straight to the page table, which is
// what the hardware does when there is no TLB.
func (pt *PageTable) Touch(vpn uint64, write bool) {
	e := pt.Lookup(vpn)
	e.Use = true
	e.LRUTime = 0

	if write {
		e.Dirty = true
	}
}

// AgeAll advances the LRU clock by one tick for every entry.
func (pt *PageTable) AgeAll() {
	for i := range pt.entries {
		pt.entries[i].LRUTime++
	}
}

// SelectEvictionVictim returns the valid entry that has gone untouched the
// longest. Ties go to the lowest vpn. The bool is false if no entry is
// valid.
func (pt *PageTable) SelectEvictionVictim() (uint64, bool) {
	found := false
	victim := uint64(0)
	maxTime := uint64(0)

	for i := range pt.entries {
		e := &pt.entries[i]
		if !e.Valid {
			continue
		}

		if !found || e.LRUTime > maxTime {
			found = true
			victim = uint64(i)
			maxTime = e.LRUTime
		}
	}

	return victim, found
}

// NumValid counts the resident pages.
func (pt *PageTable) NumValid() int {
	n := 0
	for i := range pt.entries {
		if pt.entries[i].Valid {
			n++
		}
	}

	return n
}

// Entries returns a copy of all entries.
func (pt *PageTable) Entries() []PageTableEntry {
	out := make([]PageTableEntry, len(pt.entries))
	copy(out, pt.entries)

	return out
}

// Clone returns a deep copy of the table. The copy shares no state with pt;
// frame ownership of valid entries is the caller's business.
func (pt *PageTable) Clone() *PageTable {
	return &PageTable{entries: pt.Entries()}
}

func (pt *PageTable) pageMustBeInRange(vpn uint64) {
	if vpn >= uint64(len(pt.entries)) {
		log.Panicf("virtual page %d too large for page table size %d",
			vpn, len(pt.entries))
	}
}
