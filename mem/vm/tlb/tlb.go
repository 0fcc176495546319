// Package tlb provides the translation lookaside buffer of the simulated
// machine.
package tlb

import (
	"fmt"
	"log"
	"strings"

	"github.com/sarchlab/nachosvm/mem/vm"
)

// Policy selects which slot is replaced when every slot is valid.
type Policy int

// Replacement policies.
const (
	LRU Policy = iota
	FIFO
)

func (p Policy) String() string {
	switch p {
	case LRU:
		return "LRU"
	case FIFO:
		return "FIFO"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts "lru" or "fifo" (any case) to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "lru":
		return LRU, nil
	case "fifo":
		return FIFO, nil
	default:
		return LRU, fmt.Errorf("unknown TLB policy %q", s)
	}
}

// A FrameOwner finds the authoritative page table entry that maps a frame.
type FrameOwner interface {
	// EntryOfFrame returns the valid entry mapping frame, or nil.
	EntryOfFrame(frame uint64) *vm.PageTableEntry
}

// TLB is a small fully associative cache of page table entries. Its entries
// hold the hardware's latest observations and are pushed back to the page
// table whenever they leave the cache.
type TLB struct {
	name    string
	entries []vm.PageTableEntry
	policy  Policy
	fillSeq []uint64
	nextSeq uint64
}

// Name returns the name of the TLB.
func (t *TLB) Name() string {
	return t.name
}

// Len returns the number of slots.
func (t *TLB) Len() int {
	return len(t.entries)
}

// Policy returns the replacement policy.
func (t *TLB) Policy() Policy {
	return t.policy
}

// Entries returns a copy of all slots.
func (t *TLB) Entries() []vm.PageTableEntry {
	out := make([]vm.PageTableEntry, len(t.entries))
	copy(out, t.entries)

	return out
}

// Entry returns a copy of one slot.
func (t *TLB) Entry(slot int) vm.PageTableEntry {
	t.slotMustBeInRange(slot)
	return t.entries[slot]
}

// Lookup finds the valid slot caching vpn.
func (t *TLB) Lookup(vpn uint64) (int, bool) {
	for i := range t.entries {
		if t.entries[i].Valid && t.entries[i].VirtualPage == vpn {
			return i, true
		}
	}

	return 0, false
}

// Access records a hit on slot. Every other valid slot ages by one tick.
func (t *TLB) Access(slot int, write bool) {
	t.slotMustBeInRange(slot)

	for i := range t.entries {
		if i != slot && t.entries[i].Valid {
			t.entries[i].LRUTime++
		}
	}

	e := &t.entries[slot]
	e.Use = true
	e.LRUTime = 0

	if write {
		e.Dirty = true
	}
}

// SelectVictimSlot returns the first invalid slot, or the slot the policy
// wants to replace. LRU picks the largest LRUTime; ties go to the lowest
// slot.
func (t *TLB) SelectVictimSlot() int {
	for i := range t.entries {
		if !t.entries[i].Valid {
			return i
		}
	}

	if t.policy == FIFO {
		return t.oldestFill()
	}

	victim := 0
	for i := range t.entries {
		if t.entries[i].LRUTime > t.entries[victim].LRUTime {
			victim = i
		}
	}

	return victim
}

func (t *TLB) oldestFill() int {
	victim := 0
	for i := range t.fillSeq {
		if t.fillSeq[i] < t.fillSeq[victim] {
			victim = i
		}
	}

	return victim
}

// Install copies entry into slot with a fresh observation window. The
// outgoing entry must have been reconciled already.
func (t *TLB) Install(slot int, entry vm.PageTableEntry) {
	t.slotMustBeInRange(slot)

	entry.Use = false
	entry.Dirty = false
	entry.LRUTime = 0
	t.entries[slot] = entry

	t.nextSeq++
	t.fillSeq[slot] = t.nextSeq
}

// ReconcileBeforeEvict pushes what the hardware observed in slot back to the
// page table entry that owns the same frame. It must run before the slot is
// overwritten, or writes are lost.
func (t *TLB) ReconcileBeforeEvict(slot int, owner FrameOwner) {
	t.slotMustBeInRange(slot)

	e := &t.entries[slot]
	if !e.Valid {
		return
	}

	pte := owner.EntryOfFrame(e.PhysicalPage)
	if pte == nil {
		log.Panicf("TLB slot %d caches frame %d which has no owner",
			slot, e.PhysicalPage)
	}

	if pte.VirtualPage != e.VirtualPage {
		log.Panicf("TLB slot %d maps vpn %d to frame %d, "+
			"but the page table says frame %d belongs to vpn %d",
			slot, e.VirtualPage, e.PhysicalPage,
			e.PhysicalPage, pte.VirtualPage)
	}

	if e.Dirty {
		pte.Dirty = true
	}

	if e.Use {
		pte.Use = true
		pte.LRUTime = 0
	}
}

// Invalidate drops slot without reconciling it.
func (t *TLB) Invalidate(slot int) {
	t.slotMustBeInRange(slot)

	t.entries[slot].Valid = false
	t.entries[slot].Dirty = false
	t.entries[slot].Use = false
}

// InvalidateFrame reconciles and drops every slot caching frame. It returns
// the number of slots dropped.
func (t *TLB) InvalidateFrame(frame uint64, owner FrameOwner) int {
	n := 0

	for i := range t.entries {
		if t.entries[i].Valid && t.entries[i].PhysicalPage == frame {
			t.ReconcileBeforeEvict(i, owner)
			t.Invalidate(i)
			n++
		}
	}

	return n
}

// Sync reconciles every valid slot and clears its observation bits, so the
// page table is up to date while the slots stay usable.
func (t *TLB) Sync(owner FrameOwner) {
	for i := range t.entries {
		if !t.entries[i].Valid {
			continue
		}

		t.ReconcileBeforeEvict(i, owner)
		t.entries[i].Dirty = false
		t.entries[i].Use = false
	}
}

// Flush reconciles and drops every slot. It is used on context switch.
func (t *TLB) Flush(owner FrameOwner) {
	for i := range t.entries {
		if !t.entries[i].Valid {
			continue
		}

		t.ReconcileBeforeEvict(i, owner)
		t.Invalidate(i)
	}
}

func (t *TLB) slotMustBeInRange(slot int) {
	if slot < 0 || slot >= len(t.entries) {
		log.Panicf("TLB slot %d out of range [0, %d)", slot, len(t.entries))
	}
}

// OwnerFromPageTable adapts a single page table to a FrameOwner.
func OwnerFromPageTable(pt *vm.PageTable) FrameOwner {
	return pageTableOwner{pt: pt}
}

type pageTableOwner struct {
	pt *vm.PageTable
}

func (o pageTableOwner) EntryOfFrame(frame uint64) *vm.PageTableEntry {
	for vpn := uint64(0); vpn < o.pt.Len(); vpn++ {
		e := o.pt.Lookup(vpn)
		if e.Valid && e.PhysicalPage == frame {
			return e
		}
	}

	return nil
}
