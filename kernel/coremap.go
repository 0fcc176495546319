package kernel

import (
	"github.com/sarchlab/nachosvm/mem/vm"
)

type frameOwner struct {
	space *vm.AddressSpace
	vpn   uint64
}

// coreMap records which address space page occupies each frame. It is the
// reverse of all page tables together.
type coreMap struct {
	owners []*frameOwner
}

func newCoreMap(numFrames int) *coreMap {
	return &coreMap{owners: make([]*frameOwner, numFrames)}
}

func (m *coreMap) set(frame uint64, as *vm.AddressSpace, vpn uint64) {
	m.owners[frame] = &frameOwner{space: as, vpn: vpn}
}

func (m *coreMap) clear(frame uint64) {
	m.owners[frame] = nil
}

func (m *coreMap) owner(frame uint64) (*vm.AddressSpace, uint64, bool) {
	o := m.owners[frame]
	if o == nil {
		return nil, 0, false
	}

	return o.space, o.vpn, true
}

// EntryOfFrame implements tlb.FrameOwner.
func (m *coreMap) EntryOfFrame(frame uint64) *vm.PageTableEntry {
	if frame >= uint64(len(m.owners)) {
		return nil
	}

	o := m.owners[frame]
	if o == nil {
		return nil
	}

	return o.space.PageTable.Lookup(o.vpn)
}

// oldest returns the frame whose page has gone untouched the longest across
// all address spaces. Ties go to the lowest frame.
func (m *coreMap) oldest() (uint64, bool) {
	found := false
	victim := uint64(0)
	maxTime := uint64(0)

	for frame, o := range m.owners {
		if o == nil {
			continue
		}

		e := o.space.PageTable.Lookup(o.vpn)
		if !found || e.LRUTime > maxTime {
			found = true
			victim = uint64(frame)
			maxTime = e.LRUTime
		}
	}

	return victim, found
}
