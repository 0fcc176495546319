package kernel

import (
	"log"
	"sync"

	"github.com/sarchlab/nachosvm/backing"
	"github.com/sarchlab/nachosvm/mem/frame"
	"github.com/sarchlab/nachosvm/mem/vm"
	"github.com/sarchlab/nachosvm/mem/vm/tlb"
	"github.com/sarchlab/nachosvm/memory"
	"github.com/sarchlab/nachosvm/sim"
)

// PagerStats counts what the pager has done.
type PagerStats struct {
	PageFaults uint64
	PageLoads  uint64
	Evictions  uint64
	WriteBacks uint64
	TLBRefills uint64
	FramesFree uint64
}

// A Pager owns physical memory on behalf of all processes. It resolves page
// faults, evicts and writes back pages, and tears down or duplicates the
// memory of processes.
//
// Every exported method holds the pager's lock for its whole duration, so a
// fault is resolved without interleaving. Hooks run under the lock and must
// not call back into the pager.
type Pager struct {
	sync.Mutex
	*sim.HookableBase

	pageSize uint64
	storage  *memory.Storage
	frames   frame.Allocator
	coreMap  *coreMap
	tlb      *tlb.TLB
	fs       backing.FileSystem

	running *vm.AddressSpace
	stats   PagerStats
}

func newPager(
	pageSize uint64,
	storage *memory.Storage,
	frames frame.Allocator,
	t *tlb.TLB,
	fs backing.FileSystem,
) *Pager {
	if storage.UnitSize() != pageSize {
		log.Panicf("memory unit size %d does not match page size %d",
			storage.UnitSize(), pageSize)
	}

	if storage.NumUnits() != uint64(frames.Capacity()) {
		log.Panicf("memory has %d frames but the allocator tracks %d",
			storage.NumUnits(), frames.Capacity())
	}

	return &Pager{
		HookableBase: sim.NewHookableBase(),
		pageSize:     pageSize,
		storage:      storage,
		frames:       frames,
		coreMap:      newCoreMap(frames.Capacity()),
		tlb:          t,
		fs:           fs,
	}
}

// PageSize returns the page size.
func (p *Pager) PageSize() uint64 {
	return p.pageSize
}

// Frames returns the frame allocator.
func (p *Pager) Frames() frame.Allocator {
	return p.frames
}

// Stats returns a copy of the counters.
func (p *Pager) Stats() PagerStats {
	p.Lock()
	defer p.Unlock()

	s := p.stats
	s.FramesFree = uint64(p.frames.NumFree())

	return s
}

// Running returns the address space the TLB currently caches.
func (p *Pager) Running() *vm.AddressSpace {
	p.Lock()
	defer p.Unlock()

	return p.running
}

// SwitchTo makes as the running address space. The TLB is flushed into the
// page table of the outgoing space first.
func (p *Pager) SwitchTo(as *vm.AddressSpace) {
	p.Lock()
	defer p.Unlock()

	if p.running == as {
		return
	}

	if p.tlb != nil {
		p.tlb.Flush(p.coreMap)
	}

	p.running = as
}

// FrameOwner returns the address space page that occupies frame.
func (p *Pager) FrameOwner(frame uint64) (*vm.AddressSpace, uint64, bool) {
	p.Lock()
	defer p.Unlock()

	return p.coreMap.owner(frame)
}

// Resolve makes page vpn of as resident. Nothing happens if it already is.
func (p *Pager) Resolve(as *vm.AddressSpace, vpn uint64) {
	p.Lock()
	defer p.Unlock()

	p.resolve(as, vpn)
}

// HandleFault is the page fault handler. It ages the page table, loads the
// faulting page if needed, and in TLB mode refills one TLB slot with it. The
// faulting access is not retried here.
func (p *Pager) HandleFault(as *vm.AddressSpace, badVAddr uint64, withTLB bool) {
	p.Lock()
	defer p.Unlock()

	vpn := as.VPN(badVAddr)
	e := as.PageTable.Lookup(vpn)

	p.stats.PageFaults++
	evt := newPageEvent(as, vpn)
	if e.Valid {
		evt.Frame = int(e.PhysicalPage)
	}
	evt.VAddr = badVAddr
	p.InvokeHook(sim.HookCtx{
		Domain: p,
		Pos:    HookPosPageFault,
		Item:   as,
		Detail: evt,
	})

	as.PageTable.AgeAll()

	if !e.Valid {
		p.resolve(as, vpn)
	}

	if !withTLB {
		return
	}

	if p.tlb == nil {
		log.Panicf("TLB fault at 0x%x on a machine without a TLB", badVAddr)
	}

	slot := p.tlb.SelectVictimSlot()
	p.tlb.ReconcileBeforeEvict(slot, p.coreMap)
	p.tlb.Install(slot, *as.PageTable.Lookup(vpn))

	p.stats.TLBRefills++
	evt = newEvent(as, vpn, e.PhysicalPage)
	evt.TLBSlot = slot
	p.InvokeHook(sim.HookCtx{
		Domain: p,
		Pos:    HookPosTLBRefill,
		Item:   as,
		Detail: evt,
	})
}

func (p *Pager) resolve(as *vm.AddressSpace, vpn uint64) {
	e := as.PageTable.Lookup(vpn)
	if e.Valid {
		return
	}

	var pieces []vm.Piece
	if !as.IsSwapped(vpn) {
		pieces = as.Layout.PagePieces(vpn, p.pageSize)
		if len(pieces) == 0 {
			log.Panicf("pid %d: virtual page %d is in no region of %s",
				as.PID, vpn, as.ImageName)
		}
	}

	frame := p.acquireFrame(as)
	p.storage.ZeroUnit(frame)

	if as.IsSwapped(vpn) {
		p.loadFromSwap(as, vpn, frame)
	} else {
		p.loadFromImage(as, pieces, frame)
	}

	as.PageTable.Install(vpn, frame, as.Layout.PageReadOnly(vpn, p.pageSize))
	p.coreMap.set(frame, as, vpn)

	p.stats.PageLoads++
	p.InvokeHook(sim.HookCtx{
		Domain: p,
		Pos:    HookPosPageLoad,
		Item:   as,
		Detail: newEvent(as, vpn, frame),
	})
}

// acquireFrame returns a frame for a page of as. A free frame is used if
// there is one. Otherwise the least recently used page of as is evicted, or,
// if as has nothing resident, the least recently used page of the system.
func (p *Pager) acquireFrame(as *vm.AddressSpace) uint64 {
	if frame, ok := p.frames.Allocate(); ok {
		return frame
	}

	victim := as
	vpn, ok := as.PageTable.SelectEvictionVictim()
	if !ok {
		frame, found := p.coreMap.oldest()
		if !found {
			log.Panicf("no frame to evict for pid %d", as.PID)
		}

		victim, vpn, _ = p.coreMap.owner(frame)
	}

	return p.evict(victim, vpn)
}

// evict takes the frame away from page vpn of as and returns it. A dirty
// page is written back before the function returns.
func (p *Pager) evict(as *vm.AddressSpace, vpn uint64) uint64 {
	e := as.PageTable.Lookup(vpn)
	frame := e.PhysicalPage

	if p.tlb != nil {
		p.tlb.InvalidateFrame(frame, p.coreMap)
	}

	dirty := e.Dirty
	as.PageTable.Invalidate(vpn)
	p.coreMap.clear(frame)

	if dirty {
		p.writeBack(as, vpn, frame)
	}

	p.stats.Evictions++
	evt := newEvent(as, vpn, frame)
	evt.Dirty = dirty
	p.InvokeHook(sim.HookCtx{
		Domain: p,
		Pos:    HookPosEvict,
		Item:   as,
		Detail: evt,
	})

	return frame
}

func (p *Pager) writeBack(as *vm.AddressSpace, vpn, frame uint64) {
	n := as.SwapLength(vpn)

	store := p.open(as.SwapName)
	defer store.Close()

	_, err := store.WriteAt(p.storage.Unit(frame)[:n], int64(as.SwapOffset(vpn)))
	if err != nil {
		log.Panicf("writing page %d of pid %d to %s: %v",
			vpn, as.PID, as.SwapName, err)
	}

	as.MarkSwapped(vpn)

	p.stats.WriteBacks++
	p.InvokeHook(sim.HookCtx{
		Domain: p,
		Pos:    HookPosWriteBack,
		Item:   as,
		Detail: newEvent(as, vpn, frame),
	})
}

func (p *Pager) loadFromSwap(as *vm.AddressSpace, vpn, frame uint64) {
	n := as.SwapLength(vpn)
	if n == 0 {
		return
	}

	store := p.open(as.SwapName)
	defer store.Close()

	_, err := backing.ReadFull(store, p.storage.Unit(frame)[:n], as.SwapOffset(vpn))
	if err != nil {
		log.Panicf("reading page %d of pid %d from %s: %v",
			vpn, as.PID, as.SwapName, err)
	}
}

func (p *Pager) loadFromImage(as *vm.AddressSpace, pieces []vm.Piece, frame uint64) {
	unit := p.storage.Unit(frame)

	var image backing.Store
	defer func() {
		if image != nil {
			image.Close()
		}
	}()

	for _, piece := range pieces {
		if !piece.Region.FileBacked() {
			continue
		}

		n := vm.ClampLength(piece.FileOffset, piece.Length, as.ImageSize)
		if n == 0 {
			continue
		}

		if image == nil {
			image = p.open(as.ImageName)
		}

		buf := unit[piece.PageOffset : piece.PageOffset+n]
		_, err := backing.ReadFull(image, buf, piece.FileOffset)
		if err != nil {
			log.Panicf("reading %s of %s at %d: %v",
				piece.Region, as.ImageName, piece.FileOffset, err)
		}
	}
}

func (p *Pager) open(name string) backing.Store {
	store, err := p.fs.Open(name)
	if err != nil {
		log.Panicf("cannot open backing store %s: %v", name, err)
	}

	return store
}

// Exit releases all memory of as. Dirty pages are written back before their
// frames are freed.
func (p *Pager) Exit(as *vm.AddressSpace) {
	p.Lock()
	defer p.Unlock()

	if p.tlb != nil && p.running == as {
		p.tlb.Flush(p.coreMap)
	}

	for vpn := uint64(0); vpn < as.NumPages(); vpn++ {
		e := as.PageTable.Lookup(vpn)
		if !e.Valid {
			continue
		}

		frame := e.PhysicalPage
		if e.Dirty {
			p.writeBack(as, vpn, frame)
		}

		as.PageTable.Invalidate(vpn)
		p.coreMap.clear(frame)
		p.frames.Free(frame)

		p.InvokeHook(sim.HookCtx{
			Domain: p,
			Pos:    HookPosFrameFree,
			Item:   as,
			Detail: newEvent(as, vpn, frame),
		})
	}

	if p.running == as {
		p.running = nil
	}

	p.InvokeHook(sim.HookCtx{
		Domain: p,
		Pos:    HookPosProcessExit,
		Item:   as,
		Detail: newPageEvent(as, 0),
	})
}

// Fork creates the address space of a child of parent. The child starts
// with the same content as the parent but shares no frame and no backing
// store with it. Resident parent pages are copied into free frames while
// there are any; the remaining pages are loaded on demand from the child's
// swap.
func (p *Pager) Fork(
	parent *vm.AddressSpace,
	childPID vm.PID,
	childSwap string,
) *vm.AddressSpace {
	p.Lock()
	defer p.Unlock()

	if p.tlb != nil && p.running == parent {
		p.tlb.Sync(p.coreMap)
	}

	for vpn := uint64(0); vpn < parent.NumPages(); vpn++ {
		e := parent.PageTable.Lookup(vpn)
		if e.Valid && e.Dirty {
			p.writeBack(parent, vpn, e.PhysicalPage)
			e.Dirty = false
		}
	}

	if err := p.fs.Copy(parent.SwapName, childSwap); err != nil {
		log.Panicf("copying %s to %s: %v", parent.SwapName, childSwap, err)
	}

	child := parent.Duplicate(childPID, childSwap)

	for vpn := uint64(0); vpn < child.NumPages(); vpn++ {
		ce := child.PageTable.Lookup(vpn)
		if !ce.Valid {
			continue
		}

		parentFrame := ce.PhysicalPage
		readOnly := ce.ReadOnly

		frame, ok := p.frames.Allocate()
		if !ok {
			child.PageTable.Invalidate(vpn)
			continue
		}

		p.storage.CopyUnit(frame, parentFrame)
		child.PageTable.Install(vpn, frame, readOnly)
		p.coreMap.set(frame, child, vpn)
	}

	evt := newPageEvent(parent, 0)
	evt.ChildPID = childPID
	p.InvokeHook(sim.HookCtx{
		Domain: p,
		Pos:    HookPosFork,
		Item:   child,
		Detail: evt,
	})

	return child
}

// FrameInfo describes one physical frame.
type FrameInfo struct {
	Frame     uint64
	Allocated bool
	PID       vm.PID
	VPN       uint64
	Dirty     bool
	Use       bool
	ReadOnly  bool
	LRUTime   uint64
}

// FrameTable returns the state of every frame.
func (p *Pager) FrameTable() []FrameInfo {
	p.Lock()
	defer p.Unlock()

	out := make([]FrameInfo, p.frames.Capacity())
	for i := range out {
		frame := uint64(i)
		info := FrameInfo{
			Frame:     frame,
			Allocated: p.frames.IsAllocated(frame),
			PID:       -1,
		}

		if as, vpn, ok := p.coreMap.owner(frame); ok {
			e := as.PageTable.Lookup(vpn)
			info.PID = as.PID
			info.VPN = vpn
			info.Dirty = e.Dirty
			info.Use = e.Use
			info.ReadOnly = e.ReadOnly
			info.LRUTime = e.LRUTime
		}

		out[i] = info
	}

	return out
}
