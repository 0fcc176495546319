package kernel

import (
	"github.com/sarchlab/nachosvm/mem/vm"
	"github.com/sarchlab/nachosvm/sim"
)

// HookPosPageFault marks a page fault entering the kernel.
var HookPosPageFault = &sim.HookPos{Name: "PageFault"}

// HookPosPageLoad marks a page brought into a frame.
var HookPosPageLoad = &sim.HookPos{Name: "PageLoad"}

// HookPosEvict marks a resident page losing its frame to another page.
var HookPosEvict = &sim.HookPos{Name: "Evict"}

// HookPosWriteBack marks a dirty page written to swap.
var HookPosWriteBack = &sim.HookPos{Name: "WriteBack"}

// HookPosTLBRefill marks a TLB slot filled by the fault handler.
var HookPosTLBRefill = &sim.HookPos{Name: "TLBRefill"}

// HookPosFrameFree marks a frame returned to the allocator.
var HookPosFrameFree = &sim.HookPos{Name: "FrameFree"}

// HookPosProcessExit marks the end of a process.
var HookPosProcessExit = &sim.HookPos{Name: "ProcessExit"}

// HookPosFork marks a forked child address space.
var HookPosFork = &sim.HookPos{Name: "Fork"}

// A PagingEvent is the detail of every kernel hook.
type PagingEvent struct {
	PID   vm.PID
	Image string
	VAddr uint64
	VPN   uint64

	// Frame is -1 if the page has no frame when the event happens.
	Frame int

	// TLBSlot is -1 unless the event concerns a TLB slot.
	TLBSlot int

	// Dirty tells whether an evicted page needed a write back.
	Dirty bool

	// ChildPID is set for fork events.
	ChildPID vm.PID
}

func newEvent(as *vm.AddressSpace, vpn, frame uint64) PagingEvent {
	evt := newPageEvent(as, vpn)
	evt.Frame = int(frame)

	return evt
}

// newPageEvent creates an event about a page that holds no frame.
func newPageEvent(as *vm.AddressSpace, vpn uint64) PagingEvent {
	return PagingEvent{
		PID:     as.PID,
		Image:   as.ImageName,
		VAddr:   vpn * as.PageSize,
		VPN:     vpn,
		Frame:   -1,
		TLBSlot: -1,
	}
}
