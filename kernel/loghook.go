package kernel

import (
	"io"

	"github.com/sarchlab/nachosvm/sim"
)

// LogHook prints the kernel's paging activity as text lines.
type LogHook struct {
	sim.LogHookBase

	verbose bool
}

// NewLogHook creates a LogHook writing to w. A quiet hook only reports frame
// deallocation and process exit.
func NewLogHook(w io.Writer, verbose bool) *LogHook {
	return &LogHook{
		LogHookBase: sim.NewLogHookBase(w),
		verbose:     verbose,
	}
}

// Func writes one line for the event.
func (h *LogHook) Func(ctx sim.HookCtx) {
	evt, ok := ctx.Detail.(PagingEvent)
	if !ok {
		return
	}

	switch ctx.Pos {
	case HookPosFrameFree:
		h.Printf("phys page %d deallocated.", evt.Frame)
	case HookPosProcessExit:
		h.Printf("Program(%s) exit.", evt.Image)
	default:
		if h.verbose {
			h.logDetail(ctx.Pos, evt)
		}
	}
}

func (h *LogHook) logDetail(pos *sim.HookPos, evt PagingEvent) {
	switch pos {
	case HookPosPageFault:
		h.Printf("pid %d: page fault at 0x%x (vpn %d)",
			evt.PID, evt.VAddr, evt.VPN)
	case HookPosEvict:
		h.Printf("pid %d: vpn %d evicted from frame %d, dirty %t",
			evt.PID, evt.VPN, evt.Frame, evt.Dirty)
	case HookPosTLBRefill:
		h.Printf("pid %d: TLB slot %d <- vpn %d frame %d",
			evt.PID, evt.TLBSlot, evt.VPN, evt.Frame)
	case HookPosFork:
		h.Printf("pid %d: forked pid %d", evt.PID, evt.ChildPID)
	default:
		h.Printf("pid %d: %s vpn %d frame %d",
			evt.PID, pos.Name, evt.VPN, evt.Frame)
	}
}
