// Package tracing turns the kernel's paging hooks into records.
package tracing

import (
	"sync"

	"github.com/sarchlab/nachosvm/datarecording"
	"github.com/sarchlab/nachosvm/kernel"
	"github.com/sarchlab/nachosvm/sim"
)

const eventTable = "paging_events"

type eventTableEntry struct {
	ID       string
	Seq      uint64
	Kind     string
	PID      int
	Image    string
	VAddr    uint64
	VPN      uint64
	Frame    int
	TLBSlot  int
	Dirty    bool
	ChildPID int
}

// DBTracer is a hook that stores every paging event it sees into a
// DataRecorder.
type DBTracer struct {
	mu      sync.Mutex
	backend datarecording.DataRecorder
	idGen   sim.IDGenerator
	filter  EventFilter

	seq uint64
}

// An EventFilter decides whether an event is recorded.
type EventFilter func(pos *sim.HookPos, evt kernel.PagingEvent) bool

// AllEvents accepts every event.
func AllEvents(*sim.HookPos, kernel.PagingEvent) bool {
	return true
}

// NewDBTracer creates a new DBTracer and the table it writes to.
func NewDBTracer(
	dataRecorder datarecording.DataRecorder,
	filter EventFilter,
) *DBTracer {
	dataRecorder.CreateTable(eventTable, eventTableEntry{})

	if filter == nil {
		filter = AllEvents
	}

	return &DBTracer{
		backend: dataRecorder,
		idGen:   sim.NewSequentialIDGenerator(),
		filter:  filter,
	}
}

// Func records the event of ctx.
func (t *DBTracer) Func(ctx sim.HookCtx) {
	evt, ok := ctx.Detail.(kernel.PagingEvent)
	if !ok {
		return
	}

	if !t.filter(ctx.Pos, evt) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	t.backend.InsertData(eventTable, eventTableEntry{
		ID:       t.idGen.Generate(),
		Seq:      t.seq,
		Kind:     ctx.Pos.Name,
		PID:      int(evt.PID),
		Image:    evt.Image,
		VAddr:    evt.VAddr,
		VPN:      evt.VPN,
		Frame:    evt.Frame,
		TLBSlot:  evt.TLBSlot,
		Dirty:    evt.Dirty,
		ChildPID: int(evt.ChildPID),
	})
}

// NumRecorded returns the number of events recorded so far.
func (t *DBTracer) NumRecorded() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.seq
}

// Terminate flushes what has been recorded.
func (t *DBTracer) Terminate() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.backend.Flush()
}
