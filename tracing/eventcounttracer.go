package tracing

import (
	"sync"

	"github.com/sarchlab/nachosvm/kernel"
	"github.com/sarchlab/nachosvm/mem/vm"
	"github.com/sarchlab/nachosvm/sim"
)

// EventCountTracer counts paging events by kind and by process.
type EventCountTracer struct {
	filter EventFilter
	lock   sync.Mutex

	eventNames []string
	eventCount map[string]uint64
	pidCount   map[vm.PID]map[string]uint64
}

// NewEventCountTracer creates a new EventCountTracer
func NewEventCountTracer(filter EventFilter) *EventCountTracer {
	if filter == nil {
		filter = AllEvents
	}

	return &EventCountTracer{
		filter:     filter,
		eventCount: make(map[string]uint64),
		pidCount:   make(map[vm.PID]map[string]uint64),
	}
}

// Func counts the event of ctx.
func (t *EventCountTracer) Func(ctx sim.HookCtx) {
	evt, ok := ctx.Detail.(kernel.PagingEvent)
	if !ok || !t.filter(ctx.Pos, evt) {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	name := ctx.Pos.Name
	if _, seen := t.eventCount[name]; !seen {
		t.eventNames = append(t.eventNames, name)
	}
	t.eventCount[name]++

	perPID, ok := t.pidCount[evt.PID]
	if !ok {
		perPID = make(map[string]uint64)
		t.pidCount[evt.PID] = perPID
	}
	perPID[name]++
}

// GetEventNames returns the kinds of events seen, in order of first
// appearance.
func (t *EventCountTracer) GetEventNames() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]string(nil), t.eventNames...)
}

// GetEventCount returns how many events of a kind were seen.
func (t *EventCountTracer) GetEventCount(name string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.eventCount[name]
}

// GetProcessEventCount returns how many events of a kind a process caused.
func (t *EventCountTracer) GetProcessEventCount(pid vm.PID, name string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.pidCount[pid][name]
}
