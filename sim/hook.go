// Package sim provides the plumbing shared by the simulated machine and the
// kernel: hooks, log hooks, and ID generation.
package sim

// HookPos names a point where a Hookable reports an event, such as a page
// fault or an eviction.
type HookPos struct {
	Name string
}

// HookCtx describes one reported event.
type HookCtx struct {
	// Domain is the object that reports the event.
	Domain Hookable

	// Pos is where the event happened.
	Pos *HookPos

	// Item is the object the event is about, for example an address space.
	Item interface{}

	// Detail carries the event payload.
	Detail interface{}
}

// Hookable defines an object that accept Hooks
type Hookable interface {
	// AcceptHook registers a hook
	AcceptHook(hook Hook)

	// NumHooks returns the number of hooks registered.
	NumHooks() int
}

// Hook observes the events of a Hookable.
type Hook interface {
	// Func is called once per event, on the goroutine that reports it.
	Func(ctx HookCtx)
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc func(ctx HookCtx)

// Func calls f.
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// A HookableBase keeps the hook list of a Hookable. Embedders serialize
// AcceptHook and InvokeHook with their own lock.
type HookableBase struct {
	Hooks []Hook
}

// NewHookableBase creates a HookableBase object
func NewHookableBase() *HookableBase {
	return &HookableBase{Hooks: make([]Hook, 0)}
}

// AcceptHook register a hook
func (h *HookableBase) AcceptHook(hook Hook) {
	h.Hooks = append(h.Hooks, hook)
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.Hooks)
}

// InvokeHook calls the hooks in registration order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.Hooks {
		hook.Func(ctx)
	}
}
