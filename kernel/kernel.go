// Package kernel provides the memory management part of the teaching
// kernel: demand paging, page replacement, and the memory side of process
// exec, fork and exit.
package kernel

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/sarchlab/nachosvm/backing"
	"github.com/sarchlab/nachosvm/mem/vm"
	"github.com/sarchlab/nachosvm/mem/vm/mmu"
	"github.com/sarchlab/nachosvm/memory"
	"github.com/sarchlab/nachosvm/sim"
)

// A Process is a user program known to the kernel.
type Process struct {
	PID    vm.PID
	Parent vm.PID
	Space  *vm.AddressSpace
}

// Name returns the image the process runs.
func (p *Process) Name() string {
	return p.Space.ImageName
}

// Stats summarizes the paging activity of the kernel.
type Stats struct {
	PagerStats

	TLBHits   uint64
	TLBMisses uint64
	Processes int
}

// Kernel owns the process table and dispatches exceptions. Every exported
// method holds the kernel lock, so callers on other goroutines, such as the
// monitor, see a consistent state.
type Kernel struct {
	sync.Mutex

	name    string
	storage *memory.Storage
	mmu     *mmu.Comp
	pager   *Pager
	fs      backing.FileSystem

	processes map[vm.PID]*Process
	exited    map[vm.PID]int

	// retiredSwaps are the swaps of exited processes. They keep the pages
	// written back at exit until Shutdown.
	retiredSwaps map[vm.PID]string
	current   *Process
	nextPID   vm.PID
	halted    bool
}

// Name returns the name of the kernel.
func (k *Kernel) Name() string {
	return k.name
}

// AcceptHook registers a hook on the kernel's paging events.
func (k *Kernel) AcceptHook(hook sim.Hook) {
	k.pager.AcceptHook(hook)
}

// NumHooks returns the number of hooks registered.
func (k *Kernel) NumHooks() int {
	return k.pager.NumHooks()
}

// MMU returns the machine's MMU.
func (k *Kernel) MMU() *mmu.Comp {
	return k.mmu
}

// Pager returns the kernel's pager.
func (k *Kernel) Pager() *Pager {
	return k.pager
}

// Storage returns the machine's main memory.
func (k *Kernel) Storage() *memory.Storage {
	return k.storage
}

// FileSystem returns the file system images and swaps live in.
func (k *Kernel) FileSystem() backing.FileSystem {
	return k.fs
}

// Halted tells whether a program has halted the machine.
func (k *Kernel) Halted() bool {
	k.Lock()
	defer k.Unlock()

	return k.halted
}

// Current returns the PID of the running process. The bool is false if no
// process runs.
func (k *Kernel) Current() (vm.PID, bool) {
	k.Lock()
	defer k.Unlock()

	if k.current == nil {
		return 0, false
	}

	return k.current.PID, true
}

// Process returns the process of pid, or nil.
func (k *Kernel) Process(pid vm.PID) *Process {
	k.Lock()
	defer k.Unlock()

	return k.processes[pid]
}

// ExitStatus returns the status a finished process exited with.
func (k *Kernel) ExitStatus(pid vm.PID) (int, bool) {
	k.Lock()
	defer k.Unlock()

	status, ok := k.exited[pid]

	return status, ok
}

// ProcessInfo describes a process for inspection.
type ProcessInfo struct {
	PID      vm.PID
	Parent   vm.PID
	Image    string
	NumPages uint64
	Resident int
	Running  bool
}

// Processes lists the processes in PID order.
func (k *Kernel) Processes() []ProcessInfo {
	k.Lock()
	defer k.Unlock()

	out := make([]ProcessInfo, 0, len(k.processes))
	for _, pid := range k.sortedPIDs() {
		p := k.processes[pid]
		out = append(out, ProcessInfo{
			PID:      p.PID,
			Parent:   p.Parent,
			Image:    p.Name(),
			NumPages: p.Space.NumPages(),
			Resident: p.Space.PageTable.NumValid(),
			Running:  p == k.current,
		})
	}

	return out
}

// PageTable returns a copy of the page table of pid.
func (k *Kernel) PageTable(pid vm.PID) ([]vm.PageTableEntry, error) {
	k.Lock()
	defer k.Unlock()

	p, ok := k.processes[pid]
	if !ok {
		return nil, fmt.Errorf("no process %d", pid)
	}

	return p.Space.PageTable.Entries(), nil
}

// TLBEntries returns a copy of the TLB. It is empty on a machine without a
// TLB.
func (k *Kernel) TLBEntries() []vm.PageTableEntry {
	k.Lock()
	defer k.Unlock()

	if !k.mmu.HasTLB() {
		return nil
	}

	return k.mmu.TLB().Entries()
}

// FrameTable returns the state of every physical frame.
func (k *Kernel) FrameTable() []FrameInfo {
	k.Lock()
	defer k.Unlock()

	return k.pager.FrameTable()
}

// Stats returns the paging counters.
func (k *Kernel) Stats() Stats {
	k.Lock()
	defer k.Unlock()

	return Stats{
		PagerStats: k.pager.Stats(),
		TLBHits:    k.mmu.NumTLBHits(),
		TLBMisses:  k.mmu.NumTLBMisses(),
		Processes:  len(k.processes),
	}
}

// Exec loads a NOFF image and runs it as a new process.
func (k *Kernel) Exec(imageName string) (vm.PID, error) {
	store, err := k.fs.Open(imageName)
	if err != nil {
		return 0, fmt.Errorf("unable to open file %s: %w", imageName, err)
	}

	layout, err := vm.ParseNoffHeader(store)
	store.Close()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", imageName, err)
	}

	return k.ExecWithLayout(imageName, layout)
}

// ExecWithLayout runs imageName as a new process with the given layout
// instead of the one in the image header. Nothing is loaded until the
// process touches its pages.
func (k *Kernel) ExecWithLayout(imageName string, layout vm.Layout) (vm.PID, error) {
	k.Lock()
	defer k.Unlock()

	imageSize, err := k.fs.Size(imageName)
	if err != nil {
		return 0, fmt.Errorf("unable to open file %s: %w", imageName, err)
	}

	pid := k.nextPID
	as, err := vm.NewAddressSpace(vm.AddressSpaceSpec{
		PID:       pid,
		PageSize:  k.pager.PageSize(),
		Layout:    layout,
		ImageName: imageName,
		ImageSize: imageSize,
		SwapName:  swapName(imageName, pid),
	})
	if err != nil {
		return 0, err
	}

	err = k.fs.Create(as.SwapName, as.SwapSize())
	if err != nil {
		return 0, fmt.Errorf("creating swap of %s: %w", imageName, err)
	}

	k.nextPID++
	k.processes[pid] = &Process{PID: pid, Parent: -1, Space: as}
	k.switchTo(pid)

	return pid, nil
}

func swapName(imageName string, pid vm.PID) string {
	return fmt.Sprintf("%s.%d.swap", imageName, pid)
}

// SwitchTo makes pid the running process.
func (k *Kernel) SwitchTo(pid vm.PID) {
	k.Lock()
	defer k.Unlock()

	k.switchTo(pid)
}

func (k *Kernel) switchTo(pid vm.PID) {
	p := k.processMustExist(pid)
	if p == k.current {
		return
	}

	k.pager.SwitchTo(p.Space)
	k.mmu.SetPageTable(p.Space.PageTable)
	k.current = p
}

func (k *Kernel) processMustExist(pid vm.PID) *Process {
	p, ok := k.processes[pid]
	if !ok {
		log.Panicf("process %d does not exist", pid)
	}

	return p
}

func (k *Kernel) currentMustExist() *Process {
	if k.current == nil {
		log.Panic("no process is running")
	}

	return k.current
}

func (k *Kernel) sortedPIDs() []vm.PID {
	pids := make([]vm.PID, 0, len(k.processes))
	for pid := range k.processes {
		pids = append(pids, pid)
	}

	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	return pids
}

// ReadMem reads user memory of the running process.
func (k *Kernel) ReadMem(vAddr uint64, size int) ([]byte, error) {
	k.Lock()
	defer k.Unlock()

	k.currentMustExist()

	return k.mmu.ReadMem(vAddr, size)
}

// WriteMem writes user memory of the running process.
func (k *Kernel) WriteMem(vAddr uint64, data []byte) error {
	k.Lock()
	defer k.Unlock()

	k.currentMustExist()

	return k.mmu.WriteMem(vAddr, data)
}

// ExceptionHandler is the kernel entry for traps raised by the running
// program. The return value is what the program sees in its result
// register.
func (k *Kernel) ExceptionHandler(ex Exception) int {
	k.Lock()
	defer k.Unlock()

	return k.handleException(ex)
}

func (k *Kernel) handleException(ex Exception) int {
	switch {
	case ex.Type == SyscallException && ex.Syscall == SyscallHalt:
		k.halted = true
		return 0
	case ex.Type == SyscallException && ex.Syscall == SyscallExit:
		k.exit(ex.Arg)
		return 0
	case ex.Type == SyscallException && ex.Syscall == SyscallFork:
		return int(k.fork())
	case ex.Type == PageFaultException:
		p := k.currentMustExist()
		k.pager.HandleFault(p.Space, ex.BadVAddr, k.mmu.HasTLB())
		return 0
	}

	log.Panicf("unexpected user mode exception %s %d", ex.Type, ex.Syscall)

	return 0
}

func (k *Kernel) exit(status int) {
	p := k.currentMustExist()

	k.pager.Exit(p.Space)
	k.retiredSwaps[p.PID] = p.Space.SwapName

	delete(k.processes, p.PID)
	k.current = nil
	k.mmu.SetPageTable(nil)

	pids := k.sortedPIDs()
	if len(pids) > 0 {
		k.switchTo(pids[0])
	}

	k.exited[p.PID] = status
}

// SwapOf returns the name of the swap that holds the written back pages of
// pid. It stays valid after pid exits, until Shutdown.
func (k *Kernel) SwapOf(pid vm.PID) string {
	k.Lock()
	defer k.Unlock()

	if p, ok := k.processes[pid]; ok {
		return p.Space.SwapName
	}

	return k.retiredSwaps[pid]
}

// Shutdown halts the machine and removes the swap of every process, running
// or exited. Processes are not exited, so nothing more is written back.
func (k *Kernel) Shutdown() error {
	k.Lock()
	defer k.Unlock()

	k.halted = true

	names := make([]string, 0, len(k.retiredSwaps)+len(k.processes))
	for _, name := range k.retiredSwaps {
		names = append(names, name)
	}

	for _, p := range k.processes {
		names = append(names, p.Space.SwapName)
	}

	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := k.fs.Remove(name); err != nil {
			errs = append(errs, err)
		}
	}

	clear(k.retiredSwaps)

	return errors.Join(errs...)
}

func (k *Kernel) fork() vm.PID {
	parent := k.currentMustExist()

	pid := k.nextPID
	k.nextPID++

	child := k.pager.Fork(parent.Space, pid,
		swapName(parent.Space.ImageName, pid))
	k.processes[pid] = &Process{PID: pid, Parent: parent.PID, Space: child}

	return pid
}

// faultEntry is how the MMU enters the kernel on a page fault. The MMU only
// runs inside ReadMem and WriteMem, so the kernel lock is already held.
type faultEntry struct {
	k *Kernel
}

func (f faultEntry) HandlePageFault(badVAddr uint64) {
	f.k.handleException(Exception{
		Type:     PageFaultException,
		BadVAddr: badVAddr,
	})
}
