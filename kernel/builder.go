package kernel

import (
	"log"

	"github.com/sarchlab/nachosvm/backing"
	"github.com/sarchlab/nachosvm/mem/frame"
	"github.com/sarchlab/nachosvm/mem/vm"
	"github.com/sarchlab/nachosvm/mem/vm/mmu"
	"github.com/sarchlab/nachosvm/mem/vm/tlb"
	"github.com/sarchlab/nachosvm/memory"
)

// A Builder can build kernels together with the machine they manage.
type Builder struct {
	pageSize  uint64
	numFrames int
	useTLB    bool
	tlb       *tlb.TLB
	fs        backing.FileSystem
}

// MakeBuilder returns a builder with the machine's default configuration:
// 32 frames of 128 bytes and a 4-entry LRU TLB.
func MakeBuilder() Builder {
	return Builder{
		pageSize:  128,
		numFrames: 32,
		useTLB:    true,
	}
}

// WithPageSize sets the page size, which is also the frame size.
func (b Builder) WithPageSize(pageSize uint64) Builder {
	b.pageSize = pageSize
	return b
}

// WithNumFrames sets the number of physical frames.
func (b Builder) WithNumFrames(n int) Builder {
	b.numFrames = n
	return b
}

// WithTLB uses the given TLB.
func (b Builder) WithTLB(t *tlb.TLB) Builder {
	b.useTLB = true
	b.tlb = t
	return b
}

// WithoutTLB builds a machine that translates through the page table only.
func (b Builder) WithoutTLB() Builder {
	b.useTLB = false
	b.tlb = nil
	return b
}

// WithFileSystem sets where images and swap stores live. By default they are
// files in the working directory.
func (b Builder) WithFileSystem(fs backing.FileSystem) Builder {
	b.fs = fs
	return b
}

// Build creates the kernel.
func (b Builder) Build(name string) *Kernel {
	if b.pageSize == 0 {
		log.Panicf("%s: page size must not be zero", name)
	}

	fs := b.fs
	if fs == nil {
		fs = backing.NewOSFileSystem(".")
	}

	t := b.tlb
	if b.useTLB && t == nil {
		t = tlb.MakeBuilder().Build(name + ".TLB")
	}

	storage := memory.NewStorage(uint64(b.numFrames), b.pageSize)
	frames := frame.NewBitmapAllocator(b.numFrames)

	mmuBuilder := mmu.MakeBuilder().
		WithPageSize(b.pageSize).
		WithStorage(storage)
	if t != nil {
		mmuBuilder = mmuBuilder.WithTLB(t)
	}

	k := &Kernel{
		name:         name,
		storage:      storage,
		mmu:          mmuBuilder.Build(name + ".MMU"),
		pager:        newPager(b.pageSize, storage, frames, t, fs),
		fs:           fs,
		processes:    make(map[vm.PID]*Process),
		exited:       make(map[vm.PID]int),
		retiredSwaps: make(map[vm.PID]string),
		nextPID:      1,
	}
	k.mmu.SetFaultHandler(faultEntry{k: k})

	return k
}
