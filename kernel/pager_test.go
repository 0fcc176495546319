package kernel

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/nachosvm/backing"
	"github.com/sarchlab/nachosvm/mem/frame"
	"github.com/sarchlab/nachosvm/mem/vm"
	"github.com/sarchlab/nachosvm/memory"
	"github.com/sarchlab/nachosvm/sim"
)

func twoPageSpace(pid vm.PID) *vm.AddressSpace {
	as, err := vm.NewAddressSpace(vm.AddressSpaceSpec{
		PID:      pid,
		PageSize: 128,
		Layout: vm.Layout{
			InitData: vm.Segment{VirtualAddr: 0, InFileAddr: 0, Size: 256},
		},
		ImageName: "img",
		ImageSize: 256,
		SwapName:  swapName("img", pid),
	})
	Expect(err).ToNot(HaveOccurred())

	return as
}

var _ = Describe("Pager", func() {
	var (
		mockCtrl *gomock.Controller
		fs       *MockFileSystem
		image    *MockStore
		swap     *MockStore
		storage  *memory.Storage
		pager    *Pager
		as       *vm.AddressSpace
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		fs = NewMockFileSystem(mockCtrl)
		image = NewMockStore(mockCtrl)
		swap = NewMockStore(mockCtrl)
		storage = memory.NewStorage(1, 128)
		pager = newPager(128, storage, frame.NewBitmapAllocator(1), nil, fs)
		as = twoPageSpace(1)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should load a page from the image", func() {
		gomock.InOrder(
			fs.EXPECT().Open("img").Return(image, nil),
			image.EXPECT().
				ReadAt(gomock.Any(), int64(128)).
				DoAndReturn(func(p []byte, _ int64) (int, error) {
					copy(p, bytes.Repeat([]byte{7}, len(p)))
					return len(p), nil
				}),
			image.EXPECT().Close().Return(nil),
		)

		pager.Resolve(as, 1)

		e := as.PageTable.Lookup(1)
		Expect(e.Valid).To(BeTrue())
		Expect(e.PhysicalPage).To(Equal(uint64(0)))
		Expect(storage.Unit(0)).To(Equal(bytes.Repeat([]byte{7}, 128)))
	})

	It("should not touch the backing store for a resident page", func() {
		as.PageTable.Install(0, 0, false)

		pager.Resolve(as, 0)
	})

	It("should write a dirty victim back before reusing its frame", func() {
		gomock.InOrder(
			fs.EXPECT().Open("img").Return(image, nil),
			image.EXPECT().ReadAt(gomock.Any(), int64(0)).Return(128, nil),
			image.EXPECT().Close().Return(nil),
			fs.EXPECT().Open("img.1.swap").Return(swap, nil),
			swap.EXPECT().
				WriteAt(gomock.Any(), int64(0)).
				DoAndReturn(func(p []byte, _ int64) (int, error) {
					Expect(p).To(Equal(bytes.Repeat([]byte{9}, 128)))
					return len(p), nil
				}),
			swap.EXPECT().Close().Return(nil),
			fs.EXPECT().Open("img").Return(image, nil),
			image.EXPECT().ReadAt(gomock.Any(), int64(128)).Return(128, nil),
			image.EXPECT().Close().Return(nil),
		)

		pager.Resolve(as, 0)
		copy(storage.Unit(0), bytes.Repeat([]byte{9}, 128))
		as.PageTable.Lookup(0).Dirty = true

		pager.Resolve(as, 1)

		Expect(as.PageTable.Lookup(0).Valid).To(BeFalse())
		Expect(as.IsSwapped(0)).To(BeTrue())
		Expect(as.PageTable.Lookup(1).PhysicalPage).To(Equal(uint64(0)))
		Expect(pager.Stats().WriteBacks).To(Equal(uint64(1)))
	})

	It("should drop a clean victim without writing it", func() {
		fs.EXPECT().Open("img").Return(image, nil).Times(2)
		image.EXPECT().ReadAt(gomock.Any(), gomock.Any()).Return(128, nil).Times(2)
		image.EXPECT().Close().Return(nil).Times(2)

		pager.Resolve(as, 0)
		pager.Resolve(as, 1)

		Expect(as.IsSwapped(0)).To(BeFalse())
		Expect(pager.Stats().Evictions).To(Equal(uint64(1)))
	})

	It("should panic if the backing store cannot be opened", func() {
		fs.EXPECT().Open("img").Return(nil, errors.New("no such file"))

		Expect(func() { pager.Resolve(as, 0) }).To(Panic())
	})

	It("should panic on a page that belongs to no region", func() {
		holey, err := vm.NewAddressSpace(vm.AddressSpaceSpec{
			PID:      2,
			PageSize: 128,
			Layout: vm.Layout{
				Code:       vm.Segment{VirtualAddr: 0, Size: 128},
				UninitData: vm.Segment{VirtualAddr: 256, Size: 128},
			},
			ImageName: "img",
			ImageSize: 128,
			SwapName:  "img.2.swap",
		})
		Expect(err).ToNot(HaveOccurred())

		Expect(func() { pager.Resolve(holey, 1) }).To(Panic())
		Expect(pager.Frames().NumFree()).To(Equal(1))
	})

	It("should panic on a fault past the address space", func() {
		Expect(func() { pager.HandleFault(as, 2*128, false) }).To(Panic())
	})
})

var _ = Describe("Pager with in-memory files", func() {
	var (
		fs      *backing.MemFileSystem
		storage *memory.Storage
		pager   *Pager
	)

	BeforeEach(func() {
		fs = backing.NewMemFileSystem()
		fs.WriteFile("img", bytes.Repeat([]byte{1}, 256))
		Expect(fs.Create("img.1.swap", 256)).To(Succeed())
		Expect(fs.Create("img.2.swap", 256)).To(Succeed())

		storage = memory.NewStorage(1, 128)
		pager = newPager(128, storage, frame.NewBitmapAllocator(1), nil, fs)
	})

	It("should evict the oldest page of another process "+
		"when the faulting one has nothing resident", func() {
		first := twoPageSpace(1)
		second := twoPageSpace(2)

		pager.Resolve(first, 0)
		pager.Resolve(second, 1)

		Expect(first.PageTable.Lookup(0).Valid).To(BeFalse())
		owner, vpn, ok := pager.FrameOwner(0)
		Expect(ok).To(BeTrue())
		Expect(owner).To(BeIdenticalTo(second))
		Expect(vpn).To(Equal(uint64(1)))
	})

	It("should reload a written back page from swap", func() {
		as := twoPageSpace(1)

		pager.Resolve(as, 0)
		storage.Unit(0)[5] = 42
		as.PageTable.Lookup(0).Dirty = true
		pager.Resolve(as, 1)
		pager.Resolve(as, 0)

		Expect(storage.Unit(0)[5]).To(Equal(byte(42)))
		Expect(storage.Unit(0)[6]).To(Equal(byte(1)))
	})

	It("should age the page table on every fault", func() {
		as := twoPageSpace(1)

		pager.HandleFault(as, 0, false)
		pager.HandleFault(as, 0, false)

		Expect(as.PageTable.Lookup(0).LRUTime).To(Equal(uint64(1)))
		Expect(as.PageTable.Lookup(1).LRUTime).To(Equal(uint64(2)))
		Expect(pager.Stats().PageFaults).To(Equal(uint64(2)))
		Expect(pager.Stats().PageLoads).To(Equal(uint64(1)))
	})

	It("should report no frame for a fault on a non-resident page", func() {
		as := twoPageSpace(1)

		var faults []PagingEvent
		pager.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
			if ctx.Pos == HookPosPageFault {
				faults = append(faults, ctx.Detail.(PagingEvent))
			}
		}))

		pager.HandleFault(as, 5, false)
		pager.HandleFault(as, 5, false)

		Expect(faults).To(HaveLen(2))
		Expect(faults[0].Frame).To(Equal(-1))
		Expect(faults[0].VAddr).To(Equal(uint64(5)))
		Expect(faults[1].Frame).To(Equal(0))
	})

	It("should refuse a TLB fault without a TLB", func() {
		as := twoPageSpace(1)

		Expect(func() { pager.HandleFault(as, 0, true) }).To(Panic())
	})
})
