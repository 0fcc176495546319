package vm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("AddressSpace", func() {
	var as *AddressSpace

	BeforeEach(func() {
		var err error
		as, err = NewAddressSpace(AddressSpaceSpec{
			PID:      1,
			PageSize: 128,
			Layout: Layout{
				Code:      Segment{VirtualAddr: 0, InFileAddr: 40, Size: 300},
				StackSize: 100,
			},
			ImageName: "prog",
			ImageSize: 340,
			SwapName:  "prog.1.swap",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("should size the page table from the layout", func() {
		Expect(as.NumPages()).To(Equal(uint64(4)))
		Expect(as.SwapSize()).To(Equal(uint64(512)))
		Expect(as.VPN(300)).To(Equal(uint64(2)))
	})

	It("should address swap by page", func() {
		Expect(as.SwapOffset(3)).To(Equal(uint64(384)))
		Expect(as.SwapLength(3)).To(Equal(uint64(128)))
	})

	It("should track swapped pages", func() {
		as.MarkSwapped(2)

		Expect(as.IsSwapped(2)).To(BeTrue())
		Expect(as.IsSwapped(1)).To(BeFalse())
		Expect(func() { as.IsSwapped(4) }).To(Panic())
	})

	It("should duplicate into an independent copy", func() {
		as.PageTable.Install(0, 3, true)
		as.MarkSwapped(1)

		child := as.Duplicate(2, "prog.2.swap")
		child.PageTable.Invalidate(0)
		child.MarkSwapped(2)

		Expect(child.PID).To(Equal(PID(2)))
		Expect(child.SwapName).To(Equal("prog.2.swap"))
		Expect(child.IsSwapped(1)).To(BeTrue())
		Expect(as.IsSwapped(2)).To(BeFalse())
		Expect(as.PageTable.Lookup(0).Valid).To(BeTrue())
	})

	It("should reject a zero page size", func() {
		_, err := NewAddressSpace(AddressSpaceSpec{Layout: as.Layout})

		Expect(err).To(HaveOccurred())
	})

	It("should clamp lengths at the end of content", func() {
		Expect(ClampLength(300, 128, 340)).To(Equal(uint64(40)))
		Expect(ClampLength(400, 128, 340)).To(BeZero())
		Expect(ClampLength(0, 128, 340)).To(Equal(uint64(128)))
	})
})
