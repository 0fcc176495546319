package frame

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Bitmap allocator", func() {
	var a Allocator

	BeforeEach(func() {
		a = NewBitmapAllocator(3)
	})

	It("should hand out the lowest free frame", func() {
		f0, ok0 := a.Allocate()
		f1, ok1 := a.Allocate()

		Expect(ok0 && ok1).To(BeTrue())
		Expect(f0).To(Equal(uint64(0)))
		Expect(f1).To(Equal(uint64(1)))
		Expect(a.NumAllocated()).To(Equal(2))
		Expect(a.NumFree()).To(Equal(1))
	})

	It("should report exhaustion without panicking", func() {
		for i := 0; i < 3; i++ {
			_, ok := a.Allocate()
			Expect(ok).To(BeTrue())
		}

		_, ok := a.Allocate()

		Expect(ok).To(BeFalse())
	})

	It("should reuse a freed frame", func() {
		a.Allocate()
		a.Allocate()
		a.Free(0)

		f, ok := a.Allocate()

		Expect(ok).To(BeTrue())
		Expect(f).To(Equal(uint64(0)))
		Expect(a.IsAllocated(0)).To(BeTrue())
	})

	It("should panic on double free", func() {
		a.Allocate()
		a.Free(0)

		Expect(func() { a.Free(0) }).To(Panic())
	})

	It("should panic on out-of-range frame", func() {
		Expect(func() { a.Free(3) }).To(Panic())
	})

	It("should handle capacities spanning several words", func() {
		big := NewBitmapAllocator(130)
		for i := 0; i < 130; i++ {
			f, ok := big.Allocate()
			Expect(ok).To(BeTrue())
			Expect(f).To(Equal(uint64(i)))
		}

		_, ok := big.Allocate()
		Expect(ok).To(BeFalse())

		big.Free(129)
		f, ok := big.Allocate()
		Expect(ok).To(BeTrue())
		Expect(f).To(Equal(uint64(129)))
	})
})
