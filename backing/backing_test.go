package backing_test

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nachosvm/backing"
)

func behavesLikeAFileSystem(newFS func() backing.FileSystem) {
	var fs backing.FileSystem

	BeforeEach(func() {
		fs = newFS()
	})

	It("should create zero-filled stores", func() {
		Expect(fs.Create("swap", 16)).To(Succeed())

		size, err := fs.Size("swap")
		Expect(err).ToNot(HaveOccurred())
		Expect(size).To(Equal(uint64(16)))

		s, err := fs.Open("swap")
		Expect(err).ToNot(HaveOccurred())
		defer s.Close()

		buf := make([]byte, 16)
		n, err := backing.ReadFull(s, buf, 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(16))
		Expect(buf).To(Equal(make([]byte, 16)))
	})

	It("should keep writes after the store is closed", func() {
		Expect(fs.Create("swap", 8)).To(Succeed())

		s, err := fs.Open("swap")
		Expect(err).ToNot(HaveOccurred())
		_, err = s.WriteAt([]byte{1, 2, 3}, 4)
		Expect(err).ToNot(HaveOccurred())
		Expect(s.Close()).To(Succeed())

		s, err = fs.Open("swap")
		Expect(err).ToNot(HaveOccurred())
		defer s.Close()

		buf := make([]byte, 3)
		_, err = backing.ReadFull(s, buf, 4)
		Expect(err).ToNot(HaveOccurred())
		Expect(buf).To(Equal([]byte{1, 2, 3}))
	})

	It("should report short reads at the end of the store", func() {
		Expect(fs.Create("swap", 4)).To(Succeed())

		s, err := fs.Open("swap")
		Expect(err).ToNot(HaveOccurred())
		defer s.Close()

		n, err := backing.ReadFull(s, make([]byte, 8), 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(2))
	})

	It("should copy stores independently", func() {
		Expect(fs.Create("a", 4)).To(Succeed())
		s, err := fs.Open("a")
		Expect(err).ToNot(HaveOccurred())
		_, err = s.WriteAt([]byte{9}, 0)
		Expect(err).ToNot(HaveOccurred())

		Expect(fs.Copy("a", "b")).To(Succeed())
		_, err = s.WriteAt([]byte{7}, 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(s.Close()).To(Succeed())

		b, err := fs.Open("b")
		Expect(err).ToNot(HaveOccurred())
		defer b.Close()

		buf := make([]byte, 1)
		_, err = backing.ReadFull(b, buf, 0)
		Expect(err).ToNot(HaveOccurred())
		Expect(buf[0]).To(Equal(byte(9)))
	})

	It("should fail to open a removed store", func() {
		Expect(fs.Create("swap", 4)).To(Succeed())
		Expect(fs.Remove("swap")).To(Succeed())

		_, err := fs.Open("swap")
		Expect(err).To(MatchError(os.ErrNotExist))
	})
}

var _ = Describe("MemFileSystem", func() {
	behavesLikeAFileSystem(func() backing.FileSystem {
		return backing.NewMemFileSystem()
	})

	It("should refuse to use a closed store", func() {
		fs := backing.NewMemFileSystem()
		fs.WriteFile("image", []byte{1, 2})

		s, err := fs.Open("image")
		Expect(err).ToNot(HaveOccurred())
		Expect(s.Close()).To(Succeed())

		_, err = s.ReadAt(make([]byte, 1), 0)
		Expect(err).To(MatchError(os.ErrClosed))
	})
})

var _ = Describe("OSFileSystem", func() {
	behavesLikeAFileSystem(func() backing.FileSystem {
		return backing.NewOSFileSystem(GinkgoT().TempDir())
	})
})
