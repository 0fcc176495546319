package vm

import (
	"bytes"
	"encoding/binary"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("NOFF", func() {
	It("should round-trip a written image", func() {
		buf := new(bytes.Buffer)
		code := bytes.Repeat([]byte{0xAA}, 100)
		data := []byte{1, 2, 3}

		Expect(WriteNoffImage(buf, code, data, 64)).To(Succeed())

		layout, err := ParseNoffHeader(bytes.NewReader(buf.Bytes()))

		Expect(err).NotTo(HaveOccurred())
		Expect(layout.Code).To(Equal(Segment{0, 40, 100}))
		Expect(layout.InitData).To(Equal(Segment{100, 140, 3}))
		Expect(layout.UninitData).To(Equal(Segment{103, 0, 64}))
		Expect(layout.StackSize).To(Equal(uint64(DefaultStackSize)))
		Expect(buf.Len()).To(Equal(143))
	})

	It("should refuse sizes that do not fit the header", func() {
		buf := new(bytes.Buffer)

		err := WriteNoffImage(buf, []byte{1}, nil, math.MaxInt32)

		Expect(err).To(MatchError(ContainSubstring("32-bit")))
		Expect(buf.Len()).To(BeZero())
	})

	It("should accept the largest uninitialized size that fits", func() {
		buf := new(bytes.Buffer)
		code := []byte{1, 2}

		Expect(WriteNoffImage(buf, code, nil,
			math.MaxInt32-NoffHeaderSize-2)).To(Succeed())

		layout, err := ParseNoffHeader(bytes.NewReader(buf.Bytes()))
		Expect(err).NotTo(HaveOccurred())
		Expect(layout.UninitData.Size).
			To(Equal(uint64(math.MaxInt32 - NoffHeaderSize - 2)))
	})

	It("should accept a big-endian header", func() {
		h := noffHeader{
			Magic: NoffMagic,
			Code:  noffSegment{VirtualAddr: 0, InFileAddr: 40, Size: 8},
		}
		buf := new(bytes.Buffer)
		Expect(binary.Write(buf, binary.BigEndian, &h)).To(Succeed())

		layout, err := ParseNoffHeader(bytes.NewReader(buf.Bytes()))

		Expect(err).NotTo(HaveOccurred())
		Expect(layout.Code.Size).To(Equal(uint64(8)))
	})

	It("should reject a bad magic", func() {
		raw := make([]byte, NoffHeaderSize)

		_, err := ParseNoffHeader(bytes.NewReader(raw))

		Expect(err).To(MatchError(ContainSubstring("bad NOFF magic")))
	})

	It("should reject a truncated header", func() {
		_, err := ParseNoffHeader(bytes.NewReader([]byte{0xad, 0xfa}))

		Expect(err).To(HaveOccurred())
	})
})
