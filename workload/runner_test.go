package workload_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nachosvm/backing"
	"github.com/sarchlab/nachosvm/kernel"
	"github.com/sarchlab/nachosvm/mem/vm"
	"github.com/sarchlab/nachosvm/workload"
)

type countingProgress struct {
	inProgress, finished uint64
}

func (p *countingProgress) IncrementInProgress(amount uint64) {
	p.inProgress += amount
}

func (p *countingProgress) MoveInProgressToFinished(amount uint64) {
	p.inProgress -= amount
	p.finished += amount
}

var _ = Describe("Runner", func() {
	var (
		k   *kernel.Kernel
		out *bytes.Buffer
	)

	BeforeEach(func() {
		image := new(bytes.Buffer)
		Expect(vm.WriteNoffImage(image,
			bytes.Repeat([]byte{0xAA}, 128),
			bytes.Repeat([]byte{3}, 128),
			128)).To(Succeed())

		fs := backing.NewMemFileSystem()
		fs.WriteFile("prog", image.Bytes())

		k = kernel.MakeBuilder().
			WithNumFrames(2).
			WithFileSystem(fs).
			Build("Kernel")
		out = new(bytes.Buffer)
	})

	run := func(script string) error {
		ops, err := workload.Parse(strings.NewReader(script))
		Expect(err).ToNot(HaveOccurred())

		return workload.NewRunner(k, out).Run(ops)
	}

	It("should run a script", func() {
		progress := &countingProgress{}
		ops, err := workload.Parse(strings.NewReader(`
exec prog
read 0
read 128
write 260 9
fork
switch 2
write 260 10
read 260
switch 1
read 260
halt
read 0
`))
		Expect(err).ToNot(HaveOccurred())

		err = workload.NewRunner(k, out).WithProgress(progress).Run(ops)

		Expect(err).ToNot(HaveOccurred())
		Expect(out.String()).To(Equal(strings.Join([]string{
			"exec prog: pid 1",
			"read 0x0: 170",
			"read 0x80: 3",
			"fork: pid 2",
			"read 0x104: 10",
			"read 0x104: 9",
			"",
		}, "\n")))
		Expect(progress.finished).To(Equal(uint64(11)))
		Expect(progress.inProgress).To(BeZero())
		Expect(k.Halted()).To(BeTrue())
	})

	It("should fail on a write to code", func() {
		err := run("exec prog\nwrite 5 1")

		Expect(err).To(MatchError(ContainSubstring("line 2: write")))
	})

	It("should fail on an access past the address space", func() {
		err := run("exec prog\nread 0x100000")

		Expect(err).To(MatchError(ContainSubstring("outside an address space")))
	})

	It("should fail without a running process", func() {
		err := run("read 0")

		Expect(err).To(MatchError(ContainSubstring("no process is running")))
	})

	It("should fail to switch to an unknown process", func() {
		err := run("exec prog\nswitch 9")

		Expect(err).To(MatchError(ContainSubstring("no process 9")))
	})

	It("should fail on a missing image", func() {
		err := run("exec nothing")

		Expect(err).To(MatchError(ContainSubstring("unable to open file")))
	})

	It("should free memory when the process exits", func() {
		Expect(run("exec prog\nread 0\nwrite 200 1\nexit 0")).To(Succeed())

		_, running := k.Current()
		Expect(running).To(BeFalse())
		Expect(k.Stats().FramesFree).To(Equal(uint64(2)))
	})
})
