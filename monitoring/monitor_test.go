package monitoring

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nachosvm/backing"
	"github.com/sarchlab/nachosvm/kernel"
	"github.com/sarchlab/nachosvm/mem/vm"
)

var _ = Describe("Monitor", func() {
	var (
		m *Monitor
		k *kernel.Kernel
	)

	get := func(url string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, url, nil)
		m.newRouter().ServeHTTP(rec, req)

		return rec
	}

	BeforeEach(func() {
		fs := backing.NewMemFileSystem()
		fs.WriteFile("img", bytes.Repeat([]byte{1}, 256))
		k = kernel.MakeBuilder().
			WithNumFrames(4).
			WithFileSystem(fs).
			Build("Kernel")

		_, err := k.ExecWithLayout("img", vm.Layout{
			InitData: vm.Segment{Size: 256},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(k.WriteMem(130, []byte{5})).To(Succeed())

		m = NewMonitor()
		m.RegisterKernel(k)
	})

	It("should list processes", func() {
		rec := get("/api/processes")

		Expect(rec.Code).To(Equal(http.StatusOK))
		var procs []kernel.ProcessInfo
		Expect(json.Unmarshal(rec.Body.Bytes(), &procs)).To(Succeed())
		Expect(procs).To(HaveLen(1))
		Expect(procs[0].Image).To(Equal("img"))
		Expect(procs[0].Resident).To(Equal(1))
		Expect(procs[0].Running).To(BeTrue())
	})

	It("should list frames", func() {
		rec := get("/api/frames")

		var frames []kernel.FrameInfo
		Expect(json.Unmarshal(rec.Body.Bytes(), &frames)).To(Succeed())
		Expect(frames).To(HaveLen(4))
		Expect(frames[0].Allocated).To(BeTrue())
		Expect(frames[0].VPN).To(Equal(uint64(1)))
		Expect(frames[1].Allocated).To(BeFalse())
		Expect(frames[1].PID).To(Equal(vm.PID(-1)))
	})

	It("should list the TLB", func() {
		rec := get("/api/tlb")

		var entries []vm.PageTableEntry
		Expect(json.Unmarshal(rec.Body.Bytes(), &entries)).To(Succeed())
		Expect(entries).To(HaveLen(4))
		Expect(entries[0].Valid).To(BeTrue())
		Expect(entries[0].Dirty).To(BeTrue())
	})

	It("should report stats", func() {
		rec := get("/api/stats")

		var stats kernel.Stats
		Expect(json.Unmarshal(rec.Body.Bytes(), &stats)).To(Succeed())
		Expect(stats.PageFaults).To(Equal(uint64(1)))
		Expect(stats.Processes).To(Equal(1))
	})

	It("should serialize a process", func() {
		rec := get("/api/process/1")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.Len()).To(BeNumerically(">", 0))
	})

	It("should report a missing process", func() {
		Expect(get("/api/process/7").Code).To(Equal(http.StatusNotFound))
		Expect(get("/api/process/abc").Code).To(Equal(http.StatusBadRequest))
	})

	It("should report progress bars until they complete", func() {
		bar := m.CreateProgressBar("script", 10)
		bar.IncrementInProgress(3)
		bar.MoveInProgressToFinished(2)

		rec := get("/api/progress")
		var bars []map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &bars)).To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0]["finished"]).To(BeEquivalentTo(2))
		Expect(bar.Done()).To(BeFalse())

		m.CompleteProgressBar(bar)
		Expect(get("/api/progress").Body.String()).To(Equal("[]"))
	})

	It("should refuse to serve without a kernel", func() {
		m = NewMonitor()

		Expect(get("/api/stats").Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("should serve the page", func() {
		rec := get("/")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(HavePrefix("<!DOCTYPE html>"))
	})
})
