// Package monitoring serves the state of a running kernel over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/nachosvm/kernel"
	"github.com/sarchlab/nachosvm/mem/vm"
	"github.com/sarchlab/nachosvm/monitoring/web"
	"github.com/sarchlab/nachosvm/sim"
)

// Inspectable is what the monitor needs to see of a kernel.
type Inspectable interface {
	Name() string
	Processes() []kernel.ProcessInfo
	PageTable(pid vm.PID) ([]vm.PageTableEntry, error)
	TLBEntries() []vm.PageTableEntry
	FrameTable() []kernel.FrameInfo
	Stats() kernel.Stats
}

// Monitor can turn a kernel run into a server so that the paging state can
// be watched from a browser.
type Monitor struct {
	kernel     Inspectable
	portNumber int

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterKernel sets the kernel to be monitored.
func (m *Monitor) RegisterKernel(k Inspectable) {
	m.kernel = k
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        sim.GetIDGenerator().Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

func (m *Monitor) newRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/name", m.name)
	r.HandleFunc("/api/stats", m.stats)
	r.HandleFunc("/api/processes", m.listProcesses)
	r.HandleFunc("/api/process/{pid}", m.processDetails)
	r.HandleFunc("/api/frames", m.listFrames)
	r.HandleFunc("/api/tlb", m.listTLB)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() string {
	r := m.newRouter()

	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring paging with %s\n", url)

	go func() {
		err := http.Serve(listener, r)
		dieOnErr(err)
	}()

	return url
}

func (m *Monitor) kernelOr503(w http.ResponseWriter) Inspectable {
	if m.kernel == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, err := w.Write([]byte("No kernel registered"))
		dieOnErr(err)
	}

	return m.kernel
}

func (m *Monitor) name(w http.ResponseWriter, _ *http.Request) {
	k := m.kernelOr503(w)
	if k == nil {
		return
	}

	fmt.Fprintf(w, "{\"name\":%q}", k.Name())
}

func (m *Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	k := m.kernelOr503(w)
	if k == nil {
		return
	}

	writeJSON(w, k.Stats())
}

func (m *Monitor) listProcesses(w http.ResponseWriter, _ *http.Request) {
	k := m.kernelOr503(w)
	if k == nil {
		return
	}

	writeJSON(w, k.Processes())
}

type processDetail struct {
	Info      kernel.ProcessInfo
	PageTable []vm.PageTableEntry
}

func (m *Monitor) processDetails(w http.ResponseWriter, r *http.Request) {
	k := m.kernelOr503(w)
	if k == nil {
		return
	}

	pid, err := strconv.Atoi(mux.Vars(r)["pid"])
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	detail := processDetail{}
	found := false
	for _, p := range k.Processes() {
		if p.PID == vm.PID(pid) {
			detail.Info = p
			found = true
		}
	}

	if !found {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Process not found"))
		dieOnErr(err)
		return
	}

	detail.PageTable, err = k.PageTable(vm.PID(pid))
	dieOnErr(err)

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&detail)
	serializer.SetMaxDepth(3)
	err = serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) listFrames(w http.ResponseWriter, _ *http.Request) {
	k := m.kernelOr503(w)
	if k == nil {
		return
	}

	writeJSON(w, k.FrameTable())
}

func (m *Monitor) listTLB(w http.ResponseWriter, _ *http.Request) {
	k := m.kernelOr503(w)
	if k == nil {
		return
	}

	entries := k.TLBEntries()
	if entries == nil {
		entries = []vm.PageTableEntry{}
	}

	writeJSON(w, entries)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	writeJSON(w, m.progressBars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
