package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/nachosvm/backing"
	"github.com/sarchlab/nachosvm/datarecording"
	"github.com/sarchlab/nachosvm/kernel"
	"github.com/sarchlab/nachosvm/mem/vm/tlb"
	"github.com/sarchlab/nachosvm/monitoring"
	"github.com/sarchlab/nachosvm/sim"
	"github.com/sarchlab/nachosvm/tracing"
	"github.com/sarchlab/nachosvm/workload"
)

type runOptions struct {
	pageSize    int
	numFrames   int
	tlbSize     int
	tlbPolicy   string
	imageDir    string
	record      string
	monitor     bool
	monitorPort int
	openMonitor bool
	verbose     bool
	keepSwap    bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run [script]",
	Short: "Run an access script.",
	Long: "`run script` executes the exec/read/write/fork/switch/exit/halt " +
		"steps of script. Images are looked up in --image-dir.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sim.UseParallelIDGenerator()
		return runScript(args[0], runOpts, cmd.OutOrStdout())
	},
}

func addRunCommand() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.IntVar(&runOpts.pageSize, "page-size",
		envInt("NACHOS_PAGE_SIZE", 128), "Bytes per page and per frame.")
	f.IntVar(&runOpts.numFrames, "frames",
		envInt("NACHOS_NUM_FRAMES", 32), "Number of physical frames.")
	f.IntVar(&runOpts.tlbSize, "tlb-size",
		envInt("NACHOS_TLB_SIZE", 4), "TLB entries; 0 translates through "+
			"the page table only.")
	f.StringVar(&runOpts.tlbPolicy, "tlb-policy",
		envString("NACHOS_TLB_POLICY", "lru"), "TLB replacement, lru or fifo.")
	f.StringVar(&runOpts.imageDir, "image-dir", ".",
		"Directory of the images and swap files.")
	f.StringVar(&runOpts.record, "record",
		envString("NACHOS_RECORD", ""), "Record paging events into "+
			"<record>.sqlite3.")
	f.BoolVar(&runOpts.monitor, "monitor", false,
		"Serve the paging state over HTTP.")
	f.IntVar(&runOpts.monitorPort, "monitor-port",
		envInt("NACHOS_MONITOR_PORT", 0), "Port of the monitor; 0 picks one.")
	f.BoolVar(&runOpts.openMonitor, "open-monitor", false,
		"Open the monitor in a browser. Implies --monitor.")
	f.BoolVarP(&runOpts.verbose, "verbose", "v", false,
		"Log every paging event.")
	f.BoolVar(&runOpts.keepSwap, "keep-swap", false,
		"Leave the swap files of the run in --image-dir.")
}

func (o runOptions) validate() error {
	if o.pageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", o.pageSize)
	}

	if o.numFrames <= 0 {
		return fmt.Errorf("number of frames must be positive, got %d",
			o.numFrames)
	}

	if o.tlbSize < 0 {
		return fmt.Errorf("TLB size must not be negative, got %d", o.tlbSize)
	}

	return nil
}

func (o runOptions) buildKernel() (*kernel.Kernel, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	b := kernel.MakeBuilder().
		WithPageSize(uint64(o.pageSize)).
		WithNumFrames(o.numFrames).
		WithFileSystem(backing.NewOSFileSystem(o.imageDir))

	if o.tlbSize == 0 {
		return b.WithoutTLB().Build("Kernel"), nil
	}

	policy, err := tlb.ParsePolicy(o.tlbPolicy)
	if err != nil {
		return nil, err
	}

	t := tlb.MakeBuilder().
		WithNumEntries(o.tlbSize).
		WithPolicy(policy).
		Build("Kernel.TLB")

	return b.WithTLB(t).Build("Kernel"), nil
}

func runScript(path string, o runOptions, out io.Writer) error {
	script, err := os.Open(path)
	if err != nil {
		return err
	}
	defer script.Close()

	ops, err := workload.Parse(script)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	k, err := o.buildKernel()
	if err != nil {
		return err
	}

	k.AcceptHook(kernel.NewLogHook(out, o.verbose))

	counter := tracing.NewEventCountTracer(nil)
	k.AcceptHook(counter)

	if o.record != "" {
		recorder := datarecording.New(o.record)
		tracer := tracing.NewDBTracer(recorder, nil)
		k.AcceptHook(tracer)
		atexit.Register(func() {
			tracer.Terminate()
			recorder.Close()
		})
	}

	runner := workload.NewRunner(k, out)

	if o.monitor || o.openMonitor {
		m := monitoring.NewMonitor().WithPortNumber(o.monitorPort)
		m.RegisterKernel(k)
		url := m.StartServer()

		if o.openMonitor {
			if err := browser.OpenURL(url); err != nil {
				fmt.Fprintf(os.Stderr, "Cannot open browser: %v\n", err)
			}
		}

		bar := m.CreateProgressBar(path, uint64(len(ops)))
		defer m.CompleteProgressBar(bar)
		runner.WithProgress(bar)
	}

	err = runner.Run(ops)
	printSummary(out, k, counter)

	if o.keepSwap {
		return err
	}

	return errors.Join(err, k.Shutdown())
}

func printSummary(w io.Writer, k *kernel.Kernel, counter *tracing.EventCountTracer) {
	s := k.Stats()

	fmt.Fprintf(w, "Paging: faults %d, loads %d, evictions %d, "+
		"write backs %d, TLB hits %d, TLB misses %d\n",
		s.PageFaults, s.PageLoads, s.Evictions,
		s.WriteBacks, s.TLBHits, s.TLBMisses)

	for _, name := range counter.GetEventNames() {
		fmt.Fprintf(w, "  %-12s %d\n", name, counter.GetEventCount(name))
	}
}
