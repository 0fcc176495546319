package workload

import (
	"fmt"
	"io"

	"github.com/sarchlab/nachosvm/kernel"
)

// A ProgressReporter is told how far a run has come.
type ProgressReporter interface {
	IncrementInProgress(amount uint64)
	MoveInProgressToFinished(amount uint64)
}

// A Runner executes scripts against a kernel.
type Runner struct {
	kernel   *kernel.Kernel
	out      io.Writer
	progress ProgressReporter
}

// NewRunner creates a runner that prints the outcome of each step to out.
func NewRunner(k *kernel.Kernel, out io.Writer) *Runner {
	return &Runner{kernel: k, out: out}
}

// WithProgress makes the runner report to p.
func (r *Runner) WithProgress(p ProgressReporter) *Runner {
	r.progress = p
	return r
}

// Run executes ops in order until the end of the script or a halt.
func (r *Runner) Run(ops []Op) error {
	for _, op := range ops {
		if r.kernel.Halted() {
			break
		}

		if r.progress != nil {
			r.progress.IncrementInProgress(1)
		}

		err := r.step(op)
		if err != nil {
			return fmt.Errorf("line %d: %s: %w", op.Line, op.Kind, err)
		}

		if r.progress != nil {
			r.progress.MoveInProgressToFinished(1)
		}
	}

	return nil
}

func (r *Runner) step(op Op) error {
	k := r.kernel

	switch op.Kind {
	case OpExec:
		pid, err := k.Exec(op.Image)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "exec %s: pid %d\n", op.Image, pid)
	case OpRead:
		if err := r.currentMustExist(); err != nil {
			return err
		}
		data, err := k.ReadMem(op.Addr, 1)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "read 0x%x: %d\n", op.Addr, data[0])
	case OpWrite:
		if err := r.currentMustExist(); err != nil {
			return err
		}
		return k.WriteMem(op.Addr, []byte{op.Value})
	case OpFork:
		if err := r.currentMustExist(); err != nil {
			return err
		}
		child := k.ExceptionHandler(kernel.Exception{
			Type:    kernel.SyscallException,
			Syscall: kernel.SyscallFork,
		})
		fmt.Fprintf(r.out, "fork: pid %d\n", child)
	case OpSwitch:
		if k.Process(op.PID) == nil {
			return fmt.Errorf("no process %d", op.PID)
		}
		k.SwitchTo(op.PID)
	case OpExit:
		if err := r.currentMustExist(); err != nil {
			return err
		}
		k.ExceptionHandler(kernel.Exception{
			Type:    kernel.SyscallException,
			Syscall: kernel.SyscallExit,
			Arg:     op.Status,
		})
	case OpHalt:
		k.ExceptionHandler(kernel.Exception{
			Type:    kernel.SyscallException,
			Syscall: kernel.SyscallHalt,
		})
	}

	return nil
}

func (r *Runner) currentMustExist() error {
	if _, ok := r.kernel.Current(); !ok {
		return fmt.Errorf("no process is running")
	}

	return nil
}
