package kernel

import "fmt"

// ExceptionType is the cause of a trap into the kernel.
type ExceptionType int

// The exception types the machine can raise.
const (
	NoException ExceptionType = iota
	SyscallException
	PageFaultException
	ReadOnlyException
	BusErrorException
	AddressErrorException
	OverflowException
	IllegalInstrException
)

func (t ExceptionType) String() string {
	switch t {
	case NoException:
		return "NoException"
	case SyscallException:
		return "SyscallException"
	case PageFaultException:
		return "PageFaultException"
	case ReadOnlyException:
		return "ReadOnlyException"
	case BusErrorException:
		return "BusErrorException"
	case AddressErrorException:
		return "AddressErrorException"
	case OverflowException:
		return "OverflowException"
	case IllegalInstrException:
		return "IllegalInstrException"
	default:
		return fmt.Sprintf("ExceptionType(%d)", int(t))
	}
}

// SyscallCode selects the system call of a SyscallException.
type SyscallCode int

// System call codes, numbered as the user library numbers them.
const (
	SyscallHalt SyscallCode = iota
	SyscallExit
	SyscallExec
	SyscallJoin
	SyscallCreate
	SyscallOpen
	SyscallRead
	SyscallWrite
	SyscallClose
	SyscallFork
	SyscallYield
)

// An Exception is a trap raised by the running user program.
type Exception struct {
	Type     ExceptionType
	Syscall  SyscallCode
	Arg      int
	BadVAddr uint64
}
