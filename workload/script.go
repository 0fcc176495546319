// Package workload drives a kernel with a script of memory accesses.
package workload

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sarchlab/nachosvm/mem/vm"
)

// OpKind is the kind of a script step.
type OpKind int

// The kinds of script steps.
const (
	OpExec OpKind = iota
	OpRead
	OpWrite
	OpFork
	OpSwitch
	OpExit
	OpHalt
)

var opNames = map[string]OpKind{
	"exec":   OpExec,
	"read":   OpRead,
	"write":  OpWrite,
	"fork":   OpFork,
	"switch": OpSwitch,
	"exit":   OpExit,
	"halt":   OpHalt,
}

func (k OpKind) String() string {
	for name, kind := range opNames {
		if kind == k {
			return name
		}
	}

	return fmt.Sprintf("OpKind(%d)", int(k))
}

// An Op is one step of a script.
type Op struct {
	Kind OpKind
	Line int

	Image  string
	Addr   uint64
	Value  byte
	PID    vm.PID
	Status int
}

// Parse reads a script. Each line holds one step; "#" starts a comment.
func Parse(r io.Reader) ([]Op, error) {
	var ops []Op

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++

		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		op, err := parseOp(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		op.Line = lineNo
		ops = append(ops, op)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return ops, nil
}

func parseOp(fields []string) (Op, error) {
	kind, ok := opNames[strings.ToLower(fields[0])]
	if !ok {
		return Op{}, fmt.Errorf("unknown command %q", fields[0])
	}

	op := Op{Kind: kind}
	args := fields[1:]

	var err error
	switch kind {
	case OpExec:
		err = argCountMustBe(args, 1)
		if err == nil {
			op.Image = args[0]
		}
	case OpRead:
		err = argCountMustBe(args, 1)
		if err == nil {
			op.Addr, err = parseNumber(args[0], 64)
		}
	case OpWrite:
		err = argCountMustBe(args, 2)
		if err == nil {
			op.Addr, err = parseNumber(args[0], 64)
		}
		if err == nil {
			var v uint64
			v, err = parseNumber(args[1], 8)
			op.Value = byte(v)
		}
	case OpSwitch:
		err = argCountMustBe(args, 1)
		if err == nil {
			var pid uint64
			pid, err = parseNumber(args[0], 31)
			op.PID = vm.PID(pid)
		}
	case OpExit:
		if len(args) > 1 {
			err = fmt.Errorf("exit takes at most 1 argument, got %d", len(args))
		} else if len(args) == 1 {
			op.Status, err = strconv.Atoi(args[0])
		}
	case OpFork, OpHalt:
		err = argCountMustBe(args, 0)
	}

	return op, err
}

func argCountMustBe(args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}

	return nil
}

func parseNumber(s string, bitSize int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bitSize)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}

	return v, nil
}
