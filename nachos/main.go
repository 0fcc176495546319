// Package main provides the nachos command.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/nachosvm/nachos/cmd"
)

func main() {
	cmd.Execute()
	atexit.Exit(0)
}
