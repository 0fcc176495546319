// Package cmd provides the command-line interface of nachos.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nachos",
	Short: "nachos runs user programs on a demand-paged virtual memory.",
	Long: `nachos runs access scripts against the paging core of a teaching ` +
		`kernel and reports faults, evictions and write backs. Flag defaults ` +
		`can be set with NACHOS_* environment variables or a .env file.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}
}

func init() {
	loadDotEnv()

	addRunCommand()
	addNoffCommands()
}

// loadDotEnv loads .env from the working directory before any flag default
// is read from the environment.
func loadDotEnv() {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}
}

func envString(name, def string) string {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}

	return v
}

func envInt(name string, def int) int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ignoring %s=%q: not a number\n", name, v)
		return def
	}

	return n
}
