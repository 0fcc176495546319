package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/nachosvm/mem/vm"
)

var noffCmd = &cobra.Command{
	Use:   "noff [output]",
	Short: "Write a NOFF image.",
	Long: "`noff output --code code.bin --data data.bin --uninit 256` " +
		"writes an image with the raw code and data and the given amount " +
		"of uninitialized data.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codeFile, _ := cmd.Flags().GetString("code")
		dataFile, _ := cmd.Flags().GetString("data")
		uninit, _ := cmd.Flags().GetUint64("uninit")

		code, err := readOptional(codeFile)
		if err != nil {
			return err
		}

		data, err := readOptional(dataFile)
		if err != nil {
			return err
		}

		buf := new(bytes.Buffer)
		if err := vm.WriteNoffImage(buf, code, data, uninit); err != nil {
			return err
		}

		return os.WriteFile(args[0], buf.Bytes(), 0o644)
	},
}

var layoutCmd = &cobra.Command{
	Use:   "layout [image]",
	Short: "Print the layout of a NOFF image.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		layout, err := vm.ParseNoffHeader(f)
		if err != nil {
			return err
		}

		pageSize, _ := cmd.Flags().GetUint64("page-size")
		if pageSize == 0 {
			return fmt.Errorf("page size must be positive")
		}

		w := cmd.OutOrStdout()
		printSegment := func(name string, s vm.Segment) {
			fmt.Fprintf(w, "%-11s vaddr 0x%06x  file 0x%06x  size %d\n",
				name, s.VirtualAddr, s.InFileAddr, s.Size)
		}
		printSegment("code", layout.Code)
		printSegment("initData", layout.InitData)
		printSegment("uninitData", layout.UninitData)
		fmt.Fprintf(w, "stack       size %d\n", layout.StackSize)
		fmt.Fprintf(w, "pages       %d of %d bytes\n",
			layout.NumPages(pageSize), pageSize)

		return nil
	},
}

func addNoffCommands() {
	rootCmd.AddCommand(noffCmd)
	noffCmd.Flags().String("code", "", "File with the raw code bytes.")
	noffCmd.Flags().String("data", "", "File with the initialized data.")
	noffCmd.Flags().Uint64("uninit", 0, "Bytes of uninitialized data.")

	rootCmd.AddCommand(layoutCmd)
	layoutCmd.Flags().Uint64("page-size",
		uint64(envInt("NACHOS_PAGE_SIZE", 128)), "Bytes per page.")
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}

	return os.ReadFile(path)
}
