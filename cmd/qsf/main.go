// Command qsf is the CLI frontend over the core QSF writer/reader engine,
// built with github.com/spf13/cobra: a root command wiring write/read
// subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "qsf",
		Short:         "Multiplex and demultiplex QUIC Stream File (.qsf) containers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newWriteCmd())
	root.AddCommand(newReadCmd())
	return root
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "qsf:", err)
		os.Exit(1)
	}
}
