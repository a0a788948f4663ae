// Command silo runs a single silo process and offers local diagnostics
// subcommands, grounded on the teacher's cmd/consensus cobra layout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "silo",
	Short: "Run and inspect a silo virtual-actor runtime process",
	Long: `silo starts a single member of a virtual-actor cluster: it owns a
durable state store, a membership view, and the activations it currently
hosts. Subcommands inspect a freshly-started process's local state;
there is no remote administration bridge (out of scope, see spec §1).`,
}

func main() {
	rootCmd.AddCommand(runCmd(), memberCmd(), actorCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
