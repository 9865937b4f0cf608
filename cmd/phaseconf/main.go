// FILE: lixenwraith/phaseconf/cmd/phaseconf/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information - will be set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "phaseconf",
		Short: "Compile configuration schemas and check configuration sources against them",
		Long: `phaseconf compiles a YAML or JSON schema document into per-phase programs and
materializes configuration from files, environment variables and arguments, reporting
every invalid, missing and unknown key at once.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newKeysCmd())
	return rootCmd
}
