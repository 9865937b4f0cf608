// FILE: lixenwraith/phaseconf/cmd/phaseconf/keys.go
package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lixenwraith/phaseconf"
)

func newKeysCmd() *cobra.Command {
	f := &schemaFlags{}
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "List the key templates of every phase with their defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listKeys(cmd.OutOrStdout(), f)
		},
	}
	f.register(cmd)
	return cmd
}

func listKeys(out io.Writer, f *schemaFlags) error {
	logger, err := f.newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	program, err := f.loadProgram(logger)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold, color.FgCyan)
	gray := color.New(color.FgHiBlack)
	for _, phase := range phaseconf.Phases {
		templates := program.Templates(phase)
		bold.Fprintf(out, "%s (%d keys, %d routines)\n", phase, len(templates), program.RoutineCount(phase))
		for _, key := range templates {
			fmt.Fprintf(out, "  %s", key)
			if def, ok := program.DefaultFor(phase, key); ok {
				gray.Fprintf(out, " = %q", def)
			}
			fmt.Fprintln(out)
		}
	}
	return nil
}
