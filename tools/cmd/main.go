// License: GPLv3 Copyright: 2022, Kovid Goyal, <kovid at kovidgoyal.net>

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/kovidgoyal/notifier/tools/cmd/tool"
)

func main() {
	root := &cobra.Command{
		Use:          "notifier",
		Short:        "Multiplex descriptors, signals, interval timers and child processes in a single event loop",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	tool.EntryPoints(root)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
