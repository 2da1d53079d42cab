// License: GPLv3 Copyright: 2022, Kovid Goyal, <kovid at kovidgoyal.net>

package tool

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kovidgoyal/notifier"
	"github.com/kovidgoyal/notifier/tools/cmd/watch"
	"github.com/kovidgoyal/notifier/tools/config"
	"github.com/kovidgoyal/notifier/tools/notify"
)

var _ = fmt.Print

func EntryPoints(root *cobra.Command) {
	root.Version = notifier.VersionString
	// watch
	watch.EntryPoint(root)
	// reload
	root.AddCommand(&cobra.Command{
		Use:   "reload",
		Short: "Make every running notifier watch re-read its config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := config.ReloadConfigInRunning(notify.CONFIG_NAME)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signalled %d running instance(s)\n", count)
			return nil
		},
	})
	// version
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			v := notifier.VersionString
			if notifier.VCSRevision != "" {
				v += " (" + notifier.VCSRevision + ")"
			}
			fmt.Fprintln(cmd.OutOrStdout(), "notifier", v)
		},
	})
}
