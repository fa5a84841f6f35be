package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func (r *root) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the eventload version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(r.stdout, "eventload %s (%s %s/%s)\n", r.opts.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
