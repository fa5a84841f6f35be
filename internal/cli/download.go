package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eventload/eventload/internal/storage"
)

func (r *root) newDownloadCommand() *cobra.Command {
	var (
		lf     locatorFlags
		source string
		dest   string
	)
	cmd := &cobra.Command{
		Use:   "download-only",
		Short: "Fetch one month's event log to a local file without loading it.",
		Long: `Fetch {host}/{year}/{month}/{filename} and write it to {year}_{month}.csv
in the current directory. --source replaces the composed object location with
a full URL or path, --dest replaces the local file name. The store is not
touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := r.start(cmd)
			if err != nil {
				return err
			}
			defer sess.close(ctx)

			loc, err := lf.locator(sess.cfg)
			if err != nil {
				return err
			}
			sess.log.Debugf("args: year=%s month=%s host=%s filename=%s source=%q dest=%q",
				loc.Year, loc.Month, loc.Host, loc.Filename, source, dest)

			var (
				src        storage.ObjectStorage
				objectPath string
				from       string
			)
			if source != "" {
				src, objectPath, err = sess.openObject(ctx, source)
				from = source
			} else {
				src, err = sess.openHost(ctx, loc.Host)
				objectPath = loc.ObjectPath()
				from = fmt.Sprintf("%s/%s", loc.Host, objectPath)
			}
			if err != nil {
				return err
			}

			if dest == "" {
				dest = loc.LocalName()
			}
			if err := src.Download(ctx, objectPath, dest); err != nil {
				return storage.AsSourceError(objectPath, err)
			}

			var size int64
			if info, err := os.Stat(dest); err == nil {
				size = info.Size()
			}
			sess.log.Infof("downloaded %s to %s", from, dest)
			fmt.Fprintf(r.stdout, "%s -> %s (%d bytes)\n", from, dest, size)
			return nil
		},
	}
	r.addLocatorFlags(cmd, &lf)
	cmd.Flags().StringVar(&source, "source", "", "Full object URL or path to fetch instead of the composed location.")
	cmd.Flags().StringVar(&dest, "dest", "", "Local file to write. (default \"{year}_{month}.csv\")")
	return cmd
}
