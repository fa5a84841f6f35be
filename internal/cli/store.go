package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eventload/eventload/internal/store"
)

func (r *root) newCheckStoreCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-store",
		Short: "Verify that the destination store exists and can be read.",
		Long: `Open the destination store without creating it and run an integrity
check. A missing, unreadable or corrupt store is reported as an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := r.start(cmd)
			if err != nil {
				return err
			}
			defer sess.close(ctx)

			report, err := store.Check(ctx, sess.cfg.Store.Driver, sess.cfg.Store.DSN)
			if err != nil {
				return err
			}
			if !report.SchemaPresent {
				fmt.Fprintf(r.stdout, "store OK: %s (%s, no eventload tables yet)\n", report.Target, report.Driver)
				return nil
			}
			fmt.Fprintf(r.stdout, "store OK: %s (%s, %d events, %d files)\n",
				report.Target, report.Driver, report.Events, report.Files)
			return nil
		},
	}
	cmd.Flags().String("db", "", "Store to check: a SQLite file path or a postgres:// URL. (default \"<data_dir>/events.db\")")
	return cmd
}

func (r *root) newFilesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "List the source files recorded in the store.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := r.start(cmd)
			if err != nil {
				return err
			}
			defer sess.close(ctx)

			// Check first so listing never creates a store.
			report, err := store.Check(ctx, sess.cfg.Store.Driver, sess.cfg.Store.DSN)
			if err != nil {
				return err
			}
			if !report.SchemaPresent {
				fmt.Fprintln(r.stdout, "no files ingested")
				return nil
			}

			st, err := store.Open(ctx, sess.cfg.Store.Driver, sess.cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer st.Close()

			files, err := st.Files(ctx)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(r.stdout, "no files ingested")
				return nil
			}

			w := tabwriter.NewWriter(r.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tROWS\tAGGREGATED\tINGESTED AT\tINGEST ID\tCHECKSUM")
			for _, f := range files {
				fmt.Fprintf(w, "%s\t%d\t%t\t%s\t%s\t%s\n",
					f.Key, f.RowCount, f.Aggregated, f.IngestedAt.Format(time.RFC3339), f.IngestID, f.Checksum)
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("db", "", "Store to read: a SQLite file path or a postgres:// URL. (default \"<data_dir>/events.db\")")
	return cmd
}
