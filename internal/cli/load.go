package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eventload/eventload/internal/config"
	"github.com/eventload/eventload/internal/ingest"
	"github.com/eventload/eventload/internal/store"
)

// locatorFlags are the --year/--month/--host/--filename flags shared by
// load and download-only.
type locatorFlags struct {
	year     string
	month    string
	filename string
}

func (r *root) addLocatorFlags(cmd *cobra.Command, lf *locatorFlags) {
	def := config.DefaultLocator(r.opts.Now())
	flags := cmd.Flags()
	flags.StringVar(&lf.year, "year", def.Year, "Year of the source file (YYYY).")
	flags.StringVar(&lf.month, "month", def.Month, "Month of the source file (MM).")
	flags.String("host", config.DefaultHost, "Bucket root: s3://bucket[/prefix], file://dir or a directory.")
	flags.StringVar(&lf.filename, "filename", config.DefaultFilename, "Object name inside the month directory.")
}

// locator combines the flags with the configured host. It is validated.
func (lf *locatorFlags) locator(cfg *config.Config) (config.Locator, error) {
	loc := config.Locator{
		Host:     cfg.Source.Host,
		Year:     lf.year,
		Month:    lf.month,
		Filename: lf.filename,
	}
	return loc, loc.Validate()
}

func (r *root) newLoadCommand() *cobra.Command {
	var (
		lf        locatorFlags
		aggregate bool
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Fetch one month's event log and append it to the store.",
		Long: `Fetch {host}/{year}/{month}/{filename}, parse it and append its rows to
the events table, recording the file in the files table in the same
transaction. A file that is already recorded is skipped without being
fetched. With --aggregate, identical rows are stored once with a count.`,
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
			key, err := loc.Key()
			if err != nil {
				return err
			}
			sess.log.Debugf("args: year=%s month=%s host=%s filename=%s aggregate=%t",
				loc.Year, loc.Month, loc.Host, loc.Filename, aggregate)

			st, err := store.Open(ctx, sess.cfg.Store.Driver, sess.cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer st.Close()

			src, err := sess.openHost(ctx, loc.Host)
			if err != nil {
				return err
			}

			p, err := ingest.New(ingest.Config{
				Source: src,
				Ledger: st,
				Logger: sess.log,
				Tracer: sess.tracer,
				Now:    r.opts.Now,
			})
			if err != nil {
				return err
			}

			res, err := p.Run(ctx, key, loc.ObjectPath(), ingest.Options{
				Aggregate: aggregate,
				Debug:     sess.cfg.Debug,
			})
			if err != nil {
				return err
			}
			return r.printLoadReport(res)
		},
	}
	r.addLocatorFlags(cmd, &lf)
	cmd.Flags().String("db", "", "Destination store: a SQLite file path or a postgres:// URL. (default \"<data_dir>/events.db\")")
	cmd.Flags().BoolVar(&aggregate, "aggregate", false, "Collapse identical rows into one row with a count.")
	return cmd
}

func (r *root) printLoadReport(res *ingest.Result) error {
	w := tabwriter.NewWriter(r.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "status:\t%s\n", res.Status)
	fmt.Fprintf(w, "source:\t%s\n", res.Key)
	if res.Status == ingest.StatusIngested {
		fmt.Fprintf(w, "rows parsed:\t%d\n", res.RowsParsed)
		fmt.Fprintf(w, "rows appended:\t%d\n", res.RowsAppended)
		fmt.Fprintf(w, "ingest id:\t%s\n", res.IngestID)
		fmt.Fprintf(w, "checksum:\t%s\n", res.Checksum)
	}
	return w.Flush()
}
